package analysis

import "strings"

// Point is one sample of a two-component projection.
type Point struct{ X, Y float64 }

// Portrait is a planar projection of a recorded trajectory: position
// px against pz traces the flight path, an angle against its rate
// shows limit cycles.
type Portrait struct {
	XIndex, YIndex int
	Points         []Point
}

// NewPortrait projects two columns out of a recorded state series.
// Rows short of either index are skipped; a projection with no usable
// rows is nil.
func NewPortrait(states [][]float64, xIdx, yIdx int) *Portrait {
	if xIdx < 0 || yIdx < 0 {
		return nil
	}

	p := &Portrait{XIndex: xIdx, YIndex: yIdx, Points: make([]Point, 0, len(states))}
	for _, row := range states {
		if xIdx >= len(row) || yIdx >= len(row) {
			continue
		}
		p.Points = append(p.Points, Point{X: row[xIdx], Y: row[yIdx]})
	}

	if len(p.Points) == 0 {
		return nil
	}
	return p
}

// ASCII renders the portrait on a character canvas with zero axes where
// they cross the visible range.
func (p *Portrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		if pt.X < minX {
			minX = pt.X
		}
		if pt.X > maxX {
			maxX = pt.X
		}
		if pt.Y < minY {
			minY = pt.Y
		}
		if pt.Y > maxY {
			maxY = pt.Y
		}
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}

	for _, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			canvas[row][col] = '•'
		}
	}

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if col >= 0 && col < width && canvas[row][col] == ' ' {
				canvas[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if row >= 0 && row < height && canvas[row][col] == ' ' {
				canvas[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
