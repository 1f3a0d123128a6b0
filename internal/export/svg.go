package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/quadmpc/internal/analysis"
)

// TrajectoryToSVG renders a planar trajectory as an SVG path. The
// target, when given, is included in the bounds and drawn as a
// crosshair, and the first point gets a dot so the direction of travel
// is readable. Fewer than two points yields an empty string.
func TrajectoryToSVG(points []analysis.Point, target *analysis.Point, width, height int, strokeColor string) string {
	if len(points) < 2 {
		return ""
	}
	if strokeColor == "" {
		strokeColor = "#00ff88"
	}

	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if target != nil {
		if target.X < minX {
			minX = target.X
		}
		if target.X > maxX {
			maxX = target.X
		}
		if target.Y < minY {
			minY = target.Y
		}
		if target.Y > maxY {
			maxY = target.Y
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

	mapX := func(v float64) float64 { return (v - minX) / rangeX * float64(width) }
	mapY := func(v float64) float64 { return float64(height) - (v-minY)/rangeY*float64(height) }

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor))

	for i, p := range points {
		x := mapX(p.X)
		y := mapY(p.Y)
		if i == 0 {
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
		} else {
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
	}
	sb.WriteString("\"/>\n")

	if target != nil {
		tx, ty := mapX(target.X), mapY(target.Y)
		sb.WriteString(fmt.Sprintf(`<g stroke="#ff5555" stroke-width="1" fill="none">
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f"/>
<circle cx="%.1f" cy="%.1f" r="4"/>
</g>
`, tx-6, ty, tx+6, ty, tx, ty-6, tx, ty+6, tx, ty))
	}

	sx, sy := mapX(points[0].X), mapY(points[0].Y)
	sb.WriteString(fmt.Sprintf(`<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>
`, sx, sy, strokeColor))

	sb.WriteString("</svg>")
	return sb.String()
}
