package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/mpc"
	"github.com/san-kum/quadmpc/internal/quad"
)

const (
	width       = 70
	height      = 20
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer draws the closed loop as it runs, without taking over
// the terminal the way the Bubble Tea view does. Attach it to a loop
// as an observer; it also picks up per-period plans for the solver
// footer.
type LiveRenderer struct {
	target    dynamo.State
	frameRate int
	lastFrame time.Time
	canvas    [][]rune
	trail     []struct{ x, y int }
	lastPlan  *mpc.Plan
}

func NewLiveRenderer(target dynamo.State, frameRate int) *LiveRenderer {
	if frameRate < 1 {
		frameRate = 30
	}
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
	}
	return &LiveRenderer{
		target:    target.Clone(),
		frameRate: frameRate,
		canvas:    canvas,
		trail:     make([]struct{ x, y int }, 0, 50),
	}
}

func (r *LiveRenderer) OnStep(x dynamo.State, u dynamo.Control, t float64) {
	elapsed := time.Since(r.lastFrame)
	if elapsed < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()

	r.clear()
	r.drawQuad(x)
	r.render(x, u, t)
}

// ObservePlan keeps the latest plan so the footer can show solver
// diagnostics alongside the vehicle.
func (r *LiveRenderer) ObservePlan(plan *mpc.Plan) {
	if plan != nil {
		r.lastPlan = plan
	}
}

func (r *LiveRenderer) clear() {
	for y := range r.canvas {
		for x := range r.canvas[y] {
			r.canvas[y][x] = ' '
		}
	}
}

func (r *LiveRenderer) set(x, y int, c rune) {
	if x >= 0 && x < width && y >= 0 && y < height {
		r.canvas[y][x] = c
	}
}

func (r *LiveRenderer) line(x1, y1, x2, y2 int, c rune) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		r.set(x1, y1, c)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (r *LiveRenderer) drawQuad(x dynamo.State) {
	if len(x) < quad.NX {
		return
	}
	px, pz, theta := x[quad.Px], x[quad.Pz], x[quad.Theta]

	for i := 3; i < width-3; i++ {
		r.set(i, height-2, '_')
	}

	if len(r.target) >= quad.NX {
		tx := width/2 + int(r.target[quad.Px]*3)
		ty := height/2 - int(r.target[quad.Pz]*1.2)
		r.set(tx, ty, '+')
	}

	dx := width/2 + int(px*3)
	dy := height/2 - int(pz*1.2)

	r.trail = append(r.trail, struct{ x, y int }{dx, dy})
	if len(r.trail) > 30 {
		r.trail = r.trail[1:]
	}
	for _, pt := range r.trail {
		r.set(pt.x, pt.y, '.')
	}

	arm := 4.0
	lx := dx - int(arm*math.Cos(theta))
	ly := dy - int(arm*math.Sin(theta))
	rx := dx + int(arm*math.Cos(theta))
	ry := dy + int(arm*math.Sin(theta))

	r.line(lx, ly, rx, ry, '-')
	r.set(dx, dy, 'X')
	r.set(lx, ly, 'o')
	r.set(rx, ry, 'o')
}

func (r *LiveRenderer) render(x dynamo.State, u dynamo.Control, t float64) {
	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(fmt.Sprintf("  quad mpc  t=%.2fs\n", t))
	b.WriteString("  " + strings.Repeat("-", width) + "\n")

	for _, row := range r.canvas {
		b.WriteString("  ")
		b.WriteString(string(row))
		b.WriteString("\n")
	}

	b.WriteString("  " + strings.Repeat("-", width) + "\n")

	if len(x) >= quad.NX {
		b.WriteString(fmt.Sprintf("  px=%.2f pz=%.2f th=%.2f vx=%.2f vz=%.2f w=%.2f\n",
			x[quad.Px], x[quad.Pz], x[quad.Theta], x[quad.Vx], x[quad.Vz], x[quad.Omega]))
	}
	if len(u) >= quad.NU {
		b.WriteString(fmt.Sprintf("  uF=%.2f uM=%.2f\n", u[quad.UThrust], u[quad.UMoment]))
	}

	if r.lastPlan != nil {
		b.WriteString(fmt.Sprintf("  solver: %s  iters=%d  %.1fms  viol=%.1e\n",
			r.lastPlan.Status, r.lastPlan.Iterations,
			r.lastPlan.SolveTime.Seconds()*1000, r.lastPlan.Violation))
	} else {
		b.WriteString("  solver: waiting\n")
	}

	fmt.Print(b.String())
}

func (r *LiveRenderer) Start() { fmt.Print(hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Print(showCursor) }

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
