package viz

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/mpc"
	"github.com/san-kum/quadmpc/internal/quad"
	"github.com/san-kum/quadmpc/internal/solver"
)

const (
	width           = 80
	height          = 24
	historyCapacity = 600
	trailCapacity   = 120
)

type TickMsg time.Time

// Model is the live view of a closed-loop run: every tick solves one
// control period, applies the first control and redraws the quad, its
// trail and the solver diagnostics. Space pauses, r restarts from the
// initial state, q quits.
type Model struct {
	ctrl       *mpc.Controller
	plant      dynamo.System
	integrator dynamo.Integrator

	x0, xref dynamo.State
	x        dynamo.State
	lastU    dynamo.Control
	t        float64
	period   int
	periods  int

	canvas  *Canvas
	trail   []struct{ x, y int }
	errHist []float64

	lastPlan *mpc.Plan
	solveErr error
	failures int

	running bool
	done    bool
}

// NewModel prepares a live run of at most periods control periods;
// zero means run until quit.
func NewModel(ctrl *mpc.Controller, plant dynamo.System, integ dynamo.Integrator, x0, xref dynamo.State, periods int) Model {
	return Model{
		ctrl:       ctrl,
		plant:      plant,
		integrator: integ,
		x0:         x0.Clone(),
		xref:       xref.Clone(),
		x:          x0.Clone(),
		periods:    periods,
		canvas:     NewCanvas(width, height),
		trail:      make([]struct{ x, y int }, 0, trailCapacity),
		errHist:    make([]float64, 0, historyCapacity),
		running:    true,
	}
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) tick() tea.Cmd {
	period := time.Duration(m.ctrl.Dt() * float64(time.Second))
	return tea.Tick(period, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		}
	case TickMsg:
		if m.running && !m.done {
			m.step()
		}
		return m, m.tick()
	}
	return m, nil
}

// step runs one control period. Failed solves hold the last control so
// the view keeps moving; the failure still shows up in the sidebar.
func (m *Model) step() {
	u, plan, err := m.ctrl.SolveStep(context.Background(), m.x, m.xref)
	m.lastPlan = plan
	m.solveErr = err
	if err != nil {
		m.failures++
		u = m.fallback()
	}

	m.lastU = u.Clone()
	m.x = m.integrator.Step(m.plant, m.x, u, m.t, m.ctrl.Dt())
	m.t += m.ctrl.Dt()
	m.period++

	sx, sy := m.worldToScreen(m.x[quad.Px], m.x[quad.Pz])
	m.trail = append(m.trail, struct{ x, y int }{sx, sy})
	if len(m.trail) > trailCapacity {
		m.trail = m.trail[1:]
	}

	m.errHist = append(m.errHist, m.x.Sub(m.xref).Norm())
	if len(m.errHist) > historyCapacity {
		m.errHist = m.errHist[1:]
	}

	if m.periods > 0 && m.period >= m.periods {
		m.done = true
	}
	if !m.x.IsValid() {
		m.done = true
	}
}

func (m *Model) fallback() dynamo.Control {
	if m.lastU != nil {
		return m.lastU.Clone()
	}
	if h, ok := m.plant.(interface{ HoverControl() dynamo.Control }); ok {
		return h.HoverControl()
	}
	return make(dynamo.Control, m.plant.ControlDim())
}

func (m *Model) reset() {
	m.x = m.x0.Clone()
	m.lastU = nil
	m.t = 0
	m.period = 0
	m.failures = 0
	m.lastPlan = nil
	m.solveErr = nil
	m.errHist = m.errHist[:0]
	m.trail = m.trail[:0]
	m.done = false
	m.running = true
}

func (m *Model) worldToScreen(px, pz float64) (int, int) {
	cx := width
	cy := height * 2
	return cx + int(px*12), cy - int(pz*10)
}

func (m *Model) draw() {
	m.canvas.Clear()

	tx, ty := m.worldToScreen(m.xref[quad.Px], m.xref[quad.Pz])
	m.canvas.Cross(tx, ty, 3)

	for _, pt := range m.trail {
		m.canvas.Set(pt.x, pt.y)
	}

	dx, dy := m.worldToScreen(m.x[quad.Px], m.x[quad.Pz])
	theta := m.x[quad.Theta]
	arm := 9.0
	lx := dx - int(arm*math.Cos(theta))
	ly := dy + int(arm*math.Sin(theta))
	rx := dx + int(arm*math.Cos(theta))
	ry := dy - int(arm*math.Sin(theta))

	m.canvas.DrawLine(lx, ly, rx, ry)
	m.canvas.Mark(lx, ly)
	m.canvas.Mark(rx, ry)
	m.canvas.Mark(dx, dy)
}

func (m Model) View() string {
	m.draw()
	canvasView := canvasStyle.Render(m.canvas.String())

	var status string
	switch {
	case m.done:
		status = statusDone.Render("DONE")
	case !m.running:
		status = statusPaused.Render("PAUSED")
	default:
		status = statusRunning.Render("RUNNING")
	}

	var s strings.Builder
	s.WriteString(headerStyle.Render("QUAD MPC") + "\n")
	s.WriteString(status + "\n\n")

	if len(m.errHist) > 1 {
		chart := asciigraph.Plot(m.errHist,
			asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("distance to target"))
		s.WriteString(graphStyle.Render(chart) + "\n\n")
	}

	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.2fs", m.t)) + "\n")
	s.WriteString(labelStyle.Render("Period") + valueStyle.Render(fmt.Sprintf("%d", m.period)) + "\n")
	s.WriteString(labelStyle.Render("Position") + valueStyle.Render(fmt.Sprintf("(%.2f, %.2f)", m.x[quad.Px], m.x[quad.Pz])) + "\n")
	s.WriteString(labelStyle.Render("Tilt") + valueStyle.Render(fmt.Sprintf("%.3f rad", m.x[quad.Theta])) + "\n")
	speed := math.Hypot(m.x[quad.Vx], m.x[quad.Vz])
	s.WriteString(labelStyle.Render("Speed") + valueStyle.Render(fmt.Sprintf("%.2f m/s", speed)) + "\n")
	if m.lastU != nil {
		s.WriteString(labelStyle.Render("Thrust") + valueStyle.Render(fmt.Sprintf("%.2f", m.lastU[quad.UThrust])) + "\n")
		s.WriteString(labelStyle.Render("Moment") + valueStyle.Render(fmt.Sprintf("%.2f", m.lastU[quad.UMoment])) + "\n")
	}

	s.WriteString("\nSOLVER\n")
	if m.lastPlan != nil {
		statusText := m.lastPlan.Status.String()
		if m.lastPlan.Status == solver.Infeasible || m.lastPlan.Status == solver.Failed {
			statusText = statusFailed.Render(statusText)
		}
		s.WriteString(labelStyle.Render("Status") + valueStyle.Render(statusText) + "\n")
		s.WriteString(labelStyle.Render("Iterations") + valueStyle.Render(fmt.Sprintf("%d", m.lastPlan.Iterations)) + "\n")
		s.WriteString(labelStyle.Render("Solve") + valueStyle.Render(fmt.Sprintf("%.1fms", m.lastPlan.SolveTime.Seconds()*1000)) + "\n")
		s.WriteString(labelStyle.Render("Violation") + valueStyle.Render(fmt.Sprintf("%.2e", m.lastPlan.Violation)) + "\n")
	} else {
		s.WriteString(labelStyle.Render("Status") + valueStyle.Render("waiting") + "\n")
	}
	if m.failures > 0 {
		s.WriteString(labelStyle.Render("Failures") + statusFailed.Render(fmt.Sprintf("%d", m.failures)) + "\n")
	}

	s.WriteString(helpStyle.Render("\n─────────────────────\nSP:Pause R:Reset Q:Quit"))

	statsView := statsStyle.Render(s.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsView)
}

// Run drives the live view until the user quits.
func Run(m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
