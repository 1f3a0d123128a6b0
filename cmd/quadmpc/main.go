package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/quadmpc/internal/analysis"
	"github.com/san-kum/quadmpc/internal/automation"
	"github.com/san-kum/quadmpc/internal/config"
	"github.com/san-kum/quadmpc/internal/dynamo"
	"github.com/san-kum/quadmpc/internal/experiment"
	"github.com/san-kum/quadmpc/internal/export"
	"github.com/san-kum/quadmpc/internal/mpc"
	"github.com/san-kum/quadmpc/internal/optim"
	"github.com/san-kum/quadmpc/internal/quad"
	"github.com/san-kum/quadmpc/internal/solver"
	"github.com/san-kum/quadmpc/internal/storage"
	"github.com/san-kum/quadmpc/internal/tui"
	"github.com/san-kum/quadmpc/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string

	dtFlag     float64
	horizon    int
	periods    int
	seedFlag   int64
	warmStart  bool
	integrator string
	objective  string
	algorithm  string

	px0, pz0, theta0 float64
	vx0, vz0, omega0 float64
	targetPX         float64
	targetPZ         float64

	angleMax, rateMax float64
	vxMax, vzMax      float64

	maxIterations int
	accuracy      float64
	verboseSolver bool

	fallbackPolicy string
	solveTimeoutMs float64

	noSave bool
	watch  bool
	fps    int

	xAxis int
	yAxis int
	axis  int

	outPath   string
	imgWidth  int
	imgHeight int
	plotKind  string

	metricName string
	paramSpecs []string

	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int

	trials       int
	perturbation float64

	savePreset string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quadmpc",
		Short: "planar quadrotor model predictive control lab",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", storage.DefaultDir(), "data directory")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the closed loop and record the result",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "skip saving the run")
	runCmd.Flags().BoolVar(&watch, "watch", false, "render the loop in the terminal while it runs")
	runCmd.Flags().IntVar(&fps, "fps", 30, "frame rate for --watch")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run the closed loop with interactive visualization",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}
	addConfigFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase portrait of two state components",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x-axis", quad.Px, "state index for x-axis")
	phaseCmd.Flags().IntVar(&yAxis, "y-axis", quad.Pz, "state index for y-axis")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency and convergence analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVar(&axis, "axis", quad.Px, "state index to analyze")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportMeta,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportPNGCmd := &cobra.Command{
		Use:   "export-png [run_id]",
		Short: "render a recorded run to PNG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportPNG,
	}
	exportPNGCmd.Flags().StringVar(&outPath, "out", "", "output file (default <run_id>.png)")
	exportPNGCmd.Flags().StringVar(&plotKind, "kind", "path", "plot kind: path or series")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render the planar trajectory to SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVar(&outPath, "out", "", "output file (default <run_id>.svg)")
	exportSVGCmd.Flags().IntVar(&imgWidth, "width", 600, "image width")
	exportSVGCmd.Flags().IntVar(&imgHeight, "height", 450, "image height")
	exportSVGCmd.Flags().Float64Var(&targetPX, "target-px", 0, "target x position for the crosshair")
	exportSVGCmd.Flags().Float64Var(&targetPZ, "target-pz", 0, "target z position for the crosshair")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list preset configurations",
		RunE:  listPresets,
	}
	presetsCmd.Flags().StringVar(&savePreset, "save", "", "write the named preset to a config file")
	presetsCmd.Flags().StringVar(&outPath, "out", "", "output file for --save (default <name>.yaml)")

	compareCmd := &cobra.Command{
		Use:   "compare [integrator1 integrator2 ...]",
		Short: "compare plant integrators on the same scenario",
		Args:  cobra.ArbitraryArgs,
		RunE:  compareIntegrators,
	}
	addConfigFlags(compareCmd)

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid-search configuration parameters",
		Args:  cobra.NoArgs,
		RunE:  tuneSearch,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&paramSpecs, "param", nil, "parameter grid, e.g. horizon=8,10,12 (repeatable)")
	tuneCmd.Flags().StringVar(&metricName, "metric", "tracking_error", "metric to minimize")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "sweep one parameter across a range",
		Args:  cobra.NoArgs,
		RunE:  runSweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "horizon", "parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 5, "lowest value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 15, "highest value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")

	batchCmd := &cobra.Command{
		Use:   "batch [campaign.yaml]",
		Short: "run a scripted campaign",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "benchmark solve times across horizons and timesteps",
		Args:  cobra.NoArgs,
		RunE:  benchSolver,
	}
	addConfigFlags(benchCmd)
	benchCmd.Flags().IntVar(&trials, "trials", 0, "run a perturbed ensemble of this size instead")
	benchCmd.Flags().Float64Var(&perturbation, "perturbation", 0.1, "initial-state noise for --trials")

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, phaseCmd, analyzeCmd,
		exportCmd, exportCSVCmd, exportJSONCmd, exportPNGCmd, exportSVGCmd,
		presetsCmd, compareCmd, tuneCmd, sweepCmd, batchCmd, benchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addConfigFlags registers the flags shared by every command that
// builds a run configuration.
func addConfigFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&preset, "preset", "", "preset configuration name")

	f.Float64Var(&dtFlag, "dt", config.DefaultDt, "control period length")
	f.IntVar(&horizon, "horizon", config.DefaultHorizon, "prediction horizon")
	f.IntVar(&periods, "periods", config.DefaultPeriods, "control periods to run")
	f.Int64Var(&seedFlag, "seed", 0, "random seed")
	f.BoolVar(&warmStart, "warm-start", false, "shift the previous plan as the next initial guess")
	f.StringVar(&integrator, "integrator", "euler", "plant integrator")
	f.StringVar(&objective, "objective", "position-sum", "objective function")
	f.StringVar(&algorithm, "algorithm", "auglag", "solver algorithm")

	f.Float64Var(&px0, "px", 1.0, "initial x position")
	f.Float64Var(&pz0, "pz", 1.0, "initial z position")
	f.Float64Var(&theta0, "theta", 0.0, "initial tilt")
	f.Float64Var(&vx0, "vx", 0.0, "initial body x velocity")
	f.Float64Var(&vz0, "vz", 0.0, "initial body z velocity")
	f.Float64Var(&omega0, "omega", 0.0, "initial tilt rate")
	f.Float64Var(&targetPX, "target-px", 0.0, "target x position")
	f.Float64Var(&targetPZ, "target-pz", 0.0, "target z position")

	f.Float64Var(&angleMax, "angle-max", config.DefaultAngleMax, "tilt limit (rad)")
	f.Float64Var(&rateMax, "rate-max", config.DefaultRateMax, "tilt rate limit (rad/s)")
	f.Float64Var(&vxMax, "vx-max", config.DefaultVxMax, "body x velocity limit")
	f.Float64Var(&vzMax, "vz-max", config.DefaultVzMax, "body z velocity limit")

	f.IntVar(&maxIterations, "max-iterations", 0, "solver iteration budget (0 = default)")
	f.Float64Var(&accuracy, "accuracy", 0, "constraint tolerance (0 = default)")
	f.BoolVar(&verboseSolver, "verbose-solver", false, "print solver progress")

	f.StringVar(&fallbackPolicy, "fallback", "hold", "fallback policy: hold, zero or abort")
	f.Float64Var(&solveTimeoutMs, "solve-timeout", 0, "per-period solve timeout in ms (0 = none)")
}

// buildConfig resolves preset, config file and explicit flags in that
// order; a flag only overrides when it was actually set.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		c := *p
		cfg = &c
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	f := cmd.Flags()
	if f.Changed("dt") {
		cfg.Dt = dtFlag
	}
	if f.Changed("horizon") {
		cfg.Horizon = horizon
	}
	if f.Changed("periods") {
		cfg.Periods = periods
	}
	if f.Changed("seed") {
		cfg.Seed = seedFlag
	}
	if f.Changed("warm-start") {
		cfg.WarmStart = warmStart
	}
	if f.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if f.Changed("objective") {
		cfg.Objective = objective
	}
	if f.Changed("algorithm") {
		cfg.Solver.Algorithm = algorithm
	}
	if f.Changed("max-iterations") {
		cfg.Solver.MaxIterations = maxIterations
	}
	if f.Changed("accuracy") {
		cfg.Solver.Accuracy = accuracy
	}
	if f.Changed("verbose-solver") {
		cfg.Solver.Verbose = verboseSolver
	}
	if f.Changed("fallback") {
		cfg.Loop.Fallback = fallbackPolicy
	}
	if f.Changed("solve-timeout") {
		cfg.Loop.SolveTimeoutMs = solveTimeoutMs
	}

	if f.Changed("px") {
		cfg.Init.PX = px0
	}
	if f.Changed("pz") {
		cfg.Init.PZ = pz0
	}
	if f.Changed("theta") {
		cfg.Init.Theta = theta0
	}
	if f.Changed("vx") {
		cfg.Init.VX = vx0
	}
	if f.Changed("vz") {
		cfg.Init.VZ = vz0
	}
	if f.Changed("omega") {
		cfg.Init.Omega = omega0
	}
	if f.Changed("target-px") {
		cfg.Target.PX = targetPX
	}
	if f.Changed("target-pz") {
		cfg.Target.PZ = targetPZ
	}

	if f.Changed("angle-max") {
		cfg.Limits.AngleMax = angleMax
	}
	if f.Changed("rate-max") {
		cfg.Limits.RateMax = rateMax
	}
	if f.Changed("vx-max") {
		cfg.Limits.VxMax = vxMax
	}
	if f.Changed("vz-max") {
		cfg.Limits.VzMax = vzMax
	}

	return cfg, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	exp := experiment.New(cfg)
	if err := exp.Setup(); err != nil {
		return err
	}

	if watch {
		renderer := tui.NewLiveRenderer(cfg.Target.State(), fps)
		exp.Loop().AddObserver(renderer)
		renderer.Start()
		defer renderer.Stop()
	}

	fmt.Printf("running %d periods (dt=%.3fs, horizon=%d, objective=%s)...\n",
		cfg.Periods, cfg.Dt, cfg.Horizon, cfg.Objective)
	start := time.Now()

	result, err := exp.Run(context.Background())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(automation.MetadataFor(cfg), result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}

	fmt.Printf("periods: %d  failures: %d  fallback engagements: %d\n",
		result.Periods, result.Failures, result.FallbackEngagements)
	if final := result.Final(); final != nil {
		fmt.Printf("final state: px=%.4f pz=%.4f theta=%.4f vx=%.4f vz=%.4f omega=%.4f\n",
			final[quad.Px], final[quad.Pz], final[quad.Theta],
			final[quad.Vx], final[quad.Vz], final[quad.Omega])
	}

	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, result.Metrics[name])
	}

	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	registry := experiment.NewRegistry()

	model := quad.NewPlanar()
	if cfg.Gravity > 0 {
		model.Gravity = cfg.Gravity
	}

	integ, err := registry.GetIntegrator(cfg.Integrator)
	if err != nil {
		return err
	}
	obj, err := registry.GetObjective(cfg.Objective, model)
	if err != nil {
		return err
	}
	adapter, err := registry.GetAdapter(cfg.Solver.Algorithm)
	if err != nil {
		return err
	}

	opts := solver.Options{
		MaxIterations: cfg.Solver.MaxIterations,
		Accuracy:      cfg.Solver.Accuracy,
	}
	ctrl, err := mpc.New(model, adapter, cfg.Dt, cfg.Horizon, cfg.Limits, obj, opts)
	if err != nil {
		return err
	}
	ctrl.EnableWarmStart(cfg.WarmStart)

	m := viz.NewModel(ctrl, model, integ, cfg.Init.State(), cfg.Target.State(), cfg.Periods)
	return viz.Run(m)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tPERIODS\tDT\tHORIZON\tINTEG\tOBJECTIVE\tFALLBACK\tFAILURES")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.3fs\t%d\t%s\t%s\t%s\t%d\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Periods,
			run.Dt,
			run.Horizon,
			run.Integrator,
			run.Objective,
			run.Fallback,
			run.Failures,
		)
	}

	return w.Flush()
}

var columnNames = []string{"px", "pz", "theta", "vx", "vz", "omega", "uF", "uM"}

func axisName(i int) string {
	if i >= 0 && i < len(columnNames) {
		return columnNames[i]
	}
	return fmt.Sprintf("x%d", i)
}

func column(states [][]float64, idx int) []float64 {
	data := make([]float64, 0, len(states))
	for _, row := range states {
		if idx < len(row) {
			data = append(data, row[idx])
		}
	}
	return data
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("samples: %d  duration: %.2fs\n\n", len(states), times[len(times)-1])

	captions := []string{
		"px (m)", "pz (m)", "theta (rad)",
		"vx (m/s)", "vz (m/s)", "omega (rad/s)",
		"uF (thrust)", "uM (moment)",
	}

	for varIdx := range states[0] {
		caption := fmt.Sprintf("x%d vs time", varIdx)
		if varIdx < len(captions) {
			caption = captions[varIdx]
		}

		graph := asciigraph.Plot(column(states, varIdx),
			asciigraph.Height(8),
			asciigraph.Width(70),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if plans, err := st.LoadPlans(runID); err == nil && len(plans) > 0 {
		iters := make([]float64, len(plans))
		infeasible := 0
		for i, p := range plans {
			iters[i] = float64(p.Iterations)
			if p.Status == "infeasible" {
				infeasible++
			}
		}
		graph := asciigraph.Plot(iters,
			asciigraph.Height(6),
			asciigraph.Width(70),
			asciigraph.Caption("solver iterations per period"),
		)
		fmt.Println(graph)
		fmt.Printf("\ninfeasible periods: %d/%d\n", infeasible, len(plans))
	}

	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	portrait := analysis.NewPortrait(states, xAxis, yAxis)
	if portrait == nil {
		return fmt.Errorf("no usable samples for axes %d/%d", xAxis, yAxis)
	}

	fmt.Printf("phase portrait: %s (%s vs %s)\n\n", runID, axisName(xAxis), axisName(yAxis))
	fmt.Println(portrait.ASCII(70, 20))
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 || axis >= len(states[0]) {
		return fmt.Errorf("no data for axis %d", axis)
	}

	fmt.Printf("analysis: %s (%s, dt=%.3fs)\n\n", runID, axisName(axis), meta.Dt)

	data := column(states, axis)
	_, power := analysis.PowerSpectrum(data, meta.Dt)
	if len(power) > 2 {
		graph := asciigraph.Plot(power[1:],
			asciigraph.Height(10),
			asciigraph.Width(70),
			asciigraph.Caption(fmt.Sprintf("power spectrum (%s)", axisName(axis))),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	if freq, _ := analysis.DominantFrequency(data, meta.Dt); freq > 0 {
		fmt.Printf("dominant frequency: %.3f hz (period %.3fs)\n", freq, 1.0/freq)
	} else {
		fmt.Println("no dominant oscillation")
	}

	stateRows := make([][]float64, len(states))
	for i, row := range states {
		if len(row) > quad.NX {
			stateRows[i] = row[:quad.NX]
		} else {
			stateRows[i] = row
		}
	}
	target := make([]float64, quad.NX)
	if rate, ok := analysis.ConvergenceRate(stateRows, target, meta.Dt); ok {
		if rate < 0 {
			fmt.Printf("convergence rate: %.4f /s (half-life %.2fs)\n", rate, analysis.HalfLife(rate))
		} else {
			fmt.Printf("convergence rate: %.4f /s (not converging toward the origin)\n", rate)
		}
	}

	return nil
}

func exportMeta(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	return st.ExportRunCSV(args[0], os.Stdout)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	return st.ExportRun(args[0], os.Stdout)
}

func exportPNG(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) < 2 {
		return fmt.Errorf("not enough samples to plot")
	}

	out := outPath
	if out == "" {
		out = runID + ".png"
	}

	p := plot.New()
	switch plotKind {
	case "path":
		p.Title.Text = "planar trajectory"
		p.X.Label.Text = "px (m)"
		p.Y.Label.Text = "pz (m)"

		pts := make(plotter.XYs, 0, len(states))
		for _, row := range states {
			if len(row) >= 2 {
				pts = append(pts, plotter.XY{X: row[quad.Px], Y: row[quad.Pz]})
			}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		p.Add(plotter.NewGrid(), line)

	case "series":
		p.Title.Text = "position vs time"
		p.X.Label.Text = "t (s)"
		p.Y.Label.Text = "position (m)"

		pxLine, err := seriesLine(times, states, quad.Px)
		if err != nil {
			return err
		}
		pzLine, err := seriesLine(times, states, quad.Pz)
		if err != nil {
			return err
		}
		pzLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

		p.Add(plotter.NewGrid(), pxLine, pzLine)
		p.Legend.Add("px", pxLine)
		p.Legend.Add("pz", pzLine)

	default:
		return fmt.Errorf("unknown plot kind: %s", plotKind)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, out); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}

func seriesLine(times []float64, states [][]float64, col int) (*plotter.Line, error) {
	pts := make(plotter.XYs, 0, len(states))
	for i, row := range states {
		if col < len(row) && i < len(times) {
			pts = append(pts, plotter.XY{X: times[i], Y: row[col]})
		}
	}
	return plotter.NewLine(pts)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}

	points := make([]analysis.Point, 0, len(states))
	for _, row := range states {
		if len(row) >= 2 {
			points = append(points, analysis.Point{X: row[quad.Px], Y: row[quad.Pz]})
		}
	}

	target := &analysis.Point{X: targetPX, Y: targetPZ}
	svg := export.TrajectoryToSVG(points, target, imgWidth, imgHeight, "")
	if svg == "" {
		return fmt.Errorf("not enough samples to render")
	}

	out := outPath
	if out == "" {
		out = runID + ".svg"
	}
	if err := os.WriteFile(out, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	if savePreset != "" {
		p := config.GetPreset(savePreset)
		if p == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", savePreset, config.ListPresets())
		}
		out := outPath
		if out == "" {
			out = savePreset + ".yaml"
		}
		if err := config.Save(out, p); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", out)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tOBJECTIVE\tDT\tHORIZON\tPERIODS\tINIT")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%.3f\t%d\t%d\t(%.1f, %.1f)\n",
			name, p.Objective, p.Dt, p.Horizon, p.Periods, p.Init.PX, p.Init.PZ)
	}
	return w.Flush()
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	names := args
	if len(names) == 0 {
		names = []string{"euler", "rk4"}
	}

	fmt.Printf("comparing plant integrators (dt=%.3f, periods=%d)\n\n", cfg.Dt, cfg.Periods)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTEGRATOR\tFINAL_PX\tFINAL_PZ\tTRACKING_ERR\tFAILURES\tTIME")

	finals := make(map[string]dynamo.State, len(names))
	for _, name := range names {
		c := *cfg
		c.Integrator = name

		exp := experiment.New(&c)
		if err := exp.Setup(); err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			continue
		}

		start := time.Now()
		result, err := exp.Run(context.Background())
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\n", name, err)
			continue
		}

		final := result.Final()
		if final == nil {
			continue
		}
		finals[name] = final
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%.6f\t%d\t%v\n",
			name, final[quad.Px], final[quad.Pz],
			result.Metrics["tracking_error"], result.Failures,
			elapsed.Round(time.Millisecond))
	}
	w.Flush()

	if len(names) >= 2 {
		a, okA := finals[names[0]]
		b, okB := finals[names[1]]
		if okA && okB {
			fmt.Printf("\nterminal divergence |%s - %s| = %.6f\n", names[0], names[1], a.Sub(b).Norm())
		}
	}

	return nil
}

func parseParamSpec(spec string) (string, []float64, error) {
	name, list, ok := strings.Cut(spec, "=")
	if !ok {
		return "", nil, fmt.Errorf("parameter spec %q: want name=v1,v2,...", spec)
	}

	parts := strings.Split(list, ",")
	vals := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return "", nil, fmt.Errorf("parameter spec %q: %w", spec, err)
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return "", nil, fmt.Errorf("parameter spec %q has no values", spec)
	}

	return strings.TrimSpace(name), vals, nil
}

func tuneSearch(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	specs := paramSpecs
	if len(specs) == 0 {
		specs = []string{"horizon=8,10,12"}
	}

	names := make([]string, 0, len(specs))
	ranges := make([][]float64, 0, len(specs))
	combos := 1
	for _, spec := range specs {
		name, vals, err := parseParamSpec(spec)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, vals)
		combos *= len(vals)
	}

	build := func(params map[string]float64) (*experiment.Experiment, error) {
		c := *cfg
		for k, v := range params {
			if err := automation.ApplyParam(&c, k, v); err != nil {
				return nil, err
			}
		}
		exp := experiment.New(&c)
		if err := exp.Setup(); err != nil {
			return nil, err
		}
		return exp, nil
	}

	fmt.Printf("searching %d combinations for lowest %s...\n\n", combos, metricName)

	gs := optim.NewGridSearch(names, ranges)
	trials, err := gs.SearchAll(context.Background(), build, metricName)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\tSCORE")
	for _, tr := range trials {
		var row strings.Builder
		for _, n := range names {
			fmt.Fprintf(&row, "%g\t", tr.Params[n])
		}
		if tr.Err != nil {
			fmt.Fprintf(&row, "error: %v", tr.Err)
		} else {
			fmt.Fprintf(&row, "%.6f", tr.Score)
		}
		fmt.Fprintln(w, row.String())
	}
	w.Flush()

	best := math.Inf(1)
	var bestParams map[string]float64
	for _, tr := range trials {
		if tr.Err == nil && tr.Score < best {
			best = tr.Score
			bestParams = tr.Params
		}
	}
	if bestParams == nil {
		return fmt.Errorf("no combination produced metric %s", metricName)
	}

	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", n, bestParams[n]))
	}
	fmt.Printf("\nbest: %s (%s=%.6f)\n", strings.Join(parts, " "), metricName, best)

	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	sweep := &automation.Sweep{Param: sweepParam, Min: sweepMin, Max: sweepMax, Steps: sweepSteps}
	results, err := automation.RunSweep(context.Background(), sweep, cfg)
	if err != nil {
		return err
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(sweepParam)+"\tTRACKING_ERR\tCONTROL_EFFORT\tFAILURES")

	series := make([]float64, 0, len(results))
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%.6f\t%.6f\t%d\n",
			r.ParamValue, r.Metrics["tracking_error"], r.Metrics["control_effort"], r.Failures)
		series = append(series, r.Metrics["tracking_error"])
	}
	w.Flush()

	if len(series) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(series,
			asciigraph.Height(8),
			asciigraph.Width(60),
			asciigraph.Caption(fmt.Sprintf("tracking_error vs %s", sweepParam)),
		))
	}

	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	campaign, err := automation.LoadCampaign(args[0])
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	if campaign.Description != "" {
		fmt.Printf("%s: %s\n", campaign.Name, campaign.Description)
	}

	results, err := automation.RunCampaign(context.Background(), campaign, st)
	if err != nil {
		return err
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRUN_ID\tPERIODS\tFAILURES\tTRACKING_ERR")
	for _, r := range results {
		id := r.RunID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.6f\n",
			r.Name, id, r.Result.Periods, r.Result.Failures, r.Result.Metrics["tracking_error"])
	}
	return w.Flush()
}

func benchSolver(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if trials > 0 {
		return benchEnsemble(cfg)
	}

	horizons := []int{5, 10, 15}
	dts := []float64{0.05, 0.1, 0.2}

	fmt.Println("benchmarking solver")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HORIZON\tDT\tPERIODS\tTIME\tMS/SOLVE\tFAILURES")

	for _, h := range horizons {
		for _, d := range dts {
			c := *cfg
			c.Horizon = h
			c.Dt = d

			exp := experiment.New(&c)
			if err := exp.Setup(); err != nil {
				return err
			}

			start := time.Now()
			result, err := exp.Run(context.Background())
			elapsed := time.Since(start)
			if err != nil {
				fmt.Fprintf(w, "%d\t%.3f\terror: %v\n", h, d, err)
				continue
			}

			msPerSolve := 0.0
			if result.Periods > 0 {
				msPerSolve = elapsed.Seconds() * 1000 / float64(result.Periods)
			}
			fmt.Fprintf(w, "%d\t%.3f\t%d\t%v\t%.2f\t%d\n",
				h, d, result.Periods, elapsed.Round(time.Millisecond), msPerSolve, result.Failures)
		}
	}

	return w.Flush()
}

func benchEnsemble(cfg *config.Config) error {
	fmt.Printf("running %d perturbed trials...\n", trials)
	start := time.Now()

	results, err := automation.RunMonteCarlo(context.Background(), &automation.MonteCarloConfig{
		Trials:       trials,
		Perturbation: perturbation,
		Seed:         cfg.Seed,
	}, cfg)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	stable, unstable := automation.MonteCarloStats(results)
	worst := 0.0
	for _, r := range results {
		if r.Distance > worst {
			worst = r.Distance
		}
	}

	fmt.Printf("completed in %v (%.1f trials/s)\n",
		elapsed.Round(time.Millisecond), float64(trials)/elapsed.Seconds())
	fmt.Printf("stable: %d  unstable: %d  worst final distance: %.4f\n", stable, unstable, worst)
	return nil
}
