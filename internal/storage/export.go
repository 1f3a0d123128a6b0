package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/san-kum/quadmpc/internal/sim"
)

var (
	stateColumns   = []string{"px", "pz", "theta", "vx", "vz", "omega"}
	controlColumns = []string{"uF", "uM"}
)

// WriteStatesCSV writes the trajectory with one row per recorded state.
// Control columns repeat the period's applied control; the final state
// row, which has no control, is zero-padded.
func WriteStatesCSV(w io.Writer, result *sim.Result) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if len(result.States) == 0 {
		return nil
	}

	header := []string{"time"}
	for i := range result.States[0] {
		if len(result.States[0]) == len(stateColumns) {
			header = append(header, stateColumns[i])
		} else {
			header = append(header, fmt.Sprintf("x%d", i))
		}
	}

	numControls := 0
	if len(result.Controls) > 0 {
		numControls = len(result.Controls[0])
		for i := 0; i < numControls; i++ {
			if numControls == len(controlColumns) {
				header = append(header, controlColumns[i])
			} else {
				header = append(header, fmt.Sprintf("u%d", i))
			}
		}
	}

	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range result.States {
		row := []string{strconv.FormatFloat(result.Times[i], 'f', 6, 64)}

		for _, val := range result.States[i] {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}

		if i < len(result.Controls) {
			for _, val := range result.Controls[i] {
				row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
			}
		} else {
			for j := 0; j < numControls; j++ {
				row = append(row, "0")
			}
		}

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func writePlansCSV(w io.Writer, result *sim.Result) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"period", "status", "objective", "iterations", "violation", "solve_ms"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for k, plan := range result.Plans {
		row := []string{strconv.Itoa(k), "none", "0", "0", "0", "0"}
		if plan != nil {
			row = []string{
				strconv.Itoa(k),
				plan.Status.String(),
				strconv.FormatFloat(plan.Objective, 'g', 8, 64),
				strconv.Itoa(plan.Iterations),
				strconv.FormatFloat(plan.Violation, 'g', 8, 64),
				strconv.FormatFloat(plan.SolveTime.Seconds()*1000.0, 'f', 3, 64),
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	return nil
}

// ExportData is the JSON shape of a full run export.
type ExportData struct {
	Integrator string             `json:"integrator"`
	Objective  string             `json:"objective"`
	Dt         float64            `json:"dt"`
	Horizon    int                `json:"horizon"`
	Periods    int                `json:"periods"`
	Steps      int                `json:"steps"`
	Times      []float64          `json:"times"`
	States     [][]float64        `json:"states"`
	Controls   [][]float64        `json:"controls"`
	Statuses   []string           `json:"statuses"`
	Metrics    map[string]float64 `json:"metrics"`
}

func buildExportData(meta RunMetadata, result *sim.Result) ExportData {
	data := ExportData{
		Integrator: meta.Integrator,
		Objective:  meta.Objective,
		Dt:         meta.Dt,
		Horizon:    meta.Horizon,
		Periods:    result.Periods,
		Steps:      len(result.Times),
		Times:      result.Times,
		States:     make([][]float64, len(result.States)),
		Controls:   make([][]float64, len(result.Controls)),
		Statuses:   make([]string, len(result.Plans)),
		Metrics:    result.Metrics,
	}

	for i, s := range result.States {
		data.States[i] = s
	}
	for i, c := range result.Controls {
		data.Controls[i] = c
	}
	for i, p := range result.Plans {
		if p == nil {
			data.Statuses[i] = "none"
			continue
		}
		data.Statuses[i] = p.Status.String()
	}

	return data
}

func ExportJSON(path string, meta RunMetadata, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildExportData(meta, result))
}

func ExportJSONStdout(meta RunMetadata, result *sim.Result) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(buildExportData(meta, result))
}

func ExportCSV(path string, result *sim.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteStatesCSV(file, result)
}

// ExportRun writes a stored run to w in the same JSON shape as a live
// export. The trailing control columns of states.csv are split back
// out; the zero-padded final row is dropped from the controls.
func (s *Store) ExportRun(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	rows, times, err := s.LoadStates(runID)
	if err != nil {
		return err
	}

	data := ExportData{
		Integrator: meta.Integrator,
		Objective:  meta.Objective,
		Dt:         meta.Dt,
		Horizon:    meta.Horizon,
		Periods:    meta.Periods,
		Steps:      len(times),
		Times:      times,
		States:     make([][]float64, 0, len(rows)),
		Controls:   make([][]float64, 0, len(rows)),
		Metrics:    meta.Metrics,
	}

	split := len(stateColumns)
	for i, row := range rows {
		if len(row) > split {
			data.States = append(data.States, row[:split])
			if i < len(rows)-1 {
				data.Controls = append(data.Controls, row[split:])
			}
		} else {
			data.States = append(data.States, row)
		}
	}

	if plans, err := s.LoadPlans(runID); err == nil {
		data.Statuses = make([]string, len(plans))
		for i, p := range plans {
			data.Statuses[i] = p.Status
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ExportRunCSV copies the stored states.csv to w unmodified.
func (s *Store) ExportRunCSV(runID string, w io.Writer) error {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(w, file)
	return err
}
