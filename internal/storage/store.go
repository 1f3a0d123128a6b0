package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/quadmpc/internal/sim"
)

// Store persists closed-loop runs under a base directory, one
// subdirectory per run: metadata.json for the run parameters and
// metrics, states.csv for the applied trajectory, plans.csv for the
// per-period solver diagnostics.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultDir is the store location under the user's home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quadmpc"
	}
	return filepath.Join(home, ".quadmpc")
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID                  string             `json:"id"`
	Timestamp           time.Time          `json:"timestamp"`
	Seed                int64              `json:"seed"`
	Dt                  float64            `json:"dt"`
	Horizon             int                `json:"horizon"`
	Periods             int                `json:"periods"`
	Integrator          string             `json:"integrator"`
	Objective           string             `json:"objective"`
	Fallback            string             `json:"fallback"`
	WarmStart           bool               `json:"warm_start"`
	Failures            int                `json:"failures"`
	FallbackEngagements int                `json:"fallback_engagements"`
	Metrics             map[string]float64 `json:"metrics"`
}

// PlanRecord is one row of plans.csv.
type PlanRecord struct {
	Period     int
	Status     string
	Objective  float64
	Iterations int
	Violation  float64
	SolveMs    float64
}

// Save writes the run and returns its generated id. The caller fills
// the configuration fields of meta; id, timestamp and everything taken
// from the result are overwritten here.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	runID := fmt.Sprintf("run_%d", time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = time.Now()
	meta.Periods = result.Periods
	meta.Failures = result.Failures
	meta.FallbackEngagements = result.FallbackEngagements
	meta.Metrics = result.Metrics

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "states.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteStatesCSV(csvFile, result); err != nil {
		return "", err
	}

	if len(result.Plans) > 0 {
		planFile, err := os.Create(filepath.Join(runDir, "plans.csv"))
		if err != nil {
			return "", err
		}
		defer planFile.Close()

		if err := writePlansCSV(planFile, result); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}

		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		runs = append(runs, meta)
	}

	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadStates(runID string) ([][]float64, []float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}

	if len(records) < 2 {
		return [][]float64{}, []float64{}, nil
	}

	times := make([]float64, 0, len(records)-1)
	states := make([][]float64, 0, len(records)-1)

	for i := 1; i < len(records); i++ {
		record := records[i]
		if len(record) == 0 {
			continue
		}

		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			continue
		}
		times = append(times, t)

		state := make([]float64, 0)
		for j := 1; j < len(record); j++ {
			val, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				continue
			}
			state = append(state, val)
		}
		states = append(states, state)
	}

	return states, times, nil
}

func (s *Store) LoadPlans(runID string) ([]PlanRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "plans.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	plans := make([]PlanRecord, 0, len(records))
	for i := 1; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 6 {
			continue
		}
		period, _ := strconv.Atoi(rec[0])
		objective, _ := strconv.ParseFloat(rec[2], 64)
		iterations, _ := strconv.Atoi(rec[3])
		violation, _ := strconv.ParseFloat(rec[4], 64)
		solveMs, _ := strconv.ParseFloat(rec[5], 64)
		plans = append(plans, PlanRecord{
			Period:     period,
			Status:     rec[1],
			Objective:  objective,
			Iterations: iterations,
			Violation:  violation,
			SolveMs:    solveMs,
		})
	}

	return plans, nil
}
