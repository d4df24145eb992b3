// Package artifact persists intermediate pipeline results on local disk under a
// per-run directory.
package artifact

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

const timestampLayout = "01_02_2006_15_04_05"

// Layout resolves the stage directories of a single run.
type Layout struct {
	Root string
}

// NewLayout roots a run under base/<timestamp>.
func NewLayout(base string, now time.Time) Layout {
	return Layout{Root: filepath.Join(base, now.Format(timestampLayout))}
}

func (l Layout) FeatureStoreFile() string { return filepath.Join(l.Root, "data_ingestion", "feature_store", "data.csv") }
func (l Layout) TrainFile() string        { return filepath.Join(l.Root, "data_ingestion", "ingested", "train.csv") }
func (l Layout) TestFile() string         { return filepath.Join(l.Root, "data_ingestion", "ingested", "test.csv") }
func (l Layout) ValidationReport() string { return filepath.Join(l.Root, "data_validation", "report.json") }
func (l Layout) PreprocessorFile() string {
	return filepath.Join(l.Root, "data_transformation", "transformed_object", "preprocessing.json")
}
func (l Layout) TrainArray() string {
	return filepath.Join(l.Root, "data_transformation", "transformed", "train.gob")
}
func (l Layout) TestArray() string {
	return filepath.Join(l.Root, "data_transformation", "transformed", "test.gob")
}
func (l Layout) ModelFile() string  { return filepath.Join(l.Root, "model_trainer", "trained_model", "model.json") }
func (l Layout) RunSummary() string { return filepath.Join(l.Root, "run.yaml") }

func WriteJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return pipelineerr.DataAccess("write json "+path, err)
	}
	return writeFile(path, b)
}

func ReadJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return pipelineerr.DataAccess("read json "+path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return pipelineerr.DataAccess("decode json "+path, err)
	}
	return nil
}

func WriteYAML(path string, v interface{}) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return pipelineerr.DataAccess("write yaml "+path, err)
	}
	return writeFile(path, b)
}

func ReadYAML(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return pipelineerr.DataAccess("read yaml "+path, err)
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return pipelineerr.DataAccess("decode yaml "+path, err)
	}
	return nil
}

// SaveMatrix writes a dense float matrix. The last column conventionally holds
// the label.
func SaveMatrix(path string, m [][]float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pipelineerr.DataAccess("save matrix", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return pipelineerr.DataAccess("save matrix", err)
	}
	if err := gob.NewEncoder(f).Encode(m); err != nil {
		f.Close()
		return pipelineerr.DataAccess("save matrix", fmt.Errorf("encode %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		return pipelineerr.DataAccess("save matrix", err)
	}
	return nil
}

func LoadMatrix(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pipelineerr.DataAccess("load matrix", err)
	}
	defer f.Close()
	var m [][]float64
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, pipelineerr.DataAccess("load matrix", fmt.Errorf("decode %s: %w", path, err))
	}
	return m, nil
}

// SplitLabel separates the trailing label column from a saved matrix.
func SplitLabel(m [][]float64) ([][]float64, []int) {
	x := make([][]float64, len(m))
	y := make([]int, len(m))
	for i, row := range m {
		if len(row) == 0 {
			continue
		}
		x[i] = row[:len(row)-1]
		y[i] = int(row[len(row)-1])
	}
	return x, y
}

// JoinLabel appends y as the trailing column of x.
func JoinLabel(x [][]float64, y []int) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		nr := make([]float64, len(row)+1)
		copy(nr, row)
		nr[len(row)] = float64(y[i])
		out[i] = nr
	}
	return out
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pipelineerr.DataAccess("write "+path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return pipelineerr.DataAccess("write "+path, err)
	}
	return nil
}
