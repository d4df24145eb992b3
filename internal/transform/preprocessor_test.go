package transform

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/training-pipeline/internal/config"
	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/logging"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
)

var testSchema = config.Schema{
	Columns:            []map[string]string{{"id": "int"}, {"Gender": "category"}, {"Age": "int"}, {"Premium": "float"}, {"Vehicle_Age": "category"}, {"Response": "int"}},
	NumericalColumns:   []string{"Age", "Premium"},
	CategoricalColumns: []string{"Vehicle_Age"},
	DropColumns:        []string{"id"},
	NumFeatures:        []string{"Age"},
	MinMaxColumns:      []string{"Premium"},
	ValueMappings:      map[string]map[string]float64{"Gender": {"Female": 0, "Male": 1}},
}

func frame() dataset.Frame {
	return dataset.Frame{
		Columns: []string{"id", "Gender", "Age", "Premium", "Vehicle_Age"},
		Rows: [][]string{
			{"1", "Male", "20", "100", "< 1 Year"},
			{"2", "Female", "40", "300", "1-2 Year"},
			{"3", "Male", "na", "200", "> 2 Years"},
		},
	}
}

func TestPreprocessorFitTransform(t *testing.T) {
	p := NewPreprocessor(testSchema)
	m, err := p.FitTransform(frame())
	require.NoError(t, err)

	// Age: mean 30, pop std 10; Premium: min 100, range 200;
	// Vehicle_Age sorted: "1-2 Year" (dropped), "< 1 Year", "> 2 Years"; Gender passthrough.
	assert.Equal(t, []string{"Age", "Premium", "Vehicle_Age_< 1 Year", "Vehicle_Age_> 2 Years", "Gender"}, p.FeatureNames())
	require.Len(t, m, 3)
	assert.InDeltaSlice(t, []float64{-1, 0, 1, 0, 1}, m[0], 1e-9)
	assert.InDeltaSlice(t, []float64{1, 1, 0, 0, 0}, m[1], 1e-9)
	// missing Age imputed with the mean, scaled to 0
	assert.InDeltaSlice(t, []float64{0, 0.5, 0, 1, 1}, m[2], 1e-9)
}

func TestPreprocessorIgnoresUnknownCategory(t *testing.T) {
	p := NewPreprocessor(testSchema)
	require.NoError(t, p.Fit(frame()))

	m, err := p.Transform(dataset.Frame{
		Columns: []string{"Gender", "Age", "Premium", "Vehicle_Age"},
		Rows:    [][]string{{"Female", "30", "500", "unheard of"}},
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 2, 0, 0, 0}, m[0], 1e-9)
}

func TestPreprocessorRequiresFitAndColumns(t *testing.T) {
	p := NewPreprocessor(testSchema)
	_, err := p.Transform(frame())
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, p.Fit(frame()))
	_, err = p.Transform(frame().Drop("Premium"))
	assert.ErrorIs(t, err, dataset.ErrColumnNotFound)
}

func TestPreprocessorSurvivesJSON(t *testing.T) {
	p := NewPreprocessor(testSchema)
	want, err := p.FitTransform(frame())
	require.NoError(t, err)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var restored Preprocessor
	require.NoError(t, json.Unmarshal(b, &restored))

	got, err := restored.Transform(frame())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, restored.Check())
}

func TestPreprocessorCheckRejectsMissingStatistics(t *testing.T) {
	assert.ErrorIs(t, (&Preprocessor{}).Check(), ErrNotFitted)

	noStd := &Preprocessor{Fitted: true, StandardColumns: []string{"a"}, Means: map[string]float64{"a": 1}}
	assert.Error(t, noStd.Check())

	noRange := &Preprocessor{Fitted: true, MinMaxColumns: []string{"b"}, Mins: map[string]float64{"b": 0}}
	assert.Error(t, noRange.Check())

	zeroMin := &Preprocessor{
		Fitted:        true,
		MinMaxColumns: []string{"b"},
		Mins:          map[string]float64{"b": 0},
		Ranges:        map[string]float64{"b": 2},
	}
	assert.NoError(t, zeroMin.Check())
}

func TestRandomOverSamplerBalances(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}, {3}, {4}}
	y := []int{0, 0, 0, 0, 1}

	gotX, gotY := RandomOverSampler{Seed: 1}.Resample(x, y)
	require.Len(t, gotX, 8)
	ones := 0
	for i, label := range gotY {
		if label == 1 {
			ones++
			assert.Equal(t, []float64{4}, gotX[i])
		}
	}
	assert.Equal(t, 4, ones)
}

func TestStageRefusesFailedValidation(t *testing.T) {
	s := NewStage(testSchema, StageConfig{TargetColumn: "Response"}, nil, logging.Discard())
	_, err := s.Run(models.DataIngestionArtifact{}, models.DataValidationArtifact{Message: "missing column Age"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column Age")
}

func TestStageWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	withLabel := frame()
	withLabel.Columns = append(withLabel.Columns, "Response")
	for i := range withLabel.Rows {
		withLabel.Rows[i] = append(withLabel.Rows[i], []string{"0", "1", "0"}[i])
	}
	trainPath := filepath.Join(dir, "train.csv")
	require.NoError(t, dataset.WriteCSV(trainPath, withLabel))

	cfg := StageConfig{
		TargetColumn:     "Response",
		PreprocessorPath: filepath.Join(dir, "out", "pre.json"),
		TrainArrayPath:   filepath.Join(dir, "out", "train.gob"),
		TestArrayPath:    filepath.Join(dir, "out", "test.gob"),
	}
	s := NewStage(testSchema, cfg, RandomOverSampler{Seed: 3}, logging.Discard())
	art, err := s.Run(
		models.DataIngestionArtifact{TrainFilePath: trainPath, TestFilePath: trainPath},
		models.DataValidationArtifact{ValidationStatus: true},
	)
	require.NoError(t, err)
	assert.Equal(t, cfg.TrainArrayPath, art.TrainArrayPath)

	pre, err := LoadPreprocessor(art.PreprocessorFilePath)
	require.NoError(t, err)
	assert.Equal(t, 5, pre.Width())
}
