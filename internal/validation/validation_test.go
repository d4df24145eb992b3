package validation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/training-pipeline/internal/artifact"
	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/logging"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/testutil"
)

func writeSplits(t *testing.T, train, test dataset.Frame) models.DataIngestionArtifact {
	t.Helper()
	dir := t.TempDir()
	ing := models.DataIngestionArtifact{
		TrainFilePath: filepath.Join(dir, "train.csv"),
		TestFilePath:  filepath.Join(dir, "test.csv"),
	}
	require.NoError(t, dataset.WriteCSV(ing.TrainFilePath, train))
	require.NoError(t, dataset.WriteCSV(ing.TestFilePath, test))
	return ing
}

func TestCheckAcceptsConformingFrame(t *testing.T) {
	assert.Empty(t, Check(testutil.VehicleSchema(), testutil.VehicleFrame(5, 1)))
}

func TestCheckReportsMissingAndExtra(t *testing.T) {
	f := testutil.VehicleFrame(5, 1).Drop("Vehicle_Age", "Vintage")
	f.Columns = append([]string(nil), f.Columns...)
	f.Columns[0] = "identifier"

	problems := Check(testutil.VehicleSchema(), f)
	assert.Contains(t, problems, "expected 12 columns, found 10")
	assert.Contains(t, problems, "missing columns: id, Vehicle_Age, Vintage")
	assert.Contains(t, problems, "unexpected columns: identifier")
	assert.Contains(t, problems, "missing numerical columns: Vintage")
	assert.Contains(t, problems, "missing categorical columns: Vehicle_Age")
}

func TestRunWritesPassingReport(t *testing.T) {
	ing := writeSplits(t, testutil.VehicleFrame(10, 1), testutil.VehicleFrame(4, 2))
	reportPath := filepath.Join(t.TempDir(), "report.json")

	art, err := NewStage(testutil.VehicleSchema(), reportPath, logging.Discard()).Run(ing)
	require.NoError(t, err)
	assert.True(t, art.ValidationStatus)
	assert.Empty(t, art.Message)

	var report Report
	require.NoError(t, artifact.ReadJSON(reportPath, &report))
	assert.True(t, report.ValidationStatus)
	assert.Empty(t, report.Errors)
}

func TestRunJoinsFailures(t *testing.T) {
	ing := writeSplits(t, testutil.VehicleFrame(10, 1).Drop("Gender"), testutil.VehicleFrame(4, 2))
	reportPath := filepath.Join(t.TempDir(), "report.json")

	art, err := NewStage(testutil.VehicleSchema(), reportPath, logging.Discard()).Run(ing)
	require.NoError(t, err)
	assert.False(t, art.ValidationStatus)
	assert.Equal(t, "train: expected 12 columns, found 11; train: missing columns: Gender", art.Message)
}

func TestRunMissingFile(t *testing.T) {
	_, err := NewStage(testutil.VehicleSchema(), filepath.Join(t.TempDir(), "r.json"), logging.Discard()).
		Run(models.DataIngestionArtifact{TrainFilePath: "/nonexistent/train.csv"})
	require.Error(t, err)
}
