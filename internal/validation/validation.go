// Package validation checks the ingested splits against the dataset schema.
package validation

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/artifact"
	"github.com/ILLUVRSE/training-pipeline/internal/config"
	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

// Report is persisted next to the other stage outputs.
type Report struct {
	ValidationStatus bool     `json:"validation_status"`
	Errors           []string `json:"errors"`
}

type Stage struct {
	schema     config.Schema
	reportPath string
	logger     *logrus.Logger
}

func NewStage(schema config.Schema, reportPath string, logger *logrus.Logger) *Stage {
	return &Stage{schema: schema, reportPath: reportPath, logger: logger}
}

// Run validates both splits. A schema mismatch is reported through the
// artifact, not as an error; only I/O failures return one.
func (s *Stage) Run(ing models.DataIngestionArtifact) (models.DataValidationArtifact, error) {
	var problems []string
	for _, split := range []struct{ name, path string }{
		{"train", ing.TrainFilePath},
		{"test", ing.TestFilePath},
	} {
		f, err := dataset.ReadCSV(split.path)
		if err != nil {
			return models.DataValidationArtifact{}, pipelineerr.DataAccess("read "+split.path, err)
		}
		for _, p := range Check(s.schema, f) {
			problems = append(problems, split.name+": "+p)
		}
	}

	report := Report{ValidationStatus: len(problems) == 0, Errors: problems}
	if report.Errors == nil {
		report.Errors = []string{}
	}
	if err := artifact.WriteJSON(s.reportPath, report); err != nil {
		return models.DataValidationArtifact{}, err
	}

	msg := strings.Join(problems, "; ")
	entry := s.logger.WithFields(logrus.Fields{"stage": "data_validation", "status": report.ValidationStatus})
	if report.ValidationStatus {
		entry.Info("dataset matches schema")
	} else {
		entry.WithField("errors", msg).Warn("dataset does not match schema")
	}
	return models.DataValidationArtifact{
		ValidationStatus: report.ValidationStatus,
		Message:          msg,
		ReportFilePath:   s.reportPath,
	}, nil
}

// Check returns every schema violation found in f.
func Check(schema config.Schema, f dataset.Frame) []string {
	var problems []string
	expected := schema.ColumnNames()
	if len(f.Columns) != len(expected) {
		problems = append(problems, fmt.Sprintf("expected %d columns, found %d", len(expected), len(f.Columns)))
	}
	if missing := absent(expected, f.Columns); len(missing) > 0 {
		problems = append(problems, "missing columns: "+strings.Join(missing, ", "))
	}
	if extra := absent(f.Columns, expected); len(extra) > 0 {
		problems = append(problems, "unexpected columns: "+strings.Join(extra, ", "))
	}
	if missing := absent(schema.NumericalColumns, f.Columns); len(missing) > 0 {
		problems = append(problems, "missing numerical columns: "+strings.Join(missing, ", "))
	}
	if missing := absent(schema.CategoricalColumns, f.Columns); len(missing) > 0 {
		problems = append(problems, "missing categorical columns: "+strings.Join(missing, ", "))
	}
	return problems
}

// absent lists names in want that are not in have.
func absent(want, have []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	var out []string
	for _, w := range want {
		if _, ok := set[w]; !ok {
			out = append(out, w)
		}
	}
	return out
}
