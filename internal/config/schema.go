package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

// Schema describes the expected dataset layout and how each column group is
// preprocessed.
type Schema struct {
	Columns            []map[string]string           `yaml:"columns"`
	NumericalColumns   []string                      `yaml:"numerical_columns"`
	CategoricalColumns []string                      `yaml:"categorical_columns"`
	DropColumns        []string                      `yaml:"drop_columns"`
	NumFeatures        []string                      `yaml:"num_features"`
	MinMaxColumns      []string                      `yaml:"mm_columns"`
	ValueMappings      map[string]map[string]float64 `yaml:"value_mappings"`
}

var errEmptySchema = errors.New("schema declares no columns")

// LoadSchema parses the YAML schema file at path.
func LoadSchema(path string) (Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, pipelineerr.Configuration("read schema", err)
	}
	return ParseSchema(b)
}

func ParseSchema(b []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Schema{}, pipelineerr.Configuration("parse schema", fmt.Errorf("yaml: %w", err))
	}
	if len(s.Columns) == 0 {
		return Schema{}, pipelineerr.Configuration("parse schema", errEmptySchema)
	}
	return s, nil
}

// ColumnNames flattens the declared columns in file order.
func (s Schema) ColumnNames() []string {
	var names []string
	for _, entry := range s.Columns {
		for name := range entry {
			names = append(names, name)
		}
	}
	return names
}

// ColumnType returns the declared type for name.
func (s Schema) ColumnType(name string) (string, bool) {
	for _, entry := range s.Columns {
		if t, ok := entry[name]; ok {
			return t, true
		}
	}
	return "", false
}
