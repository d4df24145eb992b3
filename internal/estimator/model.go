// Package estimator holds the trained classifier and the model bundle that is
// stored in the registry.
package estimator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/transform"
)

const (
	Format  = "training-pipeline/model"
	Version = 1

	KindLogisticRegression = "logistic_regression"
)

var ErrUnknownFormat = errors.New("unrecognised model format")

// Model bundles the fitted preprocessor with the trained classifier so raw
// records can be scored directly.
type Model struct {
	Preprocessor *transform.Preprocessor
	Classifier   Predictor
}

type envelope struct {
	Format       string                  `json:"format"`
	Version      int                     `json:"version"`
	Preprocessor *transform.Preprocessor `json:"preprocessor"`
	Estimator    estimatorEnvelope       `json:"estimator"`
}

type estimatorEnvelope struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// PredictFrame transforms raw records and classifies them.
func (m *Model) PredictFrame(f dataset.Frame) ([]int, error) {
	x, err := m.Preprocessor.Transform(f)
	if err != nil {
		return nil, err
	}
	return m.Classifier.Predict(x)
}

func (m *Model) Marshal() ([]byte, error) {
	var kind string
	switch m.Classifier.(type) {
	case *LogisticRegression:
		kind = KindLogisticRegression
	default:
		return nil, fmt.Errorf("marshal model: unsupported classifier %T", m.Classifier)
	}
	params, err := json.Marshal(m.Classifier)
	if err != nil {
		return nil, fmt.Errorf("marshal classifier: %w", err)
	}
	return json.Marshal(envelope{
		Format:       Format,
		Version:      Version,
		Preprocessor: m.Preprocessor,
		Estimator:    estimatorEnvelope{Kind: kind, Params: params},
	})
}

// Unmarshal decodes bytes written by Marshal. Anything else, including
// truncated or foreign payloads, is rejected.
func Unmarshal(b []byte) (*Model, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if env.Format != Format || env.Version != Version {
		return nil, fmt.Errorf("%w: %q v%d", ErrUnknownFormat, env.Format, env.Version)
	}
	if env.Preprocessor == nil || !env.Preprocessor.Fitted {
		return nil, fmt.Errorf("decode model: %w", transform.ErrNotFitted)
	}
	switch env.Estimator.Kind {
	case KindLogisticRegression:
		var lr LogisticRegression
		if err := json.Unmarshal(env.Estimator.Params, &lr); err != nil {
			return nil, fmt.Errorf("decode classifier: %w", err)
		}
		if len(lr.Weights) == 0 {
			return nil, fmt.Errorf("decode classifier: %w", ErrUntrained)
		}
		if err := lr.check(); err != nil {
			return nil, fmt.Errorf("%w: classifier: %v", ErrUnknownFormat, err)
		}
		if err := env.Preprocessor.Check(); err != nil {
			return nil, fmt.Errorf("%w: preprocessor: %v", ErrUnknownFormat, err)
		}
		if w := env.Preprocessor.Width(); w != len(lr.Weights) {
			return nil, fmt.Errorf("%w: preprocessor emits %d features, classifier expects %d", ErrUnknownFormat, w, len(lr.Weights))
		}
		return &Model{Preprocessor: env.Preprocessor, Classifier: &lr}, nil
	}
	return nil, fmt.Errorf("%w: estimator kind %q", ErrUnknownFormat, env.Estimator.Kind)
}

func (m *Model) SaveFile(path string) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
