package estimator

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Predictor maps a feature matrix to class labels.
type Predictor interface {
	Predict(x [][]float64) ([]int, error)
}

// LogisticRegression is a binary classifier trained with full-batch gradient
// descent and L2 regularisation. Inputs are standardised per feature with the
// statistics of the training matrix.
type LogisticRegression struct {
	LearningRate float64   `json:"learningRate"`
	Epochs       int       `json:"epochs"`
	L2           float64   `json:"l2"`
	Seed         int64     `json:"seed"`
	Weights      []float64 `json:"weights,omitempty"`
	Bias         float64   `json:"bias"`
	Center       []float64 `json:"center,omitempty"`
	Scale        []float64 `json:"scale,omitempty"`
}

var ErrUntrained = errors.New("estimator has not been trained")

func (m *LogisticRegression) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return errors.New("fit: empty training set")
	}
	if len(x) != len(y) {
		return fmt.Errorf("fit: %d rows but %d labels", len(x), len(y))
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("fit: row %d has %d features, want %d", i, len(row), width)
		}
	}
	m.fitScaling(x)
	x = m.standardize(x)

	rng := rand.New(rand.NewSource(m.Seed))
	m.Weights = make([]float64, width)
	for j := range m.Weights {
		m.Weights[j] = (rng.Float64() - 0.5) * 0.01
	}
	m.Bias = 0

	n := float64(len(x))
	grad := make([]float64, width)
	for epoch := 0; epoch < m.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0
		for i, row := range x {
			residual := sigmoid(floats.Dot(m.Weights, row)+m.Bias) - float64(y[i])
			floats.AddScaled(grad, residual, row)
			gradBias += residual
		}
		floats.Scale(1/n, grad)
		floats.AddScaled(grad, m.L2, m.Weights)
		floats.AddScaled(m.Weights, -m.LearningRate, grad)
		m.Bias -= m.LearningRate * gradBias / n
	}
	return nil
}

// Probabilities returns P(label=1) per row.
func (m *LogisticRegression) Probabilities(x [][]float64) ([]float64, error) {
	if len(m.Weights) == 0 {
		return nil, ErrUntrained
	}
	for i, row := range x {
		if len(row) != len(m.Weights) {
			return nil, fmt.Errorf("predict: row %d has %d features, want %d", i, len(row), len(m.Weights))
		}
	}
	out := make([]float64, len(x))
	for i, row := range m.standardize(x) {
		out[i] = sigmoid(floats.Dot(m.Weights, row) + m.Bias)
	}
	return out, nil
}

func (m *LogisticRegression) Predict(x [][]float64) ([]int, error) {
	probs, err := m.Probabilities(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(probs))
	for i, p := range probs {
		if p >= 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// check rejects parameters that would make Predict misbehave. Center and Scale
// are either both absent or one entry per weight.
func (m *LogisticRegression) check() error {
	if len(m.Weights) == 0 {
		return ErrUntrained
	}
	if len(m.Center) != len(m.Scale) {
		return fmt.Errorf("center has %d entries, scale has %d", len(m.Center), len(m.Scale))
	}
	if len(m.Center) != 0 && len(m.Center) != len(m.Weights) {
		return fmt.Errorf("scaling covers %d features, weights cover %d", len(m.Center), len(m.Weights))
	}
	for j, s := range m.Scale {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("scale[%d] is %v", j, s)
		}
	}
	return nil
}

func (m *LogisticRegression) fitScaling(x [][]float64) {
	width := len(x[0])
	m.Center = make([]float64, width)
	m.Scale = make([]float64, width)
	col := make([]float64, len(x))
	for j := 0; j < width; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		m.Center[j], m.Scale[j] = mean, std
	}
}

func (m *LogisticRegression) standardize(x [][]float64) [][]float64 {
	if len(m.Center) == 0 {
		return x
	}
	out := make([][]float64, len(x))
	for i, row := range x {
		nr := make([]float64, len(row))
		floats.SubTo(nr, row, m.Center)
		floats.Div(nr, m.Scale)
		out[i] = nr
	}
	return out
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }
