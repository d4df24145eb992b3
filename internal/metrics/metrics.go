// Package metrics scores binary classifiers against the positive class (label 1).
// Undefined ratios (zero denominators) score 0.
package metrics

import (
	"fmt"

	"github.com/ILLUVRSE/training-pipeline/internal/models"
)

const positive = 1

type confusion struct {
	tp, fp, fn, tn int
}

func count(yTrue, yPred []int) (confusion, error) {
	if len(yTrue) != len(yPred) {
		return confusion{}, fmt.Errorf("metrics: length mismatch %d != %d", len(yTrue), len(yPred))
	}
	var c confusion
	for i := range yTrue {
		switch {
		case yPred[i] == positive && yTrue[i] == positive:
			c.tp++
		case yPred[i] == positive:
			c.fp++
		case yTrue[i] == positive:
			c.fn++
		default:
			c.tn++
		}
	}
	return c, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (c confusion) precision() float64 { return ratio(c.tp, c.tp+c.fp) }
func (c confusion) recall() float64    { return ratio(c.tp, c.tp+c.fn) }
func (c confusion) f1() float64        { return ratio(2*c.tp, 2*c.tp+c.fp+c.fn) }

func F1(yTrue, yPred []int) (float64, error) {
	c, err := count(yTrue, yPred)
	return c.f1(), err
}

func Precision(yTrue, yPred []int) (float64, error) {
	c, err := count(yTrue, yPred)
	return c.precision(), err
}

func Recall(yTrue, yPred []int) (float64, error) {
	c, err := count(yTrue, yPred)
	return c.recall(), err
}

func Accuracy(yTrue, yPred []int) (float64, error) {
	c, err := count(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return ratio(c.tp+c.tn, len(yTrue)), nil
}

// Report computes F1, precision and recall in one pass.
func Report(yTrue, yPred []int) (models.ClassificationMetric, error) {
	c, err := count(yTrue, yPred)
	if err != nil {
		return models.ClassificationMetric{}, err
	}
	return models.ClassificationMetric{F1: c.f1(), Precision: c.precision(), Recall: c.recall()}, nil
}
