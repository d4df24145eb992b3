package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	yTrue := []int{1, 1, 1, 0, 0, 0, 1, 0}
	yPred := []int{1, 1, 0, 0, 1, 0, 1, 0}
	// tp=3 fp=1 fn=1 tn=3

	r, err := Report(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, r.Precision, 1e-9)
	assert.InDelta(t, 0.75, r.Recall, 1e-9)
	assert.InDelta(t, 0.75, r.F1, 1e-9)

	acc, err := Accuracy(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, acc, 1e-9)
}

func TestNoPositivePredictionsScoreZero(t *testing.T) {
	f1, err := F1([]int{1, 0, 1}, []int{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, f1)

	p, err := Precision([]int{1, 0, 1}, []int{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)
}

func TestLengthMismatch(t *testing.T) {
	_, err := Recall([]int{1}, []int{1, 0})
	assert.Error(t, err)
	_, err = Accuracy([]int{1}, nil)
	assert.Error(t, err)
}
