package dataset

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Frame {
	return Frame{
		Columns: []string{"id", "Age", "Response"},
		Rows: [][]string{
			{"1", "30", "0"},
			{"2", "41", "1"},
			{"3", "25", "0"},
			{"4", "52", "1"},
		},
	}
}

func TestSplitTarget(t *testing.T) {
	x, y, err := sample().SplitTarget("Response")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "Age"}, x.Columns)
	assert.Equal(t, []int{0, 1, 0, 1}, y)

	_, _, err = sample().SplitTarget("missing")
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}

func TestTrainTestSplitIsDeterministic(t *testing.T) {
	train1, test1 := sample().TrainTestSplit(0.25, 7)
	train2, test2 := sample().TrainTestSplit(0.25, 7)
	assert.Equal(t, train1, train2)
	assert.Equal(t, test1, test2)
	assert.Equal(t, 3, train1.Len())
	assert.Equal(t, 1, test1.Len())
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.csv")
	require.NoError(t, WriteCSV(path, sample()))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}

func TestDecodeCSVEmpty(t *testing.T) {
	_, err := DecodeCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestNormalizeMissing(t *testing.T) {
	assert.Equal(t, "", NormalizeMissing("na"))
	assert.Equal(t, "", NormalizeMissing(" NA "))
	assert.Equal(t, "Male", NormalizeMissing("Male"))
}
