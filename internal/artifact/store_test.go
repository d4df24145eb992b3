package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

func TestLayoutUsesRunTimestamp(t *testing.T) {
	l := NewLayout("artifact", time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
	assert.Equal(t, filepath.Join("artifact", "03_04_2026_05_06_07"), l.Root)
	assert.Equal(t, filepath.Join(l.Root, "data_ingestion", "ingested", "test.csv"), l.TestFile())
}

func TestMatrixRoundTripWithLabel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "train.gob")
	x := [][]float64{{0.5, 1}, {-1, 2}}
	y := []int{1, 0}

	require.NoError(t, SaveMatrix(path, JoinLabel(x, y)))
	m, err := LoadMatrix(path)
	require.NoError(t, err)

	gotX, gotY := SplitLabel(m)
	assert.Equal(t, x, gotX)
	assert.Equal(t, y, gotY)
}

func TestLoadMatrixCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gob")
	require.NoError(t, os.WriteFile(path, []byte("not gob"), 0o644))
	_, err := LoadMatrix(path)
	assert.True(t, errors.Is(err, pipelineerr.ErrDataAccess))
}

func TestYAMLAndJSONHelpers(t *testing.T) {
	dir := t.TempDir()
	in := map[string]interface{}{"accepted": true, "delta": 0.25}

	require.NoError(t, WriteYAML(filepath.Join(dir, "x", "run.yaml"), in))
	var outY map[string]interface{}
	require.NoError(t, ReadYAML(filepath.Join(dir, "x", "run.yaml"), &outY))
	assert.Equal(t, true, outY["accepted"])

	require.NoError(t, WriteJSON(filepath.Join(dir, "y", "r.json"), in))
	var outJ map[string]interface{}
	require.NoError(t, ReadJSON(filepath.Join(dir, "y", "r.json"), &outJ))
	assert.Equal(t, 0.25, outJ["delta"])

	err := ReadJSON(filepath.Join(dir, "missing.json"), &outJ)
	assert.True(t, errors.Is(err, pipelineerr.ErrDataAccess))
}
