// Package dataset is a minimal tabular frame of string cells with CSV I/O.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MissingMarker is the source value that denotes a missing cell.
const MissingMarker = "na"

var ErrColumnNotFound = errors.New("column not found")

type Frame struct {
	Columns []string
	Rows    [][]string
}

func (f Frame) Len() int { return len(f.Rows) }

func (f Frame) Index(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (f Frame) Column(name string) ([]string, error) {
	idx := f.Index(name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	out := make([]string, len(f.Rows))
	for i, row := range f.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Drop returns a copy without the named columns. Unknown names are ignored.
func (f Frame) Drop(names ...string) Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []int
	out := Frame{}
	for i, c := range f.Columns {
		if !drop[c] {
			keep = append(keep, i)
			out.Columns = append(out.Columns, c)
		}
	}
	out.Rows = make([][]string, len(f.Rows))
	for r, row := range f.Rows {
		nr := make([]string, len(keep))
		for j, i := range keep {
			nr[j] = row[i]
		}
		out.Rows[r] = nr
	}
	return out
}

// SplitTarget separates the target column into integer labels.
func (f Frame) SplitTarget(target string) (Frame, []int, error) {
	raw, err := f.Column(target)
	if err != nil {
		return Frame{}, nil, err
	}
	labels := make([]int, len(raw))
	for i, v := range raw {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Frame{}, nil, fmt.Errorf("row %d: label %q: %w", i, v, err)
		}
		labels[i] = int(n)
	}
	return f.Drop(target), labels, nil
}

// TrainTestSplit shuffles rows with seed and holds out ratio of them for test.
func (f Frame) TrainTestSplit(ratio float64, seed int64) (Frame, Frame) {
	idx := rand.New(rand.NewSource(seed)).Perm(len(f.Rows))
	nTest := int(float64(len(f.Rows))*ratio + 0.5)
	if nTest > len(f.Rows) {
		nTest = len(f.Rows)
	}
	test := Frame{Columns: f.Columns, Rows: make([][]string, 0, nTest)}
	train := Frame{Columns: f.Columns, Rows: make([][]string, 0, len(f.Rows)-nTest)}
	for i, r := range idx {
		if i < nTest {
			test.Rows = append(test.Rows, f.Rows[r])
		} else {
			train.Rows = append(train.Rows, f.Rows[r])
		}
	}
	return train, test
}

// NormalizeMissing blanks cells equal to MissingMarker.
func NormalizeMissing(v string) string {
	if strings.EqualFold(strings.TrimSpace(v), MissingMarker) {
		return ""
	}
	return v
}

func ReadCSV(path string) (Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Frame{}, err
	}
	defer fh.Close()
	return DecodeCSV(fh)
}

func DecodeCSV(r io.Reader) (Frame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Frame{}, fmt.Errorf("decode csv: %w", err)
	}
	if len(records) == 0 {
		return Frame{}, errors.New("decode csv: no header")
	}
	return Frame{Columns: records[0], Rows: records[1:]}, nil
}

func WriteCSV(path string, f Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(fh)
	if err := w.Write(f.Columns); err != nil {
		fh.Close()
		return err
	}
	if err := w.WriteAll(f.Rows); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
