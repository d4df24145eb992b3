// Package transform turns raw tabular records into the dense feature matrix the
// classifier consumes.
package transform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ILLUVRSE/training-pipeline/internal/config"
	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
)

var ErrNotFitted = errors.New("preprocessor not fitted")

// Preprocessor applies, in order: value mappings, column dropping, standard
// scaling, min-max scaling, one-hot encoding and passthrough. Output columns
// follow that group order. Empty numeric cells are imputed with the fitted
// mean before scaling.
type Preprocessor struct {
	ValueMappings      map[string]map[string]float64 `json:"valueMappings,omitempty"`
	DropColumns        []string                      `json:"dropColumns,omitempty"`
	StandardColumns    []string                      `json:"standardColumns,omitempty"`
	MinMaxColumns      []string                      `json:"minMaxColumns,omitempty"`
	CategoricalColumns []string                      `json:"categoricalColumns,omitempty"`

	Fitted      bool                `json:"fitted"`
	Passthrough []string            `json:"passthrough,omitempty"`
	Means       map[string]float64  `json:"means,omitempty"`
	Stds        map[string]float64  `json:"stds,omitempty"`
	Mins        map[string]float64  `json:"mins,omitempty"`
	Ranges      map[string]float64  `json:"ranges,omitempty"`
	Categories  map[string][]string `json:"categories,omitempty"`
}

// NewPreprocessor builds an unfitted preprocessor from the dataset schema.
func NewPreprocessor(s config.Schema) *Preprocessor {
	return &Preprocessor{
		ValueMappings:      s.ValueMappings,
		DropColumns:        s.DropColumns,
		StandardColumns:    s.NumFeatures,
		MinMaxColumns:      s.MinMaxColumns,
		CategoricalColumns: s.CategoricalColumns,
	}
}

func (p *Preprocessor) Fit(f dataset.Frame) error {
	f = f.Drop(p.DropColumns...)
	p.Means = map[string]float64{}
	p.Stds = map[string]float64{}
	p.Mins = map[string]float64{}
	p.Ranges = map[string]float64{}
	p.Categories = map[string][]string{}

	grouped := map[string]bool{}
	for _, c := range p.StandardColumns {
		grouped[c] = true
		vals, err := p.numeric(f, c)
		if err != nil {
			return err
		}
		present := observed(vals)
		mean, std := 0.0, 1.0
		if len(present) > 0 {
			mean, std = stat.PopMeanStdDev(present, nil)
		}
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		p.Means[c], p.Stds[c] = mean, std
	}
	for _, c := range p.MinMaxColumns {
		grouped[c] = true
		vals, err := p.numeric(f, c)
		if err != nil {
			return err
		}
		present := observed(vals)
		lo, span := 0.0, 1.0
		if len(present) > 0 {
			lo = floats.Min(present)
			span = floats.Max(present) - lo
			p.Means[c] = stat.Mean(present, nil)
		}
		if span == 0 {
			span = 1
		}
		p.Mins[c], p.Ranges[c] = lo, span
	}
	for _, c := range p.CategoricalColumns {
		grouped[c] = true
		raw, err := f.Column(c)
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		var cats []string
		for _, v := range raw {
			if !seen[v] {
				seen[v] = true
				cats = append(cats, v)
			}
		}
		sort.Strings(cats)
		if len(cats) > 0 {
			cats = cats[1:]
		}
		p.Categories[c] = cats
	}
	p.Passthrough = nil
	for _, c := range f.Columns {
		if grouped[c] {
			continue
		}
		p.Passthrough = append(p.Passthrough, c)
		vals, err := p.numeric(f, c)
		if err != nil {
			return err
		}
		if present := observed(vals); len(present) > 0 {
			p.Means[c] = stat.Mean(present, nil)
		}
	}
	p.Fitted = true
	return nil
}

func (p *Preprocessor) Transform(f dataset.Frame) ([][]float64, error) {
	if !p.Fitted {
		return nil, ErrNotFitted
	}
	f = f.Drop(p.DropColumns...)
	out := make([][]float64, f.Len())
	for i := range out {
		out[i] = make([]float64, 0, p.Width())
	}

	appendNumeric := func(c string, scale func(float64) float64) error {
		vals, err := p.numeric(f, c)
		if err != nil {
			return err
		}
		for i, v := range vals {
			if math.IsNaN(v) {
				v = p.Means[c]
			}
			out[i] = append(out[i], scale(v))
		}
		return nil
	}

	for _, c := range p.StandardColumns {
		mean, std := p.Means[c], p.Stds[c]
		if err := appendNumeric(c, func(v float64) float64 { return (v - mean) / std }); err != nil {
			return nil, err
		}
	}
	for _, c := range p.MinMaxColumns {
		lo, span := p.Mins[c], p.Ranges[c]
		if err := appendNumeric(c, func(v float64) float64 { return (v - lo) / span }); err != nil {
			return nil, err
		}
	}
	for _, c := range p.CategoricalColumns {
		raw, err := f.Column(c)
		if err != nil {
			return nil, err
		}
		cats := p.Categories[c]
		for i, v := range raw {
			for _, cat := range cats {
				if v == cat {
					out[i] = append(out[i], 1)
				} else {
					out[i] = append(out[i], 0)
				}
			}
		}
	}
	for _, c := range p.Passthrough {
		if err := appendNumeric(c, func(v float64) float64 { return v }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Preprocessor) FitTransform(f dataset.Frame) ([][]float64, error) {
	if err := p.Fit(f); err != nil {
		return nil, err
	}
	return p.Transform(f)
}

// Check verifies that a decoded preprocessor carries the statistics every
// scaled column needs.
func (p *Preprocessor) Check() error {
	if !p.Fitted {
		return ErrNotFitted
	}
	for _, c := range p.StandardColumns {
		std, ok := p.Stds[c]
		if !ok || std == 0 || math.IsNaN(std) {
			return fmt.Errorf("standard column %q has no usable std", c)
		}
	}
	for _, c := range p.MinMaxColumns {
		if _, ok := p.Mins[c]; !ok {
			return fmt.Errorf("min-max column %q has no min", c)
		}
		span, ok := p.Ranges[c]
		if !ok || span == 0 || math.IsNaN(span) {
			return fmt.Errorf("min-max column %q has no usable range", c)
		}
	}
	return nil
}

// Width is the number of output features of a fitted preprocessor.
func (p *Preprocessor) Width() int {
	n := len(p.StandardColumns) + len(p.MinMaxColumns) + len(p.Passthrough)
	for _, c := range p.CategoricalColumns {
		n += len(p.Categories[c])
	}
	return n
}

// FeatureNames lists output columns in order.
func (p *Preprocessor) FeatureNames() []string {
	names := append([]string{}, p.StandardColumns...)
	names = append(names, p.MinMaxColumns...)
	for _, c := range p.CategoricalColumns {
		for _, cat := range p.Categories[c] {
			names = append(names, c+"_"+cat)
		}
	}
	return append(names, p.Passthrough...)
}

// numeric parses column c, applying its value mapping when one exists.
// Missing or unmapped cells become NaN.
func (p *Preprocessor) numeric(f dataset.Frame, c string) ([]float64, error) {
	raw, err := f.Column(c)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	mapping := p.ValueMappings[c]
	out := make([]float64, len(raw))
	for i, v := range raw {
		v = strings.TrimSpace(dataset.NormalizeMissing(v))
		if mapping != nil {
			if m, ok := mapping[v]; ok {
				out[i] = m
			} else {
				out[i] = math.NaN()
			}
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			n = math.NaN()
		}
		out[i] = n
	}
	return out, nil
}

func observed(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
