// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"testing"

	"github.com/ILLUVRSE/training-pipeline/internal/config"
	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/estimator"
	"github.com/ILLUVRSE/training-pipeline/internal/transform"
)

// VehicleSchema mirrors config/schema.yaml.
func VehicleSchema() config.Schema {
	return config.Schema{
		Columns: []map[string]string{
			{"id": "int"}, {"Gender": "category"}, {"Age": "int"}, {"Driving_License": "int"},
			{"Region_Code": "float"}, {"Previously_Insured": "int"}, {"Vehicle_Age": "category"},
			{"Vehicle_Damage": "category"}, {"Annual_Premium": "float"}, {"Policy_Sales_Channel": "float"},
			{"Vintage": "int"}, {"Response": "int"},
		},
		NumericalColumns:   []string{"Age", "Driving_License", "Region_Code", "Previously_Insured", "Annual_Premium", "Policy_Sales_Channel", "Vintage", "Response"},
		CategoricalColumns: []string{"Vehicle_Age", "Vehicle_Damage"},
		DropColumns:        []string{"id"},
		NumFeatures:        []string{"Age", "Vintage"},
		MinMaxColumns:      []string{"Annual_Premium"},
		ValueMappings:      map[string]map[string]float64{"Gender": {"Female": 0, "Male": 1}},
	}
}

var vehicleColumns = []string{
	"id", "Gender", "Age", "Driving_License", "Region_Code", "Previously_Insured",
	"Vehicle_Age", "Vehicle_Damage", "Annual_Premium", "Policy_Sales_Channel", "Vintage", "Response",
}

// VehicleRecords generates n deterministic records. Response is 1 exactly when
// the vehicle is uninsured and damaged, so the label is learnable.
func VehicleRecords(n int, seed int64) []map[string]string {
	rng := rand.New(rand.NewSource(seed))
	genders := []string{"Male", "Female"}
	ages := []string{"< 1 Year", "1-2 Year", "> 2 Years"}
	out := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		insured := rng.Intn(2)
		damage := "No"
		if rng.Intn(2) == 0 {
			damage = "Yes"
		}
		response := 0
		if insured == 0 && damage == "Yes" {
			response = 1
		}
		out[i] = map[string]string{
			"id":                   strconv.Itoa(i + 1),
			"Gender":               genders[rng.Intn(2)],
			"Age":                  strconv.Itoa(20 + rng.Intn(60)),
			"Driving_License":      "1",
			"Region_Code":          fmt.Sprintf("%.1f", float64(rng.Intn(50))),
			"Previously_Insured":   strconv.Itoa(insured),
			"Vehicle_Age":          ages[rng.Intn(3)],
			"Vehicle_Damage":       damage,
			"Annual_Premium":       fmt.Sprintf("%.1f", 2000+rng.Float64()*40000),
			"Policy_Sales_Channel": fmt.Sprintf("%.1f", float64(1+rng.Intn(160))),
			"Vintage":              strconv.Itoa(10 + rng.Intn(290)),
			"Response":             strconv.Itoa(response),
		}
	}
	return out
}

// VehicleFrame is VehicleRecords laid out as a frame.
func VehicleFrame(n int, seed int64) dataset.Frame {
	f := dataset.Frame{Columns: vehicleColumns}
	for _, rec := range VehicleRecords(n, seed) {
		row := make([]string, len(vehicleColumns))
		for i, c := range vehicleColumns {
			row[i] = rec[c]
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

// TrainedModel fits a bundle on synthetic data and returns it together with a
// held-out feature frame.
func TrainedModel(t testing.TB, seed int64) (*estimator.Model, dataset.Frame) {
	t.Helper()
	x, y, err := VehicleFrame(200, seed).SplitTarget("Response")
	if err != nil {
		t.Fatalf("split target: %v", err)
	}
	pre := transform.NewPreprocessor(VehicleSchema())
	m, err := pre.FitTransform(x)
	if err != nil {
		t.Fatalf("fit preprocessor: %v", err)
	}
	lr := &estimator.LogisticRegression{LearningRate: 0.5, Epochs: 200, Seed: seed}
	if err := lr.Fit(m, y); err != nil {
		t.Fatalf("fit classifier: %v", err)
	}
	heldOut, _, err := VehicleFrame(60, seed+100).SplitTarget("Response")
	if err != nil {
		t.Fatalf("split held-out: %v", err)
	}
	return &estimator.Model{Preprocessor: pre, Classifier: lr}, heldOut
}

// FixedPredictor returns Labels regardless of input.
type FixedPredictor struct {
	Labels []int
	Err    error
}

func (p FixedPredictor) Predict(x [][]float64) ([]int, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	if len(x) != len(p.Labels) {
		return nil, fmt.Errorf("fixed predictor: %d rows, %d labels", len(x), len(p.Labels))
	}
	return append([]int(nil), p.Labels...), nil
}

// FailingBlobStore fails the operations whose error is set and otherwise
// delegates to Inner, which may be nil.
type FailingBlobStore struct {
	Inner   blobStore
	GetErr  error
	PutErr  error
	ListErr error
}

type blobStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body io.Reader) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

func (f *FailingBlobStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if f.GetErr != nil || f.Inner == nil {
		return nil, f.GetErr
	}
	return f.Inner.Get(ctx, bucket, key)
}

func (f *FailingBlobStore) Put(ctx context.Context, bucket, key string, body io.Reader) error {
	if f.PutErr != nil || f.Inner == nil {
		return f.PutErr
	}
	return f.Inner.Put(ctx, bucket, key, body)
}

func (f *FailingBlobStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if f.ListErr != nil || f.Inner == nil {
		return nil, f.ListErr
	}
	return f.Inner.List(ctx, bucket, prefix)
}
