// Package models holds the immutable records passed between pipeline stages.
package models

import "path"

// Slot is the remote location designated as the currently deployed model.
type Slot struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// NewSlot joins an optional directory prefix onto key.
func NewSlot(bucket, prefix, key string) Slot {
	if prefix != "" {
		key = path.Join(prefix, key)
	}
	return Slot{Bucket: bucket, Key: key}
}

func (s Slot) String() string { return "s3://" + s.Bucket + "/" + s.Key }

type DataIngestionArtifact struct {
	FeatureStorePath string `json:"featureStorePath"`
	TrainFilePath    string `json:"trainFilePath"`
	TestFilePath     string `json:"testFilePath"`
}

type DataValidationArtifact struct {
	ValidationStatus bool   `json:"validationStatus"`
	Message          string `json:"message"`
	ReportFilePath   string `json:"reportFilePath"`
}

type DataTransformationArtifact struct {
	PreprocessorFilePath string `json:"preprocessorFilePath"`
	TrainArrayPath       string `json:"trainArrayPath"`
	TestArrayPath        string `json:"testArrayPath"`
}

type ClassificationMetric struct {
	F1        float64 `json:"f1"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

type ModelTrainerArtifact struct {
	TrainedModelFilePath string               `json:"trainedModelFilePath"`
	Metrics              ClassificationMetric `json:"metrics"`
	TrainAccuracy        float64              `json:"trainAccuracy"`
	TestAccuracy         float64              `json:"testAccuracy"`
}

// EvaluationResult is computed once per run and never mutated.
type EvaluationResult struct {
	TrainedModelScore float64 `json:"trainedModelScore"`
	// BestModelScore is 0 when no baseline was found.
	BestModelScore float64 `json:"bestModelScore"`
	Accepted       bool    `json:"accepted"`
	ScoreDelta     float64 `json:"scoreDelta"`
	HasBaseline    bool    `json:"hasBaseline"`
	// BaselineProbeFailed is set when the existence check failed and the
	// baseline was treated as absent.
	BaselineProbeFailed bool `json:"baselineProbeFailed,omitempty"`
}

type ModelEvaluationArtifact struct {
	Accepted       bool    `json:"accepted"`
	Slot           Slot    `json:"slot"`
	LocalModelPath string  `json:"localModelPath"`
	ScoreDelta     float64 `json:"scoreDelta"`
}

// PromotionOutcome always names the slot; WasPublished=false means the
// remote artifact was left untouched.
type PromotionOutcome struct {
	RemoteBucket    string `json:"remoteBucket"`
	RemoteModelKey  string `json:"remoteModelKey"`
	SourceModelPath string `json:"sourceModelPath"`
	WasPublished    bool   `json:"wasPublished"`
}

type ModelPusherArtifact struct {
	Bucket string `json:"bucket"`
	Slot   Slot   `json:"slot"`
}
