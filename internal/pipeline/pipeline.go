// Package pipeline runs the training stages in order and records the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/artifact"
	"github.com/ILLUVRSE/training-pipeline/internal/audit"
	"github.com/ILLUVRSE/training-pipeline/internal/config"
	"github.com/ILLUVRSE/training-pipeline/internal/evaluation"
	"github.com/ILLUVRSE/training-pipeline/internal/ingestion"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
	"github.com/ILLUVRSE/training-pipeline/internal/promotion"
	"github.com/ILLUVRSE/training-pipeline/internal/registry"
	"github.com/ILLUVRSE/training-pipeline/internal/trainer"
	"github.com/ILLUVRSE/training-pipeline/internal/transform"
	"github.com/ILLUVRSE/training-pipeline/internal/validation"
)

const (
	StageIngestion      = "data_ingestion"
	StageValidation     = "data_validation"
	StageTransformation = "data_transformation"
	StageTraining       = "model_trainer"
	StageEvaluation     = "model_evaluation"
	StagePromotion      = "model_pusher"
)

// StageError tags a failure with the stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

type Settings struct {
	ArtifactDir    string
	Collection     string
	TargetColumn   string
	TestSplitRatio float64
	SplitSeed      int64
	Resample       bool

	ExpectedAccuracy float64
	OverfitTolerance float64
	LearningRate     float64
	Epochs           int
	L2               float64
	TrainSeed        int64

	Slot              models.Slot
	AcceptThreshold   float64
	DeleteLocalOnPush bool
}

// SettingsFromConfig maps the environment configuration onto run settings.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		ArtifactDir:       cfg.ArtifactDir,
		Collection:        cfg.CollectionName,
		TargetColumn:      cfg.TargetColumn,
		TestSplitRatio:    cfg.TestSplitRatio,
		SplitSeed:         cfg.SplitSeed,
		Resample:          cfg.Resample,
		ExpectedAccuracy:  cfg.ExpectedAccuracy,
		OverfitTolerance:  cfg.OverfitTolerance,
		LearningRate:      cfg.LearningRate,
		Epochs:            cfg.Epochs,
		L2:                cfg.L2,
		TrainSeed:         cfg.TrainSeed,
		Slot:              models.NewSlot(cfg.ModelBucket, cfg.ModelKeyPrefix, cfg.ModelKey),
		AcceptThreshold:   cfg.AcceptThreshold,
		DeleteLocalOnPush: cfg.DeleteLocalOnPush,
	}
}

// Result collects the records produced by a run.
type Result struct {
	RunID          string
	Layout         artifact.Layout
	Ingestion      models.DataIngestionArtifact
	Validation     models.DataValidationArtifact
	Transformation models.DataTransformationArtifact
	Training       models.ModelTrainerArtifact
	Evaluation     models.EvaluationResult
	Promotion      models.PromotionOutcome
	Pusher         models.ModelPusherArtifact
}

type Pipeline struct {
	source   ingestion.Source
	registry registry.Registry
	recorder *audit.Recorder
	schema   config.Schema
	settings Settings
	logger   *logrus.Logger
	now      func() time.Time
}

// New builds a pipeline. recorder may be nil, in which case no audit events
// are written.
func New(source ingestion.Source, reg registry.Registry, recorder *audit.Recorder, schema config.Schema, settings Settings, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		source:   source,
		registry: reg,
		recorder: recorder,
		schema:   schema,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one training run. Any stage failure aborts the run; the error
// is a *StageError wrapping the stage's error and keeps its pipelineerr kind.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	started := p.now()
	res := Result{
		RunID:  uuid.NewString(),
		Layout: artifact.NewLayout(p.settings.ArtifactDir, started),
	}
	log := p.logger.WithField("run_id", res.RunID)
	log.WithFields(logrus.Fields{"artifact_dir": res.Layout.Root, "slot": p.settings.Slot.String()}).Info("pipeline started")

	if err := p.record(ctx, res.RunID, audit.EventPipelineStarted, map[string]interface{}{
		"artifactDir": res.Layout.Root,
		"slot":        p.settings.Slot.String(),
		"threshold":   p.settings.AcceptThreshold,
	}); err != nil {
		return res, p.fail(ctx, log, res, started, &StageError{Stage: "audit", Err: err})
	}

	err := p.runStages(ctx, log, &res)
	if err != nil {
		return res, p.fail(ctx, log, res, started, err)
	}

	p.writeSummary(log, res, started, nil)
	log.WithFields(logrus.Fields{
		"published": res.Promotion.WasPublished,
		"delta":     res.Evaluation.ScoreDelta,
		"duration":  p.now().Sub(started).String(),
	}).Info("pipeline finished")
	return res, nil
}

func (p *Pipeline) runStages(ctx context.Context, log *logrus.Entry, res *Result) error {
	s, l := p.settings, res.Layout
	var err error

	res.Ingestion, err = ingestion.NewStage(p.source, ingestion.Config{
		Collection:       s.Collection,
		FeatureStorePath: l.FeatureStoreFile(),
		TrainFilePath:    l.TrainFile(),
		TestFilePath:     l.TestFile(),
		TestSplitRatio:   s.TestSplitRatio,
		Seed:             s.SplitSeed,
	}, p.logger).Run(ctx)
	if err != nil {
		return &StageError{Stage: StageIngestion, Err: err}
	}

	res.Validation, err = validation.NewStage(p.schema, l.ValidationReport(), p.logger).Run(res.Ingestion)
	if err != nil {
		return &StageError{Stage: StageValidation, Err: err}
	}

	var resampler transform.Resampler = transform.NoResample{}
	if s.Resample {
		resampler = transform.RandomOverSampler{Seed: s.SplitSeed}
	}
	res.Transformation, err = transform.NewStage(p.schema, transform.StageConfig{
		TargetColumn:     s.TargetColumn,
		PreprocessorPath: l.PreprocessorFile(),
		TrainArrayPath:   l.TrainArray(),
		TestArrayPath:    l.TestArray(),
	}, resampler, p.logger).Run(res.Ingestion, res.Validation)
	if err != nil {
		return &StageError{Stage: StageTransformation, Err: err}
	}

	res.Training, err = trainer.NewStage(trainer.Config{
		ModelFilePath:    l.ModelFile(),
		ExpectedAccuracy: s.ExpectedAccuracy,
		OverfitTolerance: s.OverfitTolerance,
		LearningRate:     s.LearningRate,
		Epochs:           s.Epochs,
		L2:               s.L2,
		Seed:             s.TrainSeed,
	}, p.logger).Run(res.Transformation)
	if err != nil {
		return &StageError{Stage: StageTraining, Err: err}
	}

	ev, result, err := evaluation.NewGate(p.registry, p.logger).
		Run(ctx, res.Ingestion, res.Training, s.TargetColumn, s.Slot, s.AcceptThreshold)
	if err != nil {
		return &StageError{Stage: StageEvaluation, Err: err}
	}
	res.Evaluation = result
	p.recordBestEffort(ctx, log, res.RunID, audit.EventEvaluationCompleted, map[string]interface{}{
		"trainedModelScore":   result.TrainedModelScore,
		"bestModelScore":      result.BestModelScore,
		"scoreDelta":          result.ScoreDelta,
		"accepted":            result.Accepted,
		"hasBaseline":         result.HasBaseline,
		"baselineProbeFailed": result.BaselineProbeFailed,
		"slot":                s.Slot.String(),
	})

	res.Pusher, res.Promotion, err = promotion.NewController(p.registry, s.DeleteLocalOnPush, p.logger).Run(ctx, ev)
	if err != nil {
		return &StageError{Stage: StagePromotion, Err: err}
	}
	eventType := audit.EventPromotionSkipped
	if res.Promotion.WasPublished {
		eventType = audit.EventPromotionPublished
	}
	p.recordBestEffort(ctx, log, res.RunID, eventType, map[string]interface{}{
		"bucket":       res.Promotion.RemoteBucket,
		"key":          res.Promotion.RemoteModelKey,
		"source":       res.Promotion.SourceModelPath,
		"wasPublished": res.Promotion.WasPublished,
	})
	return nil
}

// fail logs the final line of a failed run and records it.
func (p *Pipeline) fail(ctx context.Context, log *logrus.Entry, res Result, started time.Time, err error) error {
	fields := logrus.Fields{"stage": stageOf(err)}
	if kind, ok := pipelineerr.KindOf(err); ok {
		fields["kind"] = string(kind)
	}
	p.recordBestEffort(ctx, log, res.RunID, audit.EventPipelineFailed, map[string]interface{}{
		"stage": fields["stage"],
		"error": err.Error(),
	})
	p.writeSummary(log, res, started, err)
	log.WithFields(fields).WithError(err).Error("pipeline failed")
	return err
}

func (p *Pipeline) record(ctx context.Context, runID, eventType string, payload map[string]interface{}) error {
	if p.recorder == nil {
		return nil
	}
	_, err := p.recorder.Record(ctx, runID, eventType, payload)
	return err
}

// recordBestEffort logs instead of failing: once the slot may have changed,
// the run's outcome is reported as it happened.
func (p *Pipeline) recordBestEffort(ctx context.Context, log *logrus.Entry, runID, eventType string, payload map[string]interface{}) {
	if err := p.record(ctx, runID, eventType, payload); err != nil {
		log.WithField("event_type", eventType).WithError(err).Error("audit record failed")
	}
}

type summary struct {
	RunID      string    `yaml:"run_id"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	Status     string    `yaml:"status"`
	Stage      string    `yaml:"failed_stage,omitempty"`
	Error      string    `yaml:"error,omitempty"`
	Slot       string    `yaml:"slot"`
	ModelPath  string    `yaml:"model_path,omitempty"`
	Trained    float64   `yaml:"trained_f1"`
	Best       float64   `yaml:"best_f1"`
	Delta      float64   `yaml:"delta"`
	Accepted   bool      `yaml:"accepted"`
	Published  bool      `yaml:"published"`
}

func (p *Pipeline) writeSummary(log *logrus.Entry, res Result, started time.Time, runErr error) {
	s := summary{
		RunID:      res.RunID,
		StartedAt:  started.UTC(),
		FinishedAt: p.now().UTC(),
		Status:     "succeeded",
		Slot:       p.settings.Slot.String(),
		ModelPath:  res.Training.TrainedModelFilePath,
		Trained:    res.Evaluation.TrainedModelScore,
		Best:       res.Evaluation.BestModelScore,
		Delta:      res.Evaluation.ScoreDelta,
		Accepted:   res.Evaluation.Accepted,
		Published:  res.Promotion.WasPublished,
	}
	if runErr != nil {
		s.Status = "failed"
		s.Stage = stageOf(runErr)
		s.Error = runErr.Error()
	}
	if err := artifact.WriteYAML(res.Layout.RunSummary(), s); err != nil {
		log.WithError(err).Warn("could not write run summary")
	}
}

func stageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "unknown"
}

// Describe renders a one-line outcome for the command line.
func Describe(res Result) string {
	verb := "kept deployed model at"
	if res.Promotion.WasPublished {
		verb = "published trained model to"
	}
	return fmt.Sprintf("run %s: %s %s (delta %.4f)", res.RunID, verb, models.Slot{Bucket: res.Promotion.RemoteBucket, Key: res.Promotion.RemoteModelKey}, res.Evaluation.ScoreDelta)
}
