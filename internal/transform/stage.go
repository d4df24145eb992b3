package transform

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/artifact"
	"github.com/ILLUVRSE/training-pipeline/internal/config"
	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

type StageConfig struct {
	TargetColumn     string
	PreprocessorPath string
	TrainArrayPath   string
	TestArrayPath    string
}

type Stage struct {
	schema    config.Schema
	cfg       StageConfig
	resampler Resampler
	logger    *logrus.Logger
}

func NewStage(schema config.Schema, cfg StageConfig, resampler Resampler, logger *logrus.Logger) *Stage {
	if resampler == nil {
		resampler = NoResample{}
	}
	return &Stage{schema: schema, cfg: cfg, resampler: resampler, logger: logger}
}

// Run fits the preprocessor on the training split, transforms both splits,
// rebalances the training matrix and persists everything.
func (s *Stage) Run(ing models.DataIngestionArtifact, val models.DataValidationArtifact) (models.DataTransformationArtifact, error) {
	if !val.ValidationStatus {
		return models.DataTransformationArtifact{}, errors.New("data validation failed: " + val.Message)
	}
	log := s.logger.WithField("stage", "data_transformation")

	trainX, trainY, err := s.load(ing.TrainFilePath)
	if err != nil {
		return models.DataTransformationArtifact{}, err
	}
	testX, testY, err := s.load(ing.TestFilePath)
	if err != nil {
		return models.DataTransformationArtifact{}, err
	}

	pre := NewPreprocessor(s.schema)
	trainM, err := pre.FitTransform(trainX)
	if err != nil {
		return models.DataTransformationArtifact{}, err
	}
	testM, err := pre.Transform(testX)
	if err != nil {
		return models.DataTransformationArtifact{}, err
	}
	before := len(trainY)
	trainM, trainY = s.resampler.Resample(trainM, trainY)
	log.WithFields(logrus.Fields{"rows_before": before, "rows_after": len(trainY), "features": pre.Width()}).Info("transformed training data")

	if err := artifact.WriteJSON(s.cfg.PreprocessorPath, pre); err != nil {
		return models.DataTransformationArtifact{}, err
	}
	if err := artifact.SaveMatrix(s.cfg.TrainArrayPath, artifact.JoinLabel(trainM, trainY)); err != nil {
		return models.DataTransformationArtifact{}, err
	}
	if err := artifact.SaveMatrix(s.cfg.TestArrayPath, artifact.JoinLabel(testM, testY)); err != nil {
		return models.DataTransformationArtifact{}, err
	}
	return models.DataTransformationArtifact{
		PreprocessorFilePath: s.cfg.PreprocessorPath,
		TrainArrayPath:       s.cfg.TrainArrayPath,
		TestArrayPath:        s.cfg.TestArrayPath,
	}, nil
}

func (s *Stage) load(path string) (dataset.Frame, []int, error) {
	f, err := dataset.ReadCSV(path)
	if err != nil {
		return dataset.Frame{}, nil, pipelineerr.DataAccess("read "+path, err)
	}
	x, y, err := f.SplitTarget(s.cfg.TargetColumn)
	if err != nil {
		return dataset.Frame{}, nil, pipelineerr.DataAccess("split target", err)
	}
	return x, y, nil
}

// LoadPreprocessor reads a fitted preprocessor written by Run.
func LoadPreprocessor(path string) (*Preprocessor, error) {
	var p Preprocessor
	if err := artifact.ReadJSON(path, &p); err != nil {
		return nil, err
	}
	if !p.Fitted {
		return nil, ErrNotFitted
	}
	return &p, nil
}
