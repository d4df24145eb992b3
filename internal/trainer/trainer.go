// Package trainer fits the classifier on the transformed matrices and
// bundles it with the fitted preprocessor.
package trainer

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/artifact"
	"github.com/ILLUVRSE/training-pipeline/internal/estimator"
	"github.com/ILLUVRSE/training-pipeline/internal/metrics"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
	"github.com/ILLUVRSE/training-pipeline/internal/transform"
)

type Config struct {
	ModelFilePath    string
	ExpectedAccuracy float64
	OverfitTolerance float64
	LearningRate     float64
	Epochs           int
	L2               float64
	Seed             int64
}

type Stage struct {
	cfg    Config
	logger *logrus.Logger
}

func NewStage(cfg Config, logger *logrus.Logger) *Stage {
	return &Stage{cfg: cfg, logger: logger}
}

func (s *Stage) Run(tr models.DataTransformationArtifact) (models.ModelTrainerArtifact, error) {
	log := s.logger.WithField("stage", "model_trainer")

	train, err := artifact.LoadMatrix(tr.TrainArrayPath)
	if err != nil {
		return models.ModelTrainerArtifact{}, err
	}
	test, err := artifact.LoadMatrix(tr.TestArrayPath)
	if err != nil {
		return models.ModelTrainerArtifact{}, err
	}
	pre, err := transform.LoadPreprocessor(tr.PreprocessorFilePath)
	if err != nil {
		return models.ModelTrainerArtifact{}, err
	}
	trainX, trainY := artifact.SplitLabel(train)
	testX, testY := artifact.SplitLabel(test)

	clf := &estimator.LogisticRegression{
		LearningRate: s.cfg.LearningRate,
		Epochs:       s.cfg.Epochs,
		L2:           s.cfg.L2,
		Seed:         s.cfg.Seed,
	}
	if err := clf.Fit(trainX, trainY); err != nil {
		return models.ModelTrainerArtifact{}, fmt.Errorf("train classifier: %w", err)
	}

	trainAcc, err := score(clf, trainX, trainY)
	if err != nil {
		return models.ModelTrainerArtifact{}, err
	}
	testPred, err := clf.Predict(testX)
	if err != nil {
		return models.ModelTrainerArtifact{}, err
	}
	testAcc, err := metrics.Accuracy(testY, testPred)
	if err != nil {
		return models.ModelTrainerArtifact{}, err
	}
	report, err := metrics.Report(testY, testPred)
	if err != nil {
		return models.ModelTrainerArtifact{}, err
	}

	log = log.WithFields(logrus.Fields{
		"train_accuracy": trainAcc,
		"test_accuracy":  testAcc,
		"f1":             report.F1,
		"precision":      report.Precision,
		"recall":         report.Recall,
	})
	if gap := math.Abs(trainAcc - testAcc); gap > s.cfg.OverfitTolerance {
		log.WithField("gap", gap).Warn("train and test accuracy diverge")
	}
	if testAcc < s.cfg.ExpectedAccuracy {
		return models.ModelTrainerArtifact{}, fmt.Errorf("test accuracy %.4f below expected %.4f", testAcc, s.cfg.ExpectedAccuracy)
	}

	bundle := &estimator.Model{Preprocessor: pre, Classifier: clf}
	if err := bundle.SaveFile(s.cfg.ModelFilePath); err != nil {
		return models.ModelTrainerArtifact{}, pipelineerr.DataAccess("save model", err)
	}
	log.WithField("path", s.cfg.ModelFilePath).Info("saved trained model")

	return models.ModelTrainerArtifact{
		TrainedModelFilePath: s.cfg.ModelFilePath,
		Metrics:              report,
		TrainAccuracy:        trainAcc,
		TestAccuracy:         testAcc,
	}, nil
}

func score(p estimator.Predictor, x [][]float64, y []int) (float64, error) {
	pred, err := p.Predict(x)
	if err != nil {
		return 0, err
	}
	return metrics.Accuracy(y, pred)
}
