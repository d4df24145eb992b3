// Package evaluation decides whether a freshly trained model should replace
// the deployed one.
package evaluation

import (
	"context"
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/estimator"
	"github.com/ILLUVRSE/training-pipeline/internal/metrics"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
	"github.com/ILLUVRSE/training-pipeline/internal/registry"
)

type Input struct {
	HeldOutPath      string
	TargetColumn     string
	TrainedModelPath string
	Slot             models.Slot
	Threshold        float64
}

type Gate struct {
	registry registry.Registry
	logger   *logrus.Logger
}

func NewGate(reg registry.Registry, logger *logrus.Logger) *Gate {
	return &Gate{registry: reg, logger: logger}
}

// Decide is the acceptance rule: the improvement must strictly exceed threshold.
func Decide(trainedScore, bestScore, threshold float64) (delta float64, accepted bool) {
	delta = trainedScore - bestScore
	return delta, delta > threshold
}

// Evaluate scores the trained model and the deployed baseline on the same
// held-out data. A failed existence probe is treated as "no baseline" and
// flagged on the result; a baseline that exists but cannot be decoded fails
// the evaluation.
func (g *Gate) Evaluate(ctx context.Context, in Input) (models.EvaluationResult, error) {
	log := g.logger.WithFields(logrus.Fields{"stage": "model_evaluation", "slot": in.Slot.String()})

	x, y, err := loadHeldOut(in.HeldOutPath, in.TargetColumn)
	if err != nil {
		return models.EvaluationResult{}, err
	}
	trained, err := loadLocal(in.TrainedModelPath)
	if err != nil {
		return models.EvaluationResult{}, err
	}
	trainedScore, err := score(trained, x, y)
	if err != nil {
		return models.EvaluationResult{}, pipelineerr.DataAccess("score trained model", err)
	}

	result := models.EvaluationResult{TrainedModelScore: trainedScore}
	present, err := g.registry.Exists(ctx, in.Slot)
	if err != nil {
		log.WithError(err).Warn("baseline probe failed, continuing without a baseline")
		result.BaselineProbeFailed = true
		present = false
	}
	if present {
		best, err := g.registry.Load(ctx, in.Slot)
		if err != nil {
			return models.EvaluationResult{}, err
		}
		bestScore, err := score(best, x, y)
		if err != nil {
			return models.EvaluationResult{}, pipelineerr.ModelLoad("score baseline", err)
		}
		result.BestModelScore = bestScore
		result.HasBaseline = true
	}

	result.ScoreDelta, result.Accepted = Decide(result.TrainedModelScore, result.BestModelScore, in.Threshold)
	log.WithFields(logrus.Fields{
		"trained_f1": result.TrainedModelScore,
		"best_f1":    result.BestModelScore,
		"delta":      result.ScoreDelta,
		"threshold":  in.Threshold,
		"accepted":   result.Accepted,
	}).Info("evaluated trained model")
	return result, nil
}

// Run evaluates the trainer's output and builds the downstream artifact.
func (g *Gate) Run(ctx context.Context, ing models.DataIngestionArtifact, tr models.ModelTrainerArtifact, target string, slot models.Slot, threshold float64) (models.ModelEvaluationArtifact, models.EvaluationResult, error) {
	res, err := g.Evaluate(ctx, Input{
		HeldOutPath:      ing.TestFilePath,
		TargetColumn:     target,
		TrainedModelPath: tr.TrainedModelFilePath,
		Slot:             slot,
		Threshold:        threshold,
	})
	if err != nil {
		return models.ModelEvaluationArtifact{}, models.EvaluationResult{}, err
	}
	return models.ModelEvaluationArtifact{
		Accepted:       res.Accepted,
		Slot:           slot,
		LocalModelPath: tr.TrainedModelFilePath,
		ScoreDelta:     res.ScoreDelta,
	}, res, nil
}

func loadHeldOut(path, target string) (dataset.Frame, []int, error) {
	f, err := dataset.ReadCSV(path)
	if err != nil {
		return dataset.Frame{}, nil, pipelineerr.DataAccess("read held-out "+path, err)
	}
	if f.Len() == 0 {
		return dataset.Frame{}, nil, pipelineerr.DataAccess("read held-out "+path, errors.New("no rows"))
	}
	x, y, err := f.SplitTarget(target)
	if err != nil {
		return dataset.Frame{}, nil, pipelineerr.DataAccess("split held-out", err)
	}
	return x, y, nil
}

func loadLocal(path string) (*estimator.Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, pipelineerr.DataAccess("read trained model", err)
	}
	m, err := estimator.Unmarshal(b)
	if err != nil {
		return nil, pipelineerr.ModelLoad("decode trained model", err)
	}
	return m, nil
}

func score(m *estimator.Model, x dataset.Frame, y []int) (float64, error) {
	pred, err := m.PredictFrame(x)
	if err != nil {
		return 0, err
	}
	return metrics.F1(y, pred)
}
