// Package promotion publishes an accepted model to the registry slot.
package promotion

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/registry"
)

type Controller struct {
	registry    registry.Registry
	deleteLocal bool
	logger      *logrus.Logger
}

// NewController builds a controller. deleteLocal removes the local model file
// after a successful upload; failed or skipped uploads always keep it.
func NewController(reg registry.Registry, deleteLocal bool, logger *logrus.Logger) *Controller {
	return &Controller{registry: reg, deleteLocal: deleteLocal, logger: logger}
}

// Promote uploads the evaluated model when it was accepted and leaves the slot
// untouched otherwise. Upload failures are returned as is, without retry.
func (c *Controller) Promote(ctx context.Context, ev models.ModelEvaluationArtifact) (models.PromotionOutcome, error) {
	out := models.PromotionOutcome{
		RemoteBucket:    ev.Slot.Bucket,
		RemoteModelKey:  ev.Slot.Key,
		SourceModelPath: ev.LocalModelPath,
	}
	log := c.logger.WithFields(logrus.Fields{"stage": "model_pusher", "slot": ev.Slot.String()})
	if !ev.Accepted {
		log.WithField("delta", ev.ScoreDelta).Info("trained model not accepted, keeping deployed model")
		return out, nil
	}
	if err := c.registry.Save(ctx, ev.LocalModelPath, ev.Slot, c.deleteLocal); err != nil {
		return out, err
	}
	out.WasPublished = true
	log.WithField("source", ev.LocalModelPath).Info("published trained model")
	return out, nil
}

// Run promotes and builds the downstream pusher artifact.
func (c *Controller) Run(ctx context.Context, ev models.ModelEvaluationArtifact) (models.ModelPusherArtifact, models.PromotionOutcome, error) {
	out, err := c.Promote(ctx, ev)
	if err != nil {
		return models.ModelPusherArtifact{}, out, err
	}
	return models.ModelPusherArtifact{Bucket: ev.Slot.Bucket, Slot: ev.Slot}, out, nil
}
