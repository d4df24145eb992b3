package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/signer"
)

// Recorder appends events to the store and then fans them out to publishers.
// Publishing is best effort: failures are logged and do not fail Record.
type Recorder struct {
	store      Store
	signer     signer.Signer
	publishers []Publisher
	logger     *logrus.Logger
}

func NewRecorder(store Store, s signer.Signer, logger *logrus.Logger, publishers ...Publisher) *Recorder {
	return &Recorder{store: store, signer: s, publishers: publishers, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, runID, eventType string, payload interface{}) (*Event, error) {
	ev := &Event{RunID: runID, EventType: eventType, Payload: payload}
	if err := r.store.Append(ctx, ev, r.signer); err != nil {
		return nil, err
	}
	for _, p := range r.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			r.logger.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": eventType}).WithError(err).Warn("audit publish failed")
		}
	}
	return ev, nil
}
