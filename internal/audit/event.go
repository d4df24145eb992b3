// Package audit keeps a tamper-evident, signed record of pipeline runs.
//
// Each event's hash is sha256(canonical(payload) || prevHashBytes) where
// prevHash is the hash of the previously appended event, so the events of
// all runs form one chain.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/ILLUVRSE/training-pipeline/internal/signer"
)

const (
	EventPipelineStarted     = "pipeline.started"
	EventPipelineFailed      = "pipeline.failed"
	EventEvaluationCompleted = "evaluation.completed"
	EventPromotionPublished  = "promotion.published"
	EventPromotionSkipped    = "promotion.skipped"
)

var ErrNotFound = errors.New("not found")

type Event struct {
	ID        string      `json:"id"`
	RunID     string      `json:"runId"`
	EventType string      `json:"eventType"`
	Payload   interface{} `json:"payload"`
	PrevHash  string      `json:"prevHash,omitempty"`
	Hash      string      `json:"hash"`
	Signature string      `json:"signature"`
	SignerID  string      `json:"signerId"`
	Ts        time.Time   `json:"ts"`
}

type Store interface {
	// Append chains, signs and persists ev, filling in its ID, hashes,
	// signature and timestamp.
	Append(ctx context.Context, ev *Event, s signer.Signer) error
	Get(ctx context.Context, id string) (*Event, error)
	// ListByRun returns a run's events in append order.
	ListByRun(ctx context.Context, runID string) ([]*Event, error)
	Ping(ctx context.Context) error
}

func hashBytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// chainHash computes the event hash for a canonical payload and the previous
// head.
func chainHash(canon []byte, prev string) ([]byte, error) {
	buf := append([]byte{}, canon...)
	if prev != "" {
		prevBytes, err := hex.DecodeString(prev)
		if err != nil {
			return nil, err
		}
		buf = append(buf, prevBytes...)
	}
	return hashBytes(buf), nil
}
