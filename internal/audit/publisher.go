package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher forwards sealed events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

func envelope(ev *Event) ([]byte, error) {
	return canonicalJSON(map[string]interface{}{
		"id":        ev.ID,
		"runId":     ev.RunID,
		"eventType": ev.EventType,
		"payload":   ev.Payload,
		"prevHash":  ev.PrevHash,
		"hash":      ev.Hash,
		"signature": ev.Signature,
		"signerId":  ev.SignerID,
		"ts":        ev.Ts.Format(time.RFC3339Nano),
	})
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// MaxAttempts defaults to 3.
	MaxAttempts int
	// WriteTimeout bounds each attempt; defaults to 5s.
	WriteTimeout time.Duration
}

// KafkaPublisher writes events keyed by run id, so one run's events land on
// one partition in order.
type KafkaPublisher struct {
	writer       messageWriter
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaPublisher(w, cfg), nil
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig) *KafkaPublisher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &KafkaPublisher{writer: w, maxAttempts: cfg.MaxAttempts, writeTimeout: cfg.WriteTimeout, backoff: 100 * time.Millisecond}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev *Event) error {
	value, err := envelope(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{Key: []byte(ev.RunID), Value: value, Time: ev.Ts}

	backoff := k.backoff
	var lastErr error
	for attempt := 1; attempt <= k.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, k.writeTimeout)
		lastErr = k.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == k.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("kafka publish failed after %d attempts: %w", k.maxAttempts, lastErr)
}

func (k *KafkaPublisher) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

type objectPutter interface {
	Put(ctx context.Context, bucket, key string, body io.Reader) error
}

// BlobArchiver stores each event's canonical envelope at
// <prefix>/audit/YYYY/MM/DD/<id>.json.
type BlobArchiver struct {
	blobs  objectPutter
	bucket string
	prefix string
}

func NewBlobArchiver(blobs objectPutter, bucket, prefix string) *BlobArchiver {
	return &BlobArchiver{blobs: blobs, bucket: bucket, prefix: prefix}
}

func (a *BlobArchiver) Key(ev *Event) string {
	year, month, day := ev.Ts.UTC().Date()
	return path.Join(a.prefix, "audit",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		ev.ID+".json",
	)
}

func (a *BlobArchiver) Publish(ctx context.Context, ev *Event) error {
	b, err := envelope(ev)
	if err != nil {
		return err
	}
	if err := a.blobs.Put(ctx, a.bucket, a.Key(ev), bytes.NewReader(b)); err != nil {
		return fmt.Errorf("archive event %s: %w", ev.ID, err)
	}
	return nil
}
