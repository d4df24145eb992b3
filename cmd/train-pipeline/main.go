package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/audit"
	"github.com/ILLUVRSE/training-pipeline/internal/config"
	"github.com/ILLUVRSE/training-pipeline/internal/docstore"
	"github.com/ILLUVRSE/training-pipeline/internal/ingestion"
	"github.com/ILLUVRSE/training-pipeline/internal/logging"
	"github.com/ILLUVRSE/training-pipeline/internal/pipeline"
	"github.com/ILLUVRSE/training-pipeline/internal/registry"
	"github.com/ILLUVRSE/training-pipeline/internal/signer"
)

func main() {
	cfg, err := config.LoadTraining()
	if err != nil {
		logrus.Fatalf("config load: %v", err)
	}
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Dir: cfg.LogDir})
	if err != nil {
		logrus.Fatalf("logger init: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	closer.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	schema, err := config.LoadSchema(cfg.SchemaFile)
	if err != nil {
		logger.WithError(err).Error("schema load failed")
		return err
	}

	source, closeSource, err := newSource(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("document store connect failed")
		return err
	}
	defer closeSource()

	blobs, err := registry.NewS3BlobStore(ctx, registry.S3Options{Region: cfg.AWSRegion, Endpoint: cfg.S3Endpoint})
	if err != nil {
		logger.WithError(err).Error("s3 init failed")
		return err
	}

	recorder, cleanup, err := newRecorder(ctx, cfg, blobs, logger)
	if err != nil {
		logger.WithError(err).Error("audit init failed")
		return err
	}
	defer cleanup()

	p := pipeline.New(source, registry.New(blobs), recorder, schema, pipeline.SettingsFromConfig(cfg), logger)
	res, err := p.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info(pipeline.Describe(res))
	return nil
}

// newSource reads records from a CSV export when PIPELINE_SOURCE_CSV is set,
// otherwise from the document store.
func newSource(ctx context.Context, cfg config.Config, logger *logrus.Logger) (ingestion.Source, func(), error) {
	if cfg.SourceCSV != "" {
		logger.WithField("path", cfg.SourceCSV).Info("ingesting from csv export")
		return ingestion.CSVSource{Path: cfg.SourceCSV}, func() {}, nil
	}
	client, err := docstore.Connect(ctx, docstore.Options{
		URL:      cfg.MongoURL,
		Database: cfg.DatabaseName,
		Timeout:  cfg.MongoTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("document store close failed")
		}
	}, nil
}

func newRecorder(ctx context.Context, cfg config.Config, blobs *registry.S3BlobStore, logger *logrus.Logger) (*audit.Recorder, func(), error) {
	store, storeCloser, err := audit.Open(ctx, audit.OpenOptions{DatabaseURL: cfg.AuditDatabaseURL, Dir: cfg.AuditDir})
	if err != nil {
		return nil, nil, err
	}
	s, err := signer.FromConfig(cfg.SignerKeyB64, cfg.SignerID)
	if err != nil {
		storeCloser.Close()
		return nil, nil, err
	}
	if cfg.SignerKeyB64 == "" {
		logger.WithField("signer_id", cfg.SignerID).Warn("AUDIT_SIGNER_KEY_B64 not set, signing with an ephemeral key")
	}

	var publishers []audit.Publisher
	closers := []func() error{storeCloser.Close}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := audit.NewKafkaPublisher(audit.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			storeCloser.Close()
			return nil, nil, err
		}
		publishers = append(publishers, kp)
		closers = append(closers, kp.Close)
	}
	if cfg.AuditArchive {
		publishers = append(publishers, audit.NewBlobArchiver(blobs, cfg.ModelBucket, cfg.ModelKeyPrefix))
	}

	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.WithError(err).Warn("audit close failed")
			}
		}
	}
	return audit.NewRecorder(store, s, logger, publishers...), cleanup, nil
}
