package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/audit"
	"github.com/ILLUVRSE/training-pipeline/internal/auth"
	"github.com/ILLUVRSE/training-pipeline/internal/config"
	"github.com/ILLUVRSE/training-pipeline/internal/httpserver"
	"github.com/ILLUVRSE/training-pipeline/internal/logging"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/registry"
)

func main() {
	cfg, err := config.LoadPrediction()
	if err != nil {
		logrus.Fatalf("config load: %v", err)
	}
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Dir: cfg.LogDir})
	if err != nil {
		logrus.Fatalf("logger init: %v", err)
	}
	defer closer.Close()

	ctx := context.Background()
	blobs, err := registry.NewS3BlobStore(ctx, registry.S3Options{Region: cfg.AWSRegion, Endpoint: cfg.S3Endpoint})
	if err != nil {
		logger.Fatalf("s3 init: %v", err)
	}

	events, eventsCloser, err := audit.Open(ctx, audit.OpenOptions{DatabaseURL: cfg.AuditDatabaseURL, Dir: cfg.AuditDir})
	if err != nil {
		logger.Fatalf("audit store: %v", err)
	}
	defer eventsCloser.Close()

	var verifier *auth.Verifier
	if cfg.AuthKeysFile != "" {
		verifier, err = auth.NewVerifier(cfg.AuthKeysFile, cfg.RequiredScope)
		if err != nil {
			logger.Fatalf("auth init: %v", err)
		}
	} else {
		logger.Warn("AUTH_KEYS_FILE not set, model routes are unauthenticated")
	}

	server := httpserver.New(httpserver.Options{
		Registry: registry.New(blobs),
		Slot:     models.NewSlot(cfg.ModelBucket, cfg.ModelKeyPrefix, cfg.ModelKey),
		Events:   events,
		Verifier: verifier,
		Logger:   logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("prediction service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, logger)
}

func waitForShutdown(s *http.Server, logger *logrus.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}
