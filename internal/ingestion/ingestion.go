// Package ingestion exports the raw collection and splits it into the
// train and test files consumed by the later stages.
package ingestion

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ILLUVRSE/training-pipeline/internal/dataset"
	"github.com/ILLUVRSE/training-pipeline/internal/models"
	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

// Source yields a whole collection as a frame. *docstore.Client satisfies it.
type Source interface {
	ExportCollection(ctx context.Context, collection string) (dataset.Frame, error)
}

type Config struct {
	Collection       string
	FeatureStorePath string
	TrainFilePath    string
	TestFilePath     string
	TestSplitRatio   float64
	Seed             int64
}

type Stage struct {
	source Source
	cfg    Config
	logger *logrus.Logger
}

func NewStage(source Source, cfg Config, logger *logrus.Logger) *Stage {
	return &Stage{source: source, cfg: cfg, logger: logger}
}

var errEmptyCollection = errors.New("collection returned no records")

func (s *Stage) Run(ctx context.Context) (models.DataIngestionArtifact, error) {
	log := s.logger.WithFields(logrus.Fields{"stage": "data_ingestion", "collection": s.cfg.Collection})

	frame, err := s.source.ExportCollection(ctx, s.cfg.Collection)
	if err != nil {
		return models.DataIngestionArtifact{}, pipelineerr.DataAccess("export "+s.cfg.Collection, err)
	}
	if frame.Len() == 0 {
		return models.DataIngestionArtifact{}, pipelineerr.DataAccess("export "+s.cfg.Collection, errEmptyCollection)
	}
	log.WithFields(logrus.Fields{"rows": frame.Len(), "columns": len(frame.Columns)}).Info("exported collection")

	if err := write(s.cfg.FeatureStorePath, frame); err != nil {
		return models.DataIngestionArtifact{}, err
	}
	train, test := frame.TrainTestSplit(s.cfg.TestSplitRatio, s.cfg.Seed)
	if err := write(s.cfg.TrainFilePath, train); err != nil {
		return models.DataIngestionArtifact{}, err
	}
	if err := write(s.cfg.TestFilePath, test); err != nil {
		return models.DataIngestionArtifact{}, err
	}
	log.WithFields(logrus.Fields{"train_rows": train.Len(), "test_rows": test.Len()}).Info("split dataset")

	return models.DataIngestionArtifact{
		FeatureStorePath: s.cfg.FeatureStorePath,
		TrainFilePath:    s.cfg.TrainFilePath,
		TestFilePath:     s.cfg.TestFilePath,
	}, nil
}

func write(path string, f dataset.Frame) error {
	if err := dataset.WriteCSV(path, f); err != nil {
		return pipelineerr.DataAccess("write "+path, err)
	}
	return nil
}

// StaticSource serves a fixed frame. Used for local runs from a CSV export.
type StaticSource struct {
	Frame dataset.Frame
	Err   error
}

func (s StaticSource) ExportCollection(context.Context, string) (dataset.Frame, error) {
	return s.Frame, s.Err
}

// CSVSource reads the collection from a previously exported CSV file.
type CSVSource struct {
	Path string
}

func (s CSVSource) ExportCollection(context.Context, string) (dataset.Frame, error) {
	f, err := dataset.ReadCSV(s.Path)
	if err != nil {
		return dataset.Frame{}, err
	}
	for _, row := range f.Rows {
		for i := range row {
			row[i] = dataset.NormalizeMissing(row[i])
		}
	}
	return f, nil
}
