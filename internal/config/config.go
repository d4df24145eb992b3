package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
)

// Config is shared by the training and prediction binaries.
type Config struct {
	MongoURL       string
	DatabaseName   string
	CollectionName string
	MongoTimeout   time.Duration
	SourceCSV      string

	ArtifactDir  string
	SchemaFile   string
	TargetColumn string

	TestSplitRatio   float64
	SplitSeed        int64
	ExpectedAccuracy float64
	OverfitTolerance float64
	Resample         bool

	LearningRate float64
	Epochs       int
	L2           float64
	TrainSeed    int64

	ModelBucket       string
	ModelKeyPrefix    string
	ModelKey          string
	AcceptThreshold   float64
	DeleteLocalOnPush bool
	AWSRegion         string
	S3Endpoint        string

	AuditDir         string
	AuditDatabaseURL string
	SignerID         string
	SignerKeyB64     string
	KafkaBrokers     []string
	KafkaTopic       string
	// AuditArchive copies every audit event into the model bucket.
	AuditArchive bool

	LogLevel  string
	LogFormat string
	LogDir    string
}

const (
	defaultDatabaseName     = "Proj1"
	defaultCollectionName   = "Proj1-Data"
	defaultArtifactDir      = "artifact"
	defaultSchemaFile       = "config/schema.yaml"
	defaultTargetColumn     = "Response"
	defaultTestSplitRatio   = 0.25
	defaultSeed             = 42
	defaultExpectedAccuracy = 0.6
	defaultOverfitTolerance = 0.15
	defaultLearningRate     = 0.1
	defaultEpochs           = 300
	defaultL2               = 0.001
	defaultModelKey         = "model.json"
	defaultAcceptThreshold  = 0.02
	defaultAuditDir         = "artifact/audit"
	defaultSignerID         = "training-pipeline-dev"
	defaultKafkaTopic       = "pipeline.events"
	defaultMongoTimeout     = 10 * time.Second
)

// LoadTraining reads the configuration for a pipeline run. The model bucket
// and a record source (document store URL or CSV export) are required.
func LoadTraining() (Config, error) {
	cfg := load()
	if cfg.MongoURL == "" && cfg.SourceCSV == "" {
		return Config{}, pipelineerr.Configuration("load config", errors.New("MONGODB_URL or PIPELINE_SOURCE_CSV required"))
	}
	threshold, err := finiteFloat("MODEL_ACCEPT_THRESHOLD", defaultAcceptThreshold)
	if err != nil {
		return Config{}, pipelineerr.Configuration("load config", err)
	}
	cfg.AcceptThreshold = threshold
	if err := cfg.validateCommon(); err != nil {
		return Config{}, err
	}
	if cfg.TestSplitRatio <= 0 || cfg.TestSplitRatio >= 1 {
		return Config{}, pipelineerr.Configuration("load config", errors.New("PIPELINE_TEST_SPLIT_RATIO must be in (0,1)"))
	}
	return cfg, nil
}

func (c Config) validateCommon() error {
	if c.ModelBucket == "" {
		return pipelineerr.Configuration("load config", errors.New("MODEL_BUCKET_NAME required"))
	}
	if c.ModelKey == "" {
		return pipelineerr.Configuration("load config", errors.New("MODEL_KEY must not be empty"))
	}
	return nil
}

func load() Config {
	return Config{
		MongoURL:       os.Getenv("MONGODB_URL"),
		DatabaseName:   getEnv("PIPELINE_DATABASE_NAME", defaultDatabaseName),
		CollectionName: getEnv("PIPELINE_COLLECTION_NAME", defaultCollectionName),
		MongoTimeout:   getDuration("MONGODB_TIMEOUT", defaultMongoTimeout),
		SourceCSV:      os.Getenv("PIPELINE_SOURCE_CSV"),

		ArtifactDir:  getEnv("PIPELINE_ARTIFACT_DIR", defaultArtifactDir),
		SchemaFile:   getEnv("PIPELINE_SCHEMA_FILE", defaultSchemaFile),
		TargetColumn: getEnv("PIPELINE_TARGET_COLUMN", defaultTargetColumn),

		TestSplitRatio:   getFloat("PIPELINE_TEST_SPLIT_RATIO", defaultTestSplitRatio),
		SplitSeed:        int64(getInt("PIPELINE_SPLIT_SEED", defaultSeed)),
		ExpectedAccuracy: getFloat("PIPELINE_EXPECTED_ACCURACY", defaultExpectedAccuracy),
		OverfitTolerance: getFloat("PIPELINE_OVERFIT_TOLERANCE", defaultOverfitTolerance),
		Resample:         getBool("PIPELINE_RESAMPLE", true),

		LearningRate: getFloat("PIPELINE_LEARNING_RATE", defaultLearningRate),
		Epochs:       getInt("PIPELINE_EPOCHS", defaultEpochs),
		L2:           getFloat("PIPELINE_L2", defaultL2),
		TrainSeed:    int64(getInt("PIPELINE_TRAIN_SEED", defaultSeed)),

		ModelBucket:       os.Getenv("MODEL_BUCKET_NAME"),
		ModelKeyPrefix:    os.Getenv("MODEL_KEY_PREFIX"),
		ModelKey:          getEnv("MODEL_KEY", defaultModelKey),
		DeleteLocalOnPush: getBool("MODEL_DELETE_LOCAL_ON_PUSH", false),
		AWSRegion:         os.Getenv("AWS_REGION"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),

		AuditDir:         getEnv("AUDIT_DIR", defaultAuditDir),
		AuditDatabaseURL: firstNonEmpty(os.Getenv("AUDIT_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		SignerID:         getEnv("AUDIT_SIGNER_ID", defaultSignerID),
		SignerKeyB64:     os.Getenv("AUDIT_SIGNER_KEY_B64"),
		KafkaBrokers:     splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		AuditArchive:     getBool("AUDIT_ARCHIVE_TO_BUCKET", false),

		LogLevel:  getEnv("PIPELINE_LOG_LEVEL", "info"),
		LogFormat: getEnv("PIPELINE_LOG_FORMAT", "text"),
		LogDir:    os.Getenv("PIPELINE_LOG_DIR"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// finiteFloat is getFloat for settings where a silent fallback would change
// behaviour: malformed or non-finite values are errors.
func finiteFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %q is not finite", key, v)
	}
	return f, nil
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
