package config

import "os"

type PredictionConfig struct {
	Config
	Addr          string
	AuthKeysFile  string
	RequiredScope string
}

const (
	defaultPredictionAddr = ":8070"
	defaultRequiredScope  = "model:predict"
)

// LoadPrediction reads the prediction service configuration. The document
// store is not used by the service, so only the model slot is required.
func LoadPrediction() (PredictionConfig, error) {
	base := load()
	if err := base.validateCommon(); err != nil {
		return PredictionConfig{}, err
	}
	return PredictionConfig{
		Config:        base,
		Addr:          getEnv("PREDICTION_ADDR", defaultPredictionAddr),
		AuthKeysFile:  os.Getenv("AUTH_KEYS_FILE"),
		RequiredScope: getEnv("AUTH_REQUIRED_SCOPE", defaultRequiredScope),
	}, nil
}
