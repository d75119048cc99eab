package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          string
	DataDir       string
	IndexPath     string
	MaxUploadSize int64
	TrainRatio    float64

	OpenAIAPIKey  string
	OpenAIBaseURL string
	FineTuneModel string

	DocsUser     string
	DocsPassword string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, applying defaults for
// everything that is unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getString("PORT", "8080"),
		DataDir:       getString("DATA_DIR", "./datas"),
		IndexPath:     getString("INDEX_PATH", "./index.db"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		FineTuneModel: getString("FINETUNE_MODEL", "gpt-4o-2024-08-06"),
		DocsUser:      os.Getenv("DOCS_USER"),
		DocsPassword:  os.Getenv("DOCS_PASSWORD"),
	}

	var err error
	if cfg.MaxUploadSize, err = getInt64("MAX_UPLOAD_SIZE", 104857600); err != nil {
		return nil, err
	}
	if cfg.TrainRatio, err = getFloat("TRAIN_RATIO", 0.8); err != nil {
		return nil, err
	}
	if cfg.TrainRatio <= 0 || cfg.TrainRatio >= 1 {
		return nil, fmt.Errorf("TRAIN_RATIO must be in (0,1), got %v", cfg.TrainRatio)
	}
	if cfg.ReadTimeout, err = getSeconds("READ_TIMEOUT_SECONDS", 180); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = getSeconds("WRITE_TIMEOUT_SECONDS", 180); err != nil {
		return nil, err
	}
	if cfg.IdleTimeout, err = getSeconds("IDLE_TIMEOUT_SECONDS", 180); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getSeconds("SHUTDOWN_TIMEOUT_SECONDS", 10); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getSeconds(key string, defaultValue int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(defaultValue) * time.Second, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(n) * time.Second, nil
}
