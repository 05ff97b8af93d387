package bootstrap

import (
	"flag"
	"fmt"
	"os"

	"github.com/ranklite/backlink-engine/internal/config"
	"github.com/ranklite/backlink-engine/internal/logger"
)

// LoadConfig loads configuration. Uses the -config flag, falling back to the
// CONFIG_PATH environment variable and then config.yml.
func LoadConfig() (*config.Config, error) {
	configPath := flag.String("config", defaultConfigPath(), "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

func defaultConfigPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.yml"
}

// CreateLogger creates a logger instance from configuration.
func CreateLogger(cfg *config.Config, version string) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(
		logger.String("service", "backlink-engine"),
		logger.String("version", version),
	), nil
}
