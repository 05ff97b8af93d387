package bootstrap

import (
	"fmt"

	"github.com/ranklite/backlink-engine/internal/config"
	"github.com/ranklite/backlink-engine/internal/database"
	"github.com/ranklite/backlink-engine/internal/logger"
)

// SetupDatabase creates a database connection.
func SetupDatabase(cfg *config.Config, log logger.Logger) (*database.DB, error) {
	db, err := database.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("database connection: %w", err)
	}
	return db, nil
}
