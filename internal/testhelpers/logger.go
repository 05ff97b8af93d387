// Package testhelpers provides shared test setup utilities.
package testhelpers

import (
	"github.com/ranklite/backlink-engine/internal/logger"
)

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() logger.Logger {
	return logger.NewNop()
}
