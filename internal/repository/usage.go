package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ranklite/backlink-engine/internal/logger"
)

// UsageRepository persists per-user daily placement counters. Counters are
// keyed by (user_id, day) so an increment is a single atomic upsert and no
// read path ever mutates state.
type UsageRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewUsageRepository(db *sql.DB, log logger.Logger) *UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: log,
	}
}

// Increment adds n to the user's counter for the given day.
func (r *UsageRepository) Increment(ctx context.Context, userID string, day time.Time, n int) error {
	if n <= 0 {
		return errors.New("increment must be positive")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO usage_counters (user_id, day, count)
		 VALUES ($1, $2::date, $3)
		 ON CONFLICT (user_id, day)
		 DO UPDATE SET count = usage_counters.count + EXCLUDED.count`,
		userID, day, n,
	)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}

	return nil
}

// CountForDay returns the user's placements on one day. A missing row is
// zero.
func (r *UsageRepository) CountForDay(ctx context.Context, userID string, day time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count FROM usage_counters WHERE user_id = $1 AND day = $2::date`,
		userID, day,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query daily usage: %w", err)
	}
	return count, nil
}

// CountForPeriod sums the user's placements over [start, end).
func (r *UsageRepository) CountForPeriod(ctx context.Context, userID string, start, end time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM usage_counters
		 WHERE user_id = $1 AND day >= $2::date AND day < $3::date`,
		userID, start, end,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("query period usage: %w", err)
	}
	return count, nil
}
