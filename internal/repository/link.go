package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/models"
)

const linkColumns = `
	id, source_participant_id, target_participant_id, linking_url, target_url,
	anchor_text, status, credit_value, last_verified_at, scoring_metrics, created_at`

// LinkRepository persists exchange links.
type LinkRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewLinkRepository(db *sql.DB, log logger.Logger) *LinkRepository {
	return &LinkRepository{
		db:     db,
		logger: log,
	}
}

// Create inserts an immutable link record. When tx is non-nil the insert
// joins the caller's transaction so the link and its ledger settlement
// commit together.
func (r *LinkRepository) Create(ctx context.Context, tx *sql.Tx, link *models.ExchangeLink) error {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	if link.Status == "" {
		link.Status = models.LinkActive
	}
	link.CreatedAt = time.Now()

	if err := link.Validate(); err != nil {
		return fmt.Errorf("validate link: %w", err)
	}

	query := `
		INSERT INTO exchange_links (
			id, source_participant_id, target_participant_id, linking_url,
			target_url, anchor_text, status, credit_value, scoring_metrics, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	args := []any{
		link.ID, link.SourceParticipantID, link.TargetParticipantID, link.LinkingURL,
		link.TargetURL, link.AnchorText, link.Status, link.CreditValue,
		link.ScoringMetrics, link.CreatedAt,
	}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}

	return nil
}

// GetByID returns one link.
func (r *LinkRepository) GetByID(ctx context.Context, id string) (*models.ExchangeLink, error) {
	query := `SELECT` + linkColumns + ` FROM exchange_links WHERE id = $1`

	var l models.ExchangeLink
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.SourceParticipantID, &l.TargetParticipantID, &l.LinkingURL, &l.TargetURL,
		&l.AnchorText, &l.Status, &l.CreditValue, &l.LastVerifiedAt, &l.ScoringMetrics, &l.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query link: %w", err)
	}

	return &l, nil
}

// Exists reports whether an active link source -> target exists.
func (r *LinkRepository) Exists(ctx context.Context, sourceID, targetID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM exchange_links
			WHERE source_participant_id = $1
			  AND target_participant_id = $2
			  AND status = 'active'
		)`,
		sourceID, targetID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query link existence: %w", err)
	}
	return exists, nil
}

// UpdateStatus records the outcome of a periodic re-verification pass.
// Status and last_verified_at are the only mutable link fields.
func (r *LinkRepository) UpdateStatus(
	ctx context.Context,
	id string,
	status models.LinkStatus,
	verifiedAt time.Time,
) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE exchange_links SET status = $1, last_verified_at = $2 WHERE id = $3`,
		status, verifiedAt, id,
	)
	if err != nil {
		return fmt.Errorf("update link status: %w", err)
	}
	return requireRow(result)
}

// ListActiveOlderThan returns active links whose last verification is
// older than the cutoff, for the re-verification sweep.
func (r *LinkRepository) ListActiveOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.ExchangeLink, error) {
	query := `SELECT` + linkColumns + `
		FROM exchange_links
		WHERE status = 'active'
		  AND (last_verified_at IS NULL OR last_verified_at < $1)
		ORDER BY last_verified_at NULLS FIRST
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale links: %w", err)
	}
	defer rows.Close()

	var links []models.ExchangeLink
	for rows.Next() {
		var l models.ExchangeLink
		if scanErr := rows.Scan(
			&l.ID, &l.SourceParticipantID, &l.TargetParticipantID, &l.LinkingURL, &l.TargetURL,
			&l.AnchorText, &l.Status, &l.CreditValue, &l.LastVerifiedAt, &l.ScoringMetrics, &l.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan link: %w", scanErr)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}

	return links, nil
}
