// Package repository implements PostgreSQL persistence for the backlink
// engine entities. All queries use database/sql with positional parameters.
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

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const participantColumns = `
	id, user_id, site_id, site_url, domain_rating, monthly_traffic, niche,
	verification_status, verification_method, verification_token,
	is_active, auto_exchange_enabled, credits,
	min_dr_preference, min_traffic_preference, niche_preference,
	daily_link_count, last_reset_at, last_linked_at, domain_created_at,
	created_at, updated_at`

// ParticipantRepository persists exchange participants.
type ParticipantRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewParticipantRepository(db *sql.DB, log logger.Logger) *ParticipantRepository {
	return &ParticipantRepository{
		db:     db,
		logger: log,
	}
}

// Create inserts a new participant. The verification token is generated
// here, once, and is immutable afterwards.
func (r *ParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	p.ID = uuid.New().String()
	p.VerificationToken = uuid.New().String()
	p.VerificationStatus = models.VerificationPending
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	p.LastResetAt = p.CreatedAt

	if err := p.Validate(); err != nil {
		return fmt.Errorf("validate participant: %w", err)
	}

	query := `
		INSERT INTO participants (
			id, user_id, site_id, site_url, domain_rating, monthly_traffic,
			niche, verification_status, verification_method, verification_token,
			is_active, auto_exchange_enabled, credits,
			min_dr_preference, min_traffic_preference, niche_preference,
			daily_link_count, last_reset_at, domain_created_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.UserID, p.SiteID, p.SiteURL, p.DomainRating, p.MonthlyTraffic,
		p.Niche, p.VerificationStatus, p.VerificationMethod, p.VerificationToken,
		p.IsActive, p.AutoExchangeEnabled, p.Credits,
		p.MinDRPreference, p.MinTrafficPreference, p.NichePreference,
		p.DailyLinkCount, p.LastResetAt, p.DomainCreatedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}

	return nil
}

// GetByID returns one participant.
func (r *ParticipantRepository) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	query := `SELECT` + participantColumns + ` FROM participants WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// ListByUser returns all participants owned by a user.
func (r *ParticipantRepository) ListByUser(ctx context.Context, userID string) ([]models.Participant, error) {
	query := `SELECT` + participantColumns + ` FROM participants WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// ListExchangeable returns a user's active, verified participants with
// auto-exchange enabled.
func (r *ParticipantRepository) ListExchangeable(ctx context.Context, userID string) ([]models.Participant, error) {
	query := `SELECT` + participantColumns + `
		FROM participants
		WHERE user_id = $1
		  AND is_active
		  AND auto_exchange_enabled
		  AND verification_status = 'verified'
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query exchangeable participants: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// Candidate is a participant snapshot extended with the link-existence
// flags the matching engine filters on.
type Candidate struct {
	models.Participant
	HasForwardLink bool `db:"has_forward_link"`
	HasReverseLink bool `db:"has_reverse_link"`
}

// ListCandidates returns every active verified participant other than the
// source (and not owned by the source's user), annotated with whether a
// link already exists in either direction.
func (r *ParticipantRepository) ListCandidates(ctx context.Context, sourceID string) ([]Candidate, error) {
	query := `
		SELECT` + participantColumns + `,
			EXISTS (
				SELECT 1 FROM exchange_links
				WHERE source_participant_id = $1
				  AND target_participant_id = p.id
				  AND status = 'active'
			) AS has_forward_link,
			EXISTS (
				SELECT 1 FROM exchange_links
				WHERE source_participant_id = p.id
				  AND target_participant_id = $1
				  AND status = 'active'
			) AS has_reverse_link
		FROM participants p
		WHERE p.id <> $1
		  AND p.is_active
		  AND p.verification_status = 'verified'
		  AND p.user_id <> (SELECT user_id FROM participants WHERE id = $1)
	`

	rows, err := r.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if scanErr := scanParticipant(rows, &c.Participant, &c.HasForwardLink, &c.HasReverseLink); scanErr != nil {
			return nil, fmt.Errorf("scan candidate: %w", scanErr)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	return candidates, nil
}

// ListIDs returns every participant ID, for the reconciliation sweep.
func (r *ParticipantRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM participants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query participant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("scan participant id: %w", scanErr)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participant ids: %w", err)
	}

	return ids, nil
}

// UsersWithAutoExchange returns the distinct users owning at least one
// exchangeable participant. The cycle daemon fans out over this list.
func (r *ParticipantRepository) UsersWithAutoExchange(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM participants
		 WHERE is_active AND auto_exchange_enabled AND verification_status = 'verified'`,
	)
	if err != nil {
		return nil, fmt.Errorf("query auto-exchange users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if scanErr := rows.Scan(&userID); scanErr != nil {
			return nil, fmt.Errorf("scan user id: %w", scanErr)
		}
		users = append(users, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// SetVerificationStatus updates the verification state machine.
func (r *ParticipantRepository) SetVerificationStatus(
	ctx context.Context,
	id string,
	status models.VerificationStatus,
) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE participants SET verification_status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("update verification status: %w", err)
	}
	return requireRow(result)
}

// SetActive activates or deactivates a participant. Participants are never
// deleted.
func (r *ParticipantRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE participants SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id,
	)
	if err != nil {
		return fmt.Errorf("update active flag: %w", err)
	}
	return requireRow(result)
}

// RecordLinkReceived bumps the target's daily receive counter and
// last_linked_at. The day rollover happens inside the same atomic update:
// a counter last reset before today restarts at 1.
func (r *ParticipantRepository) RecordLinkReceived(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE participants SET
			daily_link_count = CASE
				WHEN last_reset_at::date = $2::date THEN daily_link_count + 1
				ELSE 1
			END,
			last_reset_at = CASE
				WHEN last_reset_at::date = $2::date THEN last_reset_at
				ELSE $2
			END,
			last_linked_at = $2,
			updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("record link received: %w", err)
	}
	return requireRow(result)
}

// LoadCreditTiers reads the tier table, falling back to the defaults when
// the table is empty.
func (r *ParticipantRepository) LoadCreditTiers(ctx context.Context) (models.CreditTiers, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT dr_min, dr_max, credit_price_earn, credit_cost_spend
		 FROM credit_tiers ORDER BY dr_min`,
	)
	if err != nil {
		return nil, fmt.Errorf("query credit tiers: %w", err)
	}
	defer rows.Close()

	var tiers models.CreditTiers
	for rows.Next() {
		var t models.CreditTier
		if scanErr := rows.Scan(&t.DRMin, &t.DRMax, &t.CreditPriceEarn, &t.CreditCostSpend); scanErr != nil {
			return nil, fmt.Errorf("scan credit tier: %w", scanErr)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit tiers: %w", err)
	}

	if len(tiers) == 0 {
		return models.DefaultCreditTiers, nil
	}
	return tiers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner, p *models.Participant, extra ...any) error {
	dest := []any{
		&p.ID, &p.UserID, &p.SiteID, &p.SiteURL, &p.DomainRating, &p.MonthlyTraffic, &p.Niche,
		&p.VerificationStatus, &p.VerificationMethod, &p.VerificationToken,
		&p.IsActive, &p.AutoExchangeEnabled, &p.Credits,
		&p.MinDRPreference, &p.MinTrafficPreference, &p.NichePreference,
		&p.DailyLinkCount, &p.LastResetAt, &p.LastLinkedAt, &p.DomainCreatedAt,
		&p.CreatedAt, &p.UpdatedAt,
	}
	dest = append(dest, extra...)
	return row.Scan(dest...)
}

func (r *ParticipantRepository) scanOne(row *sql.Row) (*models.Participant, error) {
	var p models.Participant
	err := scanParticipant(row, &p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan participant: %w", err)
	}
	return &p, nil
}

func (r *ParticipantRepository) scanAll(rows *sql.Rows) ([]models.Participant, error) {
	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := scanParticipant(rows, &p); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return participants, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
