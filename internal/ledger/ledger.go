// Package ledger owns participant credit balances and the append-only
// transaction log. Every balance change in the engine goes through Apply or
// SettleExchange; both guarantee the balance update and the log append
// commit together or not at all.
package ledger

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

var (
	// ErrLedgerWrite means the economic effect did not take place. Callers
	// must not record the link or advance task state.
	ErrLedgerWrite = errors.New("ledger write failed")
	// ErrDuplicateTransaction means this logical event was already applied.
	ErrDuplicateTransaction = errors.New("transaction already applied")
	// ErrParticipantMissing means the participant row does not exist.
	ErrParticipantMissing = errors.New("participant not found")
)

// Ledger applies credit transactions against PostgreSQL.
type Ledger struct {
	db     *sql.DB
	logger logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: log,
	}
}

// Apply records one transaction and returns the new balance. When linkID is
// set, the unique (link_id, participant_id, type) index makes replays of
// the same logical event fail with ErrDuplicateTransaction instead of
// double-applying.
func (l *Ledger) Apply(
	ctx context.Context,
	participantID string,
	amount int,
	txType models.TransactionType,
	linkID *string,
	description string,
) (int, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", ErrLedgerWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	balance, err := l.applyLeg(ctx, tx, participantID, amount, txType, linkID, description)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrLedgerWrite, err)
	}

	l.logger.Info("Applied ledger transaction",
		logger.String("participant_id", participantID),
		logger.String("type", string(txType)),
		logger.Int("amount", amount),
		logger.Int("balance", balance),
	)

	return balance, nil
}

// SettleExchange applies the spend leg for the source and the earn leg for
// the target of one link placement inside a single transaction, and runs
// fn (typically the link insert) in the same transaction. A crash can no
// longer leave one leg of the economy recorded without the other. The two
// legs are priced independently from the tier table; when spend exceeds
// earn the difference drains out of the economy.
func (l *Ledger) SettleExchange(
	ctx context.Context,
	sourceID, targetID, linkID string,
	spend, earn int,
	fn func(tx *sql.Tx) error,
) error {
	if spend <= 0 || earn <= 0 {
		return fmt.Errorf("%w: settlement amounts must be positive", ErrLedgerWrite)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrLedgerWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := l.applyLeg(ctx, tx, sourceID, -spend, models.TxSpend, &linkID,
		"reciprocal link placed"); err != nil {
		return err
	}
	if _, err := l.applyLeg(ctx, tx, targetID, earn, models.TxEarn, &linkID,
		"reciprocal link received"); err != nil {
		return err
	}

	if fn != nil {
		if err := fn(tx); err != nil {
			return fmt.Errorf("%w: %w", ErrLedgerWrite, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrLedgerWrite, err)
	}

	l.logger.Info("Settled exchange",
		logger.String("source_id", sourceID),
		logger.String("target_id", targetID),
		logger.String("link_id", linkID),
		logger.Int("spend", spend),
		logger.Int("earn", earn),
	)

	return nil
}

func (l *Ledger) applyLeg(
	ctx context.Context,
	tx *sql.Tx,
	participantID string,
	amount int,
	txType models.TransactionType,
	linkID *string,
	description string,
) (int, error) {
	entry := models.Transaction{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		LinkID:        linkID,
		Type:          txType,
		Amount:        amount,
		Description:   description,
		CreatedAt:     time.Now(),
	}
	if err := entry.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, participant_id, link_id, type, amount, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (link_id, participant_id, type) WHERE link_id IS NOT NULL DO NOTHING`,
		entry.ID, entry.ParticipantID, entry.LinkID, entry.Type, entry.Amount,
		entry.Description, entry.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert transaction: %w", ErrLedgerWrite, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %w", ErrLedgerWrite, err)
	}
	if inserted == 0 {
		return 0, ErrDuplicateTransaction
	}

	var balance int
	err = tx.QueryRowContext(ctx,
		`UPDATE participants SET credits = credits + $1, updated_at = NOW()
		 WHERE id = $2 RETURNING credits`,
		amount, participantID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %w", ErrLedgerWrite, ErrParticipantMissing)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: update balance: %w", ErrLedgerWrite, err)
	}

	return balance, nil
}

// Balance reads the stored balance. It is not re-derived from the log;
// Reconcile asserts the two agree.
func (l *Ledger) Balance(ctx context.Context, participantID string) (int, error) {
	var balance int
	err := l.db.QueryRowContext(ctx,
		`SELECT credits FROM participants WHERE id = $1`,
		participantID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrParticipantMissing
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

// Reconcile verifies that the transaction log sums to the stored balance.
// The periodic reconciliation job calls this per participant.
func (l *Ledger) Reconcile(ctx context.Context, participantID string) error {
	var balance, logSum int
	err := l.db.QueryRowContext(ctx,
		`SELECT p.credits, COALESCE(SUM(t.amount), 0)
		 FROM participants p
		 LEFT JOIN transactions t ON t.participant_id = p.id
		 WHERE p.id = $1
		 GROUP BY p.credits`,
		participantID,
	).Scan(&balance, &logSum)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrParticipantMissing
	}
	if err != nil {
		return fmt.Errorf("query reconciliation: %w", err)
	}

	if balance != logSum {
		return fmt.Errorf("ledger drift for participant %s: balance %d, log sum %d",
			participantID, balance, logSum)
	}
	return nil
}
