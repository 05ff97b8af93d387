package models

import (
	"errors"
	"time"
)

// TransactionType is the business reason for a ledger entry.
type TransactionType string

const (
	TxEarn       TransactionType = "earn"
	TxSpend      TransactionType = "spend"
	TxAdjustment TransactionType = "adjustment"
	TxPurchase   TransactionType = "purchase"
)

// Transaction is an append-only credit ledger entry. The sum of a
// participant's transactions must equal its stored credits balance.
type Transaction struct {
	ID            string          `json:"id" db:"id"`
	ParticipantID string          `json:"participant_id" db:"participant_id"`
	LinkID        *string         `json:"link_id,omitempty" db:"link_id"`
	Type          TransactionType `json:"type" db:"type"`
	Amount        int             `json:"amount" db:"amount"`
	Description   string          `json:"description" db:"description"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Validate checks the transaction for invalid field values.
func (t *Transaction) Validate() error {
	if t.ParticipantID == "" {
		return errors.New("transaction participant_id is required")
	}
	switch t.Type {
	case TxEarn, TxSpend, TxAdjustment, TxPurchase:
	default:
		return errors.New("unknown transaction type")
	}
	if t.Amount == 0 {
		return errors.New("transaction amount must not be zero")
	}
	return nil
}
