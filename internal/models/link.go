package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LinkStatus is the lifecycle state of a placed reciprocal link.
type LinkStatus string

const (
	LinkActive  LinkStatus = "active"
	LinkRemoved LinkStatus = "removed"
	LinkBroken  LinkStatus = "broken"
)

// ExchangeLink is the immutable record of one placed reciprocal link.
// Only Status and LastVerifiedAt change after creation, via periodic
// re-verification.
type ExchangeLink struct {
	ID                  string         `json:"id" db:"id"`
	SourceParticipantID string         `json:"source_participant_id" db:"source_participant_id"`
	TargetParticipantID string         `json:"target_participant_id" db:"target_participant_id"`
	LinkingURL          string         `json:"linking_url" db:"linking_url"`
	TargetURL           string         `json:"target_url" db:"target_url"`
	AnchorText          string         `json:"anchor_text" db:"anchor_text"`
	Status              LinkStatus     `json:"status" db:"status"`
	CreditValue         int            `json:"credit_value" db:"credit_value"`
	LastVerifiedAt      *time.Time     `json:"last_verified_at,omitempty" db:"last_verified_at"`
	ScoringMetrics      ScoringMetrics `json:"scoring_metrics" db:"scoring_metrics"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
}

// Validate checks the link for invalid field values.
func (l *ExchangeLink) Validate() error {
	if l.SourceParticipantID == "" || l.TargetParticipantID == "" {
		return errors.New("link requires source and target participant ids")
	}
	if l.SourceParticipantID == l.TargetParticipantID {
		return errors.New("link source and target must differ")
	}
	if l.TargetURL == "" {
		return errors.New("link target_url is required")
	}
	if l.CreditValue < 0 {
		return errors.New("link credit_value must not be negative")
	}
	return nil
}

// ScoringMetrics snapshots the inputs that produced a match, kept on the
// link row for auditability.
type ScoringMetrics struct {
	Topicality    float64 `json:"topicality"`
	DRScore       float64 `json:"dr_score"`
	TrafficScore  float64 `json:"traffic_score"`
	RotationBonus float64 `json:"rotation_bonus"`
	Total         float64 `json:"total"`
}

// Value implements driver.Valuer.
func (m ScoringMetrics) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *ScoringMetrics) Scan(value any) error {
	if value == nil {
		*m = ScoringMetrics{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ScoringMetrics", value)
	}
	return json.Unmarshal(bytes, m)
}
