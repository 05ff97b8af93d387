// Package models defines the entities persisted by the backlink engine.
// Every row loaded from storage is validated at the boundary before use.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// VerificationStatus is the ownership verification state of a participant.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// VerificationMethod selects the ownership proof strategy.
type VerificationMethod string

const (
	MethodMetaTag   VerificationMethod = "meta_tag"
	MethodDNSRecord VerificationMethod = "dns_record"
	MethodAPI       VerificationMethod = "api"
)

// Participant is a site enrolled in the backlink exchange.
type Participant struct {
	ID                   string             `json:"id" db:"id"`
	UserID               string             `json:"user_id" db:"user_id"`
	SiteID               string             `json:"site_id" db:"site_id"`
	SiteURL              string             `json:"site_url" db:"site_url"`
	DomainRating         int                `json:"domain_rating" db:"domain_rating"`
	MonthlyTraffic       int                `json:"monthly_traffic" db:"monthly_traffic"`
	Niche                string             `json:"niche" db:"niche"`
	VerificationStatus   VerificationStatus `json:"verification_status" db:"verification_status"`
	VerificationMethod   VerificationMethod `json:"verification_method" db:"verification_method"`
	VerificationToken    string             `json:"-" db:"verification_token"`
	IsActive             bool               `json:"is_active" db:"is_active"`
	AutoExchangeEnabled  bool               `json:"auto_exchange_enabled" db:"auto_exchange_enabled"`
	Credits              int                `json:"credits" db:"credits"`
	MinDRPreference      int                `json:"min_dr_preference" db:"min_dr_preference"`
	MinTrafficPreference int                `json:"min_traffic_preference" db:"min_traffic_preference"`
	NichePreference      StringArray        `json:"niche_preference" db:"niche_preference"`
	DailyLinkCount       int                `json:"daily_link_count" db:"daily_link_count"`
	LastResetAt          time.Time          `json:"last_reset_at" db:"last_reset_at"`
	LastLinkedAt         *time.Time         `json:"last_linked_at,omitempty" db:"last_linked_at"`
	DomainCreatedAt      *time.Time         `json:"domain_created_at,omitempty" db:"domain_created_at"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
}

// Validate checks the participant for invalid field values.
func (p *Participant) Validate() error {
	if p.UserID == "" {
		return errors.New("participant user_id is required")
	}
	if p.SiteID == "" {
		return errors.New("participant site_id is required")
	}
	if p.DomainRating < 0 || p.DomainRating > 100 {
		return fmt.Errorf("domain_rating %d out of range [0,100]", p.DomainRating)
	}
	if p.MonthlyTraffic < 0 {
		return errors.New("monthly_traffic must not be negative")
	}
	switch p.VerificationMethod {
	case MethodMetaTag, MethodDNSRecord, MethodAPI:
	default:
		return fmt.Errorf("unknown verification method %q", p.VerificationMethod)
	}
	return nil
}

// Eligible reports whether the participant may receive or place links.
func (p *Participant) Eligible() bool {
	return p.IsActive && p.VerificationStatus == VerificationVerified
}

// LinksReceivedToday returns the daily receive counter, treating a counter
// last reset before today as zero. The stored row is not mutated; the
// rollover itself happens in a single SQL update at increment time.
func (p *Participant) LinksReceivedToday(now time.Time) int {
	if !sameDay(p.LastResetAt, now) {
		return 0
	}
	return p.DailyLinkCount
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// StringArray is a JSON-encoded string slice column.
type StringArray []string

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *StringArray) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into StringArray", value)
	}
	return json.Unmarshal(bytes, a)
}
