package models

import "time"

// UsageDay is the per-user placement counter for one calendar day.
// Keying by (user_id, day) keeps increments to a single atomic upsert and
// avoids rollover side effects in read paths; monthly usage is a sum over
// the billing period's rows.
type UsageDay struct {
	UserID string    `json:"user_id" db:"user_id"`
	Day    time.Time `json:"day" db:"day"`
	Count  int       `json:"count" db:"count"`
}

// Capacity is the result of a throttle check.
type Capacity struct {
	Allowed   bool `json:"allowed"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
}
