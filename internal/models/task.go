package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a directory-submission task.
type TaskStatus string

const (
	TaskPending       TaskStatus = "pending"
	TaskProcessing    TaskStatus = "processing"
	TaskCompleted     TaskStatus = "completed"
	TaskFailed        TaskStatus = "failed"
	TaskRequireManual TaskStatus = "require_manual"
)

// AnchorType classifies the anchor text of a backlink by manipulation risk.
type AnchorType string

const (
	AnchorBranded AnchorType = "branded"
	AnchorPartial AnchorType = "partial"
	AnchorGeneric AnchorType = "generic"
	AnchorExact   AnchorType = "exact"
)

// AnchorTypes lists every anchor type in allocation order.
var AnchorTypes = []AnchorType{AnchorBranded, AnchorPartial, AnchorGeneric, AnchorExact}

// BacklinkTask is one unit of directory-submission work produced by the
// drip scheduler and consumed by the worker cycle.
type BacklinkTask struct {
	ID             string         `json:"id" db:"id"`
	UserID         string         `json:"user_id" db:"user_id"`
	SiteID         string         `json:"site_id" db:"site_id"`
	ArticleID      string         `json:"article_id" db:"article_id"`
	PlatformID     *string        `json:"platform_id,omitempty" db:"platform_id"`
	WebsiteURL     string         `json:"website_url" db:"website_url"`
	Status         TaskStatus     `json:"status" db:"status"`
	AnchorType     AnchorType     `json:"anchor_type" db:"anchor_type"`
	ScheduledDate  time.Time      `json:"scheduled_date" db:"scheduled_date"`
	ScheduledFor   time.Time      `json:"scheduled_for" db:"scheduled_for"`
	SubmissionData SubmissionData `json:"submission_data" db:"submission_data"`
	RetryCount     int            `json:"retry_count" db:"retry_count"`
	FailureReason  *string        `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the task has reached a terminal state.
// require_manual is terminal unless a human requeues it.
func (t *BacklinkTask) Terminal() bool {
	switch t.Status {
	case TaskCompleted, TaskFailed, TaskRequireManual:
		return true
	default:
		return false
	}
}

// Validate checks the task for invalid field values.
func (t *BacklinkTask) Validate() error {
	if t.UserID == "" {
		return errors.New("task user_id is required")
	}
	if t.WebsiteURL == "" {
		return errors.New("task website_url is required")
	}
	switch t.AnchorType {
	case AnchorBranded, AnchorPartial, AnchorGeneric, AnchorExact:
	default:
		return fmt.Errorf("unknown anchor type %q", t.AnchorType)
	}
	return nil
}

// SubmissionData carries the anchor text and target metadata handed to the
// placement executor.
type SubmissionData struct {
	AnchorText  string `json:"anchor_text"`
	TargetTitle string `json:"target_title,omitempty"`
	TargetDesc  string `json:"target_desc,omitempty"`
}

// Value implements driver.Valuer.
func (d SubmissionData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *SubmissionData) Scan(value any) error {
	if value == nil {
		*d = SubmissionData{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into SubmissionData", value)
	}
	return json.Unmarshal(bytes, d)
}

// QueueStats summarizes a user's task queue by status.
type QueueStats struct {
	Pending       int `json:"pending"`
	Processing    int `json:"processing"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	RequireManual int `json:"require_manual"`
}
