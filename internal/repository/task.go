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

// ErrRetriesExhausted is returned when a failed task has no retries left.
var ErrRetriesExhausted = errors.New("task retries exhausted")

const taskColumns = `
	id, user_id, site_id, article_id, platform_id, website_url, status,
	anchor_type, scheduled_date, scheduled_for, submission_data,
	retry_count, failure_reason, created_at, updated_at`

// TaskRepository persists backlink submission tasks.
type TaskRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewTaskRepository(db *sql.DB, log logger.Logger) *TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: log,
	}
}

// CreateBatch inserts a planned batch of tasks in one transaction.
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []models.BacklinkTask) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO backlink_tasks (
			id, user_id, site_id, article_id, platform_id, website_url,
			status, anchor_type, scheduled_date, scheduled_for,
			submission_data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		task.ID = uuid.New().String()
		task.Status = models.TaskPending
		task.CreatedAt = now
		task.UpdatedAt = now

		if validateErr := task.Validate(); validateErr != nil {
			return fmt.Errorf("validate task: %w", validateErr)
		}

		if _, execErr := tx.ExecContext(ctx, query,
			task.ID, task.UserID, task.SiteID, task.ArticleID, task.PlatformID, task.WebsiteURL,
			task.Status, task.AnchorType, task.ScheduledDate, task.ScheduledFor,
			task.SubmissionData, task.CreatedAt, task.UpdatedAt,
		); execErr != nil {
			return fmt.Errorf("insert task: %w", execErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit task batch: %w", err)
	}

	r.logger.Info("Created task batch",
		logger.Int("count", len(tasks)),
		logger.String("user_id", tasks[0].UserID),
	)

	return nil
}

// ClaimDue atomically claims the single oldest due pending task for the
// user and marks it processing. SKIP LOCKED keeps concurrent worker cycles
// from claiming the same row. Returns ErrNotFound when nothing is due.
func (r *TaskRepository) ClaimDue(ctx context.Context, userID string, now time.Time) (*models.BacklinkTask, error) {
	query := `
		UPDATE backlink_tasks SET status = 'processing', updated_at = NOW()
		WHERE id = (
			SELECT id FROM backlink_tasks
			WHERE user_id = $1
			  AND status = 'pending'
			  AND scheduled_for <= $2
			ORDER BY scheduled_for
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING` + taskColumns

	var t models.BacklinkTask
	err := r.db.QueryRowContext(ctx, query, userID, now).Scan(
		&t.ID, &t.UserID, &t.SiteID, &t.ArticleID, &t.PlatformID, &t.WebsiteURL, &t.Status,
		&t.AnchorType, &t.ScheduledDate, &t.ScheduledFor, &t.SubmissionData,
		&t.RetryCount, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	return &t, nil
}

// Complete marks a processing task completed.
func (r *TaskRepository) Complete(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.TaskCompleted, nil)
}

// Fail marks a task failed with a reason and bumps its retry count.
func (r *TaskRepository) Fail(ctx context.Context, id, reason string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE backlink_tasks
		 SET status = 'failed', failure_reason = $1, retry_count = retry_count + 1, updated_at = NOW()
		 WHERE id = $2`,
		reason, id,
	)
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return requireRow(result)
}

// RequireManual marks a task as needing human submission.
func (r *TaskRepository) RequireManual(ctx context.Context, id, reason string) error {
	return r.setStatus(ctx, id, models.TaskRequireManual, &reason)
}

// Requeue moves a failed or require_manual task back to pending. Failed
// tasks are bounded by maxRetries; manual tasks may always be requeued by
// a human.
func (r *TaskRepository) Requeue(ctx context.Context, id string, maxRetries int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE backlink_tasks SET status = 'pending', updated_at = NOW()
		 WHERE id = $1
		   AND (status = 'require_manual' OR (status = 'failed' AND retry_count <= $2))`,
		id, maxRetries,
	)
	if err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing task from one out of retries.
		var retryCount int
		scanErr := r.db.QueryRowContext(ctx,
			`SELECT retry_count FROM backlink_tasks WHERE id = $1`, id,
		).Scan(&retryCount)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return ErrNotFound
		}
		if scanErr != nil {
			return fmt.Errorf("query task retries: %w", scanErr)
		}
		return ErrRetriesExhausted
	}

	return nil
}

// Stats aggregates the user's queue by status.
func (r *TaskRepository) Stats(ctx context.Context, userID string) (*models.QueueStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM backlink_tasks WHERE user_id = $1 GROUP BY status`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query queue stats: %w", err)
	}
	defer rows.Close()

	var stats models.QueueStats
	for rows.Next() {
		var status models.TaskStatus
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("scan queue stats: %w", scanErr)
		}
		switch status {
		case models.TaskPending:
			stats.Pending = count
		case models.TaskProcessing:
			stats.Processing = count
		case models.TaskCompleted:
			stats.Completed = count
		case models.TaskFailed:
			stats.Failed = count
		case models.TaskRequireManual:
			stats.RequireManual = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue stats: %w", err)
	}

	return &stats, nil
}

// AnchorHistogram returns the anchor-type distribution of every task ever
// planned for a target URL. The scheduler uses it to steer the cumulative
// mix toward the safe ratios.
func (r *TaskRepository) AnchorHistogram(ctx context.Context, websiteURL string) (map[models.AnchorType]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT anchor_type, COUNT(*) FROM backlink_tasks
		 WHERE website_url = $1 GROUP BY anchor_type`,
		websiteURL,
	)
	if err != nil {
		return nil, fmt.Errorf("query anchor histogram: %w", err)
	}
	defer rows.Close()

	histogram := make(map[models.AnchorType]int)
	for rows.Next() {
		var anchorType models.AnchorType
		var count int
		if scanErr := rows.Scan(&anchorType, &count); scanErr != nil {
			return nil, fmt.Errorf("scan anchor histogram: %w", scanErr)
		}
		histogram[anchorType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anchor histogram: %w", err)
	}

	return histogram, nil
}

// UsersWithDueTasks returns the distinct users holding at least one pending
// task whose scheduled time has passed. The cycle daemon fans out over this
// list.
func (r *TaskRepository) UsersWithDueTasks(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM backlink_tasks
		 WHERE status = 'pending' AND scheduled_for <= $1`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("query users with due tasks: %w", err)
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

func (r *TaskRepository) setStatus(ctx context.Context, id string, status models.TaskStatus, reason *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE backlink_tasks SET status = $1, failure_reason = $2, updated_at = NOW() WHERE id = $3`,
		status, reason, id,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return requireRow(result)
}
