package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ranklite/backlink-engine/internal/events"
	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/placement"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/throttle"
)

// Task cycle outcome statuses.
const (
	StatusIdle          = "idle"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
	StatusRequireManual = "require_manual"
)

// PlatformPolicy reports whether a submission platform permits automated
// placement. Backed by the platform registry outside this engine.
type PlatformPolicy interface {
	AllowsAutomation(ctx context.Context, platformID string) (bool, error)
}

// AllowAll is the default policy when no platform registry is wired.
type AllowAll struct{}

// AllowsAutomation always returns true.
func (AllowAll) AllowsAutomation(context.Context, string) (bool, error) {
	return true, nil
}

// TaskResult is the outcome of one worker cycle invocation.
type TaskResult struct {
	Status string               `json:"status"`
	Reason string               `json:"reason,omitempty"`
	Task   *models.BacklinkTask `json:"task,omitempty"`
}

// TaskWorker processes at most one due backlink task per cycle. Single-task
// cycles keep each invocation fast and cheap to trigger frequently, and
// retries are driven externally rather than looped within one call.
type TaskWorker struct {
	tasks      *repository.TaskRepository
	throttle   *throttle.Throttle
	policy     PlatformPolicy
	placer     placement.Executor
	publisher  *events.Publisher
	maxRetries int
	logger     logger.Logger
	now        func() time.Time
}

func NewTaskWorker(
	tasks *repository.TaskRepository,
	velocity *throttle.Throttle,
	policy PlatformPolicy,
	placer placement.Executor,
	publisher *events.Publisher,
	maxRetries int,
	log logger.Logger,
	now func() time.Time,
) *TaskWorker {
	if policy == nil {
		policy = AllowAll{}
	}
	if now == nil {
		now = time.Now
	}
	return &TaskWorker{
		tasks:      tasks,
		throttle:   velocity,
		policy:     policy,
		placer:     placer,
		publisher:  publisher,
		maxRetries: maxRetries,
		logger:     log,
		now:        now,
	}
}

// RunCycle claims the oldest due task for the user and drives it to a
// terminal or retryable state.
func (w *TaskWorker) RunCycle(ctx context.Context, userID string) (*TaskResult, error) {
	task, err := w.tasks.ClaimDue(ctx, userID, w.now())
	if errors.Is(err, repository.ErrNotFound) {
		return &TaskResult{Status: StatusIdle}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	log := w.logger.With(
		logger.String("task_id", task.ID),
		logger.String("user_id", userID),
	)

	if task.PlatformID != nil {
		allowed, policyErr := w.policy.AllowsAutomation(ctx, *task.PlatformID)
		if policyErr != nil {
			// Unknown policy fails closed into manual handling.
			allowed = false
		}
		if !allowed {
			reason := "platform does not permit automated submission"
			if markErr := w.tasks.RequireManual(ctx, task.ID, reason); markErr != nil {
				return nil, fmt.Errorf("mark task manual: %w", markErr)
			}
			task.Status = models.TaskRequireManual
			log.Info("Task routed to manual submission")
			return &TaskResult{Status: StatusRequireManual, Reason: reason, Task: task}, nil
		}
	}

	placed := w.placer.Place(ctx, task.SiteID, task.WebsiteURL, task.SubmissionData.AnchorText)
	if !placed.Success {
		if failErr := w.tasks.Fail(ctx, task.ID, placed.Reason); failErr != nil {
			return nil, fmt.Errorf("mark task failed: %w", failErr)
		}
		task.Status = models.TaskFailed
		task.RetryCount++

		w.publishTaskEvent(ctx, events.EventTaskFailed, task, placed.Reason)
		log.Warn("Task placement failed",
			logger.String("reason", placed.Reason),
			logger.Int("retry_count", task.RetryCount),
		)
		return &TaskResult{Status: StatusFailed, Reason: placed.Reason, Task: task}, nil
	}

	if err := w.tasks.Complete(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("mark task completed: %w", err)
	}
	task.Status = models.TaskCompleted

	if err := w.throttle.IncrementUsage(ctx, userID, 1); err != nil {
		log.Error("Failed to increment usage", logger.Error(err))
	}
	w.publishTaskEvent(ctx, events.EventTaskCompleted, task, "")

	log.Info("Task completed", logger.String("website_url", task.WebsiteURL))
	return &TaskResult{Status: StatusCompleted, Task: task}, nil
}

// Requeue moves a failed or manual task back to pending, bounded by the
// retry budget for failed tasks.
func (w *TaskWorker) Requeue(ctx context.Context, taskID string) error {
	return w.tasks.Requeue(ctx, taskID, w.maxRetries)
}

// QueueStats returns the user's queue broken down by status.
func (w *TaskWorker) QueueStats(ctx context.Context, userID string) (*models.QueueStats, error) {
	return w.tasks.Stats(ctx, userID)
}

func (w *TaskWorker) publishTaskEvent(ctx context.Context, eventType events.EventType, task *models.BacklinkTask, detail string) {
	if err := w.publisher.Publish(ctx, events.Event{
		EventType: eventType,
		UserID:    task.UserID,
		SubjectID: task.ID,
		Detail:    detail,
	}); err != nil {
		w.logger.Warn("Failed to publish task event", logger.Error(err))
	}
}

func newID() string {
	return uuid.New().String()
}
