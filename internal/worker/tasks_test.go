package worker_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/placement"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/testhelpers"
	"github.com/ranklite/backlink-engine/internal/throttle"
	"github.com/ranklite/backlink-engine/internal/worker"
)

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

var taskCols = []string{
	"id", "user_id", "site_id", "article_id", "platform_id", "website_url", "status",
	"anchor_type", "scheduled_date", "scheduled_for", "submission_data",
	"retry_count", "failure_reason", "created_at", "updated_at",
}

func claimedTaskRow(platformID any) *sqlmock.Rows {
	return sqlmock.NewRows(taskCols).AddRow(
		"task-1", "user-1", "site-1", "article-1", platformID, "https://example.com",
		"processing", "branded", testNow, testNow, []byte(`{"anchor_text":"Acme"}`),
		0, nil, testNow, testNow,
	)
}

func newTaskWorker(t *testing.T, placer placement.Executor, policy worker.PlatformPolicy) (*worker.TaskWorker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := testhelpers.NewMockDB(t)
	log := testhelpers.NewTestLogger()
	tasks := repository.NewTaskRepository(db, log)
	velocity := throttle.New(repository.NewUsageRepository(db, log), log, fixedNow)
	return worker.NewTaskWorker(tasks, velocity, policy, placer, nil, 3, log, fixedNow), mock
}

type denyPolicy struct{}

func (denyPolicy) AllowsAutomation(context.Context, string) (bool, error) {
	return false, nil
}

type brokenPolicy struct{}

func (brokenPolicy) AllowsAutomation(context.Context, string) (bool, error) {
	return false, assert.AnError
}

func TestTaskWorker_IdleWhenNothingDue(t *testing.T) {
	w, mock := newTaskWorker(t, &placement.Recorder{}, nil)

	mock.ExpectQuery("UPDATE backlink_tasks").WillReturnError(sql.ErrNoRows)

	result, err := w.RunCycle(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusIdle, result.Status)
	assert.Nil(t, result.Task)
}

func TestTaskWorker_CompletesPlacedTask(t *testing.T) {
	recorder := &placement.Recorder{Results: []placement.Result{
		{Success: true, LinkingURL: "https://directory.example.com/listing/42"},
	}}
	w, mock := newTaskWorker(t, recorder, nil)

	mock.ExpectQuery("UPDATE backlink_tasks").WillReturnRows(claimedTaskRow(nil))
	mock.ExpectExec("UPDATE backlink_tasks SET status").
		WithArgs("completed", nil, "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO usage_counters").
		WithArgs("user-1", testNow, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := w.RunCycle(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusCompleted, result.Status)
	assert.Equal(t, models.TaskCompleted, result.Task.Status)
	assert.Equal(t, []string{"site-1->https://example.com"}, recorder.Calls)
}

func TestTaskWorker_MarksFailedOnPlacementRejection(t *testing.T) {
	recorder := &placement.Recorder{Results: []placement.Result{
		{Success: false, Reason: "directory rejected the listing"},
	}}
	w, mock := newTaskWorker(t, recorder, nil)

	mock.ExpectQuery("UPDATE backlink_tasks").WillReturnRows(claimedTaskRow(nil))
	mock.ExpectExec("UPDATE backlink_tasks").
		WithArgs("directory rejected the listing", "task-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := w.RunCycle(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusFailed, result.Status)
	assert.Equal(t, "directory rejected the listing", result.Reason)
	assert.Equal(t, models.TaskFailed, result.Task.Status)
	assert.Equal(t, 1, result.Task.RetryCount)
}

func TestTaskWorker_RoutesToManualWhenPolicyDenies(t *testing.T) {
	recorder := &placement.Recorder{Results: []placement.Result{{Success: true}}}
	w, mock := newTaskWorker(t, recorder, denyPolicy{})

	mock.ExpectQuery("UPDATE backlink_tasks").WillReturnRows(claimedTaskRow("platform-9"))
	mock.ExpectExec("UPDATE backlink_tasks SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := w.RunCycle(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusRequireManual, result.Status)
	assert.Equal(t, models.TaskRequireManual, result.Task.Status)
	// The executor must never be called for a denied platform.
	assert.Empty(t, recorder.Calls)
}

func TestTaskWorker_PolicyErrorFailsClosed(t *testing.T) {
	recorder := &placement.Recorder{Results: []placement.Result{{Success: true}}}
	w, mock := newTaskWorker(t, recorder, brokenPolicy{})

	mock.ExpectQuery("UPDATE backlink_tasks").WillReturnRows(claimedTaskRow("platform-9"))
	mock.ExpectExec("UPDATE backlink_tasks SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := w.RunCycle(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusRequireManual, result.Status)
	assert.Empty(t, recorder.Calls)
}

func TestTaskWorker_TaskWithoutPlatformSkipsPolicy(t *testing.T) {
	recorder := &placement.Recorder{Results: []placement.Result{
		{Success: true, LinkingURL: "https://directory.example.com/listing/7"},
	}}
	// The deny-all policy must not be consulted when the task has no
	// platform.
	w, mock := newTaskWorker(t, recorder, denyPolicy{})

	mock.ExpectQuery("UPDATE backlink_tasks").WillReturnRows(claimedTaskRow(nil))
	mock.ExpectExec("UPDATE backlink_tasks SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO usage_counters").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := w.RunCycle(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, worker.StatusCompleted, result.Status)
	assert.Len(t, recorder.Calls, 1)
}
