package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/testhelpers"
)

func newTaskRepo(t *testing.T) (*repository.TaskRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := testhelpers.NewMockDB(t)
	return repository.NewTaskRepository(db, testhelpers.NewTestLogger()), mock
}

func plannedTask(anchorType models.AnchorType) models.BacklinkTask {
	return models.BacklinkTask{
		UserID:     "user-1",
		SiteID:     "site-1",
		ArticleID:  "article-1",
		WebsiteURL: "https://example.com",
		AnchorType: anchorType,
	}
}

func TestTaskRepository_CreateBatch(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO backlink_tasks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO backlink_tasks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tasks := []models.BacklinkTask{
		plannedTask(models.AnchorBranded),
		plannedTask(models.AnchorGeneric),
	}
	require.NoError(t, repo.CreateBatch(context.Background(), tasks))

	for _, task := range tasks {
		assert.NotEmpty(t, task.ID)
		assert.Equal(t, models.TaskPending, task.Status)
	}
}

func TestTaskRepository_CreateBatchEmptyIsNoop(t *testing.T) {
	repo, _ := newTaskRepo(t)
	require.NoError(t, repo.CreateBatch(context.Background(), nil))
}

func TestTaskRepository_CreateBatchRejectsInvalid(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	tasks := []models.BacklinkTask{{UserID: "user-1", WebsiteURL: "https://example.com"}}
	err := repo.CreateBatch(context.Background(), tasks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown anchor type")
}

func TestTaskRepository_ClaimDueNothingPending(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectQuery("UPDATE backlink_tasks").WillReturnError(sql.ErrNoRows)

	_, err := repo.ClaimDue(context.Background(), "user-1", time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskRepository_Requeue(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectExec("UPDATE backlink_tasks SET status = 'pending'").
		WithArgs("task-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Requeue(context.Background(), "task-1", 3))
}

func TestTaskRepository_RequeueRetriesExhausted(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectExec("UPDATE backlink_tasks SET status = 'pending'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT retry_count FROM backlink_tasks").
		WillReturnRows(sqlmock.NewRows([]string{"retry_count"}).AddRow(5))

	err := repo.Requeue(context.Background(), "task-1", 3)
	assert.ErrorIs(t, err, repository.ErrRetriesExhausted)
}

func TestTaskRepository_RequeueMissingTask(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectExec("UPDATE backlink_tasks SET status = 'pending'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT retry_count FROM backlink_tasks").
		WillReturnError(sql.ErrNoRows)

	err := repo.Requeue(context.Background(), "missing", 3)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskRepository_Stats(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectQuery("SELECT status, COUNT").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).
			AddRow("completed", 10).
			AddRow("require_manual", 1))

	stats, err := repo.Stats(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Pending)
	assert.Equal(t, 10, stats.Completed)
	assert.Equal(t, 1, stats.RequireManual)
	assert.Equal(t, 0, stats.Failed)
}

func TestTaskRepository_AnchorHistogram(t *testing.T) {
	repo, mock := newTaskRepo(t)

	mock.ExpectQuery("SELECT anchor_type, COUNT").
		WithArgs("https://example.com").
		WillReturnRows(sqlmock.NewRows([]string{"anchor_type", "count"}).
			AddRow("branded", 8).
			AddRow("exact", 2))

	histogram, err := repo.AnchorHistogram(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, map[models.AnchorType]int{
		models.AnchorBranded: 8,
		models.AnchorExact:   2,
	}, histogram)
}

func TestTaskRepository_UsersWithDueTasks(t *testing.T) {
	repo, mock := newTaskRepo(t)

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT DISTINCT user_id FROM backlink_tasks").
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))

	users, err := repo.UsersWithDueTasks(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, users)
}
