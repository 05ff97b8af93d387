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

func newParticipantRepo(t *testing.T) (*repository.ParticipantRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := testhelpers.NewMockDB(t)
	return repository.NewParticipantRepository(db, testhelpers.NewTestLogger()), mock
}

func TestParticipantRepository_Create(t *testing.T) {
	repo, mock := newParticipantRepo(t)

	mock.ExpectExec("INSERT INTO participants").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &models.Participant{
		UserID:             "user-1",
		SiteID:             "site-1",
		SiteURL:            "https://example.com",
		DomainRating:       55,
		VerificationMethod: models.MethodMetaTag,
	}
	require.NoError(t, repo.Create(context.Background(), p))

	assert.NotEmpty(t, p.ID)
	assert.NotEmpty(t, p.VerificationToken)
	assert.Equal(t, models.VerificationPending, p.VerificationStatus)
	assert.False(t, p.LastResetAt.IsZero())
}

func TestParticipantRepository_CreateRejectsInvalid(t *testing.T) {
	repo, _ := newParticipantRepo(t)

	p := &models.Participant{
		UserID:             "user-1",
		SiteID:             "site-1",
		VerificationMethod: "carrier_pigeon",
	}
	err := repo.Create(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown verification method")
}

func TestParticipantRepository_GetByIDNotFound(t *testing.T) {
	repo, mock := newParticipantRepo(t)

	mock.ExpectQuery("SELECT(.+)FROM participants WHERE id").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestParticipantRepository_SetActiveNotFound(t *testing.T) {
	repo, mock := newParticipantRepo(t)

	mock.ExpectExec("UPDATE participants SET is_active").
		WithArgs(false, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), "missing", false)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestParticipantRepository_RecordLinkReceived(t *testing.T) {
	repo, mock := newParticipantRepo(t)

	now := time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)UPDATE participants SET.*daily_link_count`).
		WithArgs("p-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordLinkReceived(context.Background(), "p-1", now))
}

func TestParticipantRepository_LoadCreditTiersFallsBackToDefaults(t *testing.T) {
	repo, mock := newParticipantRepo(t)

	mock.ExpectQuery("FROM credit_tiers").
		WillReturnRows(sqlmock.NewRows([]string{"dr_min", "dr_max", "credit_price_earn", "credit_cost_spend"}))

	tiers, err := repo.LoadCreditTiers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultCreditTiers, tiers)
}

func TestParticipantRepository_LoadCreditTiersFromTable(t *testing.T) {
	repo, mock := newParticipantRepo(t)

	mock.ExpectQuery("FROM credit_tiers").
		WillReturnRows(sqlmock.NewRows([]string{"dr_min", "dr_max", "credit_price_earn", "credit_cost_spend"}).
			AddRow(0, 49, 1, 2).
			AddRow(50, 100, 3, 5))

	tiers, err := repo.LoadCreditTiers(context.Background())
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, 5, tiers.SpendFor(70))
	assert.Equal(t, 1, tiers.EarnFor(10))
}

func TestParticipantRepository_UsersWithAutoExchange(t *testing.T) {
	repo, mock := newParticipantRepo(t)

	mock.ExpectQuery("SELECT DISTINCT user_id FROM participants").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1").AddRow("user-2"))

	users, err := repo.UsersWithAutoExchange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2"}, users)
}

func TestParticipantRepository_ListIDs(t *testing.T) {
	repo, mock := newParticipantRepo(t)

	mock.ExpectQuery("SELECT id FROM participants ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := repo.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}
