package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/testhelpers"
)

func newLinkRepo(t *testing.T) (*repository.LinkRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := testhelpers.NewMockDB(t)
	return repository.NewLinkRepository(db, testhelpers.NewTestLogger()), mock
}

func TestLinkRepository_Create(t *testing.T) {
	repo, mock := newLinkRepo(t)

	mock.ExpectExec("INSERT INTO exchange_links").
		WillReturnResult(sqlmock.NewResult(0, 1))

	link := &models.ExchangeLink{
		SourceParticipantID: "src",
		TargetParticipantID: "tgt",
		LinkingURL:          "https://src.example.com/partners",
		TargetURL:           "https://tgt.example.com",
		AnchorText:          "tgt.example.com",
		CreditValue:         4,
	}
	require.NoError(t, repo.Create(context.Background(), nil, link))

	assert.NotEmpty(t, link.ID)
	assert.Equal(t, models.LinkActive, link.Status)
	assert.False(t, link.CreatedAt.IsZero())
}

func TestLinkRepository_CreateRejectsSelfLink(t *testing.T) {
	repo, _ := newLinkRepo(t)

	link := &models.ExchangeLink{
		SourceParticipantID: "same",
		TargetParticipantID: "same",
		TargetURL:           "https://example.com",
	}
	err := repo.Create(context.Background(), nil, link)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source and target must differ")
}

func TestLinkRepository_Exists(t *testing.T) {
	repo, mock := newLinkRepo(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("src", "tgt").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), "src", "tgt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLinkRepository_UpdateStatusNotFound(t *testing.T) {
	repo, mock := newLinkRepo(t)

	mock.ExpectExec("UPDATE exchange_links SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", models.LinkBroken, time.Now())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
