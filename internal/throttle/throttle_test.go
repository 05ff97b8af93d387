package throttle_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/testhelpers"
	"github.com/ranklite/backlink-engine/internal/throttle"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func newThrottle(t *testing.T) (*throttle.Throttle, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := testhelpers.NewMockDB(t)
	usage := repository.NewUsageRepository(db, testhelpers.NewTestLogger())
	return throttle.New(usage, testhelpers.NewTestLogger(), func() time.Time { return testNow }), mock
}

func TestCheckDaily_UnderCap(t *testing.T) {
	th, mock := newThrottle(t)

	mock.ExpectQuery("SELECT count FROM usage_counters").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	capacity, err := th.CheckDaily(context.Background(), "user-1", 5)
	require.NoError(t, err)
	assert.True(t, capacity.Allowed)
	assert.Equal(t, 3, capacity.Used)
	assert.Equal(t, 2, capacity.Remaining)
}

func TestCheckDaily_CapReached(t *testing.T) {
	th, mock := newThrottle(t)

	mock.ExpectQuery("SELECT count FROM usage_counters").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	capacity, err := th.CheckDaily(context.Background(), "user-1", 5)
	require.NoError(t, err)
	assert.False(t, capacity.Allowed)
	assert.Zero(t, capacity.Remaining)
}

func TestCheckDaily_NoUsageRow(t *testing.T) {
	th, mock := newThrottle(t)

	mock.ExpectQuery("SELECT count FROM usage_counters").
		WillReturnError(sql.ErrNoRows)

	capacity, err := th.CheckDaily(context.Background(), "user-1", 5)
	require.NoError(t, err)
	assert.True(t, capacity.Allowed)
	assert.Zero(t, capacity.Used)
	assert.Equal(t, 5, capacity.Remaining)
}

func TestCheckMonthly_QueriesCalendarMonth(t *testing.T) {
	th, mock := newThrottle(t)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(count\), 0\) FROM usage_counters`).
		WithArgs("user-1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(42))

	capacity, err := th.CheckMonthly(context.Background(), "user-1", 100)
	require.NoError(t, err)
	assert.True(t, capacity.Allowed)
	assert.Equal(t, 42, capacity.Used)
	assert.Equal(t, 58, capacity.Remaining)
}

func TestIncrementUsage(t *testing.T) {
	th, mock := newThrottle(t)

	mock.ExpectExec("INSERT INTO usage_counters").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, th.IncrementUsage(context.Background(), "user-1", 1))
}

func TestDampenForDomainAge(t *testing.T) {
	th, _ := newThrottle(t)

	young := testNow.AddDate(0, -2, 0)
	old := testNow.AddDate(-1, 0, 0)

	tests := []struct {
		name      string
		requested int
		createdAt *time.Time
		want      int
	}{
		{"young domain dampened", 100, &young, 70},
		{"young domain floors", 5, &young, 3},
		{"established domain untouched", 100, &old, 100},
		{"unknown age untouched", 100, nil, 100},
		{"zero requested", 0, &young, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, th.DampenForDomainAge(tt.requested, tt.createdAt))
		})
	}
}

func TestStaticPlanSource(t *testing.T) {
	source := throttle.StaticPlanSource{Limits: throttle.PlanLimits{
		DailyBacklinkCap:   5,
		MonthlyBacklinkCap: 100,
	}}

	limits, err := source.LimitsFor(context.Background(), "anyone")
	require.NoError(t, err)
	assert.Equal(t, 5, limits.DailyBacklinkCap)
	assert.Equal(t, 100, limits.MonthlyBacklinkCap)
}
