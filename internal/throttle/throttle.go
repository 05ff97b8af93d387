// Package throttle enforces daily and monthly placement ceilings per user
// and dampens requested volume for young domains. Checks are pure lookups;
// the only mutation is a single atomic counter increment.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
)

// youngDomainAge is the domain age below which requested volume is reduced.
const youngDomainAge = 6 * 30 * 24 * time.Hour

// youngDomainFactor is the share of the requested count a young domain is
// allowed to schedule.
const youngDomainFactor = 0.7

// PlanLimits is the caller's plan/tier capacity, supplied by the external
// plan lookup collaborator.
type PlanLimits struct {
	DailyBacklinkCap   int `json:"daily_backlink_cap"`
	MonthlyBacklinkCap int `json:"monthly_backlink_cap"`
}

// PlanSource resolves a user's plan limits.
type PlanSource interface {
	LimitsFor(ctx context.Context, userID string) (PlanLimits, error)
}

// Throttle performs capacity checks against the usage counters.
type Throttle struct {
	usage  *repository.UsageRepository
	logger logger.Logger
	now    func() time.Time
}

// New creates a throttle. now is injectable for tests; pass nil for
// time.Now.
func New(usage *repository.UsageRepository, log logger.Logger, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{
		usage:  usage,
		logger: log,
		now:    now,
	}
}

// CheckDaily reports whether the user has capacity left today.
func (t *Throttle) CheckDaily(ctx context.Context, userID string, dailyCap int) (models.Capacity, error) {
	used, err := t.usage.CountForDay(ctx, userID, t.now())
	if err != nil {
		return models.Capacity{}, fmt.Errorf("check daily limit: %w", err)
	}
	return capacity(used, dailyCap), nil
}

// CheckMonthly reports whether the user has capacity left this billing
// period (calendar month).
func (t *Throttle) CheckMonthly(ctx context.Context, userID string, monthlyCap int) (models.Capacity, error) {
	start, end := monthBounds(t.now())
	used, err := t.usage.CountForPeriod(ctx, userID, start, end)
	if err != nil {
		return models.Capacity{}, fmt.Errorf("check monthly limit: %w", err)
	}
	return capacity(used, monthlyCap), nil
}

// IncrementUsage records n successful placements for today.
func (t *Throttle) IncrementUsage(ctx context.Context, userID string, n int) error {
	if err := t.usage.Increment(ctx, userID, t.now(), n); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// DampenForDomainAge reduces the requested backlink count by 30% for
// domains younger than six months. It is applied before scheduling so the
// drip plan and the cap checks always agree on the effective count. A nil
// creation time is treated as an established domain.
func (t *Throttle) DampenForDomainAge(requested int, domainCreatedAt *time.Time) int {
	if requested <= 0 || domainCreatedAt == nil {
		return requested
	}
	if t.now().Sub(*domainCreatedAt) >= youngDomainAge {
		return requested
	}

	effective := int(float64(requested) * youngDomainFactor)
	t.logger.Debug("Dampened request for young domain",
		logger.Int("requested", requested),
		logger.Int("effective", effective),
	)
	return effective
}

func capacity(used, limit int) models.Capacity {
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return models.Capacity{
		Allowed:   used < limit,
		Used:      used,
		Remaining: remaining,
	}
}

func monthBounds(now time.Time) (time.Time, time.Time) {
	year, month, _ := now.UTC().Date()
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
