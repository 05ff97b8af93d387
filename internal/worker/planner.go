package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/scheduler"
	"github.com/ranklite/backlink-engine/internal/throttle"
)

// genericAnchors is the rotation of low-risk generic anchor texts.
var genericAnchors = []string{
	"click here",
	"learn more",
	"visit website",
	"read more",
	"this site",
}

// PlanRequest describes a backlink plan for one target URL.
type PlanRequest struct {
	UserID     string  `json:"user_id"`
	SiteID     string  `json:"site_id"`
	ArticleID  string  `json:"article_id"`
	PlatformID *string `json:"platform_id,omitempty"`
	WebsiteURL string  `json:"website_url"`
	Quantity   int     `json:"quantity"`
	BrandName  string  `json:"brand_name"`
	Keyword    string  `json:"keyword"`
	// DomainCreatedAt feeds the young-domain dampening rule. Supplied by
	// the site registry.
	DomainCreatedAt *time.Time `json:"domain_created_at,omitempty"`
}

// Plan is a generated backlink plan.
type Plan struct {
	Requested int                       `json:"requested"`
	Effective int                       `json:"effective"`
	Tasks     []models.BacklinkTask     `json:"tasks"`
	Schedule  []scheduler.Slot          `json:"schedule"`
	Mix       map[models.AnchorType]int `json:"mix"`
}

// Planner turns plan requests into persisted task batches.
type Planner struct {
	tasks    *repository.TaskRepository
	throttle *throttle.Throttle
	plans    throttle.PlanSource
	drip     *scheduler.Planner
	logger   logger.Logger
	now      func() time.Time
}

func NewPlanner(
	tasks *repository.TaskRepository,
	velocity *throttle.Throttle,
	plans throttle.PlanSource,
	drip *scheduler.Planner,
	log logger.Logger,
	now func() time.Time,
) *Planner {
	if now == nil {
		now = time.Now
	}
	return &Planner{
		tasks:    tasks,
		throttle: velocity,
		plans:    plans,
		drip:     drip,
		logger:   log,
		now:      now,
	}
}

// GeneratePlan dampens the requested quantity, checks monthly capacity,
// computes the anchor mix against the target's existing histogram, builds
// the drip schedule, and persists the resulting task batch. Dampening runs
// before scheduling so the drip plan and the cap checks agree on the
// effective count.
func (p *Planner) GeneratePlan(ctx context.Context, req PlanRequest) (*Plan, error) {
	if req.Quantity <= 0 {
		return nil, scheduler.ErrInvalidPlan
	}

	limits, err := p.plans.LimitsFor(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan limits: %w", err)
	}

	effective := p.throttle.DampenForDomainAge(req.Quantity, req.DomainCreatedAt)

	monthly, err := p.throttle.CheckMonthly(ctx, req.UserID, limits.MonthlyBacklinkCap)
	if err != nil {
		return nil, fmt.Errorf("check monthly capacity: %w", err)
	}
	if !monthly.Allowed {
		return nil, fmt.Errorf("monthly backlink cap reached (%d used)", monthly.Used)
	}
	if effective > monthly.Remaining {
		effective = monthly.Remaining
	}

	history, err := p.tasks.AnchorHistogram(ctx, req.WebsiteURL)
	if err != nil {
		return nil, fmt.Errorf("load anchor history: %w", err)
	}

	slots, err := p.drip.Plan(effective, limits.DailyBacklinkCap, p.now(), history)
	if err != nil {
		return nil, fmt.Errorf("build drip schedule: %w", err)
	}

	tasks := make([]models.BacklinkTask, len(slots))
	for i, slot := range slots {
		tasks[i] = models.BacklinkTask{
			UserID:        req.UserID,
			SiteID:        req.SiteID,
			ArticleID:     req.ArticleID,
			PlatformID:    req.PlatformID,
			WebsiteURL:    req.WebsiteURL,
			AnchorType:    slot.AnchorType,
			ScheduledDate: slot.ScheduledDate,
			ScheduledFor:  slot.ScheduledFor,
			SubmissionData: models.SubmissionData{
				AnchorText: anchorTextFor(slot.AnchorType, req.BrandName, req.Keyword, i),
			},
		}
	}

	if err := p.tasks.CreateBatch(ctx, tasks); err != nil {
		return nil, fmt.Errorf("persist plan: %w", err)
	}

	p.logger.Info("Generated backlink plan",
		logger.String("user_id", req.UserID),
		logger.String("website_url", req.WebsiteURL),
		logger.Int("requested", req.Quantity),
		logger.Int("effective", effective),
	)

	return &Plan{
		Requested: req.Quantity,
		Effective: effective,
		Tasks:     tasks,
		Schedule:  slots,
		Mix:       AnchorMixOf(tasks),
	}, nil
}

// AnchorMixOf tallies the anchor types of a task batch.
func AnchorMixOf(tasks []models.BacklinkTask) map[models.AnchorType]int {
	mix := make(map[models.AnchorType]int)
	for i := range tasks {
		mix[tasks[i].AnchorType]++
	}
	return mix
}

// anchorTextFor builds a minimal anchor text per type. Copy quality is a
// non-goal; these are deliberately plain.
func anchorTextFor(anchorType models.AnchorType, brand, keyword string, i int) string {
	switch anchorType {
	case models.AnchorBranded:
		return brand
	case models.AnchorPartial:
		if keyword == "" {
			return brand
		}
		return brand + " " + keyword
	case models.AnchorExact:
		if keyword == "" {
			return brand
		}
		return keyword
	default:
		return genericAnchors[i%len(genericAnchors)]
	}
}
