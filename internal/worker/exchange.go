// Package worker drives the engine's two work loops: the reciprocal link
// exchange cycle and the directory-submission task cycle. Recoverable
// outcomes surface as structured results, not errors, so one user's
// failure never halts another's cycle.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/ranklite/backlink-engine/internal/events"
	"github.com/ranklite/backlink-engine/internal/ledger"
	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/matching"
	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/placement"
	"github.com/ranklite/backlink-engine/internal/repository"
	"github.com/ranklite/backlink-engine/internal/throttle"
)

// Exchange cycle outcome statuses.
const (
	StatusPlaced           = "placed"
	StatusCapacityExceeded = "capacity_exceeded"
	StatusNoMatch          = "no_match"
	StatusPlacementFailed  = "placement_failed"
)

// ExchangeStats reports what one cycle saw.
type ExchangeStats struct {
	Participants         int `json:"participants"`
	CandidatesConsidered int `json:"candidates_considered"`
	Used                 int `json:"used"`
	Remaining            int `json:"remaining"`
}

// ExchangeResult is the outcome of one exchange cycle invocation.
type ExchangeResult struct {
	Status  string               `json:"status"`
	Reason  string               `json:"reason,omitempty"`
	NewLink *models.ExchangeLink `json:"new_link,omitempty"`
	Stats   ExchangeStats        `json:"stats"`
}

// ExchangeCycle runs one unit of reciprocal link exchange per invocation.
type ExchangeCycle struct {
	participants *repository.ParticipantRepository
	links        *repository.LinkRepository
	ledger       *ledger.Ledger
	matcher      *matching.Engine
	throttle     *throttle.Throttle
	plans        throttle.PlanSource
	placer       placement.Executor
	publisher    *events.Publisher
	logger       logger.Logger
}

func NewExchangeCycle(
	participants *repository.ParticipantRepository,
	links *repository.LinkRepository,
	creditLedger *ledger.Ledger,
	matcher *matching.Engine,
	velocity *throttle.Throttle,
	plans throttle.PlanSource,
	placer placement.Executor,
	publisher *events.Publisher,
	log logger.Logger,
) *ExchangeCycle {
	return &ExchangeCycle{
		participants: participants,
		links:        links,
		ledger:       creditLedger,
		matcher:      matcher,
		throttle:     velocity,
		plans:        plans,
		placer:       placer,
		publisher:    publisher,
		logger:       log,
	}
}

// Run executes one exchange cycle for the user: check capacity, pick the
// best target for the user's first exchangeable participant, place the
// link, and settle credits. At most one link is placed per invocation.
func (c *ExchangeCycle) Run(ctx context.Context, userID string) (*ExchangeResult, error) {
	limits, err := c.plans.LimitsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan limits: %w", err)
	}

	capacity, err := c.throttle.CheckDaily(ctx, userID, limits.DailyBacklinkCap)
	if err != nil {
		return nil, fmt.Errorf("check capacity: %w", err)
	}
	if !capacity.Allowed {
		return &ExchangeResult{
			Status: StatusCapacityExceeded,
			Reason: "daily backlink cap reached, try again tomorrow",
			Stats:  ExchangeStats{Used: capacity.Used, Remaining: capacity.Remaining},
		}, nil
	}

	sources, err := c.participants.ListExchangeable(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	stats := ExchangeStats{
		Participants: len(sources),
		Used:         capacity.Used,
		Remaining:    capacity.Remaining,
	}
	if len(sources) == 0 {
		return &ExchangeResult{
			Status: StatusNoMatch,
			Reason: "no active verified participants with auto-exchange enabled",
			Stats:  stats,
		}, nil
	}

	tiers, err := c.participants.LoadCreditTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credit tiers: %w", err)
	}

	for i := range sources {
		source := &sources[i]

		candidates, candErr := c.participants.ListCandidates(ctx, source.ID)
		if candErr != nil {
			return nil, fmt.Errorf("list candidates: %w", candErr)
		}
		stats.CandidatesConsidered += len(candidates)

		match := c.matcher.FindBestMatch(source, candidates, tiers)
		if match == nil {
			continue
		}

		result, placeErr := c.placeAndSettle(ctx, userID, source, match, candidates, tiers)
		if placeErr != nil {
			return nil, placeErr
		}
		result.Stats = stats
		return result, nil
	}

	return &ExchangeResult{
		Status: StatusNoMatch,
		Reason: "no eligible exchange target found",
		Stats:  stats,
	}, nil
}

func (c *ExchangeCycle) placeAndSettle(
	ctx context.Context,
	userID string,
	source *models.Participant,
	match *matching.Match,
	candidates []repository.Candidate,
	tiers models.CreditTiers,
) (*ExchangeResult, error) {
	target := findCandidate(candidates, match.TargetID)
	if target == nil {
		return nil, fmt.Errorf("matched target %s missing from candidate set", match.TargetID)
	}

	// The candidate snapshot may be stale by the time we place; re-check
	// just before the external call.
	exists, err := c.links.Exists(ctx, source.ID, target.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing link: %w", err)
	}
	if exists {
		return &ExchangeResult{
			Status: StatusNoMatch,
			Reason: "link to matched target already exists",
		}, nil
	}

	anchorText := brandAnchor(target.SiteURL)
	placed := c.placer.Place(ctx, source.SiteID, target.SiteURL, anchorText)
	if !placed.Success {
		c.logger.Warn("Exchange placement failed",
			logger.String("source_id", source.ID),
			logger.String("target_id", target.ID),
			logger.String("reason", placed.Reason),
		)
		return &ExchangeResult{
			Status: StatusPlacementFailed,
			Reason: placed.Reason,
		}, nil
	}

	link := &models.ExchangeLink{
		SourceParticipantID: source.ID,
		TargetParticipantID: target.ID,
		LinkingURL:          placed.LinkingURL,
		TargetURL:           target.SiteURL,
		AnchorText:          anchorText,
		Status:              models.LinkActive,
		CreditValue:         match.CostInCredits,
		ScoringMetrics:      match.Metrics,
	}

	// Both ledger legs and the link row commit together. If the ledger
	// write fails the link must not exist, even though the external
	// placement already happened; the reconciliation sweep picks up the
	// orphaned on-site link.
	settleErr := c.ledger.SettleExchange(ctx, source.ID, target.ID, linkID(link),
		match.CostInCredits, match.EarnInCredits,
		func(tx *sql.Tx) error {
			return c.links.Create(ctx, tx, link)
		},
	)
	if settleErr != nil {
		if errors.Is(settleErr, ledger.ErrDuplicateTransaction) {
			return nil, fmt.Errorf("exchange settlement replayed: %w", settleErr)
		}
		return nil, settleErr
	}

	if err := c.participants.RecordLinkReceived(ctx, target.ID, link.CreatedAt); err != nil {
		c.logger.Error("Failed to bump target link counter",
			logger.String("target_id", target.ID), logger.Error(err))
	}
	if err := c.throttle.IncrementUsage(ctx, userID, 1); err != nil {
		c.logger.Error("Failed to increment usage",
			logger.String("user_id", userID), logger.Error(err))
	}

	if err := c.publisher.Publish(ctx, events.Event{
		EventType: events.EventLinkPlaced,
		UserID:    userID,
		SubjectID: link.ID,
		Detail:    fmt.Sprintf("%s -> %s", source.SiteID, target.SiteURL),
	}); err != nil {
		c.logger.Warn("Failed to publish link event", logger.Error(err))
	}

	c.logger.Info("Exchange link placed",
		logger.String("source_id", source.ID),
		logger.String("target_id", target.ID),
		logger.Int("cost", match.CostInCredits),
		logger.Int("earn", match.EarnInCredits),
		logger.Float64("score", match.Score),
	)

	return &ExchangeResult{
		Status:  StatusPlaced,
		NewLink: link,
	}, nil
}

// linkID assigns the link's ID ahead of settlement so the ledger legs can
// reference it as their idempotency key.
func linkID(link *models.ExchangeLink) string {
	if link.ID == "" {
		link.ID = newID()
	}
	return link.ID
}

func findCandidate(candidates []repository.Candidate, id string) *models.Participant {
	for i := range candidates {
		if candidates[i].ID == id {
			return &candidates[i].Participant
		}
	}
	return nil
}

// brandAnchor derives a branded anchor text from the target site URL.
// Anchor copywriting quality is out of scope; the hostname is the safest
// default anchor.
func brandAnchor(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Hostname() == "" {
		return siteURL
	}
	return u.Hostname()
}
