// Package matching selects the best reciprocal link target for a source
// participant. The engine is a pure decision function over a candidate
// snapshot: it performs no writes, so callers may run it concurrently and
// apply the result inside their own transaction boundary.
package matching

import (
	"time"

	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
)

// Score weights. Topicality dominates so same-niche links win; the
// rotation bonus spreads links across the network instead of always
// rewarding the same high-DR sites.
const (
	weightTopicality = 0.4
	weightDR         = 0.2
	weightTraffic    = 0.2
	weightRotation   = 0.2

	// sameNicheScore and crossNicheScore are the topicality component for
	// matching and non-matching niches.
	sameNicheScore  = 1.0
	crossNicheScore = 0.2

	// trafficCeiling normalizes monthly traffic into [0,1].
	trafficCeiling = 100_000

	// rotationWindow is the time since a target last received a link at
	// which the rotation bonus saturates.
	rotationWindow = 24 * time.Hour
)

// Match is the engine's selection. CostInCredits is what the source
// spends; EarnInCredits is what the target is credited. Both come from
// the tier table and need not be equal.
type Match struct {
	TargetID      string
	CostInCredits int
	EarnInCredits int
	Score         float64
	Metrics       models.ScoringMetrics
}

// Engine scores candidates against a source participant.
type Engine struct {
	dailyReceiveCap int
	now             func() time.Time
}

// New creates an engine. now is injectable for deterministic tests; pass
// nil for time.Now.
func New(dailyReceiveCap int, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		dailyReceiveCap: dailyReceiveCap,
		now:             now,
	}
}

// FindBestMatch returns the highest-scoring eligible candidate, or nil when
// none qualifies. Ties break to the lowest participant ID so the result is
// stable across runs.
func (e *Engine) FindBestMatch(
	source *models.Participant,
	candidates []repository.Candidate,
	tiers models.CreditTiers,
) *Match {
	now := e.now()

	var best *Match
	var bestID string

	for i := range candidates {
		c := &candidates[i]
		cost, ok := e.eligible(source, c, tiers, now)
		if !ok {
			continue
		}

		metrics := e.score(source, &c.Participant, now)
		if best == nil ||
			metrics.Total > best.Score ||
			(metrics.Total == best.Score && c.ID < bestID) {
			best = &Match{
				TargetID:      c.ID,
				CostInCredits: cost,
				EarnInCredits: tiers.EarnFor(c.DomainRating),
				Score:         metrics.Total,
				Metrics:       metrics,
			}
			bestID = c.ID
		}
	}

	return best
}

// eligible applies the hard filters and returns the tier cost when the
// candidate qualifies.
func (e *Engine) eligible(
	source *models.Participant,
	c *repository.Candidate,
	tiers models.CreditTiers,
	now time.Time,
) (int, bool) {
	if !c.Eligible() {
		return 0, false
	}
	if c.DomainRating < source.MinDRPreference {
		return 0, false
	}
	if c.MonthlyTraffic < source.MinTrafficPreference {
		return 0, false
	}
	if e.dailyReceiveCap > 0 && c.LinksReceivedToday(now) >= e.dailyReceiveCap {
		return 0, false
	}
	// A reverse link target -> source would create a reciprocal pair that
	// is trivial to detect as manipulation; a forward link would be a
	// duplicate placement.
	if c.HasReverseLink || c.HasForwardLink {
		return 0, false
	}

	cost := tiers.SpendFor(c.DomainRating)
	if cost > source.Credits {
		return 0, false
	}

	return cost, true
}

func (e *Engine) score(source, target *models.Participant, now time.Time) models.ScoringMetrics {
	// An empty niche is uncategorized; two uncategorized sites are not a
	// topical match.
	topicality := crossNicheScore
	if source.Niche != "" && source.Niche == target.Niche {
		topicality = sameNicheScore
	}

	drScore := float64(target.DomainRating) / 100

	trafficScore := float64(target.MonthlyTraffic) / trafficCeiling
	if trafficScore > 1 {
		trafficScore = 1
	}

	rotationBonus := 1.0
	if target.LastLinkedAt != nil {
		rotationBonus = float64(now.Sub(*target.LastLinkedAt)) / float64(rotationWindow)
		if rotationBonus > 1 {
			rotationBonus = 1
		}
		if rotationBonus < 0 {
			rotationBonus = 0
		}
	}

	total := weightTopicality*topicality +
		weightDR*drScore +
		weightTraffic*trafficScore +
		weightRotation*rotationBonus

	return models.ScoringMetrics{
		Topicality:    topicality,
		DRScore:       drScore,
		TrafficScore:  trafficScore,
		RotationBonus: rotationBonus,
		Total:         total,
	}
}
