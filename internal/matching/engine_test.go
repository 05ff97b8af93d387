package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func testSource() *models.Participant {
	return &models.Participant{
		ID:                 "source-1",
		UserID:             "user-1",
		SiteID:             "site-1",
		Niche:              "fitness",
		DomainRating:       60,
		Credits:            10,
		VerificationStatus: models.VerificationVerified,
		IsActive:           true,
	}
}

func candidate(id string, mutate func(*repository.Candidate)) repository.Candidate {
	c := repository.Candidate{
		Participant: models.Participant{
			ID:                 id,
			UserID:             "user-" + id,
			SiteID:             "site-" + id,
			SiteURL:            "https://" + id + ".example.com",
			Niche:              "fitness",
			DomainRating:       50,
			MonthlyTraffic:     10_000,
			VerificationStatus: models.VerificationVerified,
			IsActive:           true,
			LastResetAt:        testNow,
		},
	}
	if mutate != nil {
		mutate(&c)
	}
	return c
}

func TestFindBestMatch_TopicalityDominates(t *testing.T) {
	engine := New(3, fixedNow)

	linkedRecently := testNow.Add(-1 * time.Hour)
	linkedLongAgo := testNow.Add(-48 * time.Hour)

	// Target A: high DR, same niche, not linked recently. Target B: lower
	// DR, different niche, linked an hour ago. A must win on topicality
	// even before DR is considered.
	candidates := []repository.Candidate{
		candidate("target-a", func(c *repository.Candidate) {
			c.DomainRating = 80
			c.MonthlyTraffic = 50_000
			c.LastLinkedAt = &linkedLongAgo
		}),
		candidate("target-b", func(c *repository.Candidate) {
			c.DomainRating = 40
			c.Niche = "cooking"
			c.MonthlyTraffic = 80_000
			c.LastLinkedAt = &linkedRecently
		}),
	}

	match := engine.FindBestMatch(testSource(), candidates, models.DefaultCreditTiers)
	require.NotNil(t, match)
	assert.Equal(t, "target-a", match.TargetID)
	// DR 80 tier prices spend and earn separately.
	assert.Equal(t, 10, match.CostInCredits)
	assert.Equal(t, 8, match.EarnInCredits)
	assert.InDelta(t, 1.0, match.Metrics.Topicality, 0.001)
}

func TestFindBestMatch_SkipsUnaffordable(t *testing.T) {
	engine := New(3, fixedNow)
	source := testSource()
	source.Credits = 3

	candidates := []repository.Candidate{
		candidate("expensive", func(c *repository.Candidate) {
			c.DomainRating = 90 // costs 10
		}),
		candidate("affordable", func(c *repository.Candidate) {
			c.DomainRating = 30 // costs 2
		}),
	}

	match := engine.FindBestMatch(source, candidates, models.DefaultCreditTiers)
	require.NotNil(t, match)
	assert.Equal(t, "affordable", match.TargetID)
	assert.Equal(t, 2, match.CostInCredits)
}

func TestFindBestMatch_SkipsExistingLinks(t *testing.T) {
	engine := New(3, fixedNow)

	candidates := []repository.Candidate{
		candidate("forward", func(c *repository.Candidate) { c.HasForwardLink = true }),
		candidate("reverse", func(c *repository.Candidate) { c.HasReverseLink = true }),
	}

	assert.Nil(t, engine.FindBestMatch(testSource(), candidates, models.DefaultCreditTiers))
}

func TestFindBestMatch_SkipsBelowPreferences(t *testing.T) {
	engine := New(3, fixedNow)
	source := testSource()
	source.MinDRPreference = 60
	source.MinTrafficPreference = 20_000

	candidates := []repository.Candidate{
		candidate("low-dr", func(c *repository.Candidate) {
			c.DomainRating = 50
			c.MonthlyTraffic = 50_000
		}),
		candidate("low-traffic", func(c *repository.Candidate) {
			c.DomainRating = 70
			c.MonthlyTraffic = 5_000
		}),
	}

	assert.Nil(t, engine.FindBestMatch(source, candidates, models.DefaultCreditTiers))
}

func TestFindBestMatch_RespectsDailyReceiveCap(t *testing.T) {
	engine := New(3, fixedNow)

	candidates := []repository.Candidate{
		candidate("saturated", func(c *repository.Candidate) {
			c.DailyLinkCount = 3
			c.LastResetAt = testNow
		}),
	}
	assert.Nil(t, engine.FindBestMatch(testSource(), candidates, models.DefaultCreditTiers))

	// The same counter from yesterday reads as zero today.
	candidates = []repository.Candidate{
		candidate("stale-counter", func(c *repository.Candidate) {
			c.DailyLinkCount = 3
			c.LastResetAt = testNow.AddDate(0, 0, -1)
		}),
	}
	assert.NotNil(t, engine.FindBestMatch(testSource(), candidates, models.DefaultCreditTiers))
}

func TestFindBestMatch_SkipsUnverifiedAndInactive(t *testing.T) {
	engine := New(3, fixedNow)

	candidates := []repository.Candidate{
		candidate("pending", func(c *repository.Candidate) {
			c.VerificationStatus = models.VerificationPending
		}),
		candidate("inactive", func(c *repository.Candidate) {
			c.IsActive = false
		}),
	}

	assert.Nil(t, engine.FindBestMatch(testSource(), candidates, models.DefaultCreditTiers))
}

func TestFindBestMatch_TieBreaksToLowestID(t *testing.T) {
	engine := New(3, fixedNow)

	// Identical candidates except ID; order in the slice must not matter.
	candidates := []repository.Candidate{
		candidate("b-target", nil),
		candidate("a-target", nil),
	}

	match := engine.FindBestMatch(testSource(), candidates, models.DefaultCreditTiers)
	require.NotNil(t, match)
	assert.Equal(t, "a-target", match.TargetID)
}

func TestFindBestMatch_EmptyCandidates(t *testing.T) {
	engine := New(3, fixedNow)
	assert.Nil(t, engine.FindBestMatch(testSource(), nil, models.DefaultCreditTiers))
}

func TestScore_EmptyNicheIsNotTopical(t *testing.T) {
	engine := New(3, fixedNow)

	source := testSource()
	source.Niche = ""
	target := candidate("uncategorized", func(c *repository.Candidate) {
		c.Niche = ""
	})

	metrics := engine.score(source, &target.Participant, testNow)
	assert.InDelta(t, crossNicheScore, metrics.Topicality, 0.001)
}

func TestScore_NeverLinkedGetsFullRotationBonus(t *testing.T) {
	engine := New(3, fixedNow)

	fresh := candidate("fresh", nil)
	justLinked := candidate("just-linked", func(c *repository.Candidate) {
		linked := testNow.Add(-time.Minute)
		c.LastLinkedAt = &linked
	})

	freshMetrics := engine.score(testSource(), &fresh.Participant, testNow)
	linkedMetrics := engine.score(testSource(), &justLinked.Participant, testNow)

	assert.InDelta(t, 1.0, freshMetrics.RotationBonus, 0.001)
	assert.Less(t, linkedMetrics.RotationBonus, 0.1)
	assert.Greater(t, freshMetrics.Total, linkedMetrics.Total)
}
