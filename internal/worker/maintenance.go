package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ranklite/backlink-engine/internal/ledger"
	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/models"
	"github.com/ranklite/backlink-engine/internal/repository"
)

// maxPageBytes caps how much of a linking page is read during
// re-verification.
const maxPageBytes = 1 << 20

// LinkChecker reports whether a placed link is still live on its page.
type LinkChecker interface {
	StillLive(ctx context.Context, linkingURL, targetURL string) bool
}

// HTTPLinkChecker fetches the linking page and looks for the target URL.
// Transport errors fail open: an unreachable page is not proof the link was
// removed, so the link stays active until a fetch succeeds without it.
type HTTPLinkChecker struct {
	client *http.Client
	logger logger.Logger
}

func NewHTTPLinkChecker(timeout time.Duration, log logger.Logger) *HTTPLinkChecker {
	return &HTTPLinkChecker{
		client: &http.Client{Timeout: timeout},
		logger: log,
	}
}

// StillLive reports whether the linking page still references the target.
func (c *HTTPLinkChecker) StillLive(ctx context.Context, linkingURL, targetURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, linkingURL, nil)
	if err != nil {
		return true
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Link check fetch failed",
			logger.String("linking_url", linkingURL), logger.Error(err))
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return false
	}
	if resp.StatusCode != http.StatusOK {
		return true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return true
	}

	return strings.Contains(string(body), targetURL)
}

// MaintenanceStats reports what one maintenance sweep did.
type MaintenanceStats struct {
	LinksChecked int `json:"links_checked"`
	LinksBroken  int `json:"links_broken"`
	Reconciled   int `json:"reconciled"`
	Drifted      int `json:"drifted"`
}

// Maintenance runs the periodic sweeps: re-verifying placed links and
// reconciling credit balances against the transaction log.
type Maintenance struct {
	participants *repository.ParticipantRepository
	links        *repository.LinkRepository
	ledger       *ledger.Ledger
	checker      LinkChecker
	logger       logger.Logger
	now          func() time.Time
}

func NewMaintenance(
	participants *repository.ParticipantRepository,
	links *repository.LinkRepository,
	creditLedger *ledger.Ledger,
	checker LinkChecker,
	log logger.Logger,
	now func() time.Time,
) *Maintenance {
	if now == nil {
		now = time.Now
	}
	return &Maintenance{
		participants: participants,
		links:        links,
		ledger:       creditLedger,
		checker:      checker,
		logger:       log,
		now:          now,
	}
}

// ReverifyLinks re-checks active links not verified since the cutoff and
// marks removed ones broken. Credits are never clawed back for broken
// links; the target simply stops being favored by rotation.
func (m *Maintenance) ReverifyLinks(ctx context.Context, maxAge time.Duration, limit int) (MaintenanceStats, error) {
	var stats MaintenanceStats

	cutoff := m.now().Add(-maxAge)
	links, err := m.links.ListActiveOlderThan(ctx, cutoff, limit)
	if err != nil {
		return stats, fmt.Errorf("list stale links: %w", err)
	}

	for i := range links {
		link := &links[i]
		stats.LinksChecked++

		status := models.LinkActive
		if !m.checker.StillLive(ctx, link.LinkingURL, link.TargetURL) {
			status = models.LinkBroken
			stats.LinksBroken++
			m.logger.Warn("Placed link no longer live",
				logger.String("link_id", link.ID),
				logger.String("linking_url", link.LinkingURL),
			)
		}

		if err := m.links.UpdateStatus(ctx, link.ID, status, m.now()); err != nil {
			return stats, fmt.Errorf("update link %s: %w", link.ID, err)
		}
	}

	return stats, nil
}

// ReconcileLedgers checks every participant's stored balance against its
// transaction log sum. Drift is logged and counted, never auto-corrected.
func (m *Maintenance) ReconcileLedgers(ctx context.Context) (MaintenanceStats, error) {
	var stats MaintenanceStats

	ids, err := m.participants.ListIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("list participants: %w", err)
	}

	for _, id := range ids {
		stats.Reconciled++
		if reconcileErr := m.ledger.Reconcile(ctx, id); reconcileErr != nil {
			stats.Drifted++
			m.logger.Error("Ledger reconciliation failed",
				logger.String("participant_id", id),
				logger.Error(reconcileErr),
			)
		}
	}

	return stats, nil
}
