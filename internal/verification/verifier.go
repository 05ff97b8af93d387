// Package verification implements the pluggable site ownership proofs.
// Every strategy is a pure function of (url/domain, token) to bool and
// fails closed: transport errors count as "not verified", never panic or
// propagate.
package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ranklite/backlink-engine/internal/logger"
)

// TokenLabel is the well-known name carried by both the meta tag and the
// DNS TXT record.
const TokenLabel = "ranklite-verification"

// maxBodyBytes caps how much of a homepage is read looking for the tag.
const maxBodyBytes = 1 << 20

// Verifier checks one ownership proof method.
type Verifier interface {
	Verify(ctx context.Context, siteURL, token string) bool
}

// MetaTagVerifier fetches the site homepage and looks for
// <meta name="ranklite-verification" content="<token>">.
type MetaTagVerifier struct {
	client *http.Client
	logger logger.Logger
}

func NewMetaTagVerifier(timeout time.Duration, log logger.Logger) *MetaTagVerifier {
	return &MetaTagVerifier{
		client: &http.Client{Timeout: timeout},
		logger: log,
	}
}

// Verify reports whether the homepage carries the verification meta tag.
func (v *MetaTagVerifier) Verify(ctx context.Context, siteURL, token string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		v.logger.Warn("Invalid verification URL", logger.String("url", siteURL), logger.Error(err))
		return false
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("Meta tag fetch failed", logger.String("url", siteURL), logger.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return false
	}

	return metaTagPattern(token).Match(body)
}

// metaTagPattern matches the verification tag with either attribute order.
func metaTagPattern(token string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(token)
	pattern := fmt.Sprintf(
		`<meta[^>]+(?:name=["']%[1]s["'][^>]+content=["']%[2]s["']|content=["']%[2]s["'][^>]+name=["']%[1]s["'])`,
		TokenLabel, quoted,
	)
	return regexp.MustCompile(pattern)
}

// DNSVerifier resolves the domain's TXT records through a DNS-over-HTTPS
// resolver and looks for "ranklite-verification=<token>".
type DNSVerifier struct {
	client      *http.Client
	resolverURL string
	logger      logger.Logger
}

func NewDNSVerifier(resolverURL string, timeout time.Duration, log logger.Logger) *DNSVerifier {
	return &DNSVerifier{
		client:      &http.Client{Timeout: timeout},
		resolverURL: resolverURL,
		logger:      log,
	}
}

// dohAnswer is the subset of the DoH JSON response we read.
type dohAnswer struct {
	Answer []struct {
		Data string `json:"data"`
	} `json:"Answer"`
}

// Verify reports whether the domain publishes the verification TXT record.
func (v *DNSVerifier) Verify(ctx context.Context, siteURL, token string) bool {
	domain := hostOf(siteURL)
	if domain == "" {
		return false
	}

	query := fmt.Sprintf("%s?name=%s&type=TXT", v.resolverURL, url.QueryEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Debug("DoH lookup failed", logger.String("domain", domain), logger.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var answer dohAnswer
	if decodeErr := decodeJSON(resp.Body, &answer); decodeErr != nil {
		return false
	}

	want := TokenLabel + "=" + token
	for _, record := range answer.Answer {
		if strings.Contains(strings.Trim(record.Data, `"`), want) {
			return true
		}
	}
	return false
}

// hostOf extracts the hostname from a URL or bare domain.
func hostOf(siteURL string) string {
	if !strings.Contains(siteURL, "://") {
		siteURL = "https://" + siteURL
	}
	u, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IntegrationStore reports whether a user already has a working CMS
// integration for a site. Backed by the CMS adapter layer outside this
// engine.
type IntegrationStore interface {
	HasIntegration(ctx context.Context, userID, siteID string) (bool, error)
}

// APIVerifier trusts an existing CMS integration as transitive proof of
// ownership. No network probe is needed.
type APIVerifier struct {
	integrations IntegrationStore
	userID       string
	siteID       string
}

func NewAPIVerifier(integrations IntegrationStore, userID, siteID string) *APIVerifier {
	return &APIVerifier{
		integrations: integrations,
		userID:       userID,
		siteID:       siteID,
	}
}

// Verify reports whether a CMS integration is on file. Errors fail closed.
func (v *APIVerifier) Verify(ctx context.Context, _, _ string) bool {
	if v.integrations == nil {
		return false
	}
	ok, err := v.integrations.HasIntegration(ctx, v.userID, v.siteID)
	if err != nil {
		return false
	}
	return ok
}

func decodeJSON(r io.Reader, dst any) error {
	return json.NewDecoder(io.LimitReader(r, maxBodyBytes)).Decode(dst)
}
