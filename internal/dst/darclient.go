package dst

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rezkam/reconcile/internal/domain"
)

// DARClient implements AddressCleanser over Denmark's address register
// lookup service (original_source's addresses.py dar_helper), turning a
// free-text address string into the canonical identifier DST stores.
// Lookups are retried with backoff since DAR is a collaborator outside
// this service's control and a single timeout should not fail a unit's
// whole reconciliation.
type DARClient struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries uint
}

var _ AddressCleanser = (*DARClient)(nil)

// NewDARClient builds a DARClient with a bounded per-request timeout and
// a small retry budget for transient failures.
func NewDARClient(baseURL string, timeout time.Duration) *DARClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DARClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		MaxRetries: 3,
	}
}

type darMatch struct {
	ID string `json:"id"`
}

// Cleanse looks up raw in the DAR "adresser" autocomplete endpoint and
// returns the first match's UUID. A lookup that finds no match is
// domain.ErrCleansingFailed. Network errors and non-4xx error statuses
// are retried up to MaxRetries times; a 4xx status or an undecodable
// body is not retried. Every failed lookup, retried or not, is reported
// as domain.ErrUpstreamUnavailable.
func (c *DARClient) Cleanse(ctx context.Context, raw string) (string, error) {
	matches, err := backoff.Retry(ctx, func() ([]darMatch, error) {
		return c.lookup(ctx, raw)
	}, backoff.WithMaxTries(c.maxTries()), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no DAR match for %q", domain.ErrCleansingFailed, raw)
	}
	return matches[0].ID, nil
}

func (c *DARClient) maxTries() uint {
	if c.MaxRetries == 0 {
		return 3
	}
	return c.MaxRetries
}

// permanentHTTPError reports a non-200 DAR response. lookup wraps a 4xx
// status in backoff.Permanent so it is not retried, and returns any
// other status bare so backoff.Retry tries again.
type permanentHTTPError struct{ status int }

func (e permanentHTTPError) Error() string {
	return fmt.Sprintf("DAR returned status %d", e.status)
}

func (c *DARClient) lookup(ctx context.Context, raw string) ([]darMatch, error) {
	u := c.BaseURL + "?" + url.Values{"q": {raw}, "per_side": {"1"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build DAR request: %w", err))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err // transient: network error, retry
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(permanentHTTPError{status: resp.StatusCode})
	}
	if resp.StatusCode != http.StatusOK {
		return nil, permanentHTTPError{status: resp.StatusCode} // 5xx: retry
	}

	var matches []darMatch
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode DAR response: %w", err))
	}
	return matches, nil
}

// CachingCleanser wraps an AddressCleanser with a per-run dedupe cache,
// keyed on the raw address string, so a unit sharing its raw address
// with an earlier unit in the same run does not pay for a second DAR
// round trip (original_source's addresses.py calls the cleanse client
// once per unit; this adds only the within-run memoisation).
type CachingCleanser struct {
	Inner AddressCleanser
	cache map[string]string
}

// NewCachingCleanser wraps inner with a fresh per-run cache.
func NewCachingCleanser(inner AddressCleanser) *CachingCleanser {
	return &CachingCleanser{Inner: inner, cache: make(map[string]string)}
}

func (c *CachingCleanser) Cleanse(ctx context.Context, raw string) (string, error) {
	if v, ok := c.cache[raw]; ok {
		return v, nil
	}
	v, err := c.Inner.Cleanse(ctx, raw)
	if err != nil {
		return "", err
	}
	c.cache[raw] = v
	return v, nil
}

var _ AddressCleanser = (*CachingCleanser)(nil)
