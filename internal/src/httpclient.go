package src

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rezkam/reconcile/internal/domain"
)

// HTTPClient implements Client over SD Løn's REST facade (sdclient in
// the original Python project wraps the same service's SOAP/XML
// surface; this adapter speaks the JSON-over-HTTP shape the service
// also exposes, since the spec's Client interface only commits to the
// Go-side request/response shapes, not a wire format).
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries uint
}

// NewHTTPClient builds an HTTPClient with a bounded per-request
// timeout, since SRC is an external collaborator this package must not
// block indefinitely on.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: timeout}, MaxRetries: 3}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) maxTries() uint {
	if c.MaxRetries == 0 {
		return 3
	}
	return c.MaxRetries
}

// get issues the request, retrying transient failures (network errors,
// 5xx) with backoff; a 404 or other 4xx is permanent.
func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		return c.doGet(ctx, path, u)
	}, backoff.WithMaxTries(c.maxTries()), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		if errors.Is(err, domain.ErrPersonNotFound) {
			return domain.ErrPersonNotFound
		}
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) doGet(ctx context.Context, path, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request for %s: %w", path, err))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err) // transient
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, backoff.Permanent(domain.ErrPersonNotFound)
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(fmt.Errorf("%s returned status %d", path, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode) // 5xx, transient
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	return data, nil
}

func (c *HTTPClient) GetOrganization(ctx context.Context, institution string) (Organization, error) {
	var out Organization
	query := url.Values{"institution": {institution}}
	if err := c.get(ctx, "/getOrganization", query, &out); err != nil {
		return Organization{}, err
	}
	return out, nil
}

func (c *HTTPClient) GetDepartments(ctx context.Context, institution string, activation, deactivation time.Time) ([]DepartmentRecord, error) {
	var out []DepartmentRecord
	query := url.Values{
		"institution":      {institution},
		"activationDate":   {activation.Format(time.DateOnly)},
		"deactivationDate": {deactivation.Format(time.DateOnly)},
	}
	if err := c.get(ctx, "/getDepartment", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetEmploymentChanged(ctx context.Context, cpr, employmentID string, from, to time.Time) ([]EmploymentStatusRecord, error) {
	var out []EmploymentStatusRecord
	query := url.Values{
		"cpr":          {cpr},
		"employmentId": {employmentID},
		"from":         {from.Format(time.DateOnly)},
		"to":           {to.Format(time.DateOnly)},
	}
	if err := c.get(ctx, "/getEmploymentChanged", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPerson maps a 404 response to domain.ErrPersonNotFound so the
// person-sync use case (internal/reconcile.SyncPerson) can surface it
// as an HTTP 404 in turn.
func (c *HTTPClient) GetPerson(ctx context.Context, institution, cpr string, effective time.Time) (PersonRecord, error) {
	var out PersonRecord
	query := url.Values{
		"institution": {institution},
		"cpr":         {cpr},
		"effective":   {effective.Format(time.DateOnly)},
	}
	if err := c.get(ctx, "/getPerson", query, &out); err != nil {
		return PersonRecord{}, err
	}
	return out, nil
}
