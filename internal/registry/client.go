// Package registry is the typed HTTP client for the skill registry. It is
// stateless: every method is a single logical round trip, and transient
// transport failures (429, 5xx) are re-issued with backoff inside the call.
// Operation-level retries are a caller concern.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const userAgent = "skilldock/1.0"

// StatusError reports a non-success registry response. Callers can
// distinguish "skill does not exist" (404) from transport trouble by
// inspecting StatusCode; a network failure never maps to a StatusError.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("REG_STATUS: %s returned status %d", e.Endpoint, e.StatusCode)
}

// Moderation is the registry's out-of-band trust signal for a skill. It is
// advisory input to the threat analyzer, never a substitute for a scan.
type Moderation struct {
	IsSuspicious     bool
	IsMalwareBlocked bool
}

// SkillSummary is one search or browse hit.
type SkillSummary struct {
	Slug        string
	Name        string
	Description string
	Version     string
	Moderation  Moderation
}

// SkillDetail is the full metadata record for one skill.
type SkillDetail struct {
	Slug        string
	Name        string
	Description string
	Version     string
	UpdatedAt   int64 // epoch millis, zero when the registry omits it
	Moderation  Moderation
}

// SkillPage is one page of a cursored skill listing.
type SkillPage struct {
	Items      []SkillSummary
	NextCursor string
}

// VersionInfo describes one published version of a skill.
type VersionInfo struct {
	Version   string
	CreatedAt int64 // epoch millis
	Changelog string
}

// VersionPage is one page of a cursored version listing.
type VersionPage struct {
	Items      []VersionInfo
	NextCursor string
}

// Resolution answers "which version matches my local hash, and what is the
// latest" in a single call.
type Resolution struct {
	Matching string // version whose content hash equals the supplied one, "" if none
	Latest   string
}

type Client struct {
	base       *url.URL
	apiVersion string
	httpClient *http.Client
}

// New builds a client for the registry at baseURL. httpClient may be nil, in
// which case a client with the given timeout is constructed.
func New(baseURL, apiVersion string, timeout time.Duration, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(ensureTrailingSlash(baseURL))
	if err != nil {
		return nil, fmt.Errorf("REG_BASE_URL: invalid base %q: %w", baseURL, err)
	}
	if apiVersion == "" {
		apiVersion = "v1"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, apiVersion: apiVersion, httpClient: httpClient}, nil
}

// Search queries the registry full-text index. limit <= 0 means the
// registry's own default page size.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SkillSummary, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("REG_SEARCH: query is required")
	}
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.getJSON(ctx, "search", q)
	if err != nil {
		return nil, err
	}
	page := parseSkillPage(body)
	return page.Items, nil
}

// List returns one page of the full skill catalog.
func (c *Client) List(ctx context.Context, cursor string) (SkillPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	body, err := c.getJSON(ctx, "skills", q)
	if err != nil {
		return SkillPage{}, err
	}
	return parseSkillPage(body), nil
}

// GetDetail fetches the metadata record for slug, including moderation.
func (c *Client) GetDetail(ctx context.Context, slug string) (SkillDetail, error) {
	if slug == "" {
		return SkillDetail{}, fmt.Errorf("REG_DETAIL: empty slug")
	}
	body, err := c.getJSON(ctx, "skills/"+url.PathEscape(slug), nil)
	if err != nil {
		return SkillDetail{}, err
	}
	return parseSkillDetail(slug, body), nil
}

// ListVersions returns one page of the published versions for slug.
func (c *Client) ListVersions(ctx context.Context, slug, cursor string) (VersionPage, error) {
	if slug == "" {
		return VersionPage{}, fmt.Errorf("REG_VERSIONS: empty slug")
	}
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	body, err := c.getJSON(ctx, "skills/"+url.PathEscape(slug)+"/versions", q)
	if err != nil {
		return VersionPage{}, err
	}
	return parseVersionPage(body), nil
}

// Resolve asks the registry which version matches contentHash (may be empty)
// and which version is latest. Registries that predate the resolve endpoint
// return 404; in that case, the version listing is consulted and the newest
// entry reported as latest, with no hash match.
func (c *Client) Resolve(ctx context.Context, slug, contentHash string) (Resolution, error) {
	if slug == "" {
		return Resolution{}, fmt.Errorf("REG_RESOLVE: empty slug")
	}
	q := url.Values{}
	q.Set("slug", slug)
	if contentHash != "" {
		q.Set("hash", contentHash)
	}
	body, err := c.getJSON(ctx, "resolve", q)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return c.resolveViaVersions(ctx, slug)
		}
		return Resolution{}, err
	}
	return parseResolution(body), nil
}

func (c *Client) resolveViaVersions(ctx context.Context, slug string) (Resolution, error) {
	page, err := c.ListVersions(ctx, slug, "")
	if err != nil {
		return Resolution{}, err
	}
	versions := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		versions = append(versions, item.Version)
	}
	latest := chooseLatest(versions)
	if latest == "" {
		return Resolution{}, fmt.Errorf("REG_RESOLVE: no versions found for %s", slug)
	}
	return Resolution{Latest: latest}, nil
}

// Download streams the compressed bundle for slug. version may be empty,
// meaning the registry's default (usually latest). The caller owns the
// returned body. Download is never retried: the stream is consumed once.
func (c *Client) Download(ctx context.Context, slug, version string) (io.ReadCloser, error) {
	if slug == "" {
		return nil, fmt.Errorf("REG_DOWNLOAD: empty slug")
	}
	q := url.Values{}
	q.Set("slug", slug)
	if version != "" {
		q.Set("version", version)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL("download", q), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("REG_HTTP: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Endpoint: "download"}
	}
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	status, body, err := c.get(ctx, endpoint, q)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{StatusCode: status, Endpoint: endpoint}
	}
	return body, nil
}

const getAttempts = 4

func (c *Client) get(ctx context.Context, endpoint string, q url.Values) (int, []byte, error) {
	fullURL := c.endpointURL(endpoint, q)
	var lastErr error
	for i := 0; i < getAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(time.Duration(1<<i) * 500 * time.Millisecond):
			}
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return 0, nil, fmt.Errorf("REG_HTTP: %w", readErr)
		}
		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && i < getAttempts-1 {
			wait := parseRetryAfter(resp.Header.Get("Retry-After"), i)
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		return resp.StatusCode, body, nil
	}
	if lastErr != nil {
		return 0, nil, fmt.Errorf("REG_HTTP: %w", lastErr)
	}
	return 0, nil, errors.New("REG_HTTP: request failed")
}

func (c *Client) endpointURL(endpoint string, q url.Values) string {
	u := *c.base
	u.Path = path.Join(c.base.Path, "api", c.apiVersion, endpoint)
	u.RawQuery = q.Encode()
	return u.String()
}

func parseRetryAfter(value string, attempt int) time.Duration {
	defaultBackoff := time.Duration(1<<attempt) * 500 * time.Millisecond
	if value == "" {
		return defaultBackoff
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return defaultBackoff
	}
	if secs > 10 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}

func ensureTrailingSlash(v string) string {
	if strings.HasSuffix(v, "/") {
		return v
	}
	return v + "/"
}
