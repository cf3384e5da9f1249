// SPDX-License-Identifier: MPL-2.0

package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// defaultPerPage is the number of releases fetched per API page.
	defaultPerPage = 30

	// maxPages is the upper bound on pagination to avoid runaway requests.
	// The locator stops at the first release at or below the installed
	// version anyway, so deep history is never needed.
	maxPages = 3

	// maxJSONResponseBytes is the upper bound on JSON API response size (10 MB).
	// Prevents unbounded memory consumption from malicious or malformed responses.
	maxJSONResponseBytes = 10 << 20
)

// ErrFeedUnavailable wraps transport and non-200 failures from the release feed.
var ErrFeedUnavailable = errors.New("release feed unavailable")

type (
	// RateLimitError is returned when the feed's API rate limit is exceeded.
	RateLimitError struct {
		Limit     int
		Remaining int
		ResetAt   time.Time
	}

	// Release is one entry of the release feed, newest first.
	Release struct {
		TagName    string  // Version tag, e.g. "v1.3.0"
		Name       string  // Human-readable release name
		Notes      string  // Release notes (markdown body)
		Prerelease bool    // True for alpha/beta/RC releases
		Draft      bool    // True for unpublished drafts
		Assets     []Asset // Downloadable artifacts
		HTMLURL    string  // Browser URL for the release page
	}

	// Asset is a single downloadable file attached to a Release.
	Asset struct {
		Name               string // Filename, e.g. "lorekeep-1.3.0-win64.zip"
		BrowserDownloadURL string // Direct download URL
		Size               int64  // Advertised size in bytes
		ContentType        string // MIME type
	}

	// githubRelease is the JSON wire format for a GitHub Release API response.
	githubRelease struct {
		TagName    string        `json:"tag_name"`
		Name       string        `json:"name"`
		Body       string        `json:"body"`
		Prerelease bool          `json:"prerelease"`
		Draft      bool          `json:"draft"`
		HTMLURL    string        `json:"html_url"`
		Assets     []githubAsset `json:"assets"`
	}

	// githubAsset is the JSON wire format for a GitHub Release asset.
	githubAsset struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
		Size               int64  `json:"size"`
		ContentType        string `json:"content_type"`
	}

	// FeedClient queries the GitHub Releases API for release metadata and
	// asset downloads.
	FeedClient struct {
		httpClient *http.Client
		owner      string // Repository owner
		repo       string // Repository name
		baseURL    string // API base URL (default: "https://api.github.com", overridable for tests)
		token      string // Optional GITHUB_TOKEN for authenticated requests
		userAgent  string // User-Agent header value
	}

	// FeedOption configures a FeedClient during construction.
	FeedOption func(*FeedClient)
)

// Error formats the rate limit details as a human-readable message.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("release feed rate limit exceeded (%d remaining, resets at %s)",
		e.Remaining, e.ResetAt.UTC().Format("15:04 UTC"))
}

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) FeedOption {
	return func(f *FeedClient) {
		f.httpClient = c
	}
}

// WithBaseURL overrides the feed API base URL, primarily for test servers.
func WithBaseURL(base string) FeedOption {
	return func(f *FeedClient) {
		f.baseURL = strings.TrimRight(base, "/")
	}
}

// WithToken sets a GitHub personal access token for authenticated requests.
// Authenticated requests have a higher rate limit (5000/hour vs 60/hour).
func WithToken(token string) FeedOption {
	return func(f *FeedClient) {
		f.token = token
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) FeedOption {
	return func(f *FeedClient) {
		f.userAgent = ua
	}
}

// NewFeedClient creates a FeedClient for the given repository.
func NewFeedClient(owner, repo string, opts ...FeedOption) *FeedClient {
	c := &FeedClient{
		httpClient: http.DefaultClient,
		owner:      owner,
		repo:       repo,
		baseURL:    "https://api.github.com",
		userAgent:  "lorekeep-updater",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListReleases fetches releases in the order the feed returns them, which
// the API documents as newest first. Drafts and prereleases are included;
// filtering is channel-dependent and belongs to the locator. Pagination is
// followed up to maxPages.
//
// The feed order is trusted, not validated: re-sorting could change which
// asset wins on a tag tie, so a mis-ordered feed is the feed's bug to fix.
func (c *FeedClient) ListReleases(ctx context.Context) ([]Release, error) {
	pageURL := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d",
		c.baseURL, c.owner, c.repo, defaultPerPage)

	var all []Release

	for page := 0; page < maxPages && pageURL != ""; page++ {
		resp, reqErr := c.doRequest(ctx, pageURL)
		if reqErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, reqErr)
		}

		if rlErr := checkRateLimit(resp); rlErr != nil {
			resp.Body.Close()
			return nil, rlErr
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: unexpected status %d", ErrFeedUnavailable, resp.StatusCode)
		}

		releases, parseErr := parseReleases(io.LimitReader(resp.Body, maxJSONResponseBytes))
		resp.Body.Close()
		if parseErr != nil {
			return nil, fmt.Errorf("listing releases: %w", parseErr)
		}

		all = append(all, releases...)
		pageURL = parseLinkHeader(resp.Header.Get("Link"))
	}

	return all, nil
}

// DownloadAsset downloads the file at the given URL and returns the response
// body as a streaming reader plus the response-reported content length (-1
// when unknown). The caller is responsible for closing the returned
// ReadCloser.
func (c *FeedClient) DownloadAsset(ctx context.Context, assetURL string) (io.ReadCloser, int64, error) {
	resp, err := c.doRequest(ctx, assetURL)
	if err != nil {
		return nil, 0, fmt.Errorf("downloading asset %s: %w", redactURL(assetURL), err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("downloading asset %s: unexpected status %d", redactURL(assetURL), resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}

// doRequest creates and executes a GET request with common feed API headers.
func (c *FeedClient) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)

	// Only attach the auth token when the request targets a known GitHub host.
	// This prevents token leakage if a download URL redirects to a third-party CDN.
	if c.token != "" && isGitHubHost(req.URL, c.baseURL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	return resp, nil
}

// checkRateLimit inspects the X-RateLimit-* response headers and returns a
// RateLimitError when the remaining quota is zero. It does not inspect the
// HTTP status code — only the header values are examined.
func checkRateLimit(resp *http.Response) error {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		// No rate limit headers present; nothing to check.
		return nil
	}

	rem, err := strconv.Atoi(remaining)
	if err != nil {
		// Malformed header value; skip rate limit check.
		return nil //nolint:nilerr // Non-numeric header is non-fatal.
	}

	if rem > 0 {
		return nil
	}

	// Parse companion headers for a richer error message. Errors are
	// intentionally ignored — malformed or missing values default to zero,
	// which is acceptable for a diagnostic error message.
	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))                 //nolint:errcheck // Best-effort header parsing.
	resetUnix, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64) //nolint:errcheck // Best-effort header parsing.

	return &RateLimitError{
		Limit:     limit,
		Remaining: 0,
		ResetAt:   time.Unix(resetUnix, 0),
	}
}

// parseReleases decodes a JSON array of feed releases from the response body.
func parseReleases(body io.Reader) ([]Release, error) {
	var raw []githubRelease
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding releases: %w", err)
	}

	releases := make([]Release, 0, len(raw))
	for _, gr := range raw {
		releases = append(releases, toRelease(gr))
	}
	return releases, nil
}

// parseLinkHeader extracts the URL for the "next" page from an API Link
// header. Returns an empty string if no next page exists.
//
// Example header: <https://api.github.com/...?page=2>; rel="next", <...>; rel="last"
func parseLinkHeader(header string) string {
	if header == "" {
		return ""
	}

	for part := range strings.SplitSeq(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}

		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}

	return ""
}

// toRelease converts the internal JSON wire type to the exported Release type.
func toRelease(gr githubRelease) Release {
	assets := make([]Asset, 0, len(gr.Assets))
	for _, ga := range gr.Assets {
		assets = append(assets, Asset(ga))
	}

	return Release{
		TagName:    gr.TagName,
		Name:       gr.Name,
		Notes:      gr.Body,
		Prerelease: gr.Prerelease,
		Draft:      gr.Draft,
		Assets:     assets,
		HTMLURL:    gr.HTMLURL,
	}
}

// isGitHubHost reports whether reqURL targets a known GitHub host, so the
// auth token can be safely attached. It matches the configured API base URL
// host and, when the base is api.github.com, also trusts github.com for
// asset downloads.
func isGitHubHost(reqURL *url.URL, baseURL string) bool {
	base, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	if strings.EqualFold(reqURL.Host, base.Host) {
		return true
	}
	if strings.EqualFold(base.Host, "api.github.com") && strings.EqualFold(reqURL.Host, "github.com") {
		return true
	}
	return false
}

// redactURL strips query parameters and fragments from a URL for safe
// inclusion in error messages, preventing accidental exposure of tokens.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
