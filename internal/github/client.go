// Package github is the REST client used to fetch commit statuses and
// check runs for a ref.
//
// Both fetch methods return nil on any failure instead of an error. The
// refresh logic treats "no result" uniformly, and the reason is logged here
// where the details are known.
package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jpalmerr/refwatch/internal/checks"
)

const maxResponseBodySize = 4 << 20 // 4MB

// connection pooling limits shared by every account's client
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// DefaultTimeout bounds a single API request.
const DefaultTimeout = 30 * time.Second

// Account is a signed-in identity on one API endpoint.
type Account struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Login    string `json:"login" yaml:"login"`
	Token    string `json:"-" yaml:"token"`
}

// Response holds the raw result of an HTTP request made by [Client].
type Response struct {
	Body       []byte
	StatusCode int
	Latency    time.Duration
	Error      error
}

// Client fetches status data for a single account.
type Client struct {
	account    Account
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewHTTPClient returns an http.Client with pooled connections and no global
// timeout. Timeouts are applied per request by [Client].
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		},
	}
}

// NewClient creates a [Client] for account. If httpClient is nil a pooled
// client from [NewHTTPClient] is used; if timeout is not positive
// [DefaultTimeout] applies.
func NewClient(account Account, httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		account:    account,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}
}

// FetchCombinedRefStatus fetches the legacy combined commit status for ref.
// Returns nil if the request or decoding failed.
func (c *Client) FetchCombinedRefStatus(ctx context.Context, owner, name, ref string) *checks.CombinedRefStatus {
	resp := c.get(ctx, c.refPath(owner, name, ref, "status"))
	if !c.ok(resp, "combined status", owner, name, ref) {
		return nil
	}

	if !gjson.ValidBytes(resp.Body) {
		c.logger.Warn("invalid combined status payload", "repo", owner+"/"+name, "ref", ref)
		return nil
	}

	doc := gjson.ParseBytes(resp.Body)
	result := &checks.CombinedRefStatus{State: doc.Get("state").String()}

	doc.Get("statuses").ForEach(func(_, item gjson.Result) bool {
		result.Statuses = append(result.Statuses, checks.StatusItem{
			Context:     item.Get("context").String(),
			State:       item.Get("state").String(),
			Description: item.Get("description").String(),
		})
		return true
	})

	return result
}

// FetchRefCheckRuns fetches the check runs reported for ref.
// Returns nil if the request or decoding failed. Check runs carrying a
// status or conclusion outside the known set are dropped with a warning.
func (c *Client) FetchRefCheckRuns(ctx context.Context, owner, name, ref string) *checks.CheckRunList {
	resp := c.get(ctx, c.refPath(owner, name, ref, "check-runs")+"?per_page=100")
	if !c.ok(resp, "check runs", owner, name, ref) {
		return nil
	}

	if !gjson.ValidBytes(resp.Body) {
		c.logger.Warn("invalid check runs payload", "repo", owner+"/"+name, "ref", ref)
		return nil
	}

	doc := gjson.ParseBytes(resp.Body)
	result := &checks.CheckRunList{TotalCount: int(doc.Get("total_count").Int())}

	doc.Get("check_runs").ForEach(func(_, item gjson.Result) bool {
		run, err := parseCheckRun(item)
		if err != nil {
			c.logger.Warn("skipping check run", "repo", owner+"/"+name, "ref", ref, "error", err)
			return true
		}
		result.CheckRuns = append(result.CheckRuns, run)
		return true
	})

	return result
}

// parseCheckRun decodes a single check run object.
func parseCheckRun(item gjson.Result) (checks.CheckRun, error) {
	name := item.Get("name").String()

	status, err := checks.ParseStatus(item.Get("status").String())
	if err != nil {
		return checks.CheckRun{}, fmt.Errorf("check run %q: %w", name, err)
	}

	// conclusion is JSON null until the run completes; gjson reports "" for null
	conclusion, err := checks.ParseConclusion(item.Get("conclusion").String())
	if err != nil {
		return checks.CheckRun{}, fmt.Errorf("check run %q: %w", name, err)
	}

	return checks.CheckRun{
		Name:        name,
		Status:      status,
		Conclusion:  conclusion,
		OutputTitle: item.Get("output.title").String(),
		SuiteID:     item.Get("check_suite.id").Int(),
	}, nil
}

// refPath builds the URL for a commit sub-resource of ref.
func (c *Client) refPath(owner, name, ref, resource string) string {
	endpoint := strings.TrimRight(c.account.Endpoint, "/")
	return fmt.Sprintf("%s/repos/%s/%s/commits/%s/%s",
		endpoint, url.PathEscape(owner), url.PathEscape(name), url.PathEscape(ref), resource)
}

// ok logs unsuccessful responses and reports whether resp can be decoded.
func (c *Client) ok(resp Response, what, owner, name, ref string) bool {
	attrs := []any{
		"repo", owner + "/" + name,
		"ref", ref,
		"endpoint", c.account.Endpoint,
		"latency_ms", resp.Latency.Milliseconds(),
	}
	if resp.Error != nil {
		c.logger.Warn("failed fetching "+what, append(attrs, "error", resp.Error.Error())...)
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("failed fetching "+what, append(attrs, "status_code", resp.StatusCode)...)
		return false
	}
	return true
}

// get performs an authenticated GET and returns a structured [Response].
//
// get always returns a Response; errors are captured in the Error field
// rather than returned separately. Bodies are limited to 4MB.
func (c *Client) get(ctx context.Context, rawURL string) Response {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.account.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.account.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes idle connections in the client's pool. Safe to call on a nil
// client and more than once; the client remains usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
