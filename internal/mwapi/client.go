// Package mwapi is a small client for the MediaWiki action API. It honours
// the maxlag protocol and Retry-After headers and follows query
// continuation cursors.
package mwapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetriesMaxlag = 3
	DefaultMaxlag           = 5
)

// https://www.mediawiki.org/wiki/Manual:Maxlag_parameter
var maxlagRegexp = regexp.MustCompile(`Waiting for [^ ]*: ([0-9.-]+) seconds lagged`)

var retries = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "snippethunt_mwapi_retries_total",
		Help: "MediaWiki API requests retried, by reason.",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(retries)
}

// Response is a decoded JSON response.
type Response map[string]any

// Error is an API-level failure. Response holds the last decoded body, if any.
type Error struct {
	Message  string
	Response Response
}

func (e *Error) Error() string {
	return "mediawiki api: " + e.Message
}

// Options tunes the request primitive.
type Options struct {
	MaxRetriesMaxlag int
	Maxlag           int // seconds
}

// Client talks to one API endpoint. A Client is meant to be owned by a
// single worker; callers wanting parallelism create one per goroutine.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger

	Options Options

	sleep func(ctx context.Context, d time.Duration) error
}

func New(apiURL, userAgent string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:       apiURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.Named("mwapi"),
		Options: Options{
			MaxRetriesMaxlag: DefaultMaxRetriesMaxlag,
			Maxlag:           DefaultMaxlag,
		},
		sleep: sleepContext,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Parse performs a single action=parse call.
func (c *Client) Parse(ctx context.Context, params url.Values) (Response, error) {
	p := c.buildParams(params)
	p.Set("action", "parse")
	return c.do(ctx, p)
}

// Query returns an iterator over action=query responses. The iterator
// follows the continue cursor until the server stops returning one.
func (c *Client) Query(params url.Values) *QueryIterator {
	p := c.buildParams(params)
	p.Set("action", "query")
	p.Set("continue", "")
	return &QueryIterator{client: c, params: p}
}

// QueryIterator lazily walks continued query responses.
type QueryIterator struct {
	client *Client
	params url.Values
	done   bool
}

// Next fetches the next response page. It returns false once the sequence
// is exhausted or the iterator was closed.
func (it *QueryIterator) Next(ctx context.Context) (Response, bool, error) {
	if it.done {
		return nil, false, nil
	}
	resp, err := it.client.do(ctx, it.params)
	if err != nil {
		it.done = true
		return nil, false, err
	}
	cont, ok := resp["continue"].(map[string]any)
	if !ok {
		it.done = true
		return resp, true, nil
	}
	for k, v := range cont {
		it.params.Set(k, stringify(v))
	}
	return resp, true, nil
}

// Close stops the iteration. The underlying connection pool is owned by the
// client, so abandoning an iterator never leaks it.
func (it *QueryIterator) Close() {
	it.done = true
}

// GetPageContents returns the current wikitext of a page, by title or by id.
func (c *Client) GetPageContents(ctx context.Context, title string, pageID int) (string, error) {
	params := url.Values{
		"prop":   {"revisions"},
		"rvprop": {"content"},
	}
	switch {
	case title != "":
		params.Set("titles", title)
	case pageID != 0:
		params.Set("pageids", strconv.Itoa(pageID))
	default:
		return "", &Error{Message: "either title or pageid must be present"}
	}

	var b strings.Builder
	it := c.Query(params)
	defer it.Close()
	for {
		resp, ok, err := it.Next(ctx)
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		for _, page := range Pages(resp) {
			if revs := Revisions(page); len(revs) > 0 {
				b.WriteString(RevisionContent(revs[0]))
			}
		}
	}
	return b.String(), nil
}

func (c *Client) buildParams(params url.Values) url.Values {
	p := url.Values{
		"format": {"json"},
		"utf8":   {""},
		"maxlag": {strconv.Itoa(c.Options.Maxlag)},
	}
	for k, v := range params {
		p[k] = append([]string(nil), v...)
	}
	return p
}

func (c *Client) do(ctx context.Context, params url.Values) (Response, error) {
	var last Response
	maxRetries := c.Options.MaxRetriesMaxlag

	for attempt := 0; attempt <= maxRetries; attempt++ {
		res, err := c.post(ctx, params)
		if err != nil {
			return nil, err
		}

		if ra := res.Header.Get("Retry-After"); ra != "" {
			res.Body.Close()
			retries.WithLabelValues("retry_after").Inc()
			if attempt < maxRetries {
				d := parseSeconds(ra)
				c.logger.Warn("got Retry-After header, sleeping", zap.Duration("sleep", d))
				if err := c.sleep(ctx, d); err != nil {
					return nil, err
				}
			}
			continue
		}

		if res.StatusCode >= 500 {
			res.Body.Close()
			retries.WithLabelValues("server_error").Inc()
			c.logger.Warn("transient server error", zap.Int("status", res.StatusCode))
			if attempt < maxRetries {
				if err := c.sleep(ctx, time.Duration(attempt+1)*time.Second); err != nil {
					return nil, err
				}
			}
			continue
		}

		resp, err := decode(res)
		if err != nil {
			return nil, err
		}
		last = resp

		apiErr, ok := resp["error"].(map[string]any)
		if !ok {
			return resp, nil
		}
		code, _ := apiErr["code"].(string)
		info, _ := apiErr["info"].(string)
		if code != "maxlag" {
			return nil, &Error{Message: info, Response: resp}
		}
		m := maxlagRegexp.FindStringSubmatch(info)
		if m == nil {
			// No lag to wait for; callers see the response as is.
			return resp, nil
		}
		retries.WithLabelValues("maxlag").Inc()
		if attempt < maxRetries {
			d := parseSeconds(m[1])
			c.logger.Warn("got maxlag error, sleeping", zap.Duration("sleep", d))
			if err := c.sleep(ctx, d); err != nil {
				return nil, err
			}
		}
	}
	return nil, &Error{Message: "Exhausted maxlag retries!", Response: last}
}

func (c *Client) post(ctx context.Context, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to post: %w", err)
	}
	return res, nil
}

func decode(res *http.Response) (Response, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", res.StatusCode, err)
	}
	return resp, nil
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
