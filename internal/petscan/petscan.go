// Package petscan fetches page lists from PetScan queries and PagePile
// piles. Each service sits behind its own circuit breaker so a slow or
// failing tool does not stall the intersection endpoint.
package petscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrWrongWiki is returned for a pile that belongs to another wiki.
	ErrWrongWiki = errors.New("page pile is for another wiki")
	// ErrMalformed is returned when a response does not have the expected
	// shape.
	ErrMalformed = errors.New("malformed response")
)

// Options configures a Client.
type Options struct {
	PetScanURL      string
	PetScanTimeout  time.Duration
	PagePileURL     string
	PagePileTimeout time.Duration
	UserAgent       string
}

type Client struct {
	opts   Options
	http   *http.Client
	logger *zap.Logger

	petscanCB  *gobreaker.CircuitBreaker
	pagepileCB *gobreaker.CircuitBreaker
}

func New(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("petscan")
	return &Client{
		opts:       opts,
		http:       &http.Client{},
		logger:     logger,
		petscanCB:  newBreaker("PetScan", logger),
		pagepileCB: newBreaker("PagePile", logger),
	}
}

func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			// Bad ids and foreign piles do not count against the service.
			return err == nil || errors.Is(err, ErrWrongWiki) || errors.Is(err, ErrMalformed)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// PetScan runs the saved query psid against wiki (a database name such as
// "enwiki") and returns the page ids it lists, at most limit of them.
func (c *Client) PetScan(ctx context.Context, psid, wiki string, limit int) ([]int, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("psid", psid)
	q.Set("output_limit", strconv.Itoa(limit))
	q.Set("common_wiki", "other")
	q.Set("common_wiki_other", wiki)

	res, err := c.petscanCB.Execute(func() (interface{}, error) {
		var body struct {
			Star []struct {
				A struct {
					Star []struct {
						ID json.Number `json:"id"`
					} `json:"*"`
				} `json:"a"`
			} `json:"*"`
		}
		if err := c.getJSON(ctx, c.opts.PetScanURL+"?"+q.Encode(), c.opts.PetScanTimeout, &body); err != nil {
			return nil, err
		}
		if len(body.Star) == 0 {
			return nil, fmt.Errorf("petscan %s: %w", psid, ErrMalformed)
		}
		ids := make([]int, 0, len(body.Star[0].A.Star))
		for _, p := range body.Star[0].A.Star {
			id, err := strconv.Atoi(p.ID.String())
			if err != nil {
				return nil, fmt.Errorf("petscan %s: page id %q: %w", psid, p.ID, ErrMalformed)
			}
			ids = append(ids, id)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	ids := res.([]int)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	c.logger.Info("fetched petscan query", zap.String("psid", psid), zap.Int("pages", len(ids)))
	return ids, nil
}

// PagePile returns the titles in pile pileID, which must belong to wiki.
func (c *Client) PagePile(ctx context.Context, pileID, wiki string) ([]string, error) {
	q := url.Values{}
	q.Set("id", pileID)
	q.Set("action", "get_data")
	q.Set("format", "json")
	endpoint := strings.TrimSuffix(c.opts.PagePileURL, "/") + "/api.php?" + q.Encode()

	res, err := c.pagepileCB.Execute(func() (interface{}, error) {
		var body struct {
			Wiki  string   `json:"wiki"`
			Pages []string `json:"pages"`
		}
		if err := c.getJSON(ctx, endpoint, c.opts.PagePileTimeout, &body); err != nil {
			return nil, err
		}
		if body.Wiki != wiki {
			return nil, fmt.Errorf("pile %s is for %q: %w", pileID, body.Wiki, ErrWrongWiki)
		}
		return body.Pages, nil
	})
	if err != nil {
		return nil, err
	}
	titles := res.([]string)
	c.logger.Info("fetched page pile", zap.String("pile", pileID), zap.Int("pages", len(titles)))
	return titles, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, timeout time.Duration, v any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", res.StatusCode, req.URL.Host)
	}
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w: %w", ErrMalformed, err)
	}
	return nil
}
