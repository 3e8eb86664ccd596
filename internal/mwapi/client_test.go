package mwapi_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deidaraiorek/snippethunt/internal/mwapi"
)

func newClient(t *testing.T, h http.HandlerFunc) (*mwapi.Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	var slept []time.Duration
	c := mwapi.New(srv.URL, "snippethunt-test", nil)
	c.SetSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	return c, &slept
}

func TestParse_InjectsDefaults(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "snippethunt-test", r.UserAgent())
		assert.Equal(t, "json", r.PostForm.Get("format"))
		assert.Equal(t, "5", r.PostForm.Get("maxlag"))
		assert.Equal(t, "parse", r.PostForm.Get("action"))
		assert.Equal(t, "{{cn}}", r.PostForm.Get("text"))
		_, hasUTF8 := r.PostForm["utf8"]
		assert.True(t, hasUTF8)
		fmt.Fprint(w, `{"parse":{"text":{"*":"<p>hi</p>"}}}`)
	})

	resp, err := c.Parse(context.Background(), url.Values{"text": {"{{cn}}"}})
	require.NoError(t, err)
	text, ok := mwapi.ParseText(resp)
	require.True(t, ok)
	assert.Equal(t, "<p>hi</p>", text)
}

func TestMaxlagRetry(t *testing.T) {
	var calls int32
	c, slept := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"error":{"code":"maxlag","info":"Waiting for db1: 2.5 seconds lagged"}}`)
			return
		}
		fmt.Fprint(w, `{"parse":{"text":{"*":"ok"}}}`)
	})

	_, err := c.Parse(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{2500 * time.Millisecond}, *slept)
}

func TestMaxlagWithoutLagIsReturned(t *testing.T) {
	var calls int32
	c, slept := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"error":{"code":"maxlag","info":"Replication is paused"}}`)
	})

	resp, err := c.Parse(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.NotNil(t, resp["error"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, *slept)
}

func TestRetryAfterExhausted(t *testing.T) {
	var calls int32
	c, slept := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "1")
		fmt.Fprint(w, `{}`)
	})

	_, err := c.Parse(context.Background(), url.Values{})
	var apiErr *mwapi.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Exhausted maxlag retries!", apiErr.Message)
	assert.Equal(t, int32(mwapi.DefaultMaxRetriesMaxlag+1), atomic.LoadInt32(&calls))
	assert.Len(t, *slept, mwapi.DefaultMaxRetriesMaxlag)
}

func TestServerErrorIsTransient(t *testing.T) {
	var calls int32
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"parse":{"text":{"*":"ok"}}}`)
	})

	_, err := c.Parse(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOtherAPIError(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":"badvalue","info":"Unrecognized value"}}`)
	})

	_, err := c.Parse(context.Background(), url.Values{})
	var apiErr *mwapi.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Unrecognized value", apiErr.Message)
	assert.NotNil(t, apiErr.Response["error"])
}

func TestQueryFollowsContinue(t *testing.T) {
	var calls int32
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			assert.Equal(t, "", r.PostForm.Get("rvcontinue"))
			fmt.Fprint(w, `{"continue":{"rvcontinue":"123|456","continue":"||"},
				"query":{"pages":{"7":{"pageid":7,"title":"A","revisions":[{"revid":1,"*":"one "}]}}}}`)
		default:
			assert.Equal(t, "123|456", r.PostForm.Get("rvcontinue"))
			fmt.Fprint(w, `{"query":{"pages":{"7":{"pageid":7,"title":"A","revisions":[{"revid":2,"*":"two"}]}}}}`)
		}
	})

	content, err := c.GetPageContents(context.Background(), "A", 0)
	require.NoError(t, err)
	assert.Equal(t, "one two", content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQueryIteratorClose(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"continue":{"x":"1"},"query":{}}`)
	})

	it := c.Query(url.Values{})
	_, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	it.Close()
	_, ok, err = it.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevisionAccessors(t *testing.T) {
	resp := mwapi.Response{"query": map[string]any{"pages": map[string]any{
		"10": map[string]any{"pageid": float64(10), "title": "B", "revisions": []any{
			map[string]any{"revid": float64(5), "timestamp": "2020-01-02T03:04:05Z",
				"slots": map[string]any{"main": map[string]any{"*": "text"}}},
		}},
		"2": map[string]any{"pageid": float64(2), "title": "A", "missing": ""},
	}}}

	pages := mwapi.Pages(resp)
	require.Len(t, pages, 2)
	assert.Equal(t, "A", pages[0].Title())
	assert.True(t, pages[0].Missing())

	revs := mwapi.Revisions(pages[1])
	require.Len(t, revs, 1)
	assert.Equal(t, 5, revs[0].ID())
	assert.Equal(t, "text", mwapi.RevisionContent(revs[0]))
	ts, ok := revs[0].Timestamp()
	require.True(t, ok)
	assert.Equal(t, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), ts)
}
