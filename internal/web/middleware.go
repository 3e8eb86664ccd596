package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/stats"
)

var httpRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "snippethunt_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	},
	[]string{"method", "route", "status"},
)

func init() {
	prometheus.MustRegister(httpRequests)
}

// instrument counts requests by their registered route, which keeps the
// label set bounded.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := statusOf(ww)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// checkLang sends requests for another language to the one served here,
// keeping the rest of the path and the query.
func (s *Server) checkLang(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := chi.URLParam(r, "lang")
		if lang == s.cfg.LangCode {
			next.ServeHTTP(w, r)
			return
		}
		target := "/" + s.cfg.LangCode + strings.TrimPrefix(r.URL.Path, "/"+lang)
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusFound)
	})
}

// logRequest appends every served request to the stats log once the
// handler is done. Crawlers and referrer spam are filtered by the sink.
func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		q := r.URL.Query()
		id := chi.URLParam(r, "id")
		if id == "" {
			id = q.Get("id")
		}
		entry := stats.Request{
			Lang:           s.cfg.LangCode,
			SnippetID:      id,
			CategoryID:     q.Get("cat"),
			IntersectionID: q.Get("custom"),
			URL:            requestBase(r) + r.URL.RequestURI(),
			Prefetch:       isPrefetch(r),
			StatusCode:     statusOf(ww),
			Referrer:       r.Referer(),
		}
		if _, err := s.stats.LogRequest(r.Context(), entry, r.UserAgent()); err != nil {
			s.logger.Warn("failed to log request", zap.String("url", entry.URL), zap.Error(err))
		}
	})
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

func isPrefetch(r *http.Request) bool {
	return r.Header.Get("Purpose") == "prefetch" ||
		r.Header.Get("X-Moz") == "prefetch" ||
		strings.Contains(r.Header.Get("Sec-Purpose"), "prefetch")
}

// requestBase is the scheme and host the request was addressed to.
func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
