// internal/server/router.go
//
// Ops router.
//
// Routes
// ------
//   GET /healthz                      store ping, 200 "ok" or 503
//   GET /metrics                      Prometheus exposition
//   GET /stats/{siteID}?from=&to=     analytics.Summary as JSON
//   GET /collect/{siteID}?page=       visit beacon, always 204
//
// Notes
// -----
//   - The beacon answers before the visit is written.  Store failures show
//     up in vidcat_visits_skipped_total, never in the response.
//   - Oxford commas, two spaces after periods.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/vidcat/internal/analytics"
	"github.com/yanizio/vidcat/internal/errs"
	"github.com/yanizio/vidcat/internal/shape"
	"github.com/yanizio/vidcat/internal/visit"
)

// PingTimeout bounds the /healthz store round trip.
const PingTimeout = 2 * time.Second

// Pinger is satisfied by docstore.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Summarizer is satisfied by *analytics.Engine.
type Summarizer interface {
	Summarize(ctx context.Context, siteID string, start, end time.Time) (analytics.Summary, error)
	Location() *time.Location
}

// Deps are the collaborators the router serves.  Stats and Visits may be
// nil; their routes are then not mounted.
type Deps struct {
	Store  Pinger
	Stats  Summarizer
	Visits *visit.Recorder
	Log    *zap.Logger
}

// Router builds the ops handler.
func Router(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(noStore)

	r.Get("/healthz", healthz(d.Store, d.Log))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if d.Stats != nil {
		r.Get("/stats/{siteID}", stats(d.Stats, d.Log))
	}
	if d.Visits != nil {
		siteOf := func(req *http.Request) string { return chi.URLParam(req, "siteID") }
		r.With(d.Visits.Middleware(siteOf)).Get("/collect/{siteID}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}
	return r
}

func healthz(store Pinger, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), PingTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := store.Ping(ctx); err != nil {
			log.Warn("health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(errs.Kind(err) + "\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	}
}

func stats(s Summarizer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		win, err := shape.Days(q.Get("from"), q.Get("to"), s.Location())
		if err == nil {
			var sum analytics.Summary
			sum, err = s.Summarize(req.Context(), chi.URLParam(req, "siteID"), win.Start, win.End)
			if err == nil {
				writeJSON(w, http.StatusOK, sum)
				return
			}
		}
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			log.Warn("stats request failed",
				zap.String("request_id", middleware.GetReqID(req.Context())),
				zap.Error(err))
		}
		writeJSON(w, status, map[string]string{"error": err.Error(), "kind": errs.Kind(err)})
	}
}

// statusOf maps error kinds to HTTP status codes.
func statusOf(err error) int {
	switch errs.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
