// internal/visit/recorder.go
//
// Visit capture.
//
// Workflow
// --------
//  1. FromRequest reads everything it needs from the request up front
//     (the request may be gone by the time the write runs).
//  2. Bots are skipped and counted.
//  3. Middleware hands the visit to a goroutine that calls InsertVisit
//     with a context detached from the request and bounded by the
//     recorder's timeout.  The wrapped handler never waits on the store
//     and never sees its errors.
//  4. Wait blocks until in-flight writes finish.  Call it on shutdown
//     before closing the store.
package visit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/vidcat/internal/metrics"
	"github.com/yanizio/vidcat/internal/record"
)

// DefaultTimeout bounds one asynchronous visit write.
const DefaultTimeout = 5 * time.Second

// Inserter is satisfied by *mutation.Pipeline.
type Inserter interface {
	InsertVisit(ctx context.Context, in record.Visit) (record.Visit, error)
}

// Recorder turns requests into visit rows.
type Recorder struct {
	sink    Inserter
	geo     GeoLookup
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRecorder returns a Recorder.  geo and log may be nil; without geo
// every visit gets the unknown country.
func NewRecorder(sink Inserter, geo GeoLookup, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{sink: sink, geo: geo, log: log, timeout: DefaultTimeout}
}

// SetTimeout changes the per-write bound.  d <= 0 keeps the current one.
func (r *Recorder) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// FromRequest builds the visit for siteID.  ok is false for bots.
func (r *Recorder) FromRequest(req *http.Request, siteID string) (v record.Visit, ok bool) {
	if isBot(req.UserAgent()) {
		return record.Visit{}, false
	}
	ip := clientIP(req)
	v = record.Visit{
		SiteID:   siteID,
		Language: primaryLang(req.Header.Get("Accept-Language")),
		PageURL:  pageURL(req),
	}
	if ip != nil {
		v.IPAddress = ip.String()
	}
	v.CountryCode, v.CountryName = country(r.geo, ip)
	return v, true
}

func (r *Recorder) write(ctx context.Context, v record.Visit) error {
	if _, err := r.sink.InsertVisit(ctx, v); err != nil {
		metrics.VisitsSkippedTotal.WithLabelValues("error").Inc()
		r.log.Warn("visit not recorded",
			zap.String("site_id", v.SiteID),
			zap.String("page_url", v.PageURL),
			zap.Error(err))
		return err
	}
	metrics.VisitsRecordedTotal.Inc()
	return nil
}

// Middleware records one visit per request for the site siteOf returns,
// after the wrapped handler runs.  An empty site id skips the request.
func (r *Recorder) Middleware(siteOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)

			siteID := siteOf(req)
			if siteID == "" {
				metrics.VisitsSkippedTotal.WithLabelValues("no_site").Inc()
				return
			}
			v, ok := r.FromRequest(req, siteID)
			if !ok {
				metrics.VisitsSkippedTotal.WithLabelValues("bot").Inc()
				return
			}

			ctx := context.WithoutCancel(req.Context())
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				ctx, cancel := context.WithTimeout(ctx, r.timeout)
				defer cancel()
				_ = r.write(ctx, v)
			}()
		})
	}
}

// Wait blocks until every asynchronous write has finished.
func (r *Recorder) Wait() { r.wg.Wait() }
