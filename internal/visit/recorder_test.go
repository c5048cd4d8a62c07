package visit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/yanizio/vidcat/internal/adapter"
	"github.com/yanizio/vidcat/internal/analytics"
	"github.com/yanizio/vidcat/internal/docstore"
	"github.com/yanizio/vidcat/internal/mutation"
	"github.com/yanizio/vidcat/internal/record"
)

const (
	chromeUA    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// fakeGeo maps exact addresses to countries.
type fakeGeo map[string][2]string

func (f fakeGeo) Country(ip net.IP) (*geoip2.Country, error) {
	c, ok := f[ip.String()]
	if !ok {
		return nil, errors.New("not in database")
	}
	rec := &geoip2.Country{}
	rec.Country.IsoCode = c[0]
	rec.Country.Names = map[string]string{"en": c[1]}
	return rec, nil
}

// sink collects inserted visits.
type sink struct {
	mu     sync.Mutex
	visits []record.Visit
	err    error
}

func (s *sink) InsertVisit(_ context.Context, v record.Visit) (record.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return record.Visit{}, s.err
	}
	s.visits = append(s.visits, v)
	return v, nil
}

func request(target string, header map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.RemoteAddr = "198.51.100.7:51234"
	r.Header.Set("User-Agent", chromeUA)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	return r
}

func TestFromRequest(t *testing.T) {
	rec := NewRecorder(&sink{}, fakeGeo{"203.0.113.5": {"kr", "South Korea"}}, nil)
	r := request("/watch/v1?page=https://gods.example.com/watch/v1", map[string]string{
		"X-Forwarded-For": "203.0.113.5, 10.0.0.1",
		"Accept-Language": "ko-KR,ko;q=0.9,en;q=0.8",
	})

	v, ok := rec.FromRequest(r, "gods")
	require.True(t, ok)
	assert.Equal(t, "gods", v.SiteID)
	assert.Equal(t, "203.0.113.5", v.IPAddress)
	assert.Equal(t, "KR", v.CountryCode)
	assert.Equal(t, "South Korea", v.CountryName)
	assert.Equal(t, "ko", v.Language)
	assert.Equal(t, "https://gods.example.com/watch/v1", v.PageURL)
}

func TestFromRequestUnknownsStayBlank(t *testing.T) {
	rec := NewRecorder(&sink{}, nil, nil)
	v, ok := rec.FromRequest(request("/a?b=c", nil), "gods")
	require.True(t, ok)
	assert.Equal(t, "198.51.100.7", v.IPAddress)
	assert.Empty(t, v.CountryCode)
	assert.Empty(t, v.Language)
	assert.Equal(t, "/a?b=c", v.PageURL)
}

func TestFromRequestSkipsBots(t *testing.T) {
	rec := NewRecorder(&sink{}, nil, nil)
	_, ok := rec.FromRequest(request("/", map[string]string{"User-Agent": googlebotUA}), "gods")
	assert.False(t, ok)
}

func TestClientIP(t *testing.T) {
	r := request("/", map[string]string{"X-Real-Ip": "192.0.2.44"})
	assert.Equal(t, "192.0.2.44", clientIP(r).String())

	r = request("/", map[string]string{"X-Forwarded-For": "garbage, 192.0.2.9"})
	assert.Equal(t, "192.0.2.9", clientIP(r).String())

	r = request("/", nil)
	assert.Equal(t, "198.51.100.7", clientIP(r).String())
}

func TestPrimaryLang(t *testing.T) {
	cases := map[string]string{
		"":                       "",
		"*":                      "",
		"en":                     "en",
		"en-US,en;q=0.9":         "en",
		"ZH-Hant-TW;q=0.8, en":   "zh",
		" pt-BR ;q=1":            "pt",
		"notalanguagetag-really": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, primaryLang(in), in)
	}
}

func TestMiddlewareRecordsAsynchronously(t *testing.T) {
	s := &sink{}
	rec := NewRecorder(s, nil, nil)
	h := rec.Middleware(func(*http.Request) string { return "gods" })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("/p", nil))
	rec.Wait()

	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, s.visits, 1)
	assert.Equal(t, "/p", s.visits[0].PageURL)
}

func TestMiddlewareNeverFailsTheRequest(t *testing.T) {
	s := &sink{err: errors.New("store down")}
	rec := NewRecorder(s, nil, nil)
	h := rec.Middleware(func(*http.Request) string { return "gods" })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("/", nil))
	rec.Wait()

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestMiddlewareSkipsBotsAndMissingSite(t *testing.T) {
	s := &sink{}
	rec := NewRecorder(s, nil, nil)
	site := ""
	h := rec.Middleware(func(*http.Request) string { return site })(http.NotFoundHandler())

	h.ServeHTTP(httptest.NewRecorder(), request("/", nil))
	site = "gods"
	h.ServeHTTP(httptest.NewRecorder(), request("/", map[string]string{"User-Agent": googlebotUA}))
	rec.Wait()

	assert.Empty(t, s.visits)
}

func TestMiddlewareDetachesFromRequestContext(t *testing.T) {
	store := docstore.NewMemory()
	lookup := adapter.New(store, analytics.New(store, time.UTC, nil), nil)
	rec := NewRecorder(mutation.New(store, lookup, nil), fakeGeo{"198.51.100.7": {"US", "United States"}}, nil)

	h := rec.Middleware(func(*http.Request) string { return "gods" })(http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	r := request("/", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), r)
	cancel()
	rec.Wait()

	var got []record.Visit
	require.NoError(t, store.Collection(record.CollVisits).Find(context.Background(), bson.D{}, docstore.FindOptions{}, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "US", got[0].CountryCode)
	assert.Equal(t, record.DefaultLanguage, got[0].Language)
}

// stall blocks until the write context ends and reports why.
type stall struct{ errc chan error }

func (s stall) InsertVisit(ctx context.Context, _ record.Visit) (record.Visit, error) {
	<-ctx.Done()
	s.errc <- ctx.Err()
	return record.Visit{}, ctx.Err()
}

func TestSetTimeoutBoundsAsyncWrite(t *testing.T) {
	s := stall{errc: make(chan error, 1)}
	rec := NewRecorder(s, nil, nil)
	rec.SetTimeout(20 * time.Millisecond)
	rec.SetTimeout(0)
	assert.Equal(t, 20*time.Millisecond, rec.timeout)

	h := rec.Middleware(func(*http.Request) string { return "gods" })(http.NotFoundHandler())
	start := time.Now()
	h.ServeHTTP(httptest.NewRecorder(), request("/", nil))
	rec.Wait()

	assert.ErrorIs(t, <-s.errc, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), DefaultTimeout)
}
