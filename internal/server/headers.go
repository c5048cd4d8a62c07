// internal/server/headers.go
//
// Response-header middleware for the ops listener.
//
// Notes
// -----
// • Headers are set before next.ServeHTTP so they survive handlers that
//   write the body straight away.  Existing values are never overwritten.
// • No HSTS or CSP: the listener serves JSON, plain text, and empty beacon
//   responses, never HTML.
package server

import "net/http"

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if h.Get("Cache-Control") == "" {
			h.Set("Cache-Control", "no-store")
		}
		if h.Get("X-Content-Type-Options") == "" {
			h.Set("X-Content-Type-Options", "nosniff")
		}
		next.ServeHTTP(w, r)
	})
}
