// internal/server/timeouts.go
//
// HTTP server helper with fixed timeouts.
//
//   • ReadTimeout   abort slow-loris headers (10 s)
//   • WriteTimeout  cap total response time (15 s)
//   • IdleTimeout   close keep-alives on idle clients (60 s)
//
// The ops listener serves probes, scrapes, and beacons.  None of them
// stream, so the write cap is safe.

package server

import (
	"net/http"
	"time"
)

const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 15 * time.Second
	IdleTimeout  = 60 * time.Second
)

// New constructs an *http.Server for addr with the timeouts above.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       ReadTimeout,
		ReadHeaderTimeout: ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}
}
