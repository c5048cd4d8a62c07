// internal/visit/request.go
//
// Per-request visitor attributes.
//
// Context
// -------
// A visit row needs four things from the HTTP request: the client address,
// the country that address maps to, the visitor's primary language, and
// the page.  The helpers here derive each one and never fail: anything
// unknown is left blank so record.NewVisit applies its defaults (en, ZZ,
// Unknown).
//
// Notes
// -----
//   - The client IP is the left-most parseable X-Forwarded-For entry, then
//     X-Real-Ip, then RemoteAddr.  Only deploy behind a proxy that
//     overwrites these headers.
//   - Oxford commas, two spaces after periods.
package visit

import (
	"net"
	"net/http"
	"strings"

	surfer "github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

// GeoLookup is the subset of *geoip2.Reader the recorder uses.
type GeoLookup interface {
	Country(ip net.IP) (*geoip2.Country, error)
}

// OpenGeo opens a GeoLite2 Country or City database.
func OpenGeo(path string) (*geoip2.Reader, error) {
	return geoip2.Open(path)
}

// clientIP extracts the left-most address from X-Forwarded-For or
// X-Real-Ip, falling back to r.RemoteAddr ("ip:port").
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(r.RemoteAddr)
}

// primaryLang returns the primary subtag of the first Accept-Language
// entry, lowercased: "ko-KR,ko;q=0.9,en;q=0.8" → "ko".  A wildcard or an
// empty header yields "".
func primaryLang(al string) string {
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(tag, ";")
	tag, _, _ = strings.Cut(strings.TrimSpace(tag), "-")
	tag = strings.ToLower(tag)
	if tag == "*" || len(tag) > 8 {
		return ""
	}
	return tag
}

// country maps ip to an ISO code and English name.  Misses are blank.
func country(geo GeoLookup, ip net.IP) (code, name string) {
	if geo == nil || ip == nil {
		return "", ""
	}
	rec, err := geo.Country(ip)
	if err != nil || rec == nil || rec.Country.IsoCode == "" {
		return "", ""
	}
	return strings.ToUpper(rec.Country.IsoCode), rec.Country.Names["en"]
}

// isBot reports crawler and bot user agents.
func isBot(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	return surfer.Parse(userAgent).IsBot()
}

// pageURL prefers an explicit ?page= (beacon requests) over the request
// URI.
func pageURL(r *http.Request) string {
	if p := r.URL.Query().Get("page"); p != "" {
		return p
	}
	return r.URL.RequestURI()
}
