package scheduler

import (
	"math/rand/v2"
	"net/http"
)

// HeaderProvider supplies the request identity for one outbound fetch.
// Randomising it is best-effort obfuscation, not a security boundary.
type HeaderProvider interface {
	Headers() http.Header
}

// DefaultUserAgents is the mobile user-agent pool used by RandomHeaders.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (iPhone; CPU iPhone OS 15_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Android 12; Mobile; rv:92.0) Gecko/92.0 Firefox/92.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 14_7_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.2 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 11; SM-G991B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.120 Mobile Safari/537.36",
}

// browserHeaders is the static part of a page navigation. Accept-Encoding is
// left to the transport so compressed bodies are decoded transparently.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "zh-TW,zh;q=0.9,en;q=0.8",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Cache-Control":             "max-age=0",
}

// RandomHeaders picks a user agent from a pool on every call
type RandomHeaders struct {
	UserAgents []string
}

// NewRandomHeaders uses DefaultUserAgents
func NewRandomHeaders() *RandomHeaders {
	return &RandomHeaders{UserAgents: DefaultUserAgents}
}

func (r *RandomHeaders) Headers() http.Header {
	h := make(http.Header, len(browserHeaders)+1)
	for k, v := range browserHeaders {
		h.Set(k, v)
	}
	if len(r.UserAgents) > 0 {
		h.Set("User-Agent", r.UserAgents[rand.IntN(len(r.UserAgents))])
	}
	return h
}

// StaticHeaders always returns the same header set. Useful in tests and when
// obfuscation is disabled.
type StaticHeaders map[string]string

func (s StaticHeaders) Headers() http.Header {
	h := make(http.Header, len(s))
	for k, v := range s {
		h.Set(k, v)
	}
	return h
}
