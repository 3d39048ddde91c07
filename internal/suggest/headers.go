package suggest

import (
	"math/rand/v2"
	"net/http"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/119.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/119.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0",
}

var defaultAccepts = []string{
	"application/json, text/javascript, */*; q=0.01",
	"application/json, text/plain, */*",
	"*/*",
}

var defaultAcceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.8",
	"en;q=0.9",
	"en-US,en;q=0.8,zh-CN;q=0.6",
}

// HeaderPool draws a fresh header set per attempt to vary the request fingerprint.
type HeaderPool struct {
	userAgents      []string
	accepts         []string
	acceptLanguages []string
}

// NewHeaderPool uses userAgents when non-empty, otherwise a built-in desktop browser list.
func NewHeaderPool(userAgents []string) *HeaderPool {
	if len(userAgents) == 0 {
		userAgents = defaultUserAgents
	}
	return &HeaderPool{
		userAgents:      userAgents,
		accepts:         defaultAccepts,
		acceptLanguages: defaultAcceptLanguages,
	}
}

// Next returns a randomized header set. Safe for concurrent use.
func (p *HeaderPool) Next() http.Header {
	h := make(http.Header, 4)
	h.Set("User-Agent", pick(p.userAgents))
	h.Set("Accept", pick(p.accepts))
	h.Set("Accept-Language", pick(p.acceptLanguages))
	h.Set("Cache-Control", "no-cache")
	return h
}

func pick(options []string) string {
	return options[rand.IntN(len(options))]
}
