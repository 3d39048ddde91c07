package suggest

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Route is the network path for one attempt. Proxy is nil for direct requests.
type Route struct {
	Proxy *url.URL
	HTTP  *http.Client
}

// Label names the route for logs.
func (r Route) Label() string {
	if r.Proxy == nil {
		return "direct"
	}
	return r.Proxy.Host
}

// ProxyRotator hands out routes round-robin. The index advances on every call,
// whatever the outcome of the previous attempt.
type ProxyRotator struct {
	mu     sync.Mutex
	routes []Route
	next   int
}

// NewProxyRotator builds one client per proxy. With no proxies every call returns
// the same direct route. Entries without a scheme are treated as http proxies.
func NewProxyRotator(proxies []string) (*ProxyRotator, error) {
	r := &ProxyRotator{}
	for _, raw := range proxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", raw)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
		r.routes = append(r.routes, Route{Proxy: u, HTTP: newHTTPClient(u)})
	}
	if len(r.routes) == 0 {
		r.routes = []Route{{HTTP: newHTTPClient(nil)}}
	}
	return r, nil
}

// Enabled reports whether any proxy is configured.
func (r *ProxyRotator) Enabled() bool {
	return r.routes[0].Proxy != nil
}

// Len returns the number of proxies, or 0 when requests go direct.
func (r *ProxyRotator) Len() int {
	if !r.Enabled() {
		return 0
	}
	return len(r.routes)
}

// Next returns the current route and advances the index.
func (r *ProxyRotator) Next() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	route := r.routes[r.next]
	r.next = (r.next + 1) % len(r.routes)
	return route
}

func newHTTPClient(proxy *url.URL) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Transport: transport}
}
