package network

import (
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter admits requests through one token bucket per host.
type hostLimiter struct {
	next  http.RoundTripper
	rps   rate.Limit
	burst int

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func newHostLimiter(next http.RoundTripper, rps float64, burst int) *hostLimiter {
	if burst < 1 {
		burst = 1
	}
	return &hostLimiter{next: next, rps: rate.Limit(rps), burst: burst, hosts: make(map[string]*rate.Limiter)}
}

func (h *hostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.hosts[host]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.hosts[host] = l
	}
	return l
}

func (h *hostLimiter) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := h.limiterFor(req.URL.Host).Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", req.URL.Host, err)
	}
	return h.next.RoundTrip(req)
}
