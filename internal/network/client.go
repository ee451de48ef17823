// File: internal/network/client.go
package network

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/webagents/internal/config"
)

const (
	DefaultRequestTimeout      = 10 * time.Second
	DefaultDialTimeout         = 5 * time.Second
	DefaultKeepAliveInterval   = 15 * time.Second
	DefaultTLSHandshakeTimeout = 5 * time.Second
	DefaultMaxIdleConns        = 50
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 30 * time.Second
)

// NewTransport returns the pooled base transport. Compression is handled by
// our own layer, so the stdlib one is disabled.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: DefaultKeepAliveInterval}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		DisableCompression:  true,
		ForceAttemptHTTP2:   true,
	}
}

// NewClient builds the HTTP client shared by the WebShop and KnowAgent tools:
// pooled transport, response decompression, an optional per-host rate limit,
// a fixed User-Agent and a public-suffix aware cookie jar.
//
// Callers must close response bodies.
func NewClient(cfg config.NetworkConfig, logger *zap.Logger) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = NewTransport()
	rt = &compressionTransport{next: rt}
	if cfg.RateLimit > 0 {
		rt = newHostLimiter(rt, cfg.RateLimit, cfg.Burst)
		logger.Debug("Per-host rate limit enabled", zap.Float64("rps", cfg.RateLimit), zap.Int("burst", cfg.Burst))
	}
	if cfg.UserAgent != "" {
		rt = &userAgentTransport{next: rt, agent: cfg.UserAgent}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &http.Client{Transport: rt, Timeout: timeout, Jar: jar}, nil
}

type userAgentTransport struct {
	next  http.RoundTripper
	agent string
}

func (u *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", u.agent)
	}
	return u.next.RoundTrip(req)
}

type idleCloser interface{ CloseIdleConnections() }

// closeIdle forwards CloseIdleConnections down the RoundTripper chain so
// http.Client.CloseIdleConnections reaches the pooled transport.
func closeIdle(next http.RoundTripper) {
	if c, ok := next.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}

func (u *userAgentTransport) CloseIdleConnections()   { closeIdle(u.next) }
func (c *compressionTransport) CloseIdleConnections() { closeIdle(c.next) }
func (h *hostLimiter) CloseIdleConnections()          { closeIdle(h.next) }
