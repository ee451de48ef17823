package webshop

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// maxPageBytes bounds how much of a page is read.
const maxPageBytes = 4 << 20

// Client is an Env backed by a live WebShop server. It keeps one cookie
// session through the supplied http.Client.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

var _ Env = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid webshop base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: u, http: httpClient, logger: logger.Named("webshop")}, nil
}

// Reset loads the home page.
func (c *Client) Reset(ctx context.Context) (Observation, error) {
	return c.fetch(ctx, http.MethodGet, c.resolve("/"), nil, "")
}

// Search submits query through the search form.
func (c *Client) Search(ctx context.Context, query string) (Observation, error) {
	form := url.Values{"search_query": {query}}
	return c.fetch(ctx, http.MethodPost, c.resolve("/abc"), strings.NewReader(form.Encode()), query)
}

// Choose follows the clickable labelled target on from. Buttons without an
// href reload the current page and unknown labels fall back to the home page.
func (c *Client) Choose(ctx context.Context, from Observation, target string) (Observation, error) {
	dest, ok := from.Target(target)
	switch {
	case !ok:
		c.logger.Warn("Clickable not found, returning to home page", zap.String("target", target))
		dest = c.resolve("/")
	case dest == ButtonClick:
		dest = from.URL
		if dest == "" {
			dest = c.resolve("/")
		}
	default:
		dest = c.resolve(dest)
	}
	return c.fetch(ctx, http.MethodGet, dest, nil, "")
}

func (c *Client) Step(ctx context.Context, from Observation, a Action) (Observation, error) {
	switch a.Kind {
	case ActionSearch:
		return c.Search(ctx, a.Arg)
	case ActionChoose:
		return c.Choose(ctx, from, a.Arg)
	default:
		return Observation{}, fmt.Errorf("unsupported action type: %s", a.Kind)
	}
}

// resolve joins a relative reference to the base URL. Absolute URLs pass through.
func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return c.base.String() + ref
	}
	if u.IsAbs() {
		return u.String()
	}
	if strings.HasPrefix(ref, "/") {
		return c.base.String() + ref
	}
	return c.base.ResolveReference(u).String()
}

// fetch performs the request and parses the page. On failure it returns an
// empty observation carrying the query, plus the error.
func (c *Client) fetch(ctx context.Context, method, target string, body io.Reader, query string) (Observation, error) {
	empty := Observation{Query: query}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return empty, fmt.Errorf("build %s %s: %w", method, target, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return empty, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return empty, fmt.Errorf("read %s: %w", target, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		empty.Raw = string(raw)
		return empty, fmt.Errorf("%s %s: unexpected status %d", method, target, resp.StatusCode)
	}

	obs, err := ParseHTML(bytes.NewReader(raw))
	if err != nil {
		return empty, err
	}
	obs.URL = resp.Request.URL.String()
	obs.Raw = string(raw)
	if query != "" {
		obs.Query = query
	}

	c.logger.Debug("Page loaded",
		zap.String("url", obs.URL),
		zap.Int("products", len(obs.Products)),
		zap.Int("clickables", len(obs.Clickables)))
	return obs, nil
}
