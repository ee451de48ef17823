package knowagent

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	opensearchLimit = 5
	bingResults     = 5
	maxBodyBytes    = 2 << 20
)

// Observations returned when a tool finds nothing.
const (
	noEntity      = "No entity provided."
	noWikiContent = "No relevant Wikipedia content found."
	noQuery       = "No query provided."
	noResults     = "No search results found."
	searchFailed  = "Search failed and no fallback available."
	noPassage     = "No prior passage to lookup from."
	noKeyword     = "No keyword provided for lookup."
	noSentence    = "No sentence containing the keyword found in the last passage."
)

// Tools runs the Retrieve and Search actions against Wikipedia and Bing.
type Tools struct {
	http   *http.Client
	cfg    config.KnowAgentConfig
	cache  Cache
	logger *zap.Logger
}

// NewTools builds the tool set. A nil cache disables caching.
func NewTools(httpClient *http.Client, cfg config.KnowAgentConfig, cache Cache, logger *zap.Logger) *Tools {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Tools{http: httpClient, cfg: cfg, cache: cache, logger: logger.Named("knowagent_tools")}
}

// Retrieve returns the Wikipedia summary of entity, or the closest
// opensearch matches when there is no page of that name.
func (t *Tools) Retrieve(ctx context.Context, entity string) string {
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return noEntity
	}
	return t.cached(ctx, "retrieve", entity, func() (string, bool) {
		if extract, err := t.summary(ctx, entity); err == nil && extract != "" {
			return extract, true
		} else if err != nil {
			t.logger.Debug("Wikipedia summary failed", zap.String("entity", entity), zap.Error(err))
		}

		res, err := t.opensearch(ctx, entity)
		if err != nil {
			t.logger.Warn("Wikipedia opensearch failed", zap.String("entity", entity), zap.Error(err))
			return noWikiContent, false
		}
		for _, d := range res.descriptions {
			if d != "" {
				return d, true
			}
		}
		if len(res.titles) > 0 {
			return "No summary found. Similar entities: " + strings.Join(res.titles, ", "), true
		}
		return noWikiContent, false
	})
}

// Search queries Bing when a key is configured and falls back to Wikipedia
// opensearch otherwise or when Bing fails.
func (t *Tools) Search(ctx context.Context, query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return noQuery
	}
	return t.cached(ctx, "search", query, func() (string, bool) {
		if t.cfg.BingAPIKey != "" {
			obs, err := t.bing(ctx, query)
			if err == nil {
				return obs, true
			}
			t.logger.Warn("Bing search failed, falling back to opensearch", zap.String("query", query), zap.Error(err))
		}

		res, err := t.opensearch(ctx, query)
		if err != nil {
			t.logger.Warn("Wikipedia opensearch failed", zap.String("query", query), zap.Error(err))
			return searchFailed, false
		}
		var lines []string
		for i, title := range res.titles {
			line := html.UnescapeString(title) + ": "
			if i < len(res.descriptions) {
				line += html.UnescapeString(res.descriptions[i])
			}
			if i < len(res.links) {
				line += " (" + res.links[i] + ")"
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			return noResults, true
		}
		return strings.Join(lines, "\n"), true
	})
}

// cached serves key from the cache or computes it with fn, storing results
// fn marks as cacheable.
func (t *Tools) cached(ctx context.Context, tool, arg string, fn func() (string, bool)) string {
	key := cacheKey(tool, arg)
	if t.cache != nil {
		val, err := t.cache.Get(ctx, key)
		if err == nil {
			t.logger.Debug("Tool cache hit", zap.String("key", key))
			return val
		}
		if !errors.Is(err, ErrCacheMiss) {
			t.logger.Warn("Tool cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	obs, ok := fn()
	if ok && t.cache != nil {
		if err := t.cache.Set(ctx, key, obs); err != nil {
			t.logger.Warn("Tool cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return obs
}

type summaryResponse struct {
	Extract string `json:"extract"`
}

func (t *Tools) summary(ctx context.Context, entity string) (string, error) {
	u := strings.TrimRight(t.cfg.WikipediaSummaryURL, "/") + "/" + url.PathEscape(entity)
	var resp summaryResponse
	if err := t.getJSON(ctx, u, nil, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Extract), nil
}

type opensearchResult struct {
	titles       []string
	descriptions []string
	links        []string
}

func (t *Tools) opensearch(ctx context.Context, query string) (opensearchResult, error) {
	params := url.Values{
		"action":    {"opensearch"},
		"search":    {query},
		"limit":     {fmt.Sprint(opensearchLimit)},
		"namespace": {"0"},
		"format":    {"json"},
	}
	var raw []jsoniter.RawMessage
	if err := t.getJSON(ctx, t.cfg.WikipediaAPIURL+"?"+params.Encode(), nil, &raw); err != nil {
		return opensearchResult{}, err
	}
	if len(raw) < 4 {
		return opensearchResult{}, fmt.Errorf("unexpected opensearch response with %d elements", len(raw))
	}
	var res opensearchResult
	for i, dst := range []*[]string{&res.titles, &res.descriptions, &res.links} {
		if err := json.Unmarshal(raw[i+1], dst); err != nil {
			return opensearchResult{}, fmt.Errorf("decoding opensearch element %d: %w", i+1, err)
		}
	}
	return res, nil
}

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			Snippet string `json:"snippet"`
			URL     string `json:"url"`
		} `json:"value"`
	} `json:"webPages"`
}

func (t *Tools) bing(ctx context.Context, query string) (string, error) {
	params := url.Values{"q": {query}, "textDecorations": {"true"}, "textFormat": {"HTML"}}
	headers := map[string]string{"Ocp-Apim-Subscription-Key": t.cfg.BingAPIKey}
	var resp bingResponse
	if err := t.getJSON(ctx, t.cfg.BingEndpoint+"?"+params.Encode(), headers, &resp); err != nil {
		return "", err
	}

	var lines []string
	for _, v := range resp.WebPages.Value {
		if len(lines) == bingResults {
			break
		}
		snippet := stripTags(v.Snippet)
		if snippet == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", stripTags(v.Name), snippet, v.URL))
	}
	if len(lines) == 0 {
		return "Search returned no results.", nil
	}
	return strings.Join(lines, "\n"), nil
}

// stripTags drops the <b> decorations Bing puts around matched terms.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return html.UnescapeString(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}

func (t *Tools) getJSON(ctx context.Context, target string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out)
}

// Lookup returns the first sentence of passage that mentions keyword.
func Lookup(passage, keyword string) string {
	if passage == "" {
		return noPassage
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return noKeyword
	}
	kw := strings.ToLower(keyword)
	for _, s := range splitSentences(passage) {
		if strings.Contains(strings.ToLower(s), kw) {
			return s
		}
	}
	return noSentence
}

// splitSentences breaks text after '.', '!' or '?' followed by whitespace.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if isSpace(text[i+1]) {
				out = append(out, strings.TrimSpace(text[start:i+1]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
