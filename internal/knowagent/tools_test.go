package knowagent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webagents/internal/config"
)

// fakeWiki serves the summary, opensearch and Bing endpoints.
type fakeWiki struct {
	summaries map[string]string
	bingFail  bool
	bingKey   atomic.Value
	hits      atomic.Int64
}

func (f *fakeWiki) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/summary/", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		title := r.URL.Path[len("/summary/"):]
		extract, ok := f.summaries[title]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"title": %q, "extract": %q}`, title, extract)
	})
	mux.HandleFunc("/w/api.php", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		switch r.URL.Query().Get("search") {
		case "Milhous":
			fmt.Fprint(w, `["Milhous", ["Milhouse Van Houten", "Milhous"], ["", ""], ["https://en.wikipedia.org/wiki/Milhouse_Van_Houten", "https://en.wikipedia.org/wiki/Milhous"]]`)
		case "nothing":
			fmt.Fprint(w, `["nothing", [], [], []]`)
		default:
			q := r.URL.Query().Get("search")
			fmt.Fprintf(w, `[%q, ["Tom &amp; Jerry"], ["Cartoon about %s"], ["https://en.wikipedia.org/wiki/Tom_and_Jerry"]]`, q, q)
		}
	})
	mux.HandleFunc("/bing", func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		f.bingKey.Store(r.Header.Get("Ocp-Apim-Subscription-Key"))
		if f.bingFail {
			http.Error(w, "quota", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"webPages": {"value": [
			{"name": "<b>Leonid</b> Levin", "snippet": "A <b>Soviet-American</b> mathematician.", "url": "https://example.org/levin"},
			{"name": "Empty", "snippet": "", "url": "https://example.org/empty"}
		]}}`)
	})
	return mux
}

func newTestTools(t *testing.T, wiki *fakeWiki, bingKey string, cache Cache) *Tools {
	t.Helper()
	srv := httptest.NewServer(wiki.handler())
	t.Cleanup(srv.Close)
	cfg := config.KnowAgentConfig{
		WikipediaSummaryURL: srv.URL + "/summary/",
		WikipediaAPIURL:     srv.URL + "/w/api.php",
		BingEndpoint:        srv.URL + "/bing",
		BingAPIKey:          bingKey,
	}
	return NewTools(srv.Client(), cfg, cache, zaptest.NewLogger(t))
}

func TestRetrieve(t *testing.T) {
	wiki := &fakeWiki{summaries: map[string]string{"Milhouse": "Milhouse Van Houten is a character in The Simpsons."}}
	tools := newTestTools(t, wiki, "", nil)
	ctx := context.Background()

	assert.Equal(t, "Milhouse Van Houten is a character in The Simpsons.", tools.Retrieve(ctx, " Milhouse "))
	assert.Equal(t, "No summary found. Similar entities: Milhouse Van Houten, Milhous", tools.Retrieve(ctx, "Milhous"))
	assert.Equal(t, "Cartoon about Tom", tools.Retrieve(ctx, "Tom"))
	assert.Equal(t, noWikiContent, tools.Retrieve(ctx, "nothing"))
	assert.Equal(t, noEntity, tools.Retrieve(ctx, "  "))
}

func TestSearchFallsBackToOpensearch(t *testing.T) {
	tools := newTestTools(t, &fakeWiki{}, "", nil)
	got := tools.Search(context.Background(), "tom")
	assert.Equal(t, "Tom & Jerry: Cartoon about tom (https://en.wikipedia.org/wiki/Tom_and_Jerry)", got)
	assert.Equal(t, noResults, tools.Search(context.Background(), "nothing"))
	assert.Equal(t, noQuery, tools.Search(context.Background(), ""))
}

func TestSearchUsesBing(t *testing.T) {
	wiki := &fakeWiki{}
	tools := newTestTools(t, wiki, "secret", nil)

	got := tools.Search(context.Background(), "leonid levin")
	assert.Equal(t, "Leonid Levin: A Soviet-American mathematician. (https://example.org/levin)", got)
	assert.Equal(t, "secret", wiki.bingKey.Load())
}

func TestSearchBingFailureFallsBack(t *testing.T) {
	tools := newTestTools(t, &fakeWiki{bingFail: true}, "secret", nil)
	got := tools.Search(context.Background(), "tom")
	assert.Contains(t, got, "Tom & Jerry")
}

func TestToolsRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(config.RedisConfig{URL: "redis://" + mr.Addr(), TTL: time.Hour}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	wiki := &fakeWiki{summaries: map[string]string{"Milhouse": "Milhouse Van Houten."}}
	tools := newTestTools(t, wiki, "", cache)
	ctx := context.Background()

	assert.Equal(t, "Milhouse Van Houten.", tools.Retrieve(ctx, "Milhouse"))
	assert.Equal(t, "Milhouse Van Houten.", tools.Retrieve(ctx, "Milhouse"))
	assert.EqualValues(t, 1, wiki.hits.Load(), "the second call is served from the cache")

	key := "knowagent:tool:retrieve:Milhouse"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	assert.Equal(t, noWikiContent, tools.Retrieve(ctx, "nothing"))
	assert.False(t, mr.Exists("knowagent:tool:retrieve:nothing"), "failed lookups are not cached")
}

func TestRedisCacheMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := NewRedisCache(config.RedisConfig{URL: "redis://" + mr.Addr()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	_, err = cache.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cache.Set(context.Background(), "k", "v"))
	assert.Equal(t, defaultCacheTTL, mr.TTL("k"))
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache(config.RedisConfig{URL: "not a url"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	passage := "Milhouse is a character. He was named after Richard Nixon! Is he popular? Yes."
	assert.Equal(t, "He was named after Richard Nixon!", Lookup(passage, "named after"))
	assert.Equal(t, "Is he popular?", Lookup(passage, "POPULAR"))
	assert.Equal(t, noSentence, Lookup(passage, "Bart"))
	assert.Equal(t, noPassage, Lookup("", "x"))
	assert.Equal(t, noKeyword, Lookup(passage, " "))
}

func TestSplitSentences(t *testing.T) {
	assert.Equal(t, []string{"First one.", "Second one"}, splitSentences("First one.  Second one"))
	assert.Equal(t, []string{"One."}, splitSentences("One."))
}
