// internal/browser/browser_test.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webagents/internal/config"
)

func TestFindSearchInput(t *testing.T) {
	tests := []struct {
		name     string
		elements []Element
		wantID   string
		found    bool
	}{
		{"role searchbox", []Element{{ID: "el_1", Tag: "a", Role: "link"}, {ID: "el_2", Tag: "input", Role: "searchbox"}}, "el_2", true},
		{"type search", []Element{{ID: "el_1", Tag: "input", Role: "input", Type: "search"}}, "el_1", true},
		{"placeholder", []Element{{ID: "el_4", Tag: "input", Role: "input", Placeholder: "Search restaurants"}}, "el_4", true},
		{"korean placeholder", []Element{{ID: "el_5", Tag: "input", Role: "input", Placeholder: "검색어 입력"}}, "el_5", true},
		{"name q", []Element{{ID: "el_1", Tag: "input", Role: "input", Name: "email"}, {ID: "el_2", Tag: "input", Role: "input", Name: "Q"}}, "el_2", true},
		{"none", []Element{{ID: "el_1", Tag: "input", Role: "input", Name: "email"}}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, ok := FindSearchInput(tt.elements)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantID, el.ID)
		})
	}
}

func TestFindSearchButton(t *testing.T) {
	el, ok := FindSearchButton([]Element{
		{ID: "el_1", Tag: "a", Role: "link", Text: "Search tips"},
		{ID: "el_2", Tag: "button", Role: "button", Text: "Search"},
	})
	require.True(t, ok)
	assert.Equal(t, "el_2", el.ID, "links labelled search are not buttons")

	el, ok = FindSearchButton([]Element{{ID: "el_3", Tag: "input", Type: "SUBMIT"}})
	require.True(t, ok)
	assert.Equal(t, "el_3", el.ID)

	_, ok = FindSearchButton([]Element{{ID: "el_1", Tag: "button", Text: "Sign in"}})
	assert.False(t, ok)
}

func TestSelectorCandidates(t *testing.T) {
	assert.Equal(t, []string{`[data-agentq-id="el_3"]`, `[id="el_3"]`, "el_3"}, SelectorCandidates("el_3"))
	assert.Equal(t, []string{`[data-agentq-id="#search"]`, "#search"}, SelectorCandidates("#search"))
	assert.Equal(t, `[id="a\"b"]`, SelectorCandidates(`a"b`)[1])
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{nil, ""},
		{ErrElementNotFound, ErrCodeElementNotFound},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), ErrCodeTimeoutError},
		{errors.New("page load error net::ERR_NAME_NOT_RESOLVED"), ErrCodeNavigationError},
		{errors.New("could not find node with given id"), ErrCodeElementNotFound},
		{&ActionError{Code: ErrCodeInvalidParameters, Op: "scroll", Err: errors.New("bad")}, ErrCodeInvalidParameters},
		{errors.New("something odd"), ErrCodeExecutionFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyError(tt.err), "%v", tt.err)
	}
}

func TestActionErrorWrapping(t *testing.T) {
	err := newActionError("click", "el_9", ErrElementNotFound)
	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.Equal(t, `click "el_9": ELEMENT_NOT_FOUND: no element matches target`, err.Error())
	assert.NoError(t, newActionError("click", "el_9", nil))
}

func TestAllocatorOptions(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions)
	cfg := config.BrowserConfig{Headless: true, Args: []string{"--lang=en-US", "--mute-audio"}}
	opts := AllocatorOptions(cfg)
	assert.GreaterOrEqual(t, len(opts), base+5+2)

	cfg.Viewport = map[string]int{"width": 800, "height": 600}
	assert.Len(t, AllocatorOptions(cfg), len(opts)+1)
}

func TestDescribeElements(t *testing.T) {
	snap := &PageSnapshot{Elements: []Element{
		{ID: "el_1", Tag: "input", Name: "q", Placeholder: "Search"},
		{ID: "el_2", Tag: "a", Text: "Home", Href: "/"},
		{ID: "el_3", Tag: "button", Text: "Go"},
	}}
	assert.Equal(t, "[el_1] input (name=q, placeholder=Search)\n[el_2] a \"Home\" (href=/)\n... 1 more", snap.DescribeElements(2))
	assert.Equal(t, "No interactive elements.", (&PageSnapshot{}).DescribeElements(5))
}

// -- Browser integration --

const searchPage = `<!doctype html>
<html><head><title>Mini Shop</title></head>
<body>
  <h1>Welcome to Mini Shop</h1>
  <form action="/results" method="get">
    <input id="query" name="q" placeholder="Search products">
    <button type="submit">Search</button>
  </form>
  <a href="/about">About</a>
</body></html>`

func findChrome() string {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func newTestSession(t *testing.T) (*Session, *httptest.Server) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if findChrome() == "" {
		t.Skip("no Chrome or Chromium binary found")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, searchPage) })
	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Results</title></head><body><p>Results for %s</p></body></html>`, r.URL.Query().Get("q"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)
	s, err := NewSession(ctx, config.BrowserConfig{
		Headless:      true,
		ActionTimeout: 10 * time.Second,
		Args:          []string{"--user-data-dir=" + t.TempDir()},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, srv
}

func TestSessionSnapshotAndSearch(t *testing.T) {
	s, srv := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, srv.URL))
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Mini Shop", snap.Title)
	assert.Contains(t, snap.Content, "Welcome to Mini Shop")
	require.Len(t, snap.Elements, 3)
	assert.Equal(t, "query", snap.Elements[0].DomID)
	assert.Equal(t, "el_1", snap.Elements[0].ID)

	again, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Elements[0].ID, again.Elements[0].ID, "labels are stable")

	ok, err := s.FindAndUseSearchBar(ctx, "red shoes")
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		title, err := s.Title(ctx)
		return err == nil && title == "Results"
	}, 10*time.Second, 100*time.Millisecond)
	u, err := s.URL(ctx)
	require.NoError(t, err)
	assert.Contains(t, u, "q=red+shoes")
}

func TestSessionLookupFallbackAndErrors(t *testing.T) {
	s, srv := newTestSession(t)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, srv.URL))

	require.NoError(t, s.SetInput(ctx, "query", "lamp"), "DOM id fallback")
	require.NoError(t, s.Clear(ctx, "#query"))

	err := s.ClickByID(ctx, "el_404")
	assert.Equal(t, ErrCodeElementNotFound, ClassifyError(err))

	err = s.Scroll(ctx, "sideways", 1)
	assert.Equal(t, ErrCodeInvalidParameters, ClassifyError(err))
	require.NoError(t, s.Scroll(ctx, "down", 1))

	path := filepath.Join(t.TempDir(), "shots", "page.png")
	require.NoError(t, s.Screenshot(ctx, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Navigate(ctx, srv.URL), ErrSessionClosed)
}
