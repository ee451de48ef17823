// internal/browser/actions.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const scrollStep = 300

// Navigate loads url and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return &ActionError{Code: ErrCodeInvalidParameters, Op: "navigate", Err: fmt.Errorf("empty url")}
	}
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		ae := &ActionError{Code: ClassifyError(err), Op: "navigate", Target: url, Err: err}
		if ae.Code == ErrCodeExecutionFailure {
			ae.Code = ErrCodeNavigationError
		}
		return ae
	}
	s.logger.Debug("Navigated.", zap.String("url", url))
	return nil
}

// Title returns the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Title(&title)); err != nil {
		return "", newActionError("title", "", err)
	}
	return title, nil
}

// URL returns the current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Location(&loc)); err != nil {
		return "", newActionError("url", "", err)
	}
	return loc, nil
}

// Click clicks the first element matching a raw CSS selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if selector == "" {
		return &ActionError{Code: ErrCodeInvalidParameters, Op: "click", Err: fmt.Errorf("empty selector")}
	}
	err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
	return newActionError("click", selector, err)
}

// ClickByID clicks the element resolved through the lookup chain.
func (s *Session) ClickByID(ctx context.Context, id string) error {
	sel, err := s.resolve(ctx, id)
	if err != nil {
		return newActionError("click", id, err)
	}
	return newActionError("click", id, s.run(ctx, s.cfg.ActionTimeout, chromedp.Click(sel, chromedp.ByQuery)))
}

// SetInput replaces the value of the resolved element with text.
// Typing is tried first; widgets that reject key events get their value set
// directly, with input and change events dispatched.
func (s *Session) SetInput(ctx context.Context, id, text string) error {
	sel, err := s.resolve(ctx, id)
	if err != nil {
		return newActionError("type", id, err)
	}

	timeout := s.cfg.ActionTimeout
	var keys chromedp.Action = chromedp.SendKeys(sel, text, chromedp.ByQuery)
	if s.typist != nil {
		timeout += time.Duration(len([]rune(text))) * 150 * time.Millisecond
		keys = s.typist.typeText(text)
	}
	typed := s.run(ctx, timeout,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		keys,
	)
	if typed == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Debug("Typing failed, setting value directly.", zap.String("target", id), zap.Error(typed))

	script := fmt.Sprintf(`((el, v) => {
		if (!el) return false;
		if ('value' in el) el.value = v; else el.innerText = v;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})(document.querySelector(%s), %s)`, jsString(sel), jsString(text))
	var ok bool
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &ok)); err != nil {
		return newActionError("type", id, err)
	}
	if !ok {
		return newActionError("type", id, ErrElementNotFound)
	}
	return nil
}

// Clear empties the resolved input.
func (s *Session) Clear(ctx context.Context, id string) error {
	return s.SetInput(ctx, id, "")
}

// Submit submits the form owning the resolved element, or clicks it when it has none.
func (s *Session) Submit(ctx context.Context, id string) error {
	sel, err := s.resolve(ctx, id)
	if err != nil {
		return newActionError("submit", id, err)
	}
	script := fmt.Sprintf(`(el => {
		if (el.form) { el.form.requestSubmit ? el.form.requestSubmit() : el.form.submit(); }
		else { el.click(); }
		return true;
	})(document.querySelector(%s))`, jsString(sel))
	var ok bool
	return newActionError("submit", id, s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &ok)))
}

// Scroll scrolls the window up or down by amount steps.
func (s *Session) Scroll(ctx context.Context, direction string, amount int) error {
	if amount <= 0 {
		amount = 3
	}
	var dy int
	switch strings.ToLower(direction) {
	case "down":
		dy = amount * scrollStep
	case "up":
		dy = -amount * scrollStep
	default:
		return &ActionError{Code: ErrCodeInvalidParameters, Op: "scroll", Target: direction, Err: fmt.Errorf("unsupported direction")}
	}
	return newActionError("scroll", direction, s.run(ctx, s.cfg.ActionTimeout,
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", dy), nil)))
}

// Screenshot writes a PNG of the viewport to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return &ActionError{Code: ErrCodeInvalidParameters, Op: "screenshot", Target: path, Err: err}
	}
	var buf []byte
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return newActionError("screenshot", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return newActionError("screenshot", path, err)
		}
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return newActionError("screenshot", path, err)
	}
	return nil
}

// Snapshot indexes the interactive elements and captures title, URL and body text.
func (s *Session) Snapshot(ctx context.Context) (*PageSnapshot, error) {
	snap := &PageSnapshot{}
	err := s.run(ctx, s.cfg.ActionTimeout,
		chromedp.Evaluate(indexScript, &snap.Elements),
		chromedp.Title(&snap.Title),
		chromedp.Location(&snap.URL),
		chromedp.Evaluate(bodyTextScript, &snap.Content),
	)
	if err != nil {
		return nil, newActionError("snapshot", "", err)
	}
	return snap, nil
}

// FindAndUseSearchBar types query into the page's own search box and submits it.
// It reports false when the page has no recognizable search box.
func (s *Session) FindAndUseSearchBar(ctx context.Context, query string) (bool, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	input, ok := FindSearchInput(snap.Elements)
	if !ok {
		s.logger.Debug("No search box on page.", zap.Int("elements", len(snap.Elements)))
		return false, nil
	}
	if err := s.SetInput(ctx, input.ID, query); err != nil {
		return false, err
	}

	if button, ok := FindSearchButton(snap.Elements); ok {
		err = s.ClickByID(ctx, button.ID)
	} else {
		err = s.run(ctx, s.cfg.ActionTimeout, chromedp.SendKeys(idSelector(input.ID), kb.Enter, chromedp.ByQuery))
		err = newActionError("search", input.ID, err)
	}
	if err != nil {
		return false, err
	}

	// Give the results page a moment to start loading before waiting on it.
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(300 * time.Millisecond):
	}
	if err := s.run(ctx, s.cfg.NavigationTimeout, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return false, newActionError("search", input.ID, err)
	}
	s.logger.Debug("Used on-page search.", zap.String("input", input.ID), zap.String("query", query))
	return true, nil
}

// resolve finds the selector for target: the data-agentq-id label first, then the
// DOM id, then target itself as a CSS selector.
func (s *Session) resolve(ctx context.Context, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", &ActionError{Code: ErrCodeInvalidParameters, Op: "resolve", Err: fmt.Errorf("empty target")}
	}
	for _, sel := range SelectorCandidates(target) {
		var found bool
		script := fmt.Sprintf(`(() => { try { return document.querySelector(%s) !== null; } catch (e) { return false; } })()`, jsString(sel))
		if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, &found)); err != nil {
			return "", err
		}
		if found {
			return sel, nil
		}
	}
	return "", ErrElementNotFound
}

// SelectorCandidates lists the selectors tried for target, in order.
func SelectorCandidates(target string) []string {
	cands := []string{idSelector(target)}
	if strings.HasPrefix(target, "#") {
		cands = append(cands, target)
	} else {
		cands = append(cands, fmt.Sprintf(`[id=%s]`, cssString(target)), target)
	}
	return cands
}

func idSelector(id string) string {
	return fmt.Sprintf(`[%s=%s]`, IDAttribute, cssString(id))
}

// cssString quotes s as a CSS string literal.
func cssString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}
