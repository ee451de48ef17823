package agentq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/internal/browser"
	"github.com/xkilldash9x/webagents/internal/llmutil"
)

const (
	defaultSearchURL = "https://www.google.com/search?q="
	maxWait          = 60 * time.Second
	scrollAmount     = 3
)

// Browser is the page surface the executor drives. *browser.Session satisfies it.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	ClickByID(ctx context.Context, id string) error
	SetInput(ctx context.Context, id, text string) error
	Clear(ctx context.Context, id string) error
	Submit(ctx context.Context, id string) error
	Scroll(ctx context.Context, direction string, amount int) error
	Screenshot(ctx context.Context, path string) error
	Snapshot(ctx context.Context) (*browser.PageSnapshot, error)
	FindAndUseSearchBar(ctx context.Context, query string) (bool, error)
}

var _ Browser = (*browser.Session)(nil)

// Outcome is the result of executing one command.
type Outcome struct {
	Success bool
	Message string
	// Data carries extra text for the observation, such as search results.
	Data string
	Code browser.ErrorCode
	// AskUser is set for ASK_USER_HELP; Message holds the question.
	AskUser  bool
	Snapshot *browser.PageSnapshot
}

// Executor runs parsed commands against a Browser.
type Executor struct {
	browser   Browser
	logger    *zap.Logger
	searchURL string
}

func NewExecutor(b Browser, logger *zap.Logger) *Executor {
	return &Executor{
		browser:   b,
		logger:    logger.Named("agentq_executor"),
		searchURL: defaultSearchURL,
	}
}

// Execute runs cmd and refreshes the page snapshot afterwards. Failures are
// reported in the Outcome, never as a panic or error return.
func (e *Executor) Execute(ctx context.Context, cmd *Command) Outcome {
	if cmd == nil {
		return Outcome{Message: "No action to execute.", Code: browser.ErrCodeInvalidParameters}
	}

	out := e.dispatch(ctx, cmd)
	if out.AskUser {
		return out
	}
	if !out.Success && out.Code == "" {
		out.Code = browser.ErrCodeExecutionFailure
	}
	if out.Snapshot == nil && ctx.Err() == nil {
		snap, err := e.browser.Snapshot(ctx)
		if err != nil {
			e.logger.Debug("Snapshot after action failed", zap.Stringer("command", cmd), zap.Error(err))
		} else {
			out.Snapshot = snap
		}
	}
	e.logger.Debug("Executed command",
		zap.Stringer("command", cmd),
		zap.Bool("success", out.Success),
		zap.String("code", string(out.Code)))
	return out
}

func (e *Executor) dispatch(ctx context.Context, cmd *Command) Outcome {
	switch cmd.Type {
	case CmdNavigate:
		if cmd.Target == "" {
			return invalid("NAVIGATE needs a URL")
		}
		return e.result(ctx, e.browser.Navigate(ctx, cmd.Target), "Navigated to "+cmd.Target)
	case CmdSearch:
		return e.search(ctx, cmd.Content)
	case CmdClick:
		if cmd.Target == "" {
			return invalid("CLICK needs a target")
		}
		var err error
		if cmd.ByID {
			err = e.browser.ClickByID(ctx, cmd.Target)
		} else {
			err = e.browser.Click(ctx, cmd.Target)
		}
		return e.result(ctx, err, "Clicked "+cmd.Target)
	case CmdType:
		if cmd.Target == "" {
			return invalid("TYPE needs a target")
		}
		return e.result(ctx, e.browser.SetInput(ctx, cmd.Target, cmd.Content), fmt.Sprintf("Typed %q into %s", cmd.Content, cmd.Target))
	case CmdSubmit:
		if cmd.Target == "" {
			return invalid("SUBMIT needs a target")
		}
		return e.result(ctx, e.browser.Submit(ctx, cmd.Target), "Submitted "+cmd.Target)
	case CmdClear:
		if cmd.Target == "" {
			return invalid("CLEAR needs a target")
		}
		return e.result(ctx, e.browser.Clear(ctx, cmd.Target), "Cleared "+cmd.Target)
	case CmdScroll:
		return e.result(ctx, e.browser.Scroll(ctx, cmd.Target, scrollAmount), "Scrolled "+cmd.Target)
	case CmdGetDOM:
		snap, err := e.browser.Snapshot(ctx)
		if err != nil {
			return e.result(ctx, err, "")
		}
		return Outcome{
			Success:  true,
			Message:  "Extracted page content",
			Data:     snap.DescribeElements(20),
			Snapshot: snap,
		}
	case CmdScreenshot:
		path := orDefault(cmd.Target, defaultScreenshotPath)
		return e.result(ctx, e.browser.Screenshot(ctx, path), "Saved screenshot to "+path)
	case CmdWait:
		return e.wait(ctx, cmd.Content)
	case CmdAskUser:
		return Outcome{Success: true, AskUser: true, Message: cmd.Content, Code: browser.ErrCodeAskUser}
	default:
		return Outcome{Message: fmt.Sprintf("unknown command type %q", cmd.Type), Code: browser.ErrCodeUnknownAction}
	}
}

// search tries the page's own search box first and falls back to a web search.
func (e *Executor) search(ctx context.Context, query string) Outcome {
	query = strings.TrimSpace(query)
	if query == "" {
		return invalid("SEARCH needs a query")
	}
	ok, err := e.browser.FindAndUseSearchBar(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return e.result(ctx, err, "")
		}
		e.logger.Debug("On-page search failed, falling back to web search", zap.String("query", query), zap.Error(err))
	}
	if ok && err == nil {
		return Outcome{Success: true, Message: "Searched on page: " + query}
	}

	target := e.searchURL + url.QueryEscape(query)
	if err := e.browser.Navigate(ctx, target); err != nil {
		return e.result(ctx, err, "")
	}
	out := Outcome{Success: true, Message: "Searched the web: " + query}
	if snap, err := e.browser.Snapshot(ctx); err == nil {
		out.Snapshot = snap
		out.Data = llmutil.TruncateChars(snap.Content, 500)
	}
	return out
}

func (e *Executor) wait(ctx context.Context, raw string) Outcome {
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs < 0 {
		return invalid(fmt.Sprintf("WAIT needs a non-negative number of seconds, got %q", raw))
	}
	d := min(time.Duration(secs)*time.Second, maxWait)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return Outcome{Message: "wait interrupted: " + ctx.Err().Error(), Code: browser.ErrCodeTimeoutError}
	case <-t.C:
	}
	return Outcome{Success: true, Message: fmt.Sprintf("Waited %s", d)}
}

func (e *Executor) result(ctx context.Context, err error, success string) Outcome {
	if err == nil {
		return Outcome{Success: true, Message: success}
	}
	code := browser.ClassifyError(err)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		code = browser.ErrCodeTimeoutError
	}
	return Outcome{Message: err.Error(), Code: code}
}

func invalid(msg string) Outcome {
	return Outcome{Message: msg, Code: browser.ErrCodeInvalidParameters}
}
