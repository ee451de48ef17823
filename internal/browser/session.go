// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/internal/config"
)

const (
	defaultActionTimeout     = 5 * time.Second
	defaultNavigationTimeout = 30 * time.Second
	startupTimeout           = 30 * time.Second
)

// Session is a single browser tab driven over the DevTools protocol.
type Session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	logger      *zap.Logger
	typist      *typist // nil unless cfg.HumanTyping

	mu     sync.Mutex
	closed bool
}

// NewSession launches a browser, or attaches to one listening on cfg.DebugPort, and opens a tab.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}

	id := uuid.New().String()
	logger = logger.Named("browser").With(zap.String("session_id", id))

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if cfg.DebugPort > 0 {
		wsURL := fmt.Sprintf("ws://127.0.0.1:%d/", cfg.DebugPort)
		logger.Info("Attaching to running browser.", zap.String("url", wsURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, wsURL)
	} else {
		logger.Info("Launching browser.", zap.Bool("headless", cfg.Headless))
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg)...)
	}

	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	s := &Session{
		id:          id,
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		cfg:         cfg,
		logger:      logger,
	}
	if cfg.HumanTyping {
		s.typist = newTypist(time.Now().UnixNano())
	}

	// The first Run allocates the browser and must use the tab context itself,
	// otherwise the browser is torn down with the derived context.
	startErr := make(chan error, 1)
	go func() { startErr <- chromedp.Run(tabCtx, s.viewportAction()...) }()
	select {
	case err := <-startErr:
		if err != nil {
			s.shutdown()
			return nil, fmt.Errorf("failed to start browser session: %w", err)
		}
	case <-time.After(startupTimeout):
		s.shutdown()
		<-startErr
		return nil, fmt.Errorf("browser did not respond within %s", startupTimeout)
	}

	logger.Debug("Browser session ready.")
	return s, nil
}

// AllocatorOptions assembles the exec allocator flags for a local browser.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if w, h := viewport(cfg); w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	if runtime.GOOS == "linux" {
		opts = append(opts, chromedp.Flag("disable-setuid-sandbox", true))
	}

	// Custom arguments from config, as --name=value or --name.
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

func viewport(cfg config.BrowserConfig) (int, int) {
	return cfg.Viewport["width"], cfg.Viewport["height"]
}

func (s *Session) viewportAction() []chromedp.Action {
	if w, h := viewport(s.cfg); w > 0 && h > 0 {
		return []chromedp.Action{chromedp.EmulateViewport(int64(w), int64(h))}
	}
	return nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// run executes actions bounded by the session lifetime, ctx and timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close closes the tab and releases the browser. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	s.shutdown()
	return nil
}

func (s *Session) shutdown() {
	done := make(chan struct{})
	go func() {
		if err := chromedp.Cancel(s.ctx); err != nil && err != context.Canceled {
			s.logger.Debug("Graceful browser shutdown failed.", zap.Error(err))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.logger.Warn("Browser shutdown timed out, forcing.")
	}
	s.cancel()
	s.allocCancel()
}
