package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodConfig controls how browsers are launched.
type RodConfig struct {
	Bin            string
	Headless       bool
	ElementTimeout time.Duration
}

// RodAgent launches one Chromium instance per acquired Resource.
type RodAgent struct {
	cfg    RodConfig
	logger *zap.Logger
}

// NewRodAgent creates a new rod-backed Agent.
func NewRodAgent(cfg RodConfig, logger *zap.Logger) *RodAgent {
	if cfg.ElementTimeout <= 0 {
		cfg.ElementTimeout = 15 * time.Second
	}
	return &RodAgent{cfg: cfg, logger: logger.Named("automation")}
}

// Acquire launches a browser and opens a blank page.
func (a *RodAgent) Acquire(ctx context.Context) (Resource, error) {
	path := a.cfg.Bin
	if path == "" {
		path, _ = launcher.LookPath()
	}
	l := launcher.New().Bin(path).Headless(a.cfg.Headless).Context(ctx)

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		browser.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	a.logger.Debug("browser launched", zap.String("control_url", controlURL))
	return &rodResource{
		launcher: l,
		browser:  browser,
		page:     page,
		timeout:  a.cfg.ElementTimeout,
		logger:   a.logger,
	}, nil
}

type rodResource struct {
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
	closed   bool
	logger   *zap.Logger
}

// scoped returns the page bound to ctx with the element timeout applied.
func (r *rodResource) scoped(ctx context.Context) (*rod.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	return r.page.Context(ctx).Timeout(r.timeout), nil
}

func (r *rodResource) Navigate(ctx context.Context, url string) error {
	page, err := r.scoped(ctx)
	if err != nil {
		return err
	}
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return nil
}

func (r *rodResource) element(ctx context.Context, selector string) (*rod.Element, error) {
	page, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	el, err := page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el, nil
}

func (r *rodResource) Fill(ctx context.Context, selector, value string) error {
	el, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

func (r *rodResource) Click(ctx context.Context, selector string) error {
	el, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	return r.click(ctx, el, selector)
}

func (r *rodResource) ClickText(ctx context.Context, selector, pattern string) error {
	page, err := r.scoped(ctx)
	if err != nil {
		return err
	}
	el, err := page.ElementR(selector, pattern)
	if err != nil {
		return fmt.Errorf("element %q matching %q not found: %w", selector, pattern, err)
	}
	return r.click(ctx, el, selector)
}

func (r *rodResource) click(ctx context.Context, el *rod.Element, selector string) error {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	if page, err := r.scoped(ctx); err == nil {
		// Navigation after a click is common; settle before the next step.
		_ = page.WaitStable(500 * time.Millisecond)
	}
	return nil
}

func (r *rodResource) Select(ctx context.Context, selector, option string) error {
	el, err := r.element(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Select([]string{option}, true, rod.SelectorTypeText); err != nil {
		return fmt.Errorf("select %q in %q: %w", option, selector, err)
	}
	return nil
}

func (r *rodResource) Text(ctx context.Context, selector string) (string, error) {
	el, err := r.element(ctx, selector)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("read text of %q: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

func (r *rodResource) Texts(ctx context.Context, selector string) ([]string, error) {
	page, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	els, err := page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	texts := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	return texts, nil
}

func (r *rodResource) Exists(ctx context.Context, selector string) bool {
	page, err := r.scoped(ctx)
	if err != nil {
		return false
	}
	has, _, err := page.Has(selector)
	return err == nil && has
}

func (r *rodResource) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	page := r.page.Context(ctx).Timeout(timeout)
	r.mu.Unlock()

	if _, err := page.Element(selector); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (r *rodResource) Screenshot(ctx context.Context) ([]byte, error) {
	page, err := r.scoped(ctx)
	if err != nil {
		return nil, err
	}
	return page.Screenshot(true, nil)
}

// Close is safe to call more than once.
func (r *rodResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	if err := r.page.Close(); err != nil {
		firstErr = fmt.Errorf("close page: %w", err)
	}
	if err := r.browser.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close browser: %w", err)
	}
	r.launcher.Kill()
	r.launcher.Cleanup()
	r.logger.Debug("browser closed")
	return firstErr
}

var _ Resource = (*rodResource)(nil)
