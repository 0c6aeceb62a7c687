// Package testutil provides fakes shared by the orchestration tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"booking-assistant-backend/internal/automation"
)

// FakeResource is a scriptable automation.Resource that records every call.
// Unset funcs succeed; Exists defaults to false.
type FakeResource struct {
	ID int

	NavigateFunc   func(ctx context.Context, url string) error
	FillFunc       func(ctx context.Context, selector, value string) error
	ClickFunc      func(ctx context.Context, selector string) error
	ClickTextFunc  func(ctx context.Context, selector, pattern string) error
	SelectFunc     func(ctx context.Context, selector, option string) error
	TextFunc       func(ctx context.Context, selector string) (string, error)
	TextsFunc      func(ctx context.Context, selector string) ([]string, error)
	ExistsFunc     func(ctx context.Context, selector string) bool
	WaitForFunc    func(ctx context.Context, selector string, timeout time.Duration) error
	ScreenshotFunc func(ctx context.Context) ([]byte, error)

	mu      sync.Mutex
	calls   []string
	closes  int
	onClose func()
}

func (r *FakeResource) record(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	if r.closes > 0 {
		return automation.ErrClosed
	}
	return nil
}

// Calls returns the recorded calls in order.
func (r *FakeResource) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Closes returns how many times Close was called.
func (r *FakeResource) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

func (r *FakeResource) Navigate(ctx context.Context, url string) error {
	if err := r.record("navigate %s", url); err != nil {
		return err
	}
	if r.NavigateFunc != nil {
		return r.NavigateFunc(ctx, url)
	}
	return nil
}

func (r *FakeResource) Fill(ctx context.Context, selector, value string) error {
	if err := r.record("fill %s=%s", selector, value); err != nil {
		return err
	}
	if r.FillFunc != nil {
		return r.FillFunc(ctx, selector, value)
	}
	return nil
}

func (r *FakeResource) Click(ctx context.Context, selector string) error {
	if err := r.record("click %s", selector); err != nil {
		return err
	}
	if r.ClickFunc != nil {
		return r.ClickFunc(ctx, selector)
	}
	return nil
}

func (r *FakeResource) ClickText(ctx context.Context, selector, pattern string) error {
	if err := r.record("clicktext %s~%s", selector, pattern); err != nil {
		return err
	}
	if r.ClickTextFunc != nil {
		return r.ClickTextFunc(ctx, selector, pattern)
	}
	return nil
}

func (r *FakeResource) Select(ctx context.Context, selector, option string) error {
	if err := r.record("select %s=%s", selector, option); err != nil {
		return err
	}
	if r.SelectFunc != nil {
		return r.SelectFunc(ctx, selector, option)
	}
	return nil
}

func (r *FakeResource) Text(ctx context.Context, selector string) (string, error) {
	if err := r.record("text %s", selector); err != nil {
		return "", err
	}
	if r.TextFunc != nil {
		return r.TextFunc(ctx, selector)
	}
	return "", nil
}

func (r *FakeResource) Texts(ctx context.Context, selector string) ([]string, error) {
	if err := r.record("texts %s", selector); err != nil {
		return nil, err
	}
	if r.TextsFunc != nil {
		return r.TextsFunc(ctx, selector)
	}
	return nil, nil
}

func (r *FakeResource) Exists(ctx context.Context, selector string) bool {
	if err := r.record("exists %s", selector); err != nil {
		return false
	}
	if r.ExistsFunc != nil {
		return r.ExistsFunc(ctx, selector)
	}
	return false
}

func (r *FakeResource) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := r.record("waitfor %s", selector); err != nil {
		return err
	}
	if r.WaitForFunc != nil {
		return r.WaitForFunc(ctx, selector, timeout)
	}
	return nil
}

func (r *FakeResource) Screenshot(ctx context.Context) ([]byte, error) {
	if err := r.record("screenshot"); err != nil {
		return nil, err
	}
	if r.ScreenshotFunc != nil {
		return r.ScreenshotFunc(ctx)
	}
	return []byte("png"), nil
}

func (r *FakeResource) Close() error {
	r.mu.Lock()
	r.closes++
	first := r.closes == 1
	onClose := r.onClose
	r.mu.Unlock()

	if first && onClose != nil {
		onClose()
	}
	return nil
}

// FakeAgent hands out FakeResources and counts how many are live.
type FakeAgent struct {
	// AcquireErr, when set, makes every Acquire fail.
	AcquireErr error

	// Configure, when set, is applied to each new resource before it is returned.
	Configure func(r *FakeResource)

	mu        sync.Mutex
	resources []*FakeResource
	live      int
	maxLive   int
}

func (a *FakeAgent) Acquire(_ context.Context) (automation.Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.AcquireErr != nil {
		return nil, a.AcquireErr
	}

	r := &FakeResource{ID: len(a.resources) + 1}
	r.onClose = func() {
		a.mu.Lock()
		a.live--
		a.mu.Unlock()
	}
	if a.Configure != nil {
		a.Configure(r)
	}
	a.resources = append(a.resources, r)
	a.live++
	if a.live > a.maxLive {
		a.maxLive = a.live
	}
	return r, nil
}

// Acquired is the number of successful Acquire calls.
func (a *FakeAgent) Acquired() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.resources)
}

// Live is the number of acquired resources not yet closed.
func (a *FakeAgent) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// MaxLive is the highest Live value observed.
func (a *FakeAgent) MaxLive() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxLive
}

// Resources returns every resource handed out, oldest first.
func (a *FakeAgent) Resources() []*FakeResource {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*FakeResource(nil), a.resources...)
}

var _ automation.Agent = (*FakeAgent)(nil)
var _ automation.Resource = (*FakeResource)(nil)
