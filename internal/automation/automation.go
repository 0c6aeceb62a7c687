// Package automation wraps the browser engine that platform adapters drive.
package automation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrClosed is returned by a Resource after Close.
var ErrClosed = errors.New("automation resource closed")

// Resource is a single browser tab owned by one booking session. It is
// expensive to create and must be released with Close.
type Resource interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// ClickText clicks the first element matching selector whose text matches
	// the regular expression pattern.
	ClickText(ctx context.Context, selector, pattern string) error
	Select(ctx context.Context, selector, option string) error
	Text(ctx context.Context, selector string) (string, error)
	Texts(ctx context.Context, selector string) ([]string, error)
	Exists(ctx context.Context, selector string) bool
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Agent creates Resources on demand.
type Agent interface {
	Acquire(ctx context.Context) (Resource, error)
}

// SaveSnapshot writes a screenshot of res into dir and returns the file path.
func SaveSnapshot(ctx context.Context, res Resource, dir, name string) (string, error) {
	img, err := res.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.png", name, time.Now().Unix()))
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
