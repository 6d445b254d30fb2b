package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	appLog "evcal/internal/log"
)

// Default capture parameters for the event list page.
const (
	DefaultWidth   = 1024
	DefaultHeight  = 1366
	DefaultTimeout = 30 * time.Second
)

// readySelector matches the list root once the server has rendered it.
const readySelector = `[data-ready="true"]`

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/?month=October+2026".
	URL string

	// OutputPath is where the PNG is written. Parent directories are created.
	OutputPath string

	// Width and Height are the viewport in pixels; zero uses the defaults.
	Width  int
	Height int

	// Timeout bounds the whole capture; zero uses DefaultTimeout.
	Timeout time.Duration
}

func (o Options) withDefaults() (Options, error) {
	if o.URL == "" {
		return o, errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return o, errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o, nil
}

// CapturePNG loads opts.URL in headless Chromium, waits for the list root
// to report data-ready="true" and writes a full-page PNG to opts.OutputPath.
func CapturePNG(parentCtx context.Context, opts Options) error {
	opts, err := opts.withDefaults()
	if err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	}

	start := time.Now()
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}

	appLog.Info("snapshot written", "path", opts.OutputPath, "bytes", len(png), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}
