// Package cover turns the first page of a PDF into a JPEG thumbnail using a
// headless browser.
package cover

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

// ErrEmptyPDF is returned when there is nothing to render
var ErrEmptyPDF = errors.New("pdf is empty")

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int64
	Height int64
}

// Page is an open browser tab.
type Page interface {
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Browser opens URLs in a page of the given size.
type Browser interface {
	Open(ctx context.Context, url string, vp Viewport) (Page, error)
}

// Options tunes rendering and encoding.
type Options struct {
	NavigationTimeout time.Duration
	SettleInterval    time.Duration
	SettleTimeout     time.Duration
	MaxWidth          int
	JPEGQuality       int
	TempDir           string
}

func (o *Options) setDefaults() {
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 60 * time.Second
	}
	if o.SettleInterval <= 0 {
		o.SettleInterval = 250 * time.Millisecond
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = 5 * time.Second
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = 800
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = 85
	}
}

// Extractor renders PDF covers.
type Extractor struct {
	browser Browser
	opts    Options
	logger  *slog.Logger
}

// NewExtractor creates a new Extractor instance
func NewExtractor(browser Browser, opts Options, logger *slog.Logger) *Extractor {
	opts.setDefaults()
	return &Extractor{browser: browser, opts: opts, logger: logger}
}

const embedPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { margin: 0; padding: 0; background: white; overflow: hidden; }
    embed { width: 100vw; height: 100vh; border: none; }
  </style>
</head>
<body>
  <embed src="data:application/pdf;base64,%s" type="application/pdf" width="100%%" height="100%%" />
</body>
</html>
`

// ExtractFirstPageAsImage renders the first page of pdf at 600x800 times
// scale and returns it as a JPEG no wider than the configured maximum.
func (e *Extractor) ExtractFirstPageAsImage(ctx context.Context, pdf []byte, scale float64) ([]byte, error) {
	if len(pdf) == 0 {
		return nil, ErrEmptyPDF
	}
	if scale <= 0 {
		scale = 2
	}

	dir, err := os.MkdirTemp(e.opts.TempDir, "souvenir-cover-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	htmlPath, err := writeEmbedPage(dir, pdf)
	if err != nil {
		return nil, err
	}

	navCtx, cancel := context.WithTimeout(ctx, e.opts.NavigationTimeout)
	defer cancel()

	vp := Viewport{Width: int64(600 * scale), Height: int64(800 * scale)}
	page, err := e.browser.Open(navCtx, "file://"+filepath.ToSlash(htmlPath), vp)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			e.logger.WarnContext(ctx, "Failed to close browser page", slog.String("error", err.Error()))
		}
	}()

	shot, err := e.waitForStableFrame(ctx, page)
	if err != nil {
		return nil, err
	}
	return e.encode(shot)
}

func writeEmbedPage(dir string, pdf []byte) (string, error) {
	if err := os.WriteFile(filepath.Join(dir, "input.pdf"), pdf, 0o600); err != nil {
		return "", fmt.Errorf("failed to write temp pdf: %w", err)
	}
	htmlPath := filepath.Join(dir, "page.html")
	html := fmt.Sprintf(embedPage, base64.StdEncoding.EncodeToString(pdf))
	if err := os.WriteFile(htmlPath, []byte(html), 0o600); err != nil {
		return "", fmt.Errorf("failed to write temp html: %w", err)
	}
	return htmlPath, nil
}

// waitForStableFrame captures until two consecutive frames match. When the
// settle timeout passes first, the latest frame is used.
func (e *Extractor) waitForStableFrame(ctx context.Context, page Page) ([]byte, error) {
	prev, err := page.Screenshot(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.NewTimer(e.opts.SettleTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.opts.SettleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			e.logger.WarnContext(ctx, "PDF render did not settle, using latest frame",
				slog.Duration("settle_timeout", e.opts.SettleTimeout),
			)
			return prev, nil
		case <-ticker.C:
		}

		cur, err := page.Screenshot(ctx)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(prev, cur) {
			return cur, nil
		}
		prev = cur
	}
}

func (e *Extractor) encode(shot []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	if img.Bounds().Dx() > e.opts.MaxWidth {
		img = imaging.Resize(img, e.opts.MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(e.opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode cover: %w", err)
	}
	return buf.Bytes(), nil
}
