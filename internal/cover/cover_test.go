package cover

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, w, h int, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: shade, G: shade, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakePage struct {
	mu     sync.Mutex
	frames [][]byte
	shots  int
	closed int
	err    error
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	i := p.shots
	if i >= len(p.frames) {
		i = len(p.frames) - 1
	}
	p.shots++
	return p.frames[i], nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

type fakeBrowser struct {
	page    *fakePage
	openErr error

	url      string
	viewport Viewport
	html     string
}

func (b *fakeBrowser) Open(_ context.Context, rawURL string, vp Viewport) (Page, error) {
	b.url, b.viewport = rawURL, vp
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, err
	}
	b.html = string(data)
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.page, nil
}

func newExtractor(t *testing.T, b Browser, dir string) *Extractor {
	t.Helper()
	return NewExtractor(b, Options{
		SettleInterval: time.Millisecond,
		SettleTimeout:  200 * time.Millisecond,
		TempDir:        dir,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractFirstPageAsImage_WaitsForStableFrame(t *testing.T) {
	dir := t.TempDir()
	loading, rendered := frame(t, 1200, 1600, 10), frame(t, 1200, 1600, 200)
	page := &fakePage{frames: [][]byte{loading, loading[:len(loading)-1], rendered, rendered}}
	b := &fakeBrowser{page: page}

	out, err := newExtractor(t, b, dir).ExtractFirstPageAsImage(context.Background(), []byte("%PDF-1.4"), 2)
	require.NoError(t, err)

	assert.Equal(t, Viewport{Width: 1200, Height: 1600}, b.viewport)
	assert.True(t, strings.HasPrefix(b.url, "file://"))
	assert.Contains(t, b.html, "data:application/pdf;base64,JVBERi0xLjQ=")
	assert.Equal(t, 4, page.shots)
	assert.Equal(t, 1, page.closed)
	assertEmptyDir(t, dir)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 800, img.Bounds().Dx())
	assert.Equal(t, 1067, img.Bounds().Dy())
}

func TestExtractFirstPageAsImage_DoesNotEnlarge(t *testing.T) {
	small := frame(t, 300, 400, 120)
	b := &fakeBrowser{page: &fakePage{frames: [][]byte{small}}}

	out, err := newExtractor(t, b, t.TempDir()).ExtractFirstPageAsImage(context.Background(), []byte("%PDF"), 0.5)
	require.NoError(t, err)

	assert.Equal(t, Viewport{Width: 300, Height: 400}, b.viewport)
	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
}

func TestExtractFirstPageAsImage_SettleTimeoutUsesLatestFrame(t *testing.T) {
	var frames [][]byte
	for i := 0; i < 2000; i++ {
		frames = append(frames, frame(t, 8, 8, uint8(i%250)))
	}
	// frames never repeat back to back within the timeout
	page := &fakePage{frames: frames}
	b := &fakeBrowser{page: page}
	e := NewExtractor(b, Options{
		SettleInterval: 5 * time.Millisecond,
		SettleTimeout:  30 * time.Millisecond,
		TempDir:        t.TempDir(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	out, err := e.ExtractFirstPageAsImage(context.Background(), []byte("%PDF"), 2)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Equal(t, 1, page.closed)
}

func TestExtractFirstPageAsImage_CleansUpOnFailure(t *testing.T) {
	t.Run("open fails", func(t *testing.T) {
		dir := t.TempDir()
		b := &fakeBrowser{openErr: errors.New("chrome missing")}

		_, err := newExtractor(t, b, dir).ExtractFirstPageAsImage(context.Background(), []byte("%PDF"), 2)
		assert.ErrorContains(t, err, "chrome missing")
		assertEmptyDir(t, dir)
	})

	t.Run("screenshot fails", func(t *testing.T) {
		dir := t.TempDir()
		page := &fakePage{err: errors.New("tab crashed")}
		b := &fakeBrowser{page: page}

		_, err := newExtractor(t, b, dir).ExtractFirstPageAsImage(context.Background(), []byte("%PDF"), 2)
		assert.ErrorContains(t, err, "tab crashed")
		assert.Equal(t, 1, page.closed)
		assertEmptyDir(t, dir)
	})

	t.Run("undecodable frame", func(t *testing.T) {
		dir := t.TempDir()
		page := &fakePage{frames: [][]byte{[]byte("garbage")}}
		b := &fakeBrowser{page: page}

		_, err := newExtractor(t, b, dir).ExtractFirstPageAsImage(context.Background(), []byte("%PDF"), 2)
		assert.ErrorContains(t, err, "decode")
		assert.Equal(t, 1, page.closed)
		assertEmptyDir(t, dir)
	})
}

func TestExtractFirstPageAsImage_EmptyPDF(t *testing.T) {
	_, err := newExtractor(t, &fakeBrowser{}, t.TempDir()).ExtractFirstPageAsImage(context.Background(), nil, 2)
	assert.ErrorIs(t, err, ErrEmptyPDF)
}
