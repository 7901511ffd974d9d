package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnsupportedImage is returned for images fpdf cannot embed.
var ErrUnsupportedImage = errors.New("unsupported image format")

const maxImageBytes = 10 << 20

// Image is fetched image data.
type Image struct {
	Data        []byte
	ContentType string
}

// ImageFetcher loads images referenced by URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*Image, error)
}

// HTTPFetcher fetches images over HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a new HTTPFetcher instance
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", url, err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image %s exceeds %d bytes", url, maxImageBytes)
	}

	return &Image{Data: data, ContentType: http.DetectContentType(data)}, nil
}

// imageType maps a sniffed content type to the fpdf image type.
func imageType(img *Image) (string, error) {
	switch http.DetectContentType(img.Data) {
	case "image/jpeg":
		return "JPG", nil
	case "image/png":
		return "PNG", nil
	case "image/gif":
		return "GIF", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, img.ContentType)
}
