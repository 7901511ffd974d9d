package cover

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
)

// ChromeBrowser opens pages in a fresh headless Chrome per call.
type ChromeBrowser struct {
	execPath string
}

// NewChromeBrowser creates a new ChromeBrowser instance. An empty execPath
// lets chromedp find the installed browser.
func NewChromeBrowser(execPath string) *ChromeBrowser {
	return &ChromeBrowser{execPath: execPath}
}

type chromePage struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

func (b *ChromeBrowser) Open(ctx context.Context, url string, vp Viewport) (Page, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	page := &chromePage{ctx: tabCtx, cancels: []context.CancelFunc{cancelTab, cancelAlloc}}

	// the first Run starts the browser and must not use a deadline context
	if err := chromedp.Run(tabCtx); err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	navCtx, cancelNav := context.WithCancel(tabCtx)
	defer cancelNav()
	stop := context.AfterFunc(ctx, cancelNav)
	defer stop()

	err := chromedp.Run(navCtx,
		chromedp.EmulateViewport(vp.Width, vp.Height),
		chromedp.Navigate(url),
	)
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}
	return page, nil
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	shotCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var buf []byte
	if err := chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *chromePage) Close() error {
	err := chromedp.Cancel(p.ctx)
	for _, cancel := range p.cancels {
		cancel()
	}
	return err
}
