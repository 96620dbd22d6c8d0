// File: internal/browser/page.go
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// Page is the handle to one live browser tab. It is owned by exactly one
// automation run at a time: the batch orchestrator acquires it, lends it to
// each row in turn, and releases it when the run ends. It is not safe for
// concurrent use.
type Page struct {
	ctx     context.Context
	cancel  context.CancelFunc
	release func()
	logger  *zap.Logger
	cfg     config.BrowserConfig

	closeOnce sync.Once
}

// Navigate loads a URL fresh and blocks until the document is ready plus the
// configured post-navigation wait. Real network-idle detection is not
// available on every page, so the fixed wait is the fallback readiness signal.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))

	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	defer cancel()

	err := p.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(p.cfg.PostNavWait),
	)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// Screenshot captures the visible viewport as a lossless PNG and returns it
// base64-encoded. Page state is not disturbed.
func (p *Page) Screenshot(ctx context.Context) (string, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("capturing screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// VisibleText returns the page's rendered text content, with script, style
// and other non-visible subtrees stripped.
func (p *Page) VisibleText(ctx context.Context) (string, error) {
	var outer string
	if err := p.run(ctx, chromedp.OuterHTML("html", &outer, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page html: %w", err)
	}
	return visibleText(outer)
}

// Click dispatches count press/release pairs at the coordinate with the given
// button. The click count increments per pair, which is how a browser
// distinguishes double and triple clicks from repeated single ones.
func (p *Page) Click(ctx context.Context, x, y float64, button input.MouseButton, count int) error {
	if count < 1 {
		count = 1
	}
	actions := make([]chromedp.Action, 0, count*2)
	for i := 1; i <= count; i++ {
		clickCount := int64(i)
		actions = append(actions,
			chromedp.ActionFunc(func(ctx context.Context) error {
				return input.DispatchMouseEvent(input.MousePressed, x, y).
					WithButton(button).
					WithClickCount(clickCount).
					Do(ctx)
			}),
			chromedp.ActionFunc(func(ctx context.Context) error {
				return input.DispatchMouseEvent(input.MouseReleased, x, y).
					WithButton(button).
					WithClickCount(clickCount).
					Do(ctx)
			}),
		)
	}
	return p.runInput(ctx, actions...)
}

// MoveMouse moves the pointer to the coordinate without clicking.
func (p *Page) MoveMouse(ctx context.Context, x, y float64) error {
	return p.runInput(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

// Drag presses the left button at the start coordinate, moves to the target,
// and releases there.
func (p *Page) Drag(ctx context.Context, fromX, fromY, toX, toY float64) error {
	return p.runInput(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MousePressed, fromX, fromY).
				WithButton(input.Left).
				WithClickCount(1).
				Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, toX, toY).
				WithButton(input.Left).
				Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseReleased, toX, toY).
				WithButton(input.Left).
				WithClickCount(1).
				Do(ctx)
		}),
	)
}

// TypeText emits each character of text as its own key event, in order, into
// whatever element currently has focus.
func (p *Page) TypeText(ctx context.Context, text string) error {
	return p.runInput(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ch := range text {
			if err := input.DispatchKeyEvent(input.KeyChar).
				WithText(string(ch)).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
}

// PressKey dispatches a named key or a modifier chord like "ctrl+a".
func (p *Page) PressKey(ctx context.Context, name string) error {
	key, mods := ParseChord(name)
	if mods == 0 {
		return p.runInput(ctx, chromedp.KeyEvent(key))
	}
	return p.runInput(ctx, chromedp.KeyEvent(key, chromedp.KeyModifiers(mods)))
}

// Scroll dispatches a wheel event at the coordinate with the given deltas.
func (p *Page) Scroll(ctx context.Context, x, y, deltaX, deltaY float64) error {
	return p.runInput(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, x, y).
			WithDeltaX(deltaX).
			WithDeltaY(deltaY).
			Do(ctx)
	}))
}

// Close tears the tab (and its browser process) down and returns it to the
// manager. Safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.logger.Debug("Closing page.")
		p.cancel()
		if p.release != nil {
			p.release()
		}
	})
}

// run executes chromedp actions on the page's own context while honoring the
// caller's cancellation and deadline.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's context error when it caused the abort.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// inputTimeout bounds individual input dispatches so a wedged renderer cannot
// hang a run forever.
const inputTimeout = 10 * time.Second

// runInput is run with the input dispatch timeout applied.
func (p *Page) runInput(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(ctx, inputTimeout)
	defer cancel()
	return p.run(opCtx, actions...)
}

// visibleText parses an HTML document and collects the text nodes a user
// could actually see, one line per node.
func visibleText(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parsing page html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				sb.WriteString(text)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(sb.String()), nil
}
