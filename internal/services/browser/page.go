package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// chromePage drives one chromedp tab. Every call is bounded by timeout and
// also stops when the caller's ctx is done.
type chromePage struct {
	tabCtx    context.Context
	timeout   time.Duration
	readiness Backoff
}

func newChromePage(tabCtx context.Context, timeout time.Duration, readiness Backoff) *chromePage {
	return &chromePage{tabCtx: tabCtx, timeout: timeout, readiness: readiness}
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, p.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitReady polls document.readyState until complete
func (p *chromePage) WaitReady(ctx context.Context) error {
	return WaitFor(ctx, p.documentComplete, p.readiness)
}

func (p *chromePage) documentComplete(ctx context.Context) (bool, error) {
	var state string
	if err := p.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return false, err
	}
	return state == "complete", nil
}

func (p *chromePage) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

func (p *chromePage) Count(ctx context.Context, selector string) (int, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return len(nodes), nil
}

func (p *chromePage) SetFiles(ctx context.Context, selector string, paths []string) error {
	if err := p.run(ctx, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery, chromedp.NodeReady)); err != nil {
		return fmt.Errorf("failed to set files on %s: %w", selector, err)
	}
	return nil
}

// SetValue types into the element so client-side change handlers fire
func (p *chromePage) SetValue(ctx context.Context, selector string, value string) error {
	err := p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

func (p *chromePage) SelectOption(ctx context.Context, trigger string, option string) error {
	if trigger != "" {
		if err := p.Click(ctx, trigger); err != nil {
			return err
		}
	}
	xpath := fmt.Sprintf(`//*[normalize-space(text())=%s]`, xpathLiteral(option))
	if err := p.run(ctx, chromedp.Click(xpath, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to choose option %q: %w", option, err)
	}
	return nil
}

// evaluateBool runs a JS expression returning a boolean
func (p *chromePage) evaluateBool(ctx context.Context, expression string) (bool, error) {
	var result bool
	if err := p.run(ctx, chromedp.Evaluate(expression, &result)); err != nil {
		return false, err
	}
	return result, nil
}

// selectorPresentJS builds an expression true when any selector matches
func selectorPresentJS(selectors []string) string {
	quoted := make([]string, 0, len(selectors))
	for _, s := range selectors {
		if s == "" {
			continue
		}
		b, _ := json.Marshal(s)
		quoted = append(quoted, string(b))
	}
	return fmt.Sprintf(`[%s].some(s => document.querySelector(s) !== null)`, strings.Join(quoted, ","))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if part != "" {
			quoted = append(quoted, `"`+part+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ",") + ")"
}
