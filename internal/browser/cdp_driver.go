// internal/browser/cdp_driver.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/internal/config"
)

// CDPDriver drives a real Chrome tab over the DevTools protocol.
type CDPDriver struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	cfg         config.BrowserConfig
	logger      *zap.Logger
}

var _ Driver = (*CDPDriver)(nil)

// NewCDPDriver launches Chrome and opens one tab. Close releases both.
func NewCDPDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*CDPDriver, error) {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultRetryTimeout
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	logger = logger.Named("cdp_driver")

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Errorf),
	)

	// An empty Run starts the browser and attaches to the first tab.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	logger.Info("Browser started.", zap.Bool("headless", cfg.Headless))

	return &CDPDriver{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Close shuts the tab and the browser process down.
func (d *CDPDriver) Close() error {
	d.cancelTab()
	d.cancelAlloc()
	return nil
}

// run executes actions in the tab, bounded by both ctx and timeout.
func (d *CDPDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(d.tabCtx, ctx)
	defer cancel()
	runCtx, cancelTimeout := context.WithTimeout(opCtx, timeout)
	defer cancelTimeout()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: timed out after %s", ErrNoElement, timeout)
	}
	return err
}

// queryOpts resolves scope to a node and returns options that search beneath it.
func (d *CDPDriver) queryOpts(ctx context.Context, scope string) ([]chromedp.QueryOption, error) {
	if scope == "" {
		return []chromedp.QueryOption{chromedp.ByQuery}, nil
	}
	var nodes []*cdp.Node
	if err := d.run(ctx, d.cfg.CommandTimeout, chromedp.Nodes(scope, &nodes, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("scope %q: %w", scope, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: scope %q", ErrNoElement, scope)
	}
	return []chromedp.QueryOption{chromedp.ByQuery, chromedp.FromNode(nodes[0])}, nil
}

func (d *CDPDriver) element(ctx context.Context, scope, selector string, build func(opts []chromedp.QueryOption) chromedp.Action) error {
	opts, err := d.queryOpts(ctx, scope)
	if err != nil {
		return err
	}
	if err := d.run(ctx, d.cfg.CommandTimeout, build(opts)); err != nil {
		return fmt.Errorf("selector %q: %w", selector, err)
	}
	return nil
}

func (d *CDPDriver) HTML(ctx context.Context, scope string) (string, error) {
	var html string
	var action chromedp.Action
	if scope == "" {
		action = chromedp.OuterHTML("body", &html, chromedp.ByQuery)
	} else {
		action = chromedp.InnerHTML(scope, &html, chromedp.ByQuery)
	}
	if err := d.run(ctx, d.cfg.CommandTimeout, action); err != nil {
		return "", fmt.Errorf("failed to snapshot markup: %w", err)
	}
	return html, nil
}

func (d *CDPDriver) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("Navigating.", zap.String("url", url))
	if err := d.run(ctx, d.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *CDPDriver) Click(ctx context.Context, scope, selector string) error {
	return d.element(ctx, scope, selector, func(opts []chromedp.QueryOption) chromedp.Action {
		return chromedp.Tasks{
			chromedp.ScrollIntoView(selector, opts...),
			chromedp.WaitVisible(selector, opts...),
			chromedp.Click(selector, opts...),
		}
	})
}

func (d *CDPDriver) Fill(ctx context.Context, scope, selector, text string) error {
	return d.element(ctx, scope, selector, func(opts []chromedp.QueryOption) chromedp.Action {
		return chromedp.Tasks{
			chromedp.WaitVisible(selector, opts...),
			chromedp.Clear(selector, opts...),
			chromedp.SendKeys(selector, text, opts...),
		}
	})
}

func (d *CDPDriver) Clear(ctx context.Context, scope, selector string) error {
	return d.element(ctx, scope, selector, func(opts []chromedp.QueryOption) chromedp.Action {
		return chromedp.Clear(selector, opts...)
	})
}

func (d *CDPDriver) Submit(ctx context.Context, scope, selector string) error {
	return d.element(ctx, scope, selector, func(opts []chromedp.QueryOption) chromedp.Action {
		return chromedp.Submit(selector, opts...)
	})
}

func (d *CDPDriver) ScrollIntoView(ctx context.Context, scope, selector string) error {
	return d.element(ctx, scope, selector, func(opts []chromedp.QueryOption) chromedp.Action {
		return chromedp.ScrollIntoView(selector, opts...)
	})
}

func (d *CDPDriver) Text(ctx context.Context, scope, selector string) (string, error) {
	var text string
	err := d.element(ctx, scope, selector, func(opts []chromedp.QueryOption) chromedp.Action {
		return chromedp.Text(selector, &text, opts...)
	})
	return text, err
}

func (d *CDPDriver) Value(ctx context.Context, scope, selector string) (string, error) {
	var value string
	err := d.element(ctx, scope, selector, func(opts []chromedp.QueryOption) chromedp.Action {
		return chromedp.Value(selector, &value, opts...)
	})
	return value, err
}

// -- Script-backed operations --

// elementResult is what every element script returns.
type elementResult struct {
	Found bool `json:"found"`
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

const (
	jsSelect = `
const opts = Array.from(el.options || []);
const opt = opts.find(o => o.value === arg) || opts.find(o => o.label.trim() === arg || o.text.trim() === arg);
if (!opt) return {found: true, ok: false};
el.value = opt.value;
el.dispatchEvent(new Event('input', {bubbles: true}));
el.dispatchEvent(new Event('change', {bubbles: true}));
return {found: true, ok: true};`

	jsSetChecked = `
if (el.checked !== arg) { el.click(); }
return {found: true, ok: el.checked === arg};`

	jsVisible = `
const style = window.getComputedStyle(el);
const boxed = !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
return {found: true, ok: boxed && style.visibility !== 'hidden' && style.display !== 'none'};`

	jsEnabled = `
return {found: true, ok: !el.disabled && !el.closest('fieldset[disabled]')};`
)

// elementScript wraps body so that it runs with el bound to the first match of selector
// inside scope, and arg bound to the JSON value of arg.
func elementScript(scope, selector string, arg any, body string) (string, error) {
	encoded, err := json.Marshal([]any{scope, selector, arg})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
const [scope, selector, arg] = %s;
const root = scope ? document.querySelector(scope) : document;
if (!root) return {found: false};
const el = root.querySelector(selector);
if (!el) return {found: false};
%s
})()`, encoded, body), nil
}

func (d *CDPDriver) evalElement(ctx context.Context, scope, selector string, arg any, body string) (elementResult, error) {
	var res elementResult
	script, err := elementScript(scope, selector, arg, body)
	if err != nil {
		return res, err
	}
	if err := d.run(ctx, d.cfg.CommandTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return res, fmt.Errorf("selector %q: %w", selector, err)
	}
	return res, nil
}

func (d *CDPDriver) Select(ctx context.Context, scope, selector, value string) error {
	res, err := d.evalElement(ctx, scope, selector, value, jsSelect)
	if err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	if !res.OK {
		return fmt.Errorf("%w: no option %q in %s", ErrNoElement, value, selector)
	}
	return nil
}

func (d *CDPDriver) SetChecked(ctx context.Context, scope, selector string, checked bool) error {
	res, err := d.evalElement(ctx, scope, selector, checked, jsSetChecked)
	if err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	if !res.OK {
		return fmt.Errorf("could not set checked=%t on %s", checked, selector)
	}
	return nil
}

func (d *CDPDriver) Visible(ctx context.Context, scope, selector string) (bool, error) {
	res, err := d.evalElement(ctx, scope, selector, nil, jsVisible)
	if err != nil {
		return false, err
	}
	return res.Found && res.OK, nil
}

func (d *CDPDriver) Enabled(ctx context.Context, scope, selector string) (bool, error) {
	res, err := d.evalElement(ctx, scope, selector, nil, jsEnabled)
	if err != nil {
		return false, err
	}
	if !res.Found {
		return false, fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return res.OK, nil
}

func (d *CDPDriver) Count(ctx context.Context, scope, selector string) (int, error) {
	encoded, err := json.Marshal([]string{scope, selector})
	if err != nil {
		return 0, err
	}
	script := fmt.Sprintf(`(() => {
const [scope, selector] = %s;
const root = scope ? document.querySelector(scope) : document;
if (!root) return {found: false, count: 0};
return {found: true, count: root.querySelectorAll(selector).length};
})()`, encoded)

	var res elementResult
	if err := d.run(ctx, d.cfg.CommandTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return 0, fmt.Errorf("selector %q: %w", selector, err)
	}
	if !res.Found {
		return 0, fmt.Errorf("%w: scope %q", ErrNoElement, scope)
	}
	return res.Count, nil
}

func (d *CDPDriver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, d.cfg.CommandTimeout, chromedp.Title(&title))
	return title, err
}

func (d *CDPDriver) URL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, d.cfg.CommandTimeout, chromedp.Location(&url))
	return url, err
}
