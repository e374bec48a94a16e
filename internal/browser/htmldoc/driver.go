// Package htmldoc implements the automation driver over an in-memory HTML document. It runs
// without a browser: there is no layout and no script execution, so page behavior that a
// test depends on is emulated with click handlers.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/cythink/internal/browser"
)

const blankDocument = "<html><head></head><body></body></html>"

// Submission records one submitted form.
type Submission struct {
	Action string
	Method string
	Values url.Values
}

// ClickHandler emulates page behavior. It receives the document and the clicked element.
type ClickHandler func(doc *goquery.Document, target *goquery.Selection)

type clickHook struct {
	selector string
	handle   ClickHandler
}

// Driver is a browser.Driver over a goquery document.
type Driver struct {
	mu          sync.Mutex
	doc         *goquery.Document
	location    *url.URL
	client      *http.Client
	logger      *zap.Logger
	hooks       []clickHook
	submissions []Submission
}

var _ browser.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// WithHTTPClient sets the client used to fetch http and https URLs. The default client keeps
// cookies across navigations.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.client = c }
}

// New creates a driver holding a blank document.
func New(logger *zap.Logger, opts ...Option) *Driver {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	d := &Driver{
		client: &http.Client{Jar: jar},
		logger: logger.Named("htmldoc"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.location, _ = url.Parse("about:blank")
	d.doc, _ = goquery.NewDocumentFromReader(strings.NewReader(blankDocument))
	return d
}

// NewFromHTML creates a driver holding the given document.
func NewFromHTML(html string, logger *zap.Logger, opts ...Option) (*Driver, error) {
	d := New(logger, opts...)
	if err := d.Load(html); err != nil {
		return nil, err
	}
	return d, nil
}

// Load replaces the current document without changing the location.
func (d *Driver) Load(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	d.mu.Lock()
	d.doc = doc
	d.mu.Unlock()
	return nil
}

// OnClick registers a handler fired after an element matching selector is clicked.
func (d *Driver) OnClick(selector string, handle ClickHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, clickHook{selector: selector, handle: handle})
}

// Submissions returns the forms submitted so far, oldest first.
func (d *Driver) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

// Document returns the live document. Callers must not use it concurrently with the driver.
func (d *Driver) Document() *goquery.Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc
}

// -- Resolution --

func (d *Driver) root(scope string) (*goquery.Selection, error) {
	if scope == "" {
		return d.doc.Selection, nil
	}
	sel := d.doc.Find(scope).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: scope %q", browser.ErrNoElement, scope)
	}
	return sel, nil
}

func (d *Driver) find(scope, selector string) (*goquery.Selection, error) {
	root, err := d.root(scope)
	if err != nil {
		return nil, err
	}
	sel := root.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoElement, selector)
	}
	return sel, nil
}

// -- Driver --

func (d *Driver) HTML(_ context.Context, scope string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if scope == "" {
		return goquery.OuterHtml(d.doc.Find("body").First())
	}
	root, err := d.root(scope)
	if err != nil {
		return "", err
	}
	return root.Html()
}

func (d *Driver) Navigate(ctx context.Context, rawURL string) error {
	d.mu.Lock()
	target, err := d.location.Parse(rawURL)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	body, err := d.fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", target, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", target, err)
	}

	d.mu.Lock()
	d.doc = doc
	d.location = target
	d.mu.Unlock()
	d.logger.Debug("Navigated.", zap.String("url", target.String()))
	return nil
}

func (d *Driver) fetch(ctx context.Context, target *url.URL) (string, error) {
	switch target.Scheme {
	case "about":
		return blankDocument, nil
	case "file":
		b, err := os.ReadFile(target.Path)
		return string(b), err
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return "", err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
		if err != nil {
			return "", fmt.Errorf("unsupported page encoding: %w", err)
		}
		b, err := io.ReadAll(body)
		return string(b), err
	default:
		return "", fmt.Errorf("unsupported scheme %q", target.Scheme)
	}
}

func (d *Driver) Click(ctx context.Context, scope, selector string) error {
	d.mu.Lock()
	el, err := d.find(scope, selector)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if isDisabled(el) {
		d.mu.Unlock()
		return fmt.Errorf("%s is disabled", selector)
	}

	var href string
	switch {
	case isInput(el, "checkbox"):
		toggleAttr(el, "checked", !el.Is("[checked]"))
	case isInput(el, "radio"):
		checkRadio(d.doc, el)
	case isSubmitControl(el):
		if form := el.Closest("form"); form.Length() > 0 {
			d.submitLocked(form)
		}
	case goquery.NodeName(el) == "a":
		href, _ = el.Attr("href")
	}

	for _, hook := range d.hooks {
		if el.Is(hook.selector) {
			hook.handle(d.doc, el)
		}
	}
	navigable := d.location.Scheme == "http" || d.location.Scheme == "https" || d.location.Scheme == "file"
	d.mu.Unlock()

	if href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") && navigable {
		return d.Navigate(ctx, href)
	}
	return nil
}

func (d *Driver) Fill(_ context.Context, scope, selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.find(scope, selector)
	if err != nil {
		return err
	}
	return setFieldValue(el, selector, text)
}

func (d *Driver) Clear(_ context.Context, scope, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.find(scope, selector)
	if err != nil {
		return err
	}
	return setFieldValue(el, selector, "")
}

func (d *Driver) Select(_ context.Context, scope, selector, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.find(scope, selector)
	if err != nil {
		return err
	}
	if goquery.NodeName(el) != "select" {
		return fmt.Errorf("%s is not a select element", selector)
	}

	options := el.Find("option")
	match := options.FilterFunction(func(_ int, o *goquery.Selection) bool {
		return optionValue(o) == value
	})
	if match.Length() == 0 {
		match = options.FilterFunction(func(_ int, o *goquery.Selection) bool {
			return strings.TrimSpace(o.Text()) == value
		})
	}
	if match.Length() == 0 {
		return fmt.Errorf("%w: no option %q in %s", browser.ErrNoElement, value, selector)
	}
	options.RemoveAttr("selected")
	match.First().SetAttr("selected", "selected")
	return nil
}

func (d *Driver) SetChecked(_ context.Context, scope, selector string, checked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.find(scope, selector)
	if err != nil {
		return err
	}
	switch {
	case isInput(el, "checkbox"):
		toggleAttr(el, "checked", checked)
	case isInput(el, "radio"):
		if !checked {
			return fmt.Errorf("cannot uncheck radio button %s", selector)
		}
		checkRadio(d.doc, el)
	default:
		return fmt.Errorf("%s is not a checkbox or radio button", selector)
	}
	return nil
}

func (d *Driver) Submit(_ context.Context, scope, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.find(scope, selector)
	if err != nil {
		return err
	}
	form := el.Closest("form")
	if form.Length() == 0 {
		return fmt.Errorf("%s is not inside a form", selector)
	}
	d.submitLocked(form)
	return nil
}

func (d *Driver) ScrollIntoView(_ context.Context, scope, selector string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.find(scope, selector)
	return err
}

func (d *Driver) Text(_ context.Context, scope, selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.find(scope, selector)
	if err != nil {
		return "", err
	}
	return el.Text(), nil
}

func (d *Driver) Value(_ context.Context, scope, selector string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.find(scope, selector)
	if err != nil {
		return "", err
	}
	return fieldValue(el), nil
}

func (d *Driver) Visible(_ context.Context, scope, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	root, err := d.root(scope)
	if err != nil {
		return false, err
	}
	el := root.Find(selector).First()
	if el.Length() == 0 {
		return false, nil
	}
	return !isHidden(el), nil
}

func (d *Driver) Enabled(_ context.Context, scope, selector string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, err := d.find(scope, selector)
	if err != nil {
		return false, err
	}
	return !isDisabled(el), nil
}

func (d *Driver) Count(_ context.Context, scope, selector string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	root, err := d.root(scope)
	if err != nil {
		return 0, err
	}
	return root.Find(selector).Length(), nil
}

func (d *Driver) Title(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.TrimSpace(d.doc.Find("title").First().Text()), nil
}

func (d *Driver) URL(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location.String(), nil
}

func (d *Driver) submitLocked(form *goquery.Selection) {
	action, _ := form.Attr("action")
	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", "GET")))
	sub := Submission{Action: action, Method: method, Values: formValues(form)}
	d.submissions = append(d.submissions, sub)
	d.logger.Debug("Form submitted.", zap.String("action", action), zap.String("method", method))
}
