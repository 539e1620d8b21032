// Package fakedriver is an in-memory driver.Driver for tests. The page is
// an HTML document queried with goquery, behavior is scripted with click and
// key handlers, and every call is recorded.
package fakedriver

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"stgpx/internal/driver"
	"stgpx/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

type Op string

const (
	OpNavigate  Op = "navigate"
	OpWait      Op = "wait"
	OpElements  Op = "elements"
	OpClick     Op = "click"
	OpClear     Op = "clear"
	OpType      Op = "type"
	OpAttribute Op = "attribute"
	OpSendKey   Op = "send-key"
	OpClose     Op = "close"
)

type Call struct {
	Op        Op
	Locator   driver.Locator
	Condition driver.Condition
	Timeout   time.Duration
	URL       string
	Key       driver.Key
	Text      string
	Err       error
}

// Router renders the page for a navigated url.
type Router func(url string) (html string, err error)

// NotReadyAttr marks an element that is present but never becomes
// interactable.
const NotReadyAttr = "data-not-ready"

// Driver is not safe for concurrent use, neither is a real browser tab.
type Driver struct {
	router     Router
	doc        *goquery.Document
	url        string
	generation int

	clicks map[driver.Locator]func() error
	keys   map[driver.Key]func() error

	calls  []Call
	closed int
}

var _ driver.Driver = (*Driver)(nil)

func New(router Router) *Driver {
	d := &Driver{
		router: router,
		clicks: map[driver.Locator]func() error{},
		keys:   map[driver.Key]func() error{},
	}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	d.doc = doc
	return d
}

// OnClick registers fn to run when an element found through loc is
// clicked. Clicking an element without a handler follows its href, if any.
func (d *Driver) OnClick(loc driver.Locator, fn func() error) {
	d.clicks[loc] = fn
}

func (d *Driver) OnKey(key driver.Key, fn func() error) {
	d.keys[key] = fn
}

// SetHTML replaces the current document, elements found before become
// stale.
func (d *Driver) SetHTML(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	d.doc = doc
	d.generation++
	return nil
}

func (d *Driver) URL() string {
	return d.url
}

func (d *Driver) Document() *goquery.Document {
	return d.doc
}

// Value returns the value attribute of the first element matching loc.
func (d *Driver) Value(loc driver.Locator) string {
	sel, err := d.find(loc)
	if err != nil || sel.Length() == 0 {
		return ""
	}
	return sel.First().AttrOr("value", "")
}

func (d *Driver) Calls() []Call {
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Count returns how many calls of op were made, filtered by locator unless
// loc is the zero Locator.
func (d *Driver) Count(op Op, loc driver.Locator) int {
	n := 0
	for _, c := range d.calls {
		if c.Op != op {
			continue
		}
		if !loc.IsZero() && c.Locator != loc {
			continue
		}
		n++
	}
	return n
}

// Navigations returns every url passed to Navigate, in order.
func (d *Driver) Navigations() []string {
	var out []string
	for _, c := range d.calls {
		if c.Op == OpNavigate {
			out = append(out, c.URL)
		}
	}
	return out
}

func (d *Driver) CloseCount() int {
	return d.closed
}

func (d *Driver) record(c Call) error {
	d.calls = append(d.calls, c)
	return c.Err
}

func (d *Driver) find(loc driver.Locator) (*goquery.Selection, error) {
	sel := d.doc.Find(loc.CSS)
	if loc.Text == "" {
		return sel, nil
	}
	re, err := regexp.Compile(loc.Text)
	if err != nil {
		return nil, fmt.Errorf("locator %s: %w", loc.String(), err)
	}
	return sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return re.MatchString(htmlutil.NormalizeText(htmlutil.Text(s.Get(0))))
	}), nil
}

func (d *Driver) Navigate(ctx context.Context, target string) error {
	if d.closed > 0 {
		return d.record(Call{Op: OpNavigate, URL: target, Err: driver.ErrClosed})
	}
	if err := ctx.Err(); err != nil {
		return d.record(Call{Op: OpNavigate, URL: target, Err: err})
	}
	html, err := d.router(target)
	if err != nil {
		return d.record(Call{Op: OpNavigate, URL: target, Err: err})
	}
	err = d.SetHTML(html)
	if err != nil {
		return d.record(Call{Op: OpNavigate, URL: target, Err: err})
	}
	d.url = target
	return d.record(Call{Op: OpNavigate, URL: target})
}

func (d *Driver) WaitFor(ctx context.Context, loc driver.Locator, cond driver.Condition, timeout time.Duration) (driver.Element, error) {
	c := Call{Op: OpWait, Locator: loc, Condition: cond, Timeout: timeout, URL: d.url}
	if d.closed > 0 {
		c.Err = driver.ErrClosed
		return nil, d.record(c)
	}
	if err := ctx.Err(); err != nil {
		c.Err = err
		return nil, d.record(c)
	}

	sel, err := d.find(loc)
	if err != nil {
		c.Err = err
		return nil, d.record(c)
	}
	waitErr := func(cause error) error {
		return &driver.WaitError{Locator: loc, Condition: cond, Timeout: timeout, Err: cause}
	}

	if cond == driver.Hidden {
		if sel.Length() > 0 {
			c.Err = waitErr(driver.ErrNotReady)
		}
		return nil, d.record(c)
	}
	if sel.Length() == 0 {
		c.Err = waitErr(driver.ErrNotFound)
		return nil, d.record(c)
	}
	first := sel.First()
	if cond == driver.Interactable {
		if _, notReady := first.Attr(NotReadyAttr); notReady {
			c.Err = waitErr(driver.ErrNotReady)
			return nil, d.record(c)
		}
	}
	d.record(c)
	return &element{d: d, loc: loc, sel: first, generation: d.generation}, nil
}

func (d *Driver) Elements(ctx context.Context, loc driver.Locator) ([]driver.Element, error) {
	c := Call{Op: OpElements, Locator: loc, URL: d.url}
	if d.closed > 0 {
		c.Err = driver.ErrClosed
		return nil, d.record(c)
	}
	sel, err := d.find(loc)
	if err != nil {
		c.Err = err
		return nil, d.record(c)
	}
	d.record(c)

	out := make([]driver.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &element{d: d, loc: loc, sel: s, generation: d.generation})
	})
	return out, nil
}

func (d *Driver) SendKey(ctx context.Context, key driver.Key) error {
	c := Call{Op: OpSendKey, Key: key, URL: d.url}
	if d.closed > 0 {
		c.Err = driver.ErrClosed
		return d.record(c)
	}
	fn, ok := d.keys[key]
	if ok {
		c.Err = fn()
	}
	return d.record(c)
}

func (d *Driver) Close() error {
	d.closed++
	return d.record(Call{Op: OpClose})
}

type element struct {
	d          *Driver
	loc        driver.Locator
	sel        *goquery.Selection
	generation int
}

func (e *element) check(ctx context.Context) error {
	if e.d.closed > 0 {
		return driver.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.generation != e.d.generation {
		return driver.ErrStale
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	c := Call{Op: OpClick, Locator: e.loc, URL: e.d.url}
	if err := e.check(ctx); err != nil {
		c.Err = err
		return e.d.record(c)
	}
	if _, notReady := e.sel.Attr(NotReadyAttr); notReady {
		c.Err = driver.ErrNotReady
		return e.d.record(c)
	}
	e.d.record(c)

	fn, ok := e.d.clicks[e.loc]
	if ok {
		return fn()
	}
	href, ok := e.sel.Attr("href")
	if !ok {
		return nil
	}
	target, err := resolve(e.d.url, href)
	if err != nil {
		return err
	}
	return e.d.Navigate(ctx, target)
}

func (e *element) Clear(ctx context.Context) error {
	c := Call{Op: OpClear, Locator: e.loc, URL: e.d.url}
	if err := e.check(ctx); err != nil {
		c.Err = err
		return e.d.record(c)
	}
	e.sel.SetAttr("value", "")
	return e.d.record(c)
}

func (e *element) Type(ctx context.Context, text string) error {
	c := Call{Op: OpType, Locator: e.loc, URL: e.d.url, Text: text}
	if err := e.check(ctx); err != nil {
		c.Err = err
		return e.d.record(c)
	}
	e.sel.SetAttr("value", e.sel.AttrOr("value", "")+text)
	return e.d.record(c)
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	c := Call{Op: OpAttribute, Locator: e.loc, URL: e.d.url, Text: name}
	if err := e.check(ctx); err != nil {
		c.Err = err
		return "", false, e.d.record(c)
	}
	value, ok := e.sel.Attr(name)
	return value, ok, e.d.record(c)
}

func resolve(base, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if base == "" {
		return ref.String(), nil
	}
	baseUrl, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseUrl.ResolveReference(ref).String(), nil
}
