package roddriver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"stgpx/internal/components/telemetry"
	"stgpx/internal/driver"
	"stgpx/lib/htmlutil"
	"stgpx/lib/snapshotutil"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const report_driver_snapshot = "driver.snapshot"

// Driver implements driver.Driver on a single rod page.
type Driver struct {
	browser    *rod.Browser
	page       *rod.Page
	launcher   *launcher.Launcher
	navTimeout time.Duration
	snapshots  snapshotutil.Output
	tel        telemetry.API

	closeOnce sync.Once
	closeErr  error
}

var (
	_ driver.Driver      = (*Driver)(nil)
	_ driver.Snapshotter = (*Driver)(nil)
)

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p := d.page.Context(ctx).Timeout(d.navTimeout)
	defer p.CancelTimeout()

	err := p.Navigate(url)
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	err = p.WaitLoad()
	if err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	return nil
}

func (d *Driver) find(p *rod.Page, loc driver.Locator) (*rod.Element, error) {
	if loc.Text == "" {
		return p.Element(loc.CSS)
	}
	return p.ElementR(loc.CSS, loc.Text)
}

func (d *Driver) has(p *rod.Page, loc driver.Locator) (bool, *rod.Element, error) {
	if loc.Text == "" {
		return p.Has(loc.CSS)
	}
	return p.HasR(loc.CSS, loc.Text)
}

func (d *Driver) WaitFor(ctx context.Context, loc driver.Locator, cond driver.Condition, timeout time.Duration) (driver.Element, error) {
	p := d.page.Context(ctx).Timeout(timeout)
	defer p.CancelTimeout()

	waitErr := func(cause error) error {
		return &driver.WaitError{Locator: loc, Condition: cond, Timeout: timeout, Err: cause}
	}

	if cond == driver.Hidden {
		found, el, err := d.has(p, loc)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		err = el.WaitInvisible()
		if isDeadline(err) {
			return nil, waitErr(driver.ErrNotReady)
		}
		return nil, err
	}

	el, err := d.find(p, loc)
	if isDeadline(err) {
		return nil, waitErr(driver.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if cond == driver.Interactable {
		_, err = el.WaitInteractable()
		if isDeadline(err) {
			return nil, waitErr(driver.ErrNotReady)
		}
		if err != nil {
			return nil, err
		}
	}

	return &element{el: el}, nil
}

func (d *Driver) Elements(ctx context.Context, loc driver.Locator) ([]driver.Element, error) {
	p := d.page.Context(ctx)
	els, err := p.Elements(loc.CSS)
	if err != nil {
		return nil, err
	}

	var re *regexp.Regexp
	if loc.Text != "" {
		re, err = regexp.Compile(loc.Text)
		if err != nil {
			return nil, fmt.Errorf("locator %s: %w", loc.String(), err)
		}
	}

	out := make([]driver.Element, 0, len(els))
	for _, el := range els {
		if re != nil {
			text, err := el.Text()
			if err != nil {
				return nil, err
			}
			if !re.MatchString(htmlutil.NormalizeText(text)) {
				continue
			}
		}
		out = append(out, &element{el: el})
	}
	return out, nil
}

var keys = map[driver.Key]input.Key{
	driver.KeyEscape: input.Escape,
	driver.KeyEnter:  input.Enter,
}

func (d *Driver) SendKey(ctx context.Context, key driver.Key) error {
	k, ok := keys[key]
	if !ok {
		return fmt.Errorf("unsupported key %s", key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.page.Keyboard.Type(k)
}

// Snapshot writes the page html and a screenshot to the configured output,
// it does nothing without one.
func (d *Driver) Snapshot(ctx context.Context, name string) error {
	if d.snapshots == nil || d.page == nil {
		return nil
	}
	p := d.page.Context(ctx).Timeout(d.navTimeout)
	defer p.CancelTimeout()

	var errs []error
	html, err := p.HTML()
	if err == nil {
		err = d.snapshots.Write(name+".html", []byte(html))
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("html: %w", err))
	}

	png, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err == nil {
		err = d.snapshots.Write(name+".png", png)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("screenshot: %w", err))
	}

	err = errors.Join(errs...)
	if err != nil {
		d.tel.ReportWarning(report_driver_snapshot, name, err)
	}
	return err
}

// Close shuts the browser down, it is safe to call more than once.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.browser.Close()
		killLauncher(d.launcher)
	})
	return d.closeErr
}

type element struct {
	el *rod.Element
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) Clear(ctx context.Context) error {
	el := e.el.Context(ctx)
	err := el.SelectAllText()
	if err != nil {
		return err
	}
	return el.Input("")
}

func (e *element) Type(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	value, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}
