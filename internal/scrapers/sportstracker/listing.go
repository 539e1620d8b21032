package sportstracker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"stgpx/internal/driver"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrPaginationStalled is returned when "Show more" stays on the page but
// never becomes clickable, so the listing can neither be expanded nor
// considered complete.
var ErrPaginationStalled = errors.New("workout listing stopped loading")

// ActivityRef is the absolute url of one workout. Unlike an element it
// stays valid across navigations.
type ActivityRef struct {
	URL string `json:"url" yaml:"url"`
}

// ID is the last path segment of the workout url.
func (r ActivityRef) ID() string {
	u, err := url.Parse(r.URL)
	if err != nil || u.Path == "" {
		return r.URL
	}
	return path.Base(strings.TrimSuffix(u.Path, "/"))
}

func (r ActivityRef) String() string {
	return r.URL
}

// openMenu clicks the navigation menu toggle, a missing toggle means the
// menu is already open. A toggle that is there but never clickable is an
// error.
func (c *Client) openMenu(ctx context.Context) error {
	err := c.clickWhen(ctx, c.selectors.MenuToggle, c.timeouts.Short)
	if driver.IsAbsent(err) {
		c.tel.ReportDebug("menu toggle not found, assuming menu is open")
		return nil
	}
	if err != nil {
		c.tel.ReportWarning(report_client_menu, err)
		return fmt.Errorf("open menu: %w", err)
	}
	return nil
}

func (c *Client) openDashboard(ctx context.Context) error {
	err := c.openMenu(ctx)
	if err != nil {
		return err
	}
	err = c.clickWhen(ctx, c.selectors.Dashboard, c.timeouts.Long)
	if err != nil {
		return fmt.Errorf("open dashboard: %w", err)
	}
	return nil
}

// Enumerate opens the workout listing, expands it until "Show more" is
// gone and only then reads the url of every workout, in listing order.
func (c *Client) Enumerate(ctx context.Context) ([]ActivityRef, error) {
	ctx, span := tracer.Start(ctx, "client:Enumerate")
	defer span.End()

	c.tel.ReportInfo("listing workouts")

	err := c.openDashboard(ctx)
	if err == nil {
		err = c.clickWhen(ctx, c.selectors.MyWorkouts, c.timeouts.Long)
		if err != nil {
			err = fmt.Errorf("open my workouts: %w", err)
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, "failed to open listing")
		c.tel.ReportBroken(report_client_enumerate, err)
		return nil, err
	}

	pages, err := c.expandListing(ctx)
	span.SetAttributes(attribute.Int("pages", pages))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to expand listing")
		c.tel.ReportBroken(report_client_enumerate, err)
		return nil, err
	}

	refs, err := c.extractRefs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read workout links")
		c.tel.ReportBroken(report_client_enumerate, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("activities", len(refs)))
	c.tel.ReportInfo("found workouts", len(refs), pages)
	return refs, nil
}

// expandListing clicks "Show more" until the button is absent and returns
// how many times it was clicked. A button that is present but not
// clickable is probed again, up to maxStalledProbes times in a row.
func (c *Client) expandListing(ctx context.Context) (int, error) {
	pages := 0
	stalled := 0
	for {
		el, err := c.driver.WaitFor(ctx, c.selectors.ShowMore, driver.Interactable, c.timeouts.Short)
		if driver.IsAbsent(err) {
			return pages, nil
		}
		if errors.Is(err, driver.ErrNotReady) {
			stalled++
			c.tel.ReportDebug("show more not ready", stalled, c.maxStalledProbes)
			if stalled >= c.maxStalledProbes {
				return pages, fmt.Errorf("%w: after %d pages: %w", ErrPaginationStalled, pages, err)
			}
			continue
		}
		if err != nil {
			return pages, err
		}
		stalled = 0

		err = el.Click(ctx)
		if err != nil {
			return pages, fmt.Errorf("show more: %w", err)
		}
		pages++
		c.tel.ReportDebug("loaded page", pages)
	}
}

// extractRefs reads the workout links without navigating anywhere.
func (c *Client) extractRefs(ctx context.Context) ([]ActivityRef, error) {
	links, err := c.driver.Elements(ctx, c.selectors.WorkoutLink)
	if err != nil {
		return nil, err
	}

	refs := make([]ActivityRef, 0, len(links))
	for i, link := range links {
		href, ok, err := link.Attribute(ctx, "href")
		if err != nil {
			return nil, fmt.Errorf("workout link %d: %w", i, err)
		}
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			c.tel.ReportWarning(report_client_enumerate_item, i, "workout link without href")
			continue
		}
		target, err := c.baseUrl.Parse(href)
		if err != nil {
			c.tel.ReportWarning(report_client_enumerate_item, i, href, err)
			continue
		}
		refs = append(refs, ActivityRef{URL: target.String()})
	}
	return refs, nil
}
