// Package sportstracker drives the Sports-Tracker web UI through a
// driver.Driver: logging in and out, enumerating the workouts of the
// logged in user and exporting each of them as a GPX file.
package sportstracker

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"stgpx/internal/components/assert"
	"stgpx/internal/components/chrono"
	"stgpx/internal/components/telemetry"
	"stgpx/internal/driver"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const DefaultBaseUrl = "https://www.sports-tracker.com/"

// Selectors locate every control the client touches, the defaults follow
// the live site and can be overridden when its markup changes.
type Selectors struct {
	CookieDecline driver.Locator `json:"cookie_decline"`
	LoginOpen     driver.Locator `json:"login_open"`
	Username      driver.Locator `json:"username"`
	Password      driver.Locator `json:"password"`
	LoginSubmit   driver.Locator `json:"login_submit"`
	// visible only while logged in, opens the account menu
	Account     driver.Locator `json:"account"`
	Logout      driver.Locator `json:"logout"`
	MenuToggle  driver.Locator `json:"menu_toggle"`
	Dashboard   driver.Locator `json:"dashboard"`
	MyWorkouts  driver.Locator `json:"my_workouts"`
	WorkoutLink driver.Locator `json:"workout_link"`
	ShowMore    driver.Locator `json:"show_more"`
	Edit        driver.Locator `json:"edit"`
	Export      driver.Locator `json:"export"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		CookieDecline: driver.Locator{CSS: "button", Text: "Decline All"},
		LoginOpen:     driver.Locator{CSS: "button", Text: "^Login$"},
		Username:      driver.Locator{CSS: "input[placeholder='Email or username']"},
		Password:      driver.Locator{CSS: "input[placeholder='Password']"},
		LoginSubmit:   driver.Locator{CSS: "input[value='Login']"},
		Account:       driver.Locator{CSS: "button[ng-show='loggedInUser']"},
		Logout:        driver.Locator{CSS: "button", Text: "^Log out$"},
		MenuToggle:    driver.Locator{CSS: "button.nav-menu-toggle"},
		Dashboard:     driver.Locator{CSS: "a", Text: "^Dashboard$"},
		MyWorkouts:    driver.Locator{CSS: "span", Text: "^My workouts$"},
		WorkoutLink:   driver.Locator{CSS: "li.workout-item a.feed-card__link"},
		ShowMore:      driver.Locator{CSS: "button", Text: "^Show more$"},
		Edit:          driver.Locator{CSS: "button", Text: "^Edit$"},
		Export:        driver.Locator{CSS: "button", Text: "^Export$"},
	}
}

// withDefaults replaces every unset locator with its default. Locators are
// replaced as a whole, a CSS override never inherits the default's text.
func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	pairs := [][2]*driver.Locator{
		{&s.CookieDecline, &d.CookieDecline},
		{&s.LoginOpen, &d.LoginOpen},
		{&s.Username, &d.Username},
		{&s.Password, &d.Password},
		{&s.LoginSubmit, &d.LoginSubmit},
		{&s.Account, &d.Account},
		{&s.Logout, &d.Logout},
		{&s.MenuToggle, &d.MenuToggle},
		{&s.Dashboard, &d.Dashboard},
		{&s.MyWorkouts, &d.MyWorkouts},
		{&s.WorkoutLink, &d.WorkoutLink},
		{&s.ShowMore, &d.ShowMore},
		{&s.Edit, &d.Edit},
		{&s.Export, &d.Export},
	}
	for _, p := range pairs {
		if p[0].IsZero() {
			*p[0] = *p[1]
		}
	}
	return s
}

// Timeouts are the two tiers every wait falls into, plus the time a single
// login attempt gets to show the logged in indicator.
type Timeouts struct {
	// menu toggles and "Show more" probes, these either appear at once or
	// are absent
	Short time.Duration
	// page renders after navigation
	Long         time.Duration
	LoginAttempt time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Short:        time.Second * 3,
		Long:         time.Second * 15,
		LoginAttempt: time.Second * 10,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Short <= 0 {
		t.Short = d.Short
	}
	if t.Long <= 0 {
		t.Long = d.Long
	}
	if t.LoginAttempt <= 0 {
		t.LoginAttempt = d.LoginAttempt
	}
	return t
}

const (
	DefaultMaxAttempts      = 5
	DefaultMaxStalledProbes = 3
	DefaultNavigationRate   = rate.Limit(1)
)

type ClientOptions struct {
	// defaults to DefaultBaseUrl
	BaseUrl   string
	Selectors Selectors
	Timeouts  Timeouts
	// login attempts before giving up, defaults to DefaultMaxAttempts
	MaxAttempts int
	// consecutive "Show more" probes that found the button but could not
	// click it before enumeration gives up
	MaxStalledProbes int
	// creates the delay policy between login attempts, called once per
	// Login, defaults to DefaultLoginBackOff
	LoginBackOff func() backoff.BackOff
	// defaults to the wall clock
	Clock chrono.API
	// navigations per second, use rate.Inf to disable throttling
	NavigationRate rate.Limit
}

type Client struct {
	driver           driver.Driver
	baseUrl          *url.URL
	selectors        Selectors
	timeouts         Timeouts
	maxAttempts      int
	maxStalledProbes int
	newBackOff       func() backoff.BackOff
	clock            chrono.API
	limiter          *rate.Limiter
	tel              telemetry.API
}

func NewClient(d driver.Driver, opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(d)
	assert.NotNil(tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !baseUrl.IsAbs() {
		return nil, fmt.Errorf("base url %q is not absolute", opts.BaseUrl)
	}

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxStalledProbes <= 0 {
		opts.MaxStalledProbes = DefaultMaxStalledProbes
	}
	if opts.LoginBackOff == nil {
		opts.LoginBackOff = DefaultLoginBackOff
	}
	if opts.Clock == nil {
		opts.Clock = chrono.NewStandardImpl()
	}
	if opts.NavigationRate <= 0 {
		opts.NavigationRate = DefaultNavigationRate
	}

	return &Client{
		driver:           d,
		baseUrl:          baseUrl,
		selectors:        opts.Selectors.withDefaults(),
		timeouts:         opts.Timeouts.withDefaults(),
		maxAttempts:      opts.MaxAttempts,
		maxStalledProbes: opts.MaxStalledProbes,
		newBackOff:       opts.LoginBackOff,
		clock:            opts.Clock,
		limiter:          rate.NewLimiter(opts.NavigationRate, 1),
		tel:              telemetry.NewScopedAPI("sportstracker", tel),
	}, nil
}

func (c *Client) BaseUrl() *url.URL {
	return c.baseUrl
}

func (c *Client) navigate(ctx context.Context, target string) error {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return err
	}
	return c.driver.Navigate(ctx, target)
}

// Open loads the front page, every other operation expects to start from
// a page of the site.
func (c *Client) Open(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Open")
	defer span.End()

	c.tel.ReportInfo("opening sports-tracker", c.baseUrl.String())
	err := c.navigate(ctx, c.baseUrl.String())
	if err != nil {
		c.tel.ReportBroken(report_client_open, err)
		return err
	}
	return nil
}

// clickWhen waits for loc to reach driver.Interactable and clicks it.
func (c *Client) clickWhen(ctx context.Context, loc driver.Locator, timeout time.Duration) error {
	el, err := c.driver.WaitFor(ctx, loc, driver.Interactable, timeout)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// snapshot captures the page when the driver supports it, failures are
// only reported.
func (c *Client) snapshot(ctx context.Context, name string) {
	s, ok := c.driver.(driver.Snapshotter)
	if !ok {
		return
	}
	err := s.Snapshot(ctx, name)
	if err != nil {
		c.tel.ReportWarning(report_client_snapshot, name, err)
	}
}
