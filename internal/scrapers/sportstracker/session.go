package sportstracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stgpx/internal/driver"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var ErrLoginFailed = errors.New("failed to login to sports-tracker")

type Status int

const (
	LoggedOut Status = iota
	Authenticating
	LoggedIn
	Failed
)

func (s Status) String() string {
	switch s {
	case LoggedOut:
		return "logged-out"
	case Authenticating:
		return "authenticating"
	case LoggedIn:
		return "logged-in"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Session is the authentication state of the browser, only Login and
// Logout change it.
type Session struct {
	Status   Status
	Attempts int
}

func (s *Session) LoggedIn() bool {
	return s != nil && s.Status == LoggedIn
}

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == ""
}

// LogValue keeps the password out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("username", c.Username))
}

// UniformBackOff returns a policy factory whose delays are uniformly
// distributed between min and max.
func UniformBackOff(min, max time.Duration) func() backoff.BackOff {
	if max < min {
		min, max = max, min
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = (min + max) / 2
		b.RandomizationFactor = 0
		if min+max > 0 {
			b.RandomizationFactor = float64(max-min) / float64(min+max)
		}
		b.Multiplier = 1
		b.MaxInterval = max
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
}

// DefaultLoginBackOff waits a uniformly random 1-3s between attempts.
func DefaultLoginBackOff() backoff.BackOff {
	return UniformBackOff(time.Second, time.Second*3)()
}

// Login dismisses the cookie banner, opens the login form and submits the
// credentials until the logged in indicator shows up. Failed attempts are
// retried after a backoff delay until MaxAttempts is reached, then
// ErrLoginFailed is returned and no session.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	c.tel.ReportInfo("logging in", creds)

	err := c.dismissCookieBanner(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to dismiss cookie banner")
		c.tel.ReportBroken(report_client_login, err)
		return nil, err
	}

	err = c.clickWhen(ctx, c.selectors.LoginOpen, c.timeouts.Long)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open login form")
		c.tel.ReportBroken(report_client_login, fmt.Errorf("open login form: %w", err))
		return nil, err
	}

	session := &Session{Status: Authenticating}
	policy := c.newBackOff()
	policy.Reset()

	for {
		session.Attempts++
		err = c.attemptLogin(ctx, creds)
		loginAttemptCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("ok", err == nil),
		))
		if err == nil {
			session.Status = LoggedIn
			span.SetAttributes(attribute.Int("attempts", session.Attempts))
			c.tel.ReportInfo("logged in", session.Attempts)
			return session, nil
		}

		// only an unconfirmed login is worth another attempt, a closed
		// driver or a canceled context is not
		if !errors.Is(err, driver.ErrTimeout) {
			session.Status = Failed
			span.RecordError(err)
			span.SetStatus(codes.Error, "login attempt errored")
			c.tel.ReportBroken(report_client_login, err)
			return nil, err
		}

		c.tel.ReportWarning(report_client_login_attempt, session.Attempts, c.maxAttempts, err)

		if session.Attempts >= c.maxAttempts {
			break
		}
		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		c.tel.ReportDebug("retrying login", delay)
		err = c.clock.Sleep(ctx, delay)
		if err != nil {
			session.Status = Failed
			return nil, err
		}
	}

	session.Status = Failed
	err = fmt.Errorf("%w after %d attempts: %w", ErrLoginFailed, session.Attempts, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "login attempts exhausted")
	c.tel.ReportBroken(report_client_login, err)
	return nil, err
}

func (c *Client) dismissCookieBanner(ctx context.Context) error {
	err := c.clickWhen(ctx, c.selectors.CookieDecline, c.timeouts.Long)
	if errors.Is(err, driver.ErrTimeout) {
		c.tel.ReportDebug("no cookie banner", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("decline cookies: %w", err)
	}

	_, err = c.driver.WaitFor(ctx, c.selectors.CookieDecline, driver.Hidden, c.timeouts.Short)
	if errors.Is(err, driver.ErrTimeout) {
		c.tel.ReportWarning(report_client_cookie_banner, "banner still visible", err)
		return nil
	}
	return err
}

// attemptLogin refills the form, submits it and waits for the logged in
// indicator. Fields are looked up again every attempt, a rejected login
// may have rendered a new form.
func (c *Client) attemptLogin(ctx context.Context, creds Credentials) error {
	fields := []struct {
		loc   driver.Locator
		value string
	}{
		{c.selectors.Username, creds.Username},
		{c.selectors.Password, creds.Password},
	}
	for _, f := range fields {
		el, err := c.driver.WaitFor(ctx, f.loc, driver.Interactable, c.timeouts.Long)
		if err != nil {
			return err
		}
		err = el.Clear(ctx)
		if err != nil {
			return err
		}
		err = el.Type(ctx, f.value)
		if err != nil {
			return err
		}
	}

	err := c.clickWhen(ctx, c.selectors.LoginSubmit, c.timeouts.Long)
	if err != nil {
		return err
	}

	_, err = c.driver.WaitFor(ctx, c.selectors.Account, driver.Interactable, c.timeouts.LoginAttempt)
	return err
}

// Logout is best effort, failures are reported and never returned. Nothing
// happens unless session reached LoggedIn.
func (c *Client) Logout(ctx context.Context, session *Session) {
	if !session.LoggedIn() {
		return
	}

	ctx, span := tracer.Start(ctx, "client:Logout")
	defer span.End()

	c.tel.ReportInfo("logging out")

	err := c.clickWhen(ctx, c.selectors.Account, c.timeouts.Long)
	if err == nil {
		err = c.clickWhen(ctx, c.selectors.Logout, c.timeouts.Long)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to logout")
		c.tel.ReportWarning(report_client_logout, err)
		return
	}
	session.Status = LoggedOut
}
