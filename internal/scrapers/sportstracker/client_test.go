package sportstracker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stgpx/internal/components/chrono"
	"stgpx/internal/components/telemetry"
	"stgpx/internal/driver"
	"stgpx/internal/driver/fakedriver"
	"stgpx/internal/scrapers/sportstracker"
	"stgpx/internal/scrapers/sportstracker/sitefake"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var creds = sportstracker.Credentials{Username: "runner@example.com", Password: "hunter2"}

type harness struct {
	site   *sitefake.Site
	client *sportstracker.Client
	tel    *telemetry.Recorder
	clock  *chrono.Fake
}

func setup(t testing.TB, site sitefake.Options, opts sportstracker.ClientOptions) harness {
	t.Helper()

	if site.Username == "" {
		site.Username = creds.Username
		site.Password = creds.Password
	}
	h := harness{
		site:  sitefake.New(site),
		tel:   telemetry.NewRecorder(),
		clock: chrono.NewFake(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)),
	}
	opts.BaseUrl = sitefake.BaseUrl
	opts.Clock = h.clock
	opts.NavigationRate = rate.Inf

	client, err := sportstracker.NewClient(h.site.Driver, opts, h.tel)
	require.NoError(t, err)
	h.client = client

	require.NoError(t, client.Open(context.Background()))
	return h
}

func allRefs(n int) []sportstracker.ActivityRef {
	refs := make([]sportstracker.ActivityRef, n)
	for i := range refs {
		refs[i] = sportstracker.ActivityRef{URL: sitefake.WorkoutURL(i)}
	}
	return refs
}

func TestLoginAttemptsAreBounded(t *testing.T) {
	for _, maxAttempts := range []int{1, 3, 5} {
		h := setup(t, sitefake.Options{}, sportstracker.ClientOptions{MaxAttempts: maxAttempts})

		session, err := h.client.Login(context.Background(), sportstracker.Credentials{
			Username: creds.Username,
			Password: "wrong",
		})
		require.ErrorIs(t, err, sportstracker.ErrLoginFailed)
		require.ErrorIs(t, err, driver.ErrTimeout)
		require.Nil(t, session)

		require.Equal(t, maxAttempts, h.site.LoginSubmissions)
		require.Len(t, h.tel.Filter(telemetry.LevelWarning, "client.login-attempt"), maxAttempts)
		require.False(t, h.site.LoggedIn())

		sleeps := h.clock.Sleeps()
		require.Len(t, sleeps, maxAttempts-1)
		for _, d := range sleeps {
			require.GreaterOrEqual(t, d, time.Second)
			require.LessOrEqual(t, d, time.Second*3)
		}
	}
}

func TestLoginRetriesUntilAccepted(t *testing.T) {
	h := setup(t, sitefake.Options{RejectLogins: 2}, sportstracker.ClientOptions{
		LoginBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(time.Second * 2)
		},
	})

	session, err := h.client.Login(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, sportstracker.LoggedIn, session.Status)
	require.Equal(t, 3, session.Attempts)
	require.Equal(t, []time.Duration{time.Second * 2, time.Second * 2}, h.clock.Sleeps())
	require.True(t, h.site.LoggedIn())

	d := h.site.Driver
	require.Equal(t, 1, d.Count(fakedriver.OpClick, sportstracker.DefaultSelectors().CookieDecline))
	// the form is cleared before every refill
	require.Equal(t, 3, d.Count(fakedriver.OpClear, sportstracker.DefaultSelectors().Username))
	require.Equal(t, 3, d.Count(fakedriver.OpClear, sportstracker.DefaultSelectors().Password))
}

func TestLoginWithoutCookieBanner(t *testing.T) {
	h := setup(t, sitefake.Options{NoCookieBanner: true}, sportstracker.ClientOptions{})

	session, err := h.client.Login(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, 1, session.Attempts)
	require.Empty(t, h.clock.Sleeps())
}

func TestLoginStopsWhenBackOffGivesUp(t *testing.T) {
	h := setup(t, sitefake.Options{}, sportstracker.ClientOptions{
		MaxAttempts: 5,
		LoginBackOff: func() backoff.BackOff {
			return &backoff.StopBackOff{}
		},
	})

	_, err := h.client.Login(context.Background(), sportstracker.Credentials{Username: "nobody", Password: "x"})
	require.ErrorIs(t, err, sportstracker.ErrLoginFailed)
	require.Equal(t, 1, h.site.LoginSubmissions)
}

func TestLogout(t *testing.T) {
	h := setup(t, sitefake.Options{}, sportstracker.ClientOptions{})
	account := sportstracker.DefaultSelectors().Account
	ctx := context.Background()

	h.client.Logout(ctx, nil)
	h.client.Logout(ctx, &sportstracker.Session{Status: sportstracker.Failed, Attempts: 5})
	require.Zero(t, h.site.Driver.Count(fakedriver.OpWait, account))

	session, err := h.client.Login(ctx, creds)
	require.NoError(t, err)
	h.client.Logout(ctx, session)
	require.Equal(t, sportstracker.LoggedOut, session.Status)
	require.Equal(t, 1, h.site.Logouts)
	require.False(t, h.site.LoggedIn())
}

func TestLogoutNeverFails(t *testing.T) {
	h := setup(t, sitefake.Options{}, sportstracker.ClientOptions{})
	ctx := context.Background()

	session, err := h.client.Login(ctx, creds)
	require.NoError(t, err)
	require.NoError(t, h.site.Driver.Close())

	h.client.Logout(ctx, session)
	require.Equal(t, sportstracker.LoggedIn, session.Status)
	require.Len(t, h.tel.Filter(telemetry.LevelWarning, "client.logout"), 1)
}

func TestEnumeratePaginates(t *testing.T) {
	cases := []struct {
		activities int
		pageSize   int
		pages      int
	}{
		{activities: 0, pageSize: 2, pages: 0},
		{activities: 1, pageSize: 2, pages: 0},
		{activities: 4, pageSize: 2, pages: 1},
		{activities: 5, pageSize: 2, pages: 2},
		{activities: 7, pageSize: 3, pages: 2},
	}
	for _, c := range cases {
		h := setup(t, sitefake.Options{Activities: c.activities, PageSize: c.pageSize}, sportstracker.ClientOptions{})

		refs, err := h.client.Enumerate(context.Background())
		require.NoError(t, err)
		if diff := cmp.Diff(allRefs(c.activities), refs); diff != "" {
			t.Fatalf("%d activities: refs mismatch (-want +got):\n%s", c.activities, diff)
		}

		showMore := sportstracker.DefaultSelectors().ShowMore
		require.Equal(t, c.pages, h.site.ShowMoreClicks)
		require.Equal(t, c.pages+1, h.site.Driver.Count(fakedriver.OpWait, showMore))
	}
}

func TestEnumerateDoesNotNavigateWhileExtracting(t *testing.T) {
	h := setup(t, sitefake.Options{Activities: 3}, sportstracker.ClientOptions{})

	_, err := h.client.Enumerate(context.Background())
	require.NoError(t, err)

	for _, u := range h.site.Driver.Navigations() {
		require.NotContains(t, u, "/workout/")
	}
}

func TestEnumerateStalledPagination(t *testing.T) {
	h := setup(t, sitefake.Options{Activities: 2, StallPagination: true}, sportstracker.ClientOptions{
		MaxStalledProbes: 3,
	})

	_, err := h.client.Enumerate(context.Background())
	require.ErrorIs(t, err, sportstracker.ErrPaginationStalled)
	require.ErrorIs(t, err, driver.ErrNotReady)
	require.Equal(t, 3, h.site.Driver.Count(fakedriver.OpWait, sportstracker.DefaultSelectors().ShowMore))
}

func TestEnumerateOpensCollapsedMenu(t *testing.T) {
	h := setup(t, sitefake.Options{Activities: 1, MenuCollapsed: true}, sportstracker.ClientOptions{})

	refs, err := h.client.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, 1, h.site.Driver.Count(fakedriver.OpClick, sportstracker.DefaultSelectors().MenuToggle))
}

func TestEnumerateCoveredMenuToggleFails(t *testing.T) {
	h := setup(t, sitefake.Options{
		Activities:        1,
		MenuCollapsed:     true,
		MenuToggleCovered: true,
	}, sportstracker.ClientOptions{})

	refs, err := h.client.Enumerate(context.Background())
	require.ErrorIs(t, err, driver.ErrNotReady)
	require.Empty(t, refs)
	require.Len(t, h.tel.Filter(telemetry.LevelWarning, "client.menu"), 1)
	require.Zero(t, h.site.Driver.Count(fakedriver.OpClick, sportstracker.DefaultSelectors().Dashboard))
}

func TestReferencesSurviveNavigation(t *testing.T) {
	h := setup(t, sitefake.Options{Activities: 3, MenuCollapsed: true}, sportstracker.ClientOptions{})
	ctx := context.Background()

	refs, err := h.client.Enumerate(ctx)
	require.NoError(t, err)

	outcomes, err := h.client.ExportAll(ctx, refs, sportstracker.AbortBatch)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		require.True(t, o.Succeeded(), "activity %d: %v", i, o.Err)
		require.Equal(t, refs[i], o.Ref)
	}
	require.Equal(t, []string{"w000", "w001", "w002"}, h.site.Exported)

	again, err := h.client.Enumerate(ctx)
	require.NoError(t, err)
	require.Equal(t, refs, again)
}

func TestExportProtocol(t *testing.T) {
	h := setup(t, sitefake.Options{Activities: 1}, sportstracker.ClientOptions{})
	ctx := context.Background()
	sel := sportstracker.DefaultSelectors()

	_, err := h.client.ExportAll(ctx, allRefs(1), sportstracker.AbortBatch)
	require.NoError(t, err)

	var steps []string
	for _, c := range h.site.Driver.Calls() {
		switch {
		case c.Op == fakedriver.OpNavigate:
			steps = append(steps, "navigate "+c.URL)
		case c.Op == fakedriver.OpClick && (c.Locator == sel.Edit || c.Locator == sel.Export || c.Locator == sel.Dashboard):
			steps = append(steps, "click "+c.Locator.Text)
		case c.Op == fakedriver.OpSendKey:
			steps = append(steps, "key "+c.Key.String())
		}
	}
	require.Equal(t, []string{
		"navigate " + sitefake.BaseUrl,
		"navigate " + sitefake.WorkoutURL(0),
		"click ^Edit$",
		"click ^Export$",
		"key escape",
		"click ^Dashboard$",
		"navigate " + sitefake.BaseUrl + "dashboard",
	}, steps)

	timeouts := sportstracker.DefaultTimeouts()
	for _, c := range h.site.Driver.Calls() {
		if c.Op == fakedriver.OpWait && (c.Locator == sel.Edit || c.Locator == sel.Export) {
			require.Equal(t, timeouts.Long, c.Timeout)
		}
		if c.Op == fakedriver.OpWait && c.Locator == sel.MenuToggle {
			require.Equal(t, timeouts.Short, c.Timeout)
		}
	}
}

func TestExportAllAbortsOnFirstFailure(t *testing.T) {
	h := setup(t, sitefake.Options{
		Activities:   3,
		StuckExports: map[int]bool{1: true},
	}, sportstracker.ClientOptions{})

	outcomes, err := h.client.ExportAll(context.Background(), allRefs(3), sportstracker.AbortBatch)

	var exportErr *sportstracker.ExportError
	require.True(t, errors.As(err, &exportErr))
	require.Equal(t, 1, exportErr.Index)
	require.Equal(t, sportstracker.StepExport, exportErr.Step)
	require.ErrorIs(t, err, driver.ErrNotReady)

	require.Len(t, outcomes, 2)
	require.True(t, outcomes[0].Succeeded())
	require.False(t, outcomes[1].Succeeded())
	require.Equal(t, []string{"w000"}, h.site.Exported)
	require.NotContains(t, h.site.Driver.Navigations(), sitefake.WorkoutURL(2))
	require.Len(t, h.tel.Filter(telemetry.LevelBroken, "client.export-all"), 1)
}

func TestExportAllContinueOnError(t *testing.T) {
	h := setup(t, sitefake.Options{
		Activities:   3,
		StuckExports: map[int]bool{1: true},
	}, sportstracker.ClientOptions{})

	refs := allRefs(3)
	outcomes, err := h.client.ExportAll(context.Background(), refs, sportstracker.ContinueOnError)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	for i, o := range outcomes {
		require.Equal(t, refs[i], o.Ref)
	}
	require.True(t, outcomes[0].Succeeded())
	require.False(t, outcomes[1].Succeeded())
	require.True(t, outcomes[2].Succeeded())
	require.Equal(t, []string{"w000", "w002"}, h.site.Exported)
}

func TestExportAllEmpty(t *testing.T) {
	h := setup(t, sitefake.Options{}, sportstracker.ClientOptions{})
	before := len(h.site.Driver.Navigations())

	outcomes, err := h.client.ExportAll(context.Background(), nil, sportstracker.AbortBatch)
	require.NoError(t, err)
	require.Empty(t, outcomes)
	require.Len(t, h.site.Driver.Navigations(), before)
}

func TestExportDownloadsCollide(t *testing.T) {
	dir := t.TempDir()
	h := setup(t, sitefake.Options{Activities: 1, DownloadDir: dir}, sportstracker.ClientOptions{})

	refs := append(allRefs(1), allRefs(1)...)
	_, err := h.client.ExportAll(context.Background(), refs, sportstracker.AbortBatch)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.ElementsMatch(t, []string{"w000.gpx", "w000 (1).gpx"}, names)
	_, err = os.Stat(filepath.Join(dir, "w000.gpx"))
	require.NoError(t, err)
}

func TestActivityRefID(t *testing.T) {
	require.Equal(t, "w001", sportstracker.ActivityRef{URL: sitefake.WorkoutURL(1)}.ID())
	require.Equal(t, "abc", sportstracker.ActivityRef{URL: "https://www.sports-tracker.com/workout/u/abc/"}.ID())
}

func TestSelectorOverridesReplaceWholeLocator(t *testing.T) {
	h := setup(t, sitefake.Options{Activities: 1}, sportstracker.ClientOptions{
		Selectors: sportstracker.Selectors{
			Edit: driver.Locator{CSS: "div.none"},
		},
	})

	_, err := h.client.ExportAll(context.Background(), allRefs(1), sportstracker.AbortBatch)
	var exportErr *sportstracker.ExportError
	require.True(t, errors.As(err, &exportErr))
	require.Equal(t, sportstracker.StepEdit, exportErr.Step)
	require.True(t, driver.IsAbsent(err))
}

func TestUniformBackOff(t *testing.T) {
	policy := sportstracker.UniformBackOff(time.Second*4, time.Second*6)()
	for i := 0; i < 50; i++ {
		d := policy.NextBackOff()
		require.GreaterOrEqual(t, d, time.Second*4)
		require.LessOrEqual(t, d, time.Second*6)
	}

	fixed := sportstracker.UniformBackOff(time.Second, time.Second)()
	require.Equal(t, time.Second, fixed.NextBackOff())
}

type snapshottingDriver struct {
	*fakedriver.Driver
	names []string
	err   error
}

func (d *snapshottingDriver) Snapshot(ctx context.Context, name string) error {
	d.names = append(d.names, name)
	return d.err
}

func TestExportFailureTakesSnapshot(t *testing.T) {
	site := sitefake.New(sitefake.Options{
		Username:     creds.Username,
		Password:     creds.Password,
		Activities:   3,
		StuckExports: map[int]bool{0: true, 2: true},
	})
	d := &snapshottingDriver{Driver: site.Driver, err: errors.New("disk full")}
	tel := telemetry.NewRecorder()
	client, err := sportstracker.NewClient(d, sportstracker.ClientOptions{
		BaseUrl:        sitefake.BaseUrl,
		Clock:          chrono.NewFake(time.Now()),
		NavigationRate: rate.Inf,
	}, tel)
	require.NoError(t, err)
	require.NoError(t, client.Open(context.Background()))

	outcomes, err := client.ExportAll(context.Background(), allRefs(3), sportstracker.ContinueOnError)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	require.Equal(t, []string{"export-001-w000", "export-003-w002"}, d.names)
	// a failed snapshot is only a warning
	require.Len(t, tel.Filter(telemetry.LevelWarning, "client.snapshot"), 2)
}
