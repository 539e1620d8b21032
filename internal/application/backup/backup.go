// Package backup runs a complete backup: login, enumerate, export, clean,
// and always logout and close the browser afterwards.
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stgpx/internal/cleanup"
	"stgpx/internal/components/assert"
	"stgpx/internal/components/telemetry"
	"stgpx/internal/driver"
	"stgpx/internal/history"
	"stgpx/internal/scrapers/sportstracker"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_runner_run      = "runner.run"
	report_runner_teardown = "runner.teardown"
	report_runner_history  = "runner.history"
)

var tracer = otel.Tracer("stgpx/internal/application/backup")

// teardown gets its own deadline, it must run even after ctx is canceled
const teardownTimeout = time.Second * 30

type Mode string

const (
	ModeList     Mode = "list"
	ModeDownload Mode = "download"
)

func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeList, ModeDownload:
		return Mode(value), nil
	}
	return "", fmt.Errorf("unknown mode %q, expected %s or %s", value, ModeList, ModeDownload)
}

var ErrCleanWithoutOutput = errors.New("cleaning downloads requires an output directory")

type Options struct {
	Mode Mode
	// login is skipped when zero
	Credentials sportstracker.Credentials
	Policy      sportstracker.FailurePolicy
	// remove duplicate downloads from OutputDir after exporting
	Clean     bool
	OutputDir string
	// drop activities a previous run exported, requires a history store
	SkipExported bool
}

func (o Options) Validate() error {
	if o.Mode != ModeList && o.Mode != ModeDownload {
		return fmt.Errorf("unknown mode %q", o.Mode)
	}
	if (o.Credentials.Username == "") != (o.Credentials.Password == "") {
		return errors.New("username and password must be given together")
	}
	if o.Clean && o.OutputDir == "" {
		return ErrCleanWithoutOutput
	}
	return nil
}

type Result struct {
	// empty without a history store
	RunID      string
	Session    *sportstracker.Session
	Activities []sportstracker.ActivityRef
	// activities dropped because an earlier run exported them
	Skipped  int
	Outcomes []sportstracker.Outcome
	// nil unless cleaning ran
	Cleanup *cleanup.Report
}

// Failed counts the activities whose export failed.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}

type Runner struct {
	driver  driver.Driver
	client  *sportstracker.Client
	cleaner cleanup.Cleaner
	history *history.Store
	tel     telemetry.API
}

// NewRunner takes ownership of d, Run closes it. store may be nil.
func NewRunner(
	d driver.Driver,
	client *sportstracker.Client,
	cleaner cleanup.Cleaner,
	store *history.Store,
	tel telemetry.API,
) Runner {
	assert.NotNil(d)
	assert.NotNil(client)
	assert.NotNil(tel)

	return Runner{
		driver:  d,
		client:  client,
		cleaner: cleaner,
		history: store,
		tel:     telemetry.NewScopedAPI("backup", tel),
	}
}

// Run performs a backup. Whatever happens, the session is logged out if
// it reached LoggedIn and the driver is closed, each exactly once, before
// Run returns. Cleaning only runs when every export was attempted.
func (r Runner) Run(ctx context.Context, opts Options) (result Result, err error) {
	ctx, span := tracer.Start(ctx, "backup:Run", trace.WithAttributes(
		attribute.String("mode", string(opts.Mode)),
		attribute.String("policy", opts.Policy.String()),
	))
	defer span.End()

	defer func() {
		r.teardown(ctx, result.Session)
	}()

	err = opts.Validate()
	if err != nil {
		return result, err
	}

	result.RunID = r.beginRun(ctx, opts.Mode)
	defer func() {
		r.finishRun(ctx, result.RunID, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "backup failed")
			r.tel.ReportBroken(report_runner_run, err, opts.Mode)
		}
	}()

	err = r.client.Open(ctx)
	if err != nil {
		return result, err
	}

	if !opts.Credentials.IsZero() {
		result.Session, err = r.client.Login(ctx, opts.Credentials)
		if err != nil {
			return result, err
		}
	}

	result.Activities, err = r.client.Enumerate(ctx)
	if err != nil {
		return result, err
	}
	r.recordActivities(ctx, result.RunID, result.Activities)

	if opts.Mode == ModeList {
		return result, nil
	}

	refs := result.Activities
	if opts.SkipExported {
		refs, err = r.skipExported(ctx, refs)
		if err != nil {
			return result, err
		}
		result.Skipped = len(result.Activities) - len(refs)
	}

	result.Outcomes, err = r.client.ExportAll(ctx, refs, opts.Policy)
	r.recordOutcomes(ctx, result.RunID, result.Outcomes)
	if err != nil {
		return result, err
	}

	if opts.Clean {
		report, err := r.cleaner.Clean(ctx, opts.OutputDir)
		if err != nil {
			return result, err
		}
		result.Cleanup = &report
	}

	return result, nil
}

func (r Runner) skipExported(ctx context.Context, refs []sportstracker.ActivityRef) ([]sportstracker.ActivityRef, error) {
	if r.history == nil {
		return nil, errors.New("skipping exported activities requires a history database")
	}
	exported, err := r.history.ExportedURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	remaining := history.FilterExported(refs, exported)
	r.tel.ReportInfo("skipping exported workouts", len(refs)-len(remaining))
	return remaining, nil
}

func (r Runner) teardown(ctx context.Context, session *sportstracker.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	r.client.Logout(ctx, session)

	r.tel.ReportInfo("closing browser")
	err := r.driver.Close()
	if err != nil {
		r.tel.ReportWarning(report_runner_teardown, err)
	}
}

// the history methods below are best effort, a broken database never
// fails a backup

func (r Runner) beginRun(ctx context.Context, mode Mode) string {
	if r.history == nil {
		return ""
	}
	id, err := r.history.BeginRun(ctx, string(mode))
	if err != nil {
		r.tel.ReportWarning(report_runner_history, "begin run", err)
		return ""
	}
	return id
}

func (r Runner) recordActivities(ctx context.Context, runID string, refs []sportstracker.ActivityRef) {
	if runID == "" {
		return
	}
	err := r.history.RecordActivities(ctx, runID, refs)
	if err != nil {
		r.tel.ReportWarning(report_runner_history, "record activities", err)
	}
}

func (r Runner) recordOutcomes(ctx context.Context, runID string, outcomes []sportstracker.Outcome) {
	if runID == "" {
		return
	}
	err := r.history.RecordOutcomes(ctx, runID, outcomes)
	if err != nil {
		r.tel.ReportWarning(report_runner_history, "record outcomes", err)
	}
}

func (r Runner) finishRun(ctx context.Context, runID string, runErr error) {
	if runID == "" {
		return
	}
	err := r.history.FinishRun(context.WithoutCancel(ctx), runID, runErr)
	if err != nil {
		r.tel.ReportWarning(report_runner_history, "finish run", err)
	}
}
