package sportstracker

import (
	"context"
	"fmt"
	"time"

	"stgpx/internal/driver"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type FailurePolicy int

const (
	// AbortBatch stops at the first failed activity, the remaining ones
	// are never attempted.
	AbortBatch FailurePolicy = iota
	// ContinueOnError records the failure, returns to the listing and
	// moves on to the next activity.
	ContinueOnError
)

func (p FailurePolicy) String() string {
	switch p {
	case AbortBatch:
		return "abort-batch"
	case ContinueOnError:
		return "continue-on-error"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Step names a stage of the per activity export workflow.
type Step string

const (
	StepNavigate Step = "navigate"
	StepEdit     Step = "edit"
	StepExport   Step = "export"
	StepDismiss  Step = "dismiss"
	StepReturn   Step = "return-to-listing"
)

type ExportError struct {
	Index int
	Ref   ActivityRef
	Step  Step
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export of activity %d (%s) failed at %s: %v", e.Index+1, e.Ref.URL, e.Step, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Outcome is the result of exporting one activity, Err is nil on success.
type Outcome struct {
	Ref      ActivityRef
	Err      error
	Duration time.Duration
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// ExportAll runs the export workflow for every ref in order. Outcomes line
// up index for index with refs. With AbortBatch the outcomes stop at the
// first failure, which is also returned as an *ExportError. With
// ContinueOnError every ref gets an outcome and the error is nil unless
// ctx ended.
func (c *Client) ExportAll(ctx context.Context, refs []ActivityRef, policy FailurePolicy) ([]Outcome, error) {
	ctx, span := tracer.Start(ctx, "client:ExportAll", trace.WithAttributes(
		attribute.Int("activities", len(refs)),
		attribute.String("policy", policy.String()),
	))
	defer span.End()

	c.tel.ReportInfo("exporting workouts", len(refs), policy)

	outcomes := make([]Outcome, 0, len(refs))
	failed := 0
	for i, ref := range refs {
		start := c.clock.Now()
		err := c.export(ctx, i, ref)
		outcomes = append(outcomes, Outcome{
			Ref:      ref,
			Err:      err,
			Duration: c.clock.Now().Sub(start),
		})

		result := "ok"
		if err != nil {
			result = "failed"
		}
		exportCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))

		if err == nil {
			c.tel.ReportInfo("exported workout", i+1, len(refs), ref.URL)
			continue
		}

		failed++
		c.snapshot(ctx, fmt.Sprintf("export-%03d-%s", i+1, ref.ID()))

		if ctx.Err() != nil || policy == AbortBatch {
			span.RecordError(err)
			span.SetStatus(codes.Error, "export aborted")
			c.tel.ReportBroken(report_client_export_all, err)
			return outcomes, err
		}

		c.tel.ReportWarning(report_client_export, err)
		rerr := c.returnToListing(ctx)
		if rerr != nil {
			c.tel.ReportWarning(report_client_return, rerr)
		}
	}

	span.SetAttributes(attribute.Int("failed", failed))
	return outcomes, nil
}

// export navigates straight to the activity, opens Edit, clicks Export,
// dismisses the dialog with escape and goes back to the listing.
func (c *Client) export(ctx context.Context, index int, ref ActivityRef) error {
	ctx, span := tracer.Start(ctx, "client:Export", trace.WithAttributes(
		attribute.String("url", ref.URL),
	))
	defer span.End()

	fail := func(step Step, err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step))
		return &ExportError{Index: index, Ref: ref, Step: step, Err: err}
	}

	err := c.navigate(ctx, ref.URL)
	if err != nil {
		return fail(StepNavigate, err)
	}
	err = c.clickWhen(ctx, c.selectors.Edit, c.timeouts.Long)
	if err != nil {
		return fail(StepEdit, err)
	}
	// starts a native download, without a download directory the browser
	// may show a save dialog the driver cannot see
	err = c.clickWhen(ctx, c.selectors.Export, c.timeouts.Long)
	if err != nil {
		return fail(StepExport, err)
	}
	// the dialog's own close button differs between UI states, escape
	// closes all of them
	err = c.driver.SendKey(ctx, driver.KeyEscape)
	if err != nil {
		return fail(StepDismiss, err)
	}
	err = c.returnToListing(ctx)
	if err != nil {
		return fail(StepReturn, err)
	}
	return nil
}

func (c *Client) returnToListing(ctx context.Context) error {
	return c.openDashboard(ctx)
}
