package driver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"stgpx/internal/components/assert"
	"stgpx/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_driver_call   = "driver.call"
	report_driver_result = "driver.result"
)

var tracer = otel.Tracer("stgpx/internal/driver")

type instrumented struct {
	inner     Driver
	tel       telemetry.API
	idcounter *uint64
}

// Instrument wraps d so every call is traced and reported as debug output
// with its duration. Failed waits are not reported as broken, whether a
// timeout matters is up to the caller.
func Instrument(d Driver, tel telemetry.API) Driver {
	assert.NotNil(d)
	assert.NotNil(tel)
	var idcounter uint64
	return instrumented{
		inner:     d,
		tel:       telemetry.NewScopedAPI("driver", tel),
		idcounter: &idcounter,
	}
}

type call struct {
	id    uint64
	start time.Time
	span  trace.Span
}

func (i instrumented) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, call) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	id := atomic.AddUint64(i.idcounter, 1)
	params := []any{id, op}
	for _, a := range attrs {
		params = append(params, a.Value.Emit())
	}
	i.tel.ReportDebug(report_driver_call, params...)
	return ctx, call{id: id, start: time.Now(), span: span}
}

func (i instrumented) end(c call, err error) {
	defer c.span.End()
	// start time does not need to rely on chrono, only the difference matters.
	duration := time.Since(c.start)
	if err != nil {
		c.span.RecordError(err)
		if errors.Is(err, ErrTimeout) {
			c.span.SetStatus(codes.Unset, "timeout")
		} else {
			c.span.SetStatus(codes.Error, err.Error())
		}
		i.tel.ReportDebug(report_driver_result, c.id, duration.String(), err)
		return
	}
	i.tel.ReportDebug(report_driver_result, c.id, duration.String(), "ok")
}

func (i instrumented) Navigate(ctx context.Context, url string) error {
	ctx, c := i.begin(ctx, "navigate", attribute.String("url", url))
	err := i.inner.Navigate(ctx, url)
	i.end(c, err)
	return err
}

func (i instrumented) WaitFor(ctx context.Context, loc Locator, cond Condition, timeout time.Duration) (Element, error) {
	ctx, c := i.begin(
		ctx, "wait",
		attribute.String("locator", loc.String()),
		attribute.String("condition", cond.String()),
		attribute.String("timeout", timeout.String()),
	)
	el, err := i.inner.WaitFor(ctx, loc, cond, timeout)
	i.end(c, err)
	if err != nil || el == nil {
		return el, err
	}
	return instrumentedElement{inner: el, loc: loc, d: i}, nil
}

func (i instrumented) Elements(ctx context.Context, loc Locator) ([]Element, error) {
	ctx, c := i.begin(ctx, "elements", attribute.String("locator", loc.String()))
	els, err := i.inner.Elements(ctx, loc)
	i.end(c, err)
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(els))
	for idx, el := range els {
		out[idx] = instrumentedElement{inner: el, loc: loc, d: i}
	}
	return out, nil
}

func (i instrumented) SendKey(ctx context.Context, key Key) error {
	ctx, c := i.begin(ctx, "send-key", attribute.String("key", key.String()))
	err := i.inner.SendKey(ctx, key)
	i.end(c, err)
	return err
}

func (i instrumented) Close() error {
	_, c := i.begin(context.Background(), "close")
	err := i.inner.Close()
	i.end(c, err)
	return err
}

func (i instrumented) Snapshot(ctx context.Context, name string) error {
	snapshotter, ok := i.inner.(Snapshotter)
	if !ok {
		return nil
	}
	ctx, c := i.begin(ctx, "snapshot", attribute.String("name", name))
	err := snapshotter.Snapshot(ctx, name)
	i.end(c, err)
	return err
}

type instrumentedElement struct {
	inner Element
	loc   Locator
	d     instrumented
}

func (e instrumentedElement) Click(ctx context.Context) error {
	ctx, c := e.d.begin(ctx, "click", attribute.String("locator", e.loc.String()))
	err := e.inner.Click(ctx)
	e.d.end(c, err)
	return err
}

func (e instrumentedElement) Clear(ctx context.Context) error {
	ctx, c := e.d.begin(ctx, "clear", attribute.String("locator", e.loc.String()))
	err := e.inner.Clear(ctx)
	e.d.end(c, err)
	return err
}

// Type does not put the typed text on the trace, it is usually a password.
func (e instrumentedElement) Type(ctx context.Context, text string) error {
	ctx, c := e.d.begin(ctx, "type", attribute.String("locator", e.loc.String()))
	err := e.inner.Type(ctx, text)
	e.d.end(c, err)
	return err
}

func (e instrumentedElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	ctx, c := e.d.begin(ctx, "attribute", attribute.String("locator", e.loc.String()), attribute.String("name", name))
	value, ok, err := e.inner.Attribute(ctx, name)
	e.d.end(c, err)
	return value, ok, err
}
