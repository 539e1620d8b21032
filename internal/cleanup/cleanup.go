// Package cleanup removes the "name(1).gpx" style copies a browser creates
// when a download collides with an existing file.
package cleanup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"stgpx/internal/components/assert"
	"stgpx/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const report_cleaner_remove = "cleaner.remove"

const DefaultExtension = "gpx"

var tracer = otel.Tracer("stgpx/internal/cleanup")

var removedCounter, _ = otel.Meter("stgpx/internal/cleanup").Int64Counter(
	"stgpx.duplicates_removed",
	metric.WithDescription("Duplicate downloads deleted."),
)

// FileSystem is the part of the os package the cleaner needs.
type FileSystem interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	Remove(name string) error
}

type OSFileSystem struct{}

func (OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

func (OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// DuplicatePattern matches "base(n).ext" and "base (n).ext" for a positive
// n, the base and n are captured.
func DuplicatePattern(ext string) *regexp.Regexp {
	ext = strings.TrimPrefix(ext, ".")
	return regexp.MustCompile(`^(.+?) ?\(([1-9][0-9]*)\)\.` + regexp.QuoteMeta(ext) + `$`)
}

type Options struct {
	// without the leading dot, defaults to DefaultExtension
	Extension string
}

type Cleaner struct {
	fs      FileSystem
	pattern *regexp.Regexp
	tel     telemetry.API
}

func NewCleaner(fsys FileSystem, opts Options, tel telemetry.API) Cleaner {
	assert.NotNil(fsys)
	assert.NotNil(tel)
	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	return Cleaner{
		fs:      fsys,
		pattern: DuplicatePattern(opts.Extension),
		tel:     telemetry.NewScopedAPI("cleanup", tel),
	}
}

func (c Cleaner) IsDuplicate(name string) bool {
	return c.pattern.MatchString(name)
}

type FileError struct {
	Name string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

type Report struct {
	// names relative to the cleaned directory, sorted
	Removed []string
	Failed  []FileError
}

// Clean deletes every duplicate directly inside dir, subdirectories are not
// visited. A file that cannot be deleted is recorded in the report and the
// pass goes on, only failing to list dir is an error.
func (c Cleaner) Clean(ctx context.Context, dir string) (Report, error) {
	ctx, span := tracer.Start(ctx, "cleanup:Clean", trace.WithAttributes(
		attribute.String("dir", dir),
	))
	defer span.End()

	entries, err := c.fs.ReadDir(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list directory")
		return Report{}, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var report Report
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if e.IsDir() || !c.IsDuplicate(e.Name()) {
			continue
		}

		err := c.fs.Remove(filepath.Join(dir, e.Name()))
		if err != nil {
			c.tel.ReportWarning(report_cleaner_remove, e.Name(), err)
			report.Failed = append(report.Failed, FileError{Name: e.Name(), Err: err})
			continue
		}
		c.tel.ReportDebug("removed duplicate", e.Name())
		report.Removed = append(report.Removed, e.Name())
	}

	removedCounter.Add(ctx, int64(len(report.Removed)))
	span.SetAttributes(
		attribute.Int("removed", len(report.Removed)),
		attribute.Int("failed", len(report.Failed)),
	)
	c.tel.ReportInfo("cleaned downloads", dir, len(report.Removed), len(report.Failed))
	return report, nil
}
