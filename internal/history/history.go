// Package history keeps a sqlite record of every backup run and the
// activities it touched, so later runs can skip what was already exported.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stgpx/internal/components/assert"
	"stgpx/internal/components/chrono"
	"stgpx/internal/history/db"
	"stgpx/internal/scrapers/sportstracker"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("stgpx/internal/history")

const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

type Store struct {
	db    *sql.DB
	qry   *db.Queries
	clock chrono.API
}

// Open opens (creating if needed) the database at path.
func Open(path string, clock chrono.API) (*Store, error) {
	sqlite, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection, ":memory:" databases are per connection
	sqlite.SetMaxOpenConns(1)
	store, err := NewStore(sqlite, clock)
	if err != nil {
		sqlite.Close()
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	return store, nil
}

// NewStore applies the schema to database, it is safe to call on an
// existing database.
func NewStore(database *sql.DB, clock chrono.API) (*Store, error) {
	assert.NotNil(database)
	assert.NotNil(clock)

	_, err := database.Exec("pragma foreign_keys = on")
	if err != nil {
		return nil, err
	}
	_, err = database.Exec(db.Schema)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:    database,
		qry:   db.New(database),
		clock: clock,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a run and returns its id.
func (s *Store) BeginRun(ctx context.Context, mode string) (string, error) {
	assert.NotEmptyStr(mode)

	ctx, span := tracer.Start(ctx, "history:BeginRun")
	defer span.End()

	id := uuid.NewString()
	err := s.qry.CreateRun(ctx, db.CreateRunParams{
		ID:        id,
		Mode:      mode,
		StartedAt: s.clock.Now().UnixMilli(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("run", id))
	return id, nil
}

// RecordActivities stores the enumerated references of a run in listing
// order.
func (s *Store) RecordActivities(ctx context.Context, runID string, refs []sportstracker.ActivityRef) error {
	ctx, span := tracer.Start(ctx, "history:RecordActivities")
	defer span.End()

	err := db.InTx(ctx, s.db, func(tx *db.Queries) error {
		for i, ref := range refs {
			err := tx.CreateActivity(ctx, db.CreateActivityParams{
				RunID: runID,
				Idx:   int64(i),
				Url:   ref.URL,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// RecordOutcomes stores export results on the recorded activities with
// the same url.
func (s *Store) RecordOutcomes(ctx context.Context, runID string, outcomes []sportstracker.Outcome) error {
	ctx, span := tracer.Start(ctx, "history:RecordOutcomes")
	defer span.End()

	err := db.InTx(ctx, s.db, func(tx *db.Queries) error {
		for _, o := range outcomes {
			msg := ""
			if o.Err != nil {
				msg = o.Err.Error()
			}
			err := tx.SetActivityOutcome(ctx, db.SetActivityOutcomeParams{
				Exported:   o.Succeeded(),
				Error:      msg,
				DurationMs: o.Duration.Milliseconds(),
				RunID:      runID,
				Url:        o.Ref.URL,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// FinishRun marks the run ok, or failed with runErr.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	ctx, span := tracer.Start(ctx, "history:FinishRun")
	defer span.End()

	status := StatusOK
	msg := ""
	if runErr != nil {
		status = StatusFailed
		msg = runErr.Error()
	}
	return s.qry.FinishRun(ctx, db.FinishRunParams{
		FinishedAt: sql.NullInt64{Int64: s.clock.Now().UnixMilli(), Valid: true},
		Status:     status,
		Error:      msg,
		ID:         runID,
	})
}

// ExportedURLs returns every activity url any run exported successfully.
func (s *Store) ExportedURLs(ctx context.Context) (map[string]bool, error) {
	ctx, span := tracer.Start(ctx, "history:ExportedURLs")
	defer span.End()

	urls, err := s.qry.GetExportedUrls(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		out[u] = true
	}
	return out, nil
}

type RunSummary struct {
	ID         string        `json:"id" yaml:"id"`
	Mode       string        `json:"mode" yaml:"mode"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Status     string        `json:"status" yaml:"status"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Activities int           `json:"activities" yaml:"activities"`
	Exported   int           `json:"exported" yaml:"exported"`
	Failed     int           `json:"failed" yaml:"failed"`
}

var ErrInvalidLimit = errors.New("limit must be positive")

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	ctx, span := tracer.Start(ctx, "history:RecentRuns")
	defer span.End()

	rows, err := s.qry.ListRecentRuns(ctx, int64(limit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]RunSummary, len(rows))
	for i, r := range rows {
		started := time.UnixMilli(r.StartedAt)
		summary := RunSummary{
			ID:         r.ID,
			Mode:       r.Mode,
			StartedAt:  started,
			Status:     r.Status,
			Error:      r.Error,
			Activities: int(r.Activities),
			Exported:   int(r.Exported),
			Failed:     int(r.Failed),
		}
		if r.FinishedAt.Valid {
			summary.Duration = time.UnixMilli(r.FinishedAt.Int64).Sub(started)
		}
		out[i] = summary
	}
	return out, nil
}

// FilterExported drops the refs found in exported, keeping order.
func FilterExported(refs []sportstracker.ActivityRef, exported map[string]bool) []sportstracker.ActivityRef {
	out := make([]sportstracker.ActivityRef, 0, len(refs))
	for _, r := range refs {
		if !exported[r.URL] {
			out = append(out, r)
		}
	}
	return out
}
