package db

import (
	"context"
	"database/sql"
)

const createRun = `-- name: CreateRun :exec
insert into runs(id, mode, started_at) values (?, ?, ?)
`

type CreateRunParams struct {
	ID        string
	Mode      string
	StartedAt int64
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.ExecContext(ctx, createRun, arg.ID, arg.Mode, arg.StartedAt)
	return err
}

const finishRun = `-- name: FinishRun :exec
update runs set finished_at = ?, status = ?, error = ? where id = ?
`

type FinishRunParams struct {
	FinishedAt sql.NullInt64
	Status     string
	Error      string
	ID         string
}

func (q *Queries) FinishRun(ctx context.Context, arg FinishRunParams) error {
	_, err := q.db.ExecContext(ctx, finishRun,
		arg.FinishedAt,
		arg.Status,
		arg.Error,
		arg.ID,
	)
	return err
}

const createActivity = `-- name: CreateActivity :exec
insert into activities(run_id, idx, url) values (?, ?, ?)
`

type CreateActivityParams struct {
	RunID string
	Idx   int64
	Url   string
}

func (q *Queries) CreateActivity(ctx context.Context, arg CreateActivityParams) error {
	_, err := q.db.ExecContext(ctx, createActivity, arg.RunID, arg.Idx, arg.Url)
	return err
}

const setActivityOutcome = `-- name: SetActivityOutcome :exec
update activities set attempted = 1, exported = ?, error = ?, duration_ms = ?
where run_id = ? and url = ?
`

type SetActivityOutcomeParams struct {
	Exported   bool
	Error      string
	DurationMs int64
	RunID      string
	Url        string
}

func (q *Queries) SetActivityOutcome(ctx context.Context, arg SetActivityOutcomeParams) error {
	_, err := q.db.ExecContext(ctx, setActivityOutcome,
		arg.Exported,
		arg.Error,
		arg.DurationMs,
		arg.RunID,
		arg.Url,
	)
	return err
}

const getExportedUrls = `-- name: GetExportedUrls :many
select distinct url from activities where exported = 1
`

func (q *Queries) GetExportedUrls(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, getExportedUrls)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		items = append(items, url)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listRecentRuns = `-- name: ListRecentRuns :many
select
    runs.id, runs.mode, runs.started_at, runs.finished_at, runs.status, runs.error,
    count(activities.idx) as activities,
    coalesce(sum(activities.exported), 0) as exported,
    coalesce(sum(activities.attempted and not activities.exported), 0) as failed
from runs
left join activities on activities.run_id = runs.id
group by runs.id
order by runs.started_at desc
limit ?
`

type ListRecentRunsRow struct {
	ID         string
	Mode       string
	StartedAt  int64
	FinishedAt sql.NullInt64
	Status     string
	Error      string
	Activities int64
	Exported   int64
	Failed     int64
}

func (q *Queries) ListRecentRuns(ctx context.Context, limit int64) ([]ListRecentRunsRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListRecentRunsRow
	for rows.Next() {
		var i ListRecentRunsRow
		if err := rows.Scan(
			&i.ID,
			&i.Mode,
			&i.StartedAt,
			&i.FinishedAt,
			&i.Status,
			&i.Error,
			&i.Activities,
			&i.Exported,
			&i.Failed,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
