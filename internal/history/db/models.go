package db

import "database/sql"

type Run struct {
	ID         string
	Mode       string
	StartedAt  int64
	FinishedAt sql.NullInt64
	Status     string
	Error      string
}

type Activity struct {
	RunID      string
	Idx        int64
	Url        string
	Attempted  bool
	Exported   bool
	Error      string
	DurationMs int64
}
