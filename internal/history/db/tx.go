package db

import (
	"context"
	"database/sql"
	"errors"
)

// InTx runs fn with queries bound to a new transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func InTx(ctx context.Context, conn *sql.DB, fn func(tx *Queries) error) error {
	sqltx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	err = fn(New(sqltx))
	if err != nil {
		return errors.Join(err, sqltx.Rollback())
	}
	return sqltx.Commit()
}
