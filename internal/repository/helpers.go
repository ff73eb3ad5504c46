package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound converts sql.ErrNoRows into a nil result without error, so
// lookups can report a missing session as absence rather than failure.
//
// Usage:
//
//	var summary model.SessionSummary
//	err := r.db.GetContext(ctx, &summary, query, args...)
//	return HandleNotFound(&summary, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
