package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// PSQL builds statements with PostgreSQL $n placeholders.
var PSQL = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Count runs a count query built with squirrel.
func Count(ctx context.Context, q Querier, b sq.SelectBuilder) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
