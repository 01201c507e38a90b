package serverdb

import (
	"database/sql"
	"fmt"
	"strings"
)

// PaginatedResult is one page of rows plus the cursor for the next page.
type PaginatedResult[T any] struct {
	Items      []T
	NextCursor string // empty when this is the last page
}

// PaginatedQuery runs a query with keyset pagination over an ascending
// unique column. The base query must select that column; cursor is the last
// value seen on the previous page (empty for the first page). scanRow scans
// one row and returns it plus its cursor value.
func PaginatedQuery[T any](conn *sql.DB, query string, args []any, limit int, cursor, cursorColumn string, scanRow func(*sql.Rows) (T, string, error)) (*PaginatedResult[T], error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	if cursor != "" {
		clause := fmt.Sprintf("%s > ?", cursorColumn)
		if strings.Contains(strings.ToUpper(query), " WHERE ") {
			query += " AND " + clause
		} else {
			query += " WHERE " + clause
		}
		args = append(args, cursor)
	}

	// Fetch one extra row to learn whether another page exists.
	query += fmt.Sprintf(" ORDER BY %s ASC LIMIT ?", cursorColumn)
	args = append(args, limit+1)

	rows, err := conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("paginated query: %w", err)
	}
	defer rows.Close()

	result := &PaginatedResult[T]{}
	var lastCursor string
	for rows.Next() {
		item, c, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if len(result.Items) == limit {
			result.NextCursor = lastCursor
			break
		}
		result.Items = append(result.Items, item)
		lastCursor = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("paginated query: iterate: %w", err)
	}
	return result, nil
}
