package postgres

import (
	"database/sql"
	"fmt"

	"github.com/oakfield/servicelog/internal/model"
)

// recordColumns is the column list used for SELECT statements on the records table.
const recordColumns = `id, record_type, owner_id, parent_id, created_at, updated_at,
	status, title, body, excerpt`

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanRecord scans a single row into a model.Record.
// The row must contain columns in the order defined by recordColumns.
func scanRecord(row scannable) (*model.Record, error) {
	var r model.Record
	var (
		recordType string
		status     string
		title      sql.NullString
		body       sql.NullString
		excerpt    sql.NullString
	)

	err := row.Scan(
		&r.ID,
		&recordType,
		&r.OwnerID,
		&r.ParentID,
		&r.CreatedAt,
		&r.UpdatedAt,
		&status,
		&title,
		&body,
		&excerpt,
	)
	if err != nil {
		return nil, err
	}

	r.Type = model.RecordType(recordType)
	r.Title = title.String
	r.Body = body.String
	r.Excerpt = excerpt.String

	parsed, err := model.ParseStorageStatus(status)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", r.ID, err)
	}
	r.Status = parsed

	return &r, nil
}

// collectRecords scans all rows into record bases.
func collectRecords(rows *sql.Rows) ([]*model.Record, error) {
	var out []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
