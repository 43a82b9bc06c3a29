package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/odvcencio/gensession/pkg/reference"
)

// Append writes a reference log entry. Store satisfies reference.Log.
func (s *Store) Append(ctx context.Context, entry reference.Entry) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}

	var spanStart, spanEnd any
	if span := entry.Reference.Span; span != nil {
		spanStart, spanEnd = span.Start, span.End
	}

	_, err := s.execWithRetry(`
		INSERT INTO reference_log (tab_id, logged_at, text, license_name, repository, url, span_start, span_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.TabID,
		entry.Time.UTC(),
		entry.Text,
		entry.Reference.LicenseName,
		entry.Reference.Repository,
		entry.Reference.URL,
		spanStart,
		spanEnd,
	)
	if err != nil {
		return fmt.Errorf("append reference log: %w", err)
	}
	return nil
}

// ReferenceEntries returns the most recent entries, oldest first.
func (s *Store) ReferenceEntries(ctx context.Context, limit int) ([]reference.Entry, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tab_id, logged_at, text, license_name, repository, url, span_start, span_end
		FROM (SELECT * FROM reference_log ORDER BY id DESC LIMIT ?)
		ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query reference log: %w", err)
	}
	defer rows.Close()

	var entries []reference.Entry
	for rows.Next() {
		var (
			e                  reference.Entry
			spanStart, spanEnd sql.NullInt64
		)
		if err := rows.Scan(&e.TabID, &e.Time, &e.Text, &e.Reference.LicenseName, &e.Reference.Repository, &e.Reference.URL, &spanStart, &spanEnd); err != nil {
			return nil, fmt.Errorf("scan reference log: %w", err)
		}
		if spanStart.Valid && spanEnd.Valid {
			e.Reference.Span = &reference.Span{Start: int(spanStart.Int64), End: int(spanEnd.Int64)}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
