package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// generated fts column on artifacts.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks artifacts with plainto_tsquery/ts_rank and builds
// snippets with ts_headline over the current plain text.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "a.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.FilterThreadID != "" {
		where += " AND a.thread_id = $2"
		args = append(args, q.FilterThreadID)
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM artifacts a WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT a.id, a.thread_id, a.title,
			ts_headline('english', coalesce(a.current_text, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM artifacts a
		WHERE %s
		ORDER BY ts_rank(a.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all artifacts for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ArtifactRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, thread_id, user_id, title, coalesce(current_text, '')
		FROM artifacts
	`)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	defer rows.Close()

	records := make([]ArtifactRecord, 0)
	for rows.Next() {
		var r ArtifactRecord
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.UserID, &r.Title, &r.Content); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return records, nil
}
