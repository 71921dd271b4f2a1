package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true - if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the generated fts column, ranking with
// ts_rank and building snippets with ts_headline.
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

	where := "fts @@ plainto_tsquery('english', $1)"
	if q.PublishedOnly {
		where += " AND published = TRUE"
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM content_items WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, topic,
			ts_headline('english', coalesce(body, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			published
		FROM content_items
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Topic, &r.Snippet, &r.Published); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every item as an indexable record for reindexing.
// Body is stored as HTML; the caller strips markup before indexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ContentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, topic, body, published FROM content_items`)
	if err != nil {
		return nil, fmt.Errorf("load content items: %w", err)
	}
	defer rows.Close()

	records := make([]ContentRecord, 0)
	for rows.Next() {
		var r ContentRecord
		if err := rows.Scan(&r.ID, &r.Topic, &r.Body, &r.Published); err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
