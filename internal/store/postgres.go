package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"copydesk/api/internal/util"
)

const idPrefix = "content"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const itemColumns = `id, topic, body, published, date_approved, date_published, external_doc_ref, versions, created_at, updated_at`

// Create inserts a new item, assigning its id. The caller supplies every
// other field; ID on the input is ignored.
func (s *PostgresStore) Create(ctx context.Context, item ContentItem) (ContentItem, error) {
	item.ID = util.NewID(idPrefix)
	versions, err := marshalVersions(item.Versions)
	if err != nil {
		return ContentItem{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO content_items (id, topic, body, published, date_approved, date_published, external_doc_ref, versions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, NOW(), NOW())
		RETURNING `+itemColumns,
		item.ID, item.Topic, item.Body, item.Published, item.DateApproved, item.DatePublished, item.ExternalDocRef, versions,
	)
	created, err := scanItem(row)
	if err != nil {
		return ContentItem{}, fmt.Errorf("insert content item: %w", err)
	}
	return created, nil
}

// List returns all items, optionally filtered by publish state, ordered by
// the given timestamp column descending with nulls last.
func (s *PostgresStore) List(ctx context.Context, published *bool, sortKey SortKey) ([]ContentItem, error) {
	column, ok := sortColumn(sortKey)
	if !ok {
		return nil, fmt.Errorf("unknown sort key %q", sortKey)
	}

	query := `SELECT ` + itemColumns + ` FROM content_items`
	var args []any
	if published != nil {
		query += ` WHERE published = $1`
		args = append(args, *published)
	}
	query += ` ORDER BY ` + column + ` DESC NULLS LAST, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list content items: %w", err)
	}
	defer rows.Close()

	items := make([]ContentItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (ContentItem, error) {
	if !util.ValidID(idPrefix, id) {
		return ContentItem{}, ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ContentItem{}, ErrNotFound
	}
	if err != nil {
		return ContentItem{}, fmt.Errorf("get content item: %w", err)
	}
	return item, nil
}

// Update applies the partial field set and, when appendVersion is non-nil,
// appends one entry to versions - all in a single statement so the field
// write and the version append commit together.
func (s *PostgresStore) Update(ctx context.Context, id string, fields UpdateFields, appendVersion *Version) (ContentItem, error) {
	if !util.ValidID(idPrefix, id) {
		return ContentItem{}, ErrInvalidID
	}

	sets := []string{"updated_at = $2"}
	args := []any{id, fields.UpdatedAt}
	next := 3

	addSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}

	if fields.Topic != nil {
		addSet("topic", *fields.Topic)
	}
	if fields.Body != nil {
		addSet("body", *fields.Body)
	}
	if fields.Published != nil {
		addSet("published", *fields.Published)
	}
	if fields.DatePublished != nil {
		addSet("date_published", *fields.DatePublished)
	}
	if appendVersion != nil {
		entry, err := marshalVersions([]Version{*appendVersion})
		if err != nil {
			return ContentItem{}, err
		}
		sets = append(sets, fmt.Sprintf("versions = versions || $%d::jsonb", next))
		args = append(args, entry)
		next++
	}

	query := `UPDATE content_items SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + itemColumns
	row := s.db.QueryRowContext(ctx, query, args...)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ContentItem{}, ErrNotFound
	}
	if err != nil {
		return ContentItem{}, fmt.Errorf("update content item: %w", err)
	}
	return item, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (ContentItem, error) {
	var (
		item          ContentItem
		dateApproved  sql.NullTime
		datePublished sql.NullTime
		externalRef   sql.NullString
		versionsRaw   []byte
	)
	err := row.Scan(
		&item.ID, &item.Topic, &item.Body, &item.Published,
		&dateApproved, &datePublished, &externalRef,
		&versionsRaw, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return ContentItem{}, err
	}
	if dateApproved.Valid {
		t := dateApproved.Time
		item.DateApproved = &t
	}
	if datePublished.Valid {
		t := datePublished.Time
		item.DatePublished = &t
	}
	if externalRef.Valid {
		item.ExternalDocRef = externalRef.String
	}
	item.Versions = make([]Version, 0)
	if len(versionsRaw) > 0 {
		if err := json.Unmarshal(versionsRaw, &item.Versions); err != nil {
			return ContentItem{}, fmt.Errorf("decode versions: %w", err)
		}
	}
	return item, nil
}

func marshalVersions(versions []Version) ([]byte, error) {
	if versions == nil {
		versions = []Version{}
	}
	payload, err := json.Marshal(versions)
	if err != nil {
		return nil, fmt.Errorf("encode versions: %w", err)
	}
	return payload, nil
}

func sortColumn(key SortKey) (string, bool) {
	switch key {
	case SortByApproved, SortByPublished, SortByUpdated:
		return string(key), true
	case "":
		return string(SortByApproved), true
	default:
		return "", false
	}
}
