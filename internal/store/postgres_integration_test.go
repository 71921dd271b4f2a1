package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("COPYDESK_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("COPYDESK_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, migrationsDir()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db, ctx
}

func migrationsDir() string {
	return filepath.Join("..", "..", "db", "migrations")
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db, ctx := openTestDB(t)

	if err := applyDownMigrations(ctx, db, migrationsDir()); err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, migrationsDir()); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func TestPostgresStoreLifecycle(t *testing.T) {
	db, ctx := openTestDB(t)
	s := NewPostgresStore(db)

	now := time.Now().UTC().Truncate(time.Millisecond)
	created, err := s.Create(ctx, ContentItem{
		Topic:        "Integration",
		Body:         "<p>v1</p>",
		DateApproved: &now,
		Versions:     []Version{{Content: "<p>v1</p>", Date: now}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == "" || created.Published {
		t.Fatalf("created = %+v", created)
	}

	fetched, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if fetched.Topic != "Integration" || len(fetched.Versions) != 1 {
		t.Errorf("fetched = %+v", fetched)
	}

	topic := "Integration v2"
	body := "<p>v2</p>"
	edited, err := s.Update(ctx, created.ID,
		UpdateFields{Topic: &topic, Body: &body, UpdatedAt: time.Now().UTC()},
		&Version{Content: body, Date: time.Now().UTC()},
	)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if edited.Body != "<p>v2</p>" || len(edited.Versions) != 2 {
		t.Errorf("edited = %+v", edited)
	}

	published := true
	publishedAt := time.Now().UTC()
	live, err := s.Update(ctx, created.ID,
		UpdateFields{Published: &published, DatePublished: &publishedAt, UpdatedAt: publishedAt},
		nil,
	)
	if err != nil {
		t.Fatalf("Update(publish) error = %v", err)
	}
	if !live.Published || live.DatePublished == nil {
		t.Errorf("live = %+v", live)
	}

	filter := true
	items, err := s.List(ctx, &filter, SortByPublished)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != created.ID {
		t.Errorf("items = %+v", items)
	}
}

func TestPostgresStoreGetErrors(t *testing.T) {
	db, ctx := openTestDB(t)
	s := NewPostgresStore(db)

	if _, err := s.Get(ctx, "bogus"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("Get(bogus) error = %v, want ErrInvalidID", err)
	}
	if _, err := s.Get(ctx, "content_00000000000000000000000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

func applyDownMigrations(ctx context.Context, db *sql.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.down\.sql$`)
	type migration struct {
		version string
		path    string
	}
	downs := make([]migration, 0)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		downs = append(downs, migration{
			version: match[1],
			path:    filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(downs, func(i, j int) bool {
		return downs[i].version > downs[j].version
	})

	for _, down := range downs {
		sqlBytes, err := os.ReadFile(down.path)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(sqlBytes))
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			return err
		}
	}

	return nil
}
