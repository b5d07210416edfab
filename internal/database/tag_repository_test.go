package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jonesrussell/north-cloud/curator/internal/database"
)

func TestTagRepository_UpsertAll(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewTagRepository(db)

	// One insert per tag; duplicates are absorbed by ON CONFLICT DO NOTHING.
	mock.ExpectExec("INSERT INTO content_tags").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO content_tags").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpsertAll(context.Background(), "content-1", []string{"go", "go"}); err != nil {
		t.Fatalf("UpsertAll() error = %v", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestTagRepository_ListByContent(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewTagRepository(db)
	now := time.Now().UTC()

	columns := []string{"id", "content_id", "tag", "created_at"}
	mock.ExpectQuery("SELECT").
		WithArgs("content-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("tag-1", "content-1", "go", now.Add(-time.Minute)).
			AddRow("tag-2", "content-1", "cloud", now))

	tags, err := repo.ListByContent(context.Background(), "content-1")
	if err != nil {
		t.Fatalf("ListByContent() error = %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("ListByContent() returned %d tags, want 2", len(tags))
	}
	if tags[0].Tag != "go" || tags[1].Tag != "cloud" {
		t.Errorf("tags out of order: %q, %q", tags[0].Tag, tags[1].Tag)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
