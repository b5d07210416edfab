package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/curator/internal/database"
	"github.com/jonesrussell/north-cloud/curator/internal/models"
)

var taskColumns = []string{
	"id", "type", "status", "input", "output", "error", "attempts",
	"next_attempt_at", "started_at", "completed_at", "created_at", "updated_at",
}

func taskRow(id string, status models.TaskStatus, attempts int) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(taskColumns).AddRow(
		id, models.TaskTypeClassify, string(status), []byte(`{}`), nil, nil,
		attempts, nil, nil, nil, now, now,
	)
}

func TestTaskRepository_Create_DedupReturnsExisting(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewTaskRepository(db)

	mock.ExpectExec("INSERT INTO ai_tasks").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("SELECT").
		WithArgs("classify:content-1").
		WillReturnRows(taskRow("existing-task", models.TaskStatusRunning, 1))

	task, err := repo.Create(context.Background(), &models.AITask{
		Type:  models.TaskTypeClassify,
		Input: models.JSONMap{models.DedupKeyField: "classify:content-1"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if task.ID != "existing-task" {
		t.Errorf("Create() returned %q, want the existing task", task.ID)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestTaskRepository_Create_NoDedupKeyViolationIsError(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewTaskRepository(db)

	mock.ExpectExec("INSERT INTO ai_tasks").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.AITask{Type: models.TaskTypeClassify})
	if err == nil {
		t.Error("Create() without dedup key expected error on unique violation")
	}
}

func TestTaskRepository_ClaimQueued(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewTaskRepository(db)

	mock.ExpectQuery("UPDATE ai_tasks").
		WithArgs(string(models.TaskStatusRunning), string(models.TaskStatusQueued), 10).
		WillReturnRows(taskRow("task-1", models.TaskStatusRunning, 0))

	claimed, err := repo.ClaimQueued(context.Background(), 10)
	if err != nil {
		t.Fatalf("ClaimQueued() error = %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != "task-1" {
		t.Errorf("ClaimQueued() = %v, want one task-1", claimed)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestTaskRepository_ConditionalUpdates(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewTaskRepository(db)
	ctx := context.Background()
	nextAttempt := time.Now().UTC().Add(time.Minute)

	testCases := []struct {
		name      string
		setupMock func()
		call      func() error
		wantErr   error
	}{
		{
			name: "mark succeeded on running task",
			setupMock: func() {
				mock.ExpectExec("UPDATE ai_tasks").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			call: func() error {
				return repo.MarkSucceeded(ctx, "task-1", models.JSONMap{"category": "news"})
			},
		},
		{
			name: "mark succeeded on finished task is stale",
			setupMock: func() {
				mock.ExpectExec("UPDATE ai_tasks").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			call: func() error {
				return repo.MarkSucceeded(ctx, "task-1", nil)
			},
			wantErr: models.ErrStaleStatus,
		},
		{
			name: "requeue running task",
			setupMock: func() {
				mock.ExpectExec("UPDATE ai_tasks").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			call: func() error {
				return repo.Requeue(ctx, "task-1", "transient failure", nextAttempt)
			},
		},
		{
			name: "mark failed on non-running task is stale",
			setupMock: func() {
				mock.ExpectExec("UPDATE ai_tasks").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			call: func() error {
				return repo.MarkFailed(ctx, "task-1", "gave up")
			},
			wantErr: models.ErrStaleStatus,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			callErr := tc.call()
			if !errors.Is(callErr, tc.wantErr) {
				t.Errorf("error = %v, want %v", callErr, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestTaskRepository_ResetStale(t *testing.T) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	defer db.Close()

	repo := database.NewTaskRepository(db)

	mock.ExpectExec("UPDATE ai_tasks").
		WithArgs(string(models.TaskStatusQueued), string(models.TaskStatusRunning), "5m0s").
		WillReturnResult(sqlmock.NewResult(0, 2))

	reset, err := repo.ResetStale(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("ResetStale() error = %v", err)
	}
	if reset != 2 {
		t.Errorf("ResetStale() = %d, want 2", reset)
	}
}
