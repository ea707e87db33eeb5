package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestSaveRun(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	run := Run{
		ID:          "6f1c3c1e-7d51-4a8e-9a43-3b1f0e7f2a10",
		Query:       "what is go",
		Answer:      "A language.",
		Model:       "gemini-2.5-flash",
		Result:      json.RawMessage(`{"answer":"A language."}`),
		SourceCount: 3,
		Duration:    1500 * time.Millisecond,
		CreatedAt:   created,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO research_runs`)).
		WithArgs(run.ID, run.Query, run.Answer, run.Model, "", []byte(run.Result), 3, int64(1500), created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveRun(context.Background(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveRunDefaultsResult(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO research_runs`)).
		WithArgs("id-1", "q", "", "", "No search results", []byte(`{}`), 0, int64(0), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveRun(context.Background(), Run{ID: "id-1", Query: "q", Error: "No search results"}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRun(t *testing.T) {
	st, mock := newMock(t)
	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "query", "answer", "model", "error", "result", "source_count", "duration_ms", "created_at"}).
		AddRow("id-1", "q", "a", "m", "", []byte(`{"answer":"a"}`), 2, int64(250), created)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM research_runs WHERE id = $1`)).WithArgs("id-1").WillReturnRows(rows)

	run, err := st.GetRun(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Answer != "a" || run.SourceCount != 2 || run.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected run: %+v", run)
	}
	if string(run.Result) != `{"answer":"a"}` {
		t.Fatalf("unexpected result %s", run.Result)
	}
}

func TestGetRunNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM research_runs WHERE id = $1`)).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	if _, err := st.GetRun(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRunsClampsLimit(t *testing.T) {
	st, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"id", "query", "answer", "model", "error", "source_count", "duration_ms", "created_at"}).
		AddRow("b", "q2", "a2", "m", "", 1, int64(10), time.Now()).
		AddRow("a", "q1", "a1", "m", "", 4, int64(20), time.Now().Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC LIMIT $1 OFFSET $2`)).WithArgs(20, 0).WillReturnRows(rows)

	runs, err := st.ListRuns(context.Background(), 1000, -5)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestLatestRunTime(t *testing.T) {
	st, mock := newMock(t)
	last := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX(created_at)`)).WithArgs("go news").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(last))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MAX(created_at)`)).WithArgs("never").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	got, ok, err := st.LatestRunTime(context.Background(), "go news")
	if err != nil || !ok || !got.Equal(last) {
		t.Fatalf("LatestRunTime = %v %v %v", got, ok, err)
	}
	_, ok, err = st.LatestRunTime(context.Background(), "never")
	if err != nil || ok {
		t.Fatalf("expected no run, got ok=%v err=%v", ok, err)
	}
}
