//go:build integration

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "researcher",
			"POSTGRES_PASSWORD": "researcher",
			"POSTGRES_DB":       "researcher",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get host: %v", err)
	}
	return fmt.Sprintf("postgres://researcher:researcher@%s:%s/researcher?sslmode=disable", host, port.Port())
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	var migErr error
	for i := 0; i < 6; i++ {
		if migErr = Migrate(dsn, "up", 0); migErr == nil {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}
	if migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}

	st, err := NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("NewWithDSN: %v", err)
	}
	defer st.Close()

	id := uuid.NewString()
	run := Run{ID: id, Query: "Go Generics", Answer: "yes", Model: "m", Result: json.RawMessage(`{"answer":"yes"}`), SourceCount: 2, Duration: time.Second}
	if err := st.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := st.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Query != run.Query || got.Duration != time.Second {
		t.Fatalf("unexpected run %+v", got)
	}

	if _, err := st.GetRun(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	runs, err := st.ListRuns(ctx, 10, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns = %d, %v", len(runs), err)
	}

	if _, ok, err := st.LatestRunTime(ctx, "go generics"); err != nil || !ok {
		t.Fatalf("LatestRunTime ok=%v err=%v", ok, err)
	}

	if err := Migrate(dsn, "down", 0); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
}
