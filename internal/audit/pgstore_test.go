package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/finlegal/tenkdraft/models"
)

func startPostgres(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "tenkdraft",
			"POSTGRES_PASSWORD": "tenkdraft",
			"POSTGRES_DB":       "tenkdraft",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(1).WithStartupTimeout(60 * time.Second),
	}
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("skipping, could not start postgres container: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432")
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get mapped port: %v", err)
	}
	host, err := pg.Host(ctx)
	if err != nil {
		_ = pg.Terminate(ctx)
		t.Fatalf("failed to get host: %v", err)
	}
	dsn := fmt.Sprintf("postgres://tenkdraft:tenkdraft@%s:%s/tenkdraft?sslmode=disable", host, port.Port())
	return pg, dsn
}

func findMigrationsDir(t *testing.T) string {
	t.Helper()
	cwd, _ := os.Getwd()
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(cwd, "migrations")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return "file://" + candidate
		}
		cwd = filepath.Dir(cwd)
	}
	t.Fatalf("could not locate migrations directory from test cwd")
	return ""
}

func TestPGStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	pg, dsn := startPostgres(t, ctx)
	defer func() { _ = pg.Terminate(ctx) }()

	migDir := findMigrationsDir(t)
	var migErr error
	for i := 0; i < 6; i++ {
		migErr = Migrate(migDir, dsn, "up", 0)
		if migErr == nil {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}
	if migErr != nil {
		t.Fatalf("migrations: %v", migErr)
	}
	// Re-running against an up-to-date schema must be a clean no-op.
	if err := Migrate(migDir, dsn, "up", 0); err != nil {
		t.Fatalf("idempotent migrate: %v", err)
	}

	store, err := NewPGStore(dsn)
	if err != nil {
		t.Fatalf("NewPGStore: %v", err)
	}
	defer store.Close()

	rec := NewRecord("sess-pg", models.AuditEventGeneration, "KO", "2024",
		map[string]interface{}{"section": "mda", "text": "Net operating revenues grew."},
		map[string]interface{}{"sources": 3.0})
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.SessionRecords(ctx, "sess-pg")
	if err != nil {
		t.Fatalf("SessionRecords: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("records = %d, want 1", len(got))
	}
	if got[0].ContentHash != rec.ContentHash {
		t.Errorf("content hash = %s, want %s", got[0].ContentHash, rec.ContentHash)
	}
	if got[0].Content["section"] != "mda" {
		t.Errorf("content round trip lost data: %v", got[0].Content)
	}
}
