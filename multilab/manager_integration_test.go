//go:build integration

package multilab

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/labparser/labparser"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	migrationSQL, err := os.ReadFile("../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}
	return db, cleanup
}

// TestManager_LoadAllLabs verifies labs and their definitions survive a
// restart of the manager.
func TestManager_LoadAllLabs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	first := NewManager(db)
	lab, err := first.CreateLab("Central")
	if err != nil {
		t.Fatalf("CreateLab() failed: %v", err)
	}
	engine, _ := first.GetEngine(lab.ID)
	if err := engine.AddDefinition(glucose()); err != nil {
		t.Fatalf("AddDefinition() failed: %v", err)
	}

	second := NewManager(db)
	if err := second.LoadAllLabs(); err != nil {
		t.Fatalf("LoadAllLabs() failed: %v", err)
	}
	labs := second.ListLabs()
	if len(labs) != 1 || labs[0].ID != lab.ID {
		t.Fatalf("ListLabs() = %+v", labs)
	}

	loaded, _ := second.GetEngine(lab.ID)
	text := "Глюкоза 6.3"
	if res := loaded.Parse(&text); res.Quality != labparser.QualityParsed {
		t.Errorf("Quality = %s, want parsed", res.Quality)
	}
}

// TestManager_DeleteLabCascades verifies deleting a lab removes its
// definitions.
func TestManager_DeleteLabCascades(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	m := NewManager(db)
	lab, err := m.CreateLab("Central")
	if err != nil {
		t.Fatalf("CreateLab() failed: %v", err)
	}
	engine, _ := m.GetEngine(lab.ID)
	if err := engine.AddDefinition(glucose()); err != nil {
		t.Fatalf("AddDefinition() failed: %v", err)
	}

	if err := m.DeleteLab(lab.ID); err != nil {
		t.Fatalf("DeleteLab() failed: %v", err)
	}
	if _, err := m.GetEngine(lab.ID); !errors.Is(err, ErrLabNotFound) {
		t.Errorf("GetEngine() after delete = %v, want ErrLabNotFound", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM test_definitions`).Scan(&n); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("%d definitions left after lab delete, want 0", n)
	}
}
