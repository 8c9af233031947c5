// Package util holds shared helpers for store integration tests.
package util

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/conclave-hq/conclave/pkg/store/sqlstore"
)

var shared struct {
	once    sync.Once
	connStr string
	err     error
}

// SetupTestStore opens a PostgreSQL-backed store inside a schema private
// to the calling test, so parallel tests never see each other's rows.
// CI points at an external server through CI_DATABASE_URL; local runs
// share one testcontainer across the package. Migrations run inside the
// test schema when sqlstore.Open brings it up.
func SetupTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()

	base := baseConnString(t)
	schema := schemaFor(t)

	db, err := stdsql.Open("pgx", base)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := sqlstore.Open(ctx, sqlstore.Config{
		DSN:          withSearchPath(base, schema),
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		drop := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)
		if _, err := s.DB().ExecContext(context.Background(), drop); err != nil {
			t.Logf("failed to drop schema %s: %v", schema, err)
		}
		_ = s.Close()
	})

	return s
}

func baseConnString(t *testing.T) string {
	t.Helper()
	if ci := os.Getenv("CI_DATABASE_URL"); ci != "" {
		return ci
	}

	shared.once.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared PostgreSQL testcontainer")

		container, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			shared.err = fmt.Errorf("start postgres container: %w", err)
			return
		}
		shared.connStr, shared.err = container.ConnectionString(ctx, "sslmode=disable")
	})

	require.NoError(t, shared.err)
	return shared.connStr
}

// schemaFor derives a unique schema identifier from the test name,
// staying inside PostgreSQL's 63 character identifier limit.
func schemaFor(t *testing.T) string {
	name := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.ToLower(t.Name()))
	if len(name) > 40 {
		name = name[:40]
	}

	nonce := make([]byte, 4)
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("schema nonce: %v", err)
	}
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(nonce))
}

// withSearchPath pins every pooled connection to the test schema.
func withSearchPath(connStr, schema string) string {
	sep := "?"
	if strings.Contains(connStr, "?") {
		sep = "&"
	}
	return connStr + sep + "search_path=" + schema
}
