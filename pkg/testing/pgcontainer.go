package testing

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const pgImage = "postgres:17.5"

// PGContainer represents a running PostgreSQL test container with the relay schema applied
type PGContainer struct {
	Container  *postgres.PostgresContainer
	ConnString string
}

// NewPGContainer starts PostgreSQL and runs every db/migrations/*.up.sql as an init script
func NewPGContainer(ctx context.Context, tb testing.TB) *PGContainer {
	tb.Helper()
	SkipIfShort(tb)

	pgContainer, err := postgres.Run(ctx,
		pgImage,
		postgres.WithDatabase("relay_test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(migrationScript(tb, "db", "migrations")),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		tb.Fatalf("failed to start postgres container: %v", err)
	}
	terminateOnCleanup(tb, "postgres", pgContainer)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("failed to get postgres connection string: %v", err)
	}

	return &PGContainer{
		Container:  pgContainer,
		ConnString: connStr,
	}
}
