package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	postgresImage = "postgres:16-alpine"
	stressDB      = "marketplace_stress"
)

// Database is the Postgres a stress run writes to. Terminate only tears down
// what the run itself created: a container, or a scratch database on a
// shared server.
type Database struct {
	DSN string

	container *postgres.PostgresContainer
	// adminDSN is set when the run created stressDB on a shared server.
	adminDSN string
}

// External wraps a database the run must leave alone.
func External(dsn string) *Database {
	return &Database{DSN: dsn}
}

// StartContainer runs a throwaway Postgres container owned by the run.
func StartContainer(ctx context.Context) (*Database, error) {
	c, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase(stressDB),
		postgres.WithUsername("marketplace"),
		postgres.WithPassword("marketplace"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("infra: run %s: %w", postgresImage, err)
	}
	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("infra: container dsn: %w", err)
	}
	return &Database{DSN: dsn, container: c}, nil
}

// Terminate stops the container or drops the scratch database.
func (d *Database) Terminate(ctx context.Context) error {
	switch {
	case d == nil:
		return nil
	case d.container != nil:
		return d.container.Terminate(ctx)
	case d.adminDSN != "":
		conn, err := pgx.Connect(ctx, d.adminDSN)
		if err != nil {
			return fmt.Errorf("infra: connect for drop: %w", err)
		}
		defer conn.Close(ctx)
		return recreate(ctx, conn, false)
	}
	return nil
}
