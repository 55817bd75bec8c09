package infra

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/jackc/pgx/v5"
)

// ErrNoDatabaseURL means DATABASE_URL is unset, so there is no shared server
// to fall back to.
var ErrNoDatabaseURL = errors.New("infra: DATABASE_URL is not set")

// LocalDatabase creates a fresh scratch database on the server DATABASE_URL
// points at. The role in DATABASE_URL needs CREATEDB.
func LocalDatabase(ctx context.Context) (*Database, error) {
	admin := os.Getenv("DATABASE_URL")
	if admin == "" {
		return nil, ErrNoDatabaseURL
	}
	dsn, err := withDatabase(admin, stressDB)
	if err != nil {
		return nil, err
	}

	conn, err := pgx.Connect(ctx, admin)
	if err != nil {
		return nil, fmt.Errorf("infra: connect DATABASE_URL: %w", err)
	}
	defer conn.Close(ctx)
	if err := recreate(ctx, conn, true); err != nil {
		return nil, err
	}
	return &Database{DSN: dsn, adminDSN: admin}, nil
}

// recreate drops stressDB, kicking out leftover sessions from an aborted
// run, and creates it again when create is set.
func recreate(ctx context.Context, conn *pgx.Conn, create bool) error {
	name := pgx.Identifier{stressDB}.Sanitize()
	_, _ = conn.Exec(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
		stressDB)
	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+name); err != nil {
		return fmt.Errorf("infra: drop %s: %w", stressDB, err)
	}
	if !create {
		return nil
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		return fmt.Errorf("infra: create %s: %w", stressDB, err)
	}
	return nil
}

// withDatabase points a URL-form DSN at another database, keeping the
// credentials and query parameters.
func withDatabase(dsn, name string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return "", fmt.Errorf("infra: DATABASE_URL must be a postgres:// URL")
	}
	u.Path = "/" + name
	u.RawPath = ""
	return u.String(), nil
}
