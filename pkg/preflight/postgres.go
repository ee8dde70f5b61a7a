package preflight

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// postgresChecker pings a PostgreSQL endpoint through database/sql
type postgresChecker struct {
	uri     string
	timeout time.Duration
}

func newPostgresChecker(uri string, timeout time.Duration) *postgresChecker {
	return &postgresChecker{uri: uri, timeout: timeout}
}

func (c *postgresChecker) Name() string {
	return "postgres"
}

func (c *postgresChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	db, err := sql.Open("postgres", c.uri)
	if err != nil {
		return wrap(Redact(c.uri), err)
	}
	defer db.Close()

	// A single connection is enough for a liveness probe
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return wrap(Redact(c.uri), err)
	}

	return nil
}
