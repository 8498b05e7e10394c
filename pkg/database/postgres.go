package database

import (
	"database/sql"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/uptrace/bun/driver/pgdriver"
)

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_create_search_threads",
			Up: []string{`
				CREATE TABLE IF NOT EXISTS search_threads (
					id         TEXT PRIMARY KEY,
					user_id    TEXT NOT NULL,
					query      TEXT NOT NULL,
					answer     TEXT NOT NULL,
					sources    JSONB NOT NULL DEFAULT 'null',
					images     JSONB NOT NULL DEFAULT 'null',
					created_at TIMESTAMPTZ NOT NULL DEFAULT now()
				)`,
				`CREATE INDEX IF NOT EXISTS search_threads_user_created_idx
					ON search_threads (user_id, created_at DESC)`,
			},
			Down: []string{`DROP TABLE search_threads`},
		},
	},
}

// NewPostgres opens a connection pool for url, verifies connectivity and
// applies pending migrations. An insecure connection is used for host,
// everything else connects with TLS as encoded in the URL.
func NewPostgres(url, insecureHost string) (*sql.DB, error) {
	opts := []pgdriver.Option{pgdriver.WithDSN(url)}
	if insecureHost != "" {
		opts = append(opts, pgdriver.WithAddr(insecureHost+":5432"), pgdriver.WithInsecure(true))
	}

	db := sql.OpenDB(pgdriver.NewConnector(opts...))
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := migrate.Exec(db, "postgres", migrations, migrate.Up); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	return db, nil
}
