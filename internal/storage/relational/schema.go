package relational

import (
	"fmt"
	"strconv"
	"strings"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// driverName maps a dialect to its database/sql driver.
func (d Dialect) driverName() string {
	return string(d)
}

// rebind rewrites ? placeholders to $1, $2, ... for postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// schema returns the DDL statements for d. Timestamps are unix nanoseconds
// in BIGINT columns so every dialect orders them the same way.
func (d Dialect) schema() []string {
	tables := []struct {
		name    string
		columns string
		indexes map[string]string
	}{
		{
			name: "analysis_records",
			columns: `
	id           VARCHAR(64) PRIMARY KEY,
	user_id      VARCHAR(128) NOT NULL,
	kind         VARCHAR(16) NOT NULL,
	subject      VARCHAR(255) NOT NULL,
	health_score INTEGER NOT NULL,
	tier         INTEGER NOT NULL,
	verdict      VARCHAR(16) NOT NULL,
	summary      TEXT,
	warnings     TEXT,
	ingredients  TEXT,
	provider     VARCHAR(64) NOT NULL,
	degraded     INTEGER NOT NULL,
	fingerprint  VARCHAR(128) NOT NULL,
	created_at   BIGINT NOT NULL`,
			indexes: map[string]string{"idx_records_user_created": "user_id, created_at"},
		},
		{
			name: "enrichment_tasks",
			columns: `
	id              VARCHAR(32) PRIMARY KEY,
	record_id       VARCHAR(64) NOT NULL,
	kind            VARCHAR(16) NOT NULL,
	status          VARCHAR(16) NOT NULL,
	attempts        INTEGER NOT NULL,
	next_attempt_at BIGINT NOT NULL,
	last_error      TEXT,
	created_at      BIGINT NOT NULL`,
			indexes: map[string]string{"idx_tasks_due": "status, next_attempt_at"},
		},
		{
			name: "fl_updates",
			columns: `
	id            VARCHAR(32) PRIMARY KEY,
	client_id     VARCHAR(128) NOT NULL,
	model_weights TEXT NOT NULL,
	accuracy      DOUBLE PRECISION NOT NULL,
	created_at    BIGINT NOT NULL`,
			indexes: map[string]string{"idx_fl_client": "client_id, created_at"},
		},
	}

	var stmts []string
	for _, t := range tables {
		if d == MySQL {
			// MySQL has no CREATE INDEX IF NOT EXISTS; declare indexes inline.
			cols := t.columns
			for name, on := range t.indexes {
				cols += fmt.Sprintf(",\n\tINDEX %s (%s)", name, on)
			}
			stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s\n)", t.name, cols))
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s\n)", t.name, t.columns))
		for name, on := range t.indexes {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, t.name, on))
		}
	}
	return stmts
}
