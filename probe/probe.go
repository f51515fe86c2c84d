// Package probe connects to databases from a flat config and checks that the
// configured user holds the privileges the monitoring agent needs. Driver
// errors never leave this package, they are mapped to fixed messages.
package probe

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/awsdbmon/cli/dbconfig"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
)

// DefaultTimeout bounds connection establishment
const DefaultTimeout = 10 * time.Second

// Result is the outcome of probing one database. Message never contains
// driver error text or credentials.
type Result struct {
	OK       bool
	Message  string
	Warnings []string
}

func failed(message string) Result {
	return Result{Message: message}
}

// pgConn is the part of a pgx connection the prober uses
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

type Prober struct {
	Timeout time.Duration
	// OpenMySQL opens a handle for a driver config. The handle is closed by
	// the prober.
	OpenMySQL func(cfg *mysql.Config) (*sql.DB, error)
	// ConnectPostgres opens a connection for a keyword/value connection string
	ConnectPostgres func(ctx context.Context, connString string) (pgConn, error)
}

// New returns a prober that uses the real drivers
func New() *Prober {
	return &Prober{
		Timeout: DefaultTimeout,
		OpenMySQL: func(cfg *mysql.Config) (*sql.DB, error) {
			connector, err := mysql.NewConnector(cfg)
			if err != nil {
				return nil, err
			}
			return sql.OpenDB(connector), nil
		},
		ConnectPostgres: func(ctx context.Context, connString string) (pgConn, error) {
			return pgx.Connect(ctx, connString)
		},
	}
}

// Probe dispatches on engine
func (p *Prober) Probe(ctx context.Context, engine dbconfig.Engine, db dbconfig.FlatDatabase) Result {
	if engine == dbconfig.EnginePostgreSQL {
		return p.ProbePostgreSQL(ctx, db)
	}

	return p.ProbeMySQL(ctx, db)
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}

	return p.Timeout
}

var versionPattern = regexp.MustCompile(`\d+(\.\d+){0,2}`)

// normalizeVersion extracts the leading version number from a server version
// string such as "8.0.35-log" or "PostgreSQL 15.4 on x86_64-pc-linux-gnu"
func normalizeVersion(raw string) (*semver.Version, bool) {
	match := versionPattern.FindString(raw)
	if match == "" {
		return nil, false
	}

	v, err := semver.NewVersion(match)
	if err != nil {
		return nil, false
	}

	return v, true
}
