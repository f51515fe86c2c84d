package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/awsdbmon/cli/dbconfig"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"
)

const (
	pgDefaultDatabase = "postgres"
	pgDefaultSSLMode  = "require"

	pgVersionQuery   = "SELECT version()"
	pgMonitorQuery   = "SELECT pg_has_role($1, 'pg_monitor', 'USAGE') OR pg_has_role($1, 'pg_read_all_stats', 'USAGE')"
	pgStatsPrivQuery = "SELECT has_table_privilege($1, 'pg_stat_database', 'SELECT')"
	pgExtensionQuery = "SELECT COUNT(*) FROM pg_extension WHERE extname = 'pg_stat_statements'"

	msgPostgresConnect = "Connection failed: Unable to connect to PostgreSQL database"
	msgMissingMonitor  = "Missing pg_monitor role or equivalent permissions"

	// pg_monitor and pg_read_all_stats exist from PostgreSQL 10
	pgMonitorRoleMajor = 10
)

// postgresConnString builds a keyword/value connection string. Values are
// always quoted so that passwords may contain any character.
func postgresConnString(db dbconfig.FlatDatabase, timeout time.Duration) string {
	params := map[string]string{
		"host":            db.Host,
		"port":            strconv.Itoa(portOr(db.Port, dbconfig.EnginePostgreSQL)),
		"user":            db.User,
		"password":        db.Password,
		"dbname":          orDefault(db.Database, pgDefaultDatabase),
		"sslmode":         orDefault(db.SSLMode, pgDefaultSSLMode),
		"connect_timeout": strconv.Itoa(max(1, int(timeout.Seconds()))),
	}

	if db.TLSCA != "" {
		params["sslrootcert"] = db.TLSCA
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteConnValue(params[k]))
	}

	return strings.Join(parts, " ")
}

func quoteConnValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)

	return "'" + v + "'"
}

// ProbePostgreSQL connects and checks version, monitoring role membership and
// the pg_stat_statements extension. A missing extension is a warning only.
func (p *Prober) ProbePostgreSQL(ctx context.Context, db dbconfig.FlatDatabase) Result {
	lf := log.Fields{"service": db.Name(), "engine": dbconfig.EnginePostgreSQL}

	connectCtx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	conn, err := p.ConnectPostgres(connectCtx, postgresConnString(db, p.timeout()))
	if err != nil {
		log.WithFields(lf).Debug("PostgreSQL connection failed")
		return failed(classifyPostgres(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout())
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	// The checks share one deadline so a stalled server cannot hold up the
	// remaining databases
	queryCtx, cancelQueries := context.WithTimeout(ctx, p.timeout())
	defer cancelQueries()

	return checkPostgres(queryCtx, conn, db)
}

func checkPostgres(ctx context.Context, conn pgConn, db dbconfig.FlatDatabase) Result {
	var rawVersion string
	if err := conn.QueryRow(ctx, pgVersionQuery).Scan(&rawVersion); err != nil {
		return failed(classifyPostgres(err))
	}

	version, versionKnown := normalizeVersion(strings.TrimPrefix(rawVersion, "PostgreSQL "))

	hasRole := false
	if !versionKnown || version.Major() >= pgMonitorRoleMajor {
		if err := conn.QueryRow(ctx, pgMonitorQuery, db.User).Scan(&hasRole); err != nil {
			return failed(classifyPostgres(err))
		}
	}

	if !hasRole {
		var hasStats bool
		if err := conn.QueryRow(ctx, pgStatsPrivQuery, db.User).Scan(&hasStats); err != nil {
			return failed(classifyPostgres(err))
		}

		if !hasStats {
			return failed(msgMissingMonitor)
		}
	}

	var extensions int64
	if err := conn.QueryRow(ctx, pgExtensionQuery).Scan(&extensions); err != nil {
		return failed(classifyPostgres(err))
	}

	res := Result{OK: true, Message: msgConnectedPrefix + " (PostgreSQL)"}
	if versionKnown {
		res.Message = fmt.Sprintf("%v (PostgreSQL %d.%d)", msgConnectedPrefix, version.Major(), version.Minor())
	}

	if extensions == 0 {
		res.Warnings = append(res.Warnings, db.Name()+": pg_stat_statements extension not installed (query monitoring limited)")
	}

	return res
}

func classifyPostgres(err error) string {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return msgPostgresConnect
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		// insufficient_privilege, undefined_table, undefined_object and friends
		case strings.HasPrefix(pgErr.Code, "42"):
			return msgPermission
		// invalid_authorization_specification, connection_exception
		case strings.HasPrefix(pgErr.Code, "28"), strings.HasPrefix(pgErr.Code, "08"):
			return msgPostgresConnect
		default:
			return msgGenericConnect
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return msgPostgresConnect
	}

	return msgGenericConnect
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}
