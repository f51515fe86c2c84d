package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/awsdbmon/cli/dbconfig"
	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
)

const (
	mysqlDefaultDatabase = "information_schema"

	mysqlVersionQuery = "SELECT VERSION()"
	mysqlGrantsQuery  = "SHOW GRANTS FOR CURRENT_USER()"
	mysqlPerfQuery    = "SELECT COUNT(*) FROM performance_schema.setup_consumers"

	msgMySQLConnect    = "Connection failed: Unable to connect to MySQL database"
	msgPermission      = "Permission error: Insufficient database privileges"
	msgGenericConnect  = "Connection failed: Database connection error"
	msgMissingPrefix   = "Missing permissions: "
	msgConnectedPrefix = "Connected successfully"
)

// MySQLPrivileges are the grants the agent needs
var MySQLPrivileges = []string{"SELECT", "PROCESS", "REPLICATION CLIENT"}

// MySQL error numbers that mean the statement was refused for lack of
// privileges
var mysqlPermissionErrors = map[uint16]bool{
	1142: true, // ER_TABLEACCESS_DENIED_ERROR
	1143: true, // ER_COLUMNACCESS_DENIED_ERROR
	1146: true, // ER_NO_SUCH_TABLE
	1227: true, // ER_SPECIFIC_ACCESS_DENIED_ERROR
}

// MySQL error numbers raised while establishing the session
var mysqlConnectErrors = map[uint16]bool{
	1040: true, // ER_CON_COUNT_ERROR
	1044: true, // ER_DBACCESS_DENIED_ERROR
	1045: true, // ER_ACCESS_DENIED_ERROR
	1129: true, // ER_HOST_IS_BLOCKED
	1130: true, // ER_HOST_NOT_PRIVILEGED
}

// mysqlConfig builds the driver config for an entry
func mysqlConfig(db dbconfig.FlatDatabase, timeout time.Duration) (*mysql.Config, error) {
	cfg := mysql.NewConfig()
	cfg.User = db.User
	cfg.Passwd = db.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(db.Host, strconv.Itoa(portOr(db.Port, dbconfig.EngineMySQL)))
	cfg.DBName = db.Database
	if cfg.DBName == "" {
		cfg.DBName = mysqlDefaultDatabase
	}
	cfg.Timeout = timeout
	cfg.ReadTimeout = timeout
	cfg.WriteTimeout = timeout

	if !db.TLSEnabled {
		return cfg, nil
	}

	// Without a CA bundle the connection is encrypted but the certificate is
	// not verified, the RDS CA is not in the system roots
	tlsConfig := &tls.Config{
		ServerName:         db.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: db.TLSCA == "", //nolint:gosec
	}

	if db.TLSCA != "" {
		pem, err := os.ReadFile(db.TLSCA)
		if err != nil {
			return nil, fmt.Errorf("error reading CA bundle %v: %w", db.TLSCA, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA bundle %v", db.TLSCA)
		}
		tlsConfig.RootCAs = pool
	}

	cfg.TLS = tlsConfig

	return cfg, nil
}

// ProbeMySQL connects and checks version, grants and performance_schema
// access
func (p *Prober) ProbeMySQL(ctx context.Context, db dbconfig.FlatDatabase) Result {
	lf := log.Fields{"service": db.Name(), "engine": dbconfig.EngineMySQL}

	cfg, err := mysqlConfig(db, p.timeout())
	if err != nil {
		log.WithError(err).WithFields(lf).Error("Invalid TLS settings")
		return failed(msgGenericConnect)
	}

	conn, err := p.OpenMySQL(cfg)
	if err != nil {
		log.WithFields(lf).Debug("Could not open MySQL handle")
		return failed(classifyMySQL(err))
	}
	defer conn.Close()

	return checkMySQL(ctx, conn, p.timeout(), lf)
}

func checkMySQL(ctx context.Context, conn *sql.DB, timeout time.Duration, lf log.Fields) Result {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := conn.PingContext(connectCtx); err != nil {
		log.WithFields(lf).Debug("MySQL connection failed")
		return failed(classifyMySQL(err))
	}

	var rawVersion string
	if err := conn.QueryRowContext(ctx, mysqlVersionQuery).Scan(&rawVersion); err != nil {
		return failed(classifyMySQL(err))
	}

	grants, err := mysqlGrants(ctx, conn)
	if err != nil {
		return failed(classifyMySQL(err))
	}

	if missing := missingPrivileges(grants); len(missing) > 0 {
		return failed(msgMissingPrefix + strings.Join(missing, ", "))
	}

	var consumers int
	if err := conn.QueryRowContext(ctx, mysqlPerfQuery).Scan(&consumers); err != nil {
		return failed(classifyMySQL(err))
	}

	msg := msgConnectedPrefix + " (MySQL)"
	if v, ok := normalizeVersion(rawVersion); ok {
		msg = fmt.Sprintf("%v (MySQL %v)", msgConnectedPrefix, v)
	}

	return Result{OK: true, Message: msg}
}

func mysqlGrants(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, mysqlGrantsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := make([]string, 0)
	for rows.Next() {
		var grant string
		if err := rows.Scan(&grant); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}

	return grants, rows.Err()
}

// missingPrivileges does a case-insensitive substring match of each required
// privilege against the concatenated grant text
func missingPrivileges(grants []string) []string {
	text := strings.ToUpper(strings.Join(grants, " "))

	missing := make([]string, 0)
	for _, priv := range MySQLPrivileges {
		if !strings.Contains(text, priv) {
			missing = append(missing, priv)
		}
	}

	return missing
}

func classifyMySQL(err error) string {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch {
		case mysqlPermissionErrors[myErr.Number]:
			return msgPermission
		case mysqlConnectErrors[myErr.Number]:
			return msgMySQLConnect
		default:
			return msgGenericConnect
		}
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, context.DeadlineExceeded):
		return msgMySQLConnect
	}

	return msgGenericConnect
}

func portOr(port int, engine dbconfig.Engine) int {
	if port <= 0 {
		return engine.DefaultPort()
	}

	return port
}
