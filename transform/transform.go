// Package transform turns a validated enhanced config into the flat config
// consumed by the agent installation tooling, resolving every credential on
// the way.
package transform

import (
	"context"
	"maps"
	"os"

	"github.com/awsdbmon/cli/credentials"
	"github.com/awsdbmon/cli/dbconfig"
	log "github.com/sirupsen/logrus"
)

// Flat config defaults for settings absent from the enhanced entry
const (
	DefaultEnvironment          = "production"
	DefaultPostgresDatabase     = "postgres"
	DefaultSSLMode              = "require"
	DefaultInterval             = "30s"
	DefaultQueryMetricsInterval = "60s"
	DefaultMaxSQLQueryLength    = 1000
)

// Environment variables that carry account settings
const (
	EnvLicenseKey = "NEWRELIC_LICENSE_KEY"
	EnvAccountID  = "NEWRELIC_ACCOUNT_ID"
)

// CredentialResolver resolves the user and password of a credentials block
type CredentialResolver interface {
	ResolveCredentials(ctx context.Context, creds dbconfig.Credentials) (user credentials.Result, password credentials.Result)
}

// Failure records a database whose credentials could not be fully resolved.
// It carries no key, parameter name or value.
type Failure struct {
	Engine      dbconfig.Engine
	ServiceName string
	Fields      []dbconfig.Field
}

// Outcome is the result of one transformation
type Outcome struct {
	Config   *dbconfig.FlatConfig
	Failures []Failure
}

// Count returns the number of entries written for an engine
func (o *Outcome) Count(engine dbconfig.Engine) int {
	if engine == dbconfig.EnginePostgreSQL {
		return len(o.Config.PostgreSQL)
	}

	return len(o.Config.MySQL)
}

type Transformer struct {
	Resolver  CredentialResolver
	LookupEnv func(key string) (string, bool)
}

// NewTransformer returns a transformer that reads account settings from the
// process environment
func NewTransformer(resolver CredentialResolver) *Transformer {
	return &Transformer{
		Resolver:  resolver,
		LookupEnv: os.LookupEnv,
	}
}

// Transform maps every enabled entry to a flat entry. Entries are processed
// in input order and the output depends only on the input and the resolver's
// answers. Resolution failures never stop the transformation, the sentinel is
// written and the failure recorded.
func (t *Transformer) Transform(ctx context.Context, cfg *dbconfig.EnhancedConfig) *Outcome {
	out := &Outcome{
		Config: &dbconfig.FlatConfig{
			LicenseKey: t.env(EnvLicenseKey, dbconfig.PlaceholderLicenseKey),
			AccountID:  t.env(EnvAccountID, dbconfig.PlaceholderAccountID),
		},
		Failures: []Failure{},
	}

	if cfg == nil {
		return out
	}

	out.Config.MySQL = t.transformBucket(ctx, cfg.MySQL, dbconfig.EngineMySQL, out)
	out.Config.PostgreSQL = t.transformBucket(ctx, cfg.PostgreSQL, dbconfig.EnginePostgreSQL, out)

	return out
}

// transformBucket returns nil rather than an empty slice so the key is left
// out of the document entirely
func (t *Transformer) transformBucket(ctx context.Context, dbs []dbconfig.Database, engine dbconfig.Engine, out *Outcome) []dbconfig.FlatDatabase {
	var flat []dbconfig.FlatDatabase

	for _, db := range dbs {
		if !db.IsEnabled() {
			log.WithField("service", db.Name).Debug("Skipping disabled database")
			continue
		}

		entry, failed := t.transformDatabase(ctx, db, engine)
		if len(failed) > 0 {
			out.Failures = append(out.Failures, Failure{
				Engine:      engine,
				ServiceName: entry.ServiceName,
				Fields:      failed,
			})
		}

		flat = append(flat, entry)
	}

	return flat
}

func (t *Transformer) transformDatabase(ctx context.Context, db dbconfig.Database, engine dbconfig.Engine) (dbconfig.FlatDatabase, []dbconfig.Field) {
	var conn dbconfig.Connection
	if db.Connection != nil {
		conn = *db.Connection
	}

	var creds dbconfig.Credentials
	if db.Credentials != nil {
		creds = *db.Credentials
	}

	var mon dbconfig.Monitoring
	if db.Monitoring != nil {
		mon = *db.Monitoring
	}

	user, password := t.Resolver.ResolveCredentials(ctx, creds)

	var failed []dbconfig.Field
	if !user.OK() {
		failed = append(failed, dbconfig.FieldUser)
	}
	if !password.OK() {
		failed = append(failed, dbconfig.FieldPassword)
	}

	target, _ := conn.Target()

	environment, ok := db.Labels["environment"]
	if !ok {
		environment = DefaultEnvironment
	}

	entry := dbconfig.FlatDatabase{
		Host:                  target.Address,
		Port:                  portOrDefault(conn.Port, engine),
		User:                  user.OrSentinel(),
		Password:              password.OrSentinel(),
		ServiceName:           db.Name,
		Environment:           environment,
		ExtendedMetrics:       dbconfig.BoolOr(mon.ExtendedMetrics, true),
		Interval:              stringOr(mon.Interval, DefaultInterval),
		EnableQueryMonitoring: dbconfig.BoolOr(mon.EnableQueryMonitoring, true),
		QueryMetricsInterval:  stringOr(mon.QueryMetricsInterval, DefaultQueryMetricsInterval),
		MaxSQLQueryLength:     intOr(mon.MaxSQLQueryLength, DefaultMaxSQLQueryLength),
		GatherQuerySamples:    dbconfig.BoolOr(mon.GatherQuerySamples, true),
		CustomLabels:          customLabels(db.Labels),
	}

	if engine == dbconfig.EnginePostgreSQL {
		entry.Database = stringOr(conn.Database, DefaultPostgresDatabase)
		entry.SSLMode = stringOr(conn.SSLMode, DefaultSSLMode)
		entry.CollectBloatMetrics = dbconfig.Bool(dbconfig.BoolOr(mon.CollectBloatMetrics, true))
		entry.CollectDBLockMetrics = dbconfig.Bool(dbconfig.BoolOr(mon.CollectDBLockMetrics, true))
	}

	if db.TLS != nil && db.TLS.Enabled {
		entry.TLSEnabled = true
		entry.TLSCA = db.TLS.CABundleFile
	}

	return entry, failed
}

func (t *Transformer) env(key, placeholder string) string {
	lookup := t.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(key); ok {
		return v
	}

	return placeholder
}

func portOrDefault(p *dbconfig.Number, engine dbconfig.Engine) int {
	if p != nil {
		if v, ok := p.IntValue(); ok {
			return v
		}
	}

	return engine.DefaultPort()
}

// intOr keeps any numeric value, a float such as 500.0 is truncated
func intOr(n *dbconfig.Number, def int) int {
	if n != nil && n.IsNumber() {
		return int(n.Value())
	}

	return def
}

func stringOr(s, def string) string {
	if s == "" {
		return def
	}

	return s
}

// customLabels copies every label except environment, which has its own field
func customLabels(labels map[string]string) map[string]string {
	out := maps.Clone(labels)
	if out == nil {
		return map[string]string{}
	}

	delete(out, "environment")

	return out
}
