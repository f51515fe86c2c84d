// Package dbconfig holds the two configuration documents the tool works with:
// the enhanced config, which describes databases and refers to their
// credentials, and the flat config, which the agent installation tooling
// consumes and which carries resolved credentials.
package dbconfig

import (
	"encoding/json"
	"slices"
	"time"

	"go.yaml.in/yaml/v3"
)

// Engine is the database engine family
type Engine string

const (
	EngineMySQL      Engine = "mysql"
	EnginePostgreSQL Engine = "postgresql"
)

// DefaultPort returns the well known port for the engine
func (e Engine) DefaultPort() int {
	if e == EnginePostgreSQL {
		return 5432
	}

	return 3306
}

// Provider is the hosting mode of a database
type Provider string

const (
	ProviderRDS       Provider = "rds"
	ProviderAurora    Provider = "aurora"
	ProviderEC2       Provider = "ec2"
	ProviderContainer Provider = "container"
)

// EnhancedConfig is the source-of-truth document produced by discovery or
// written by hand. Credentials are references, never literal secrets (except
// for the discouraged plain source).
type EnhancedConfig struct {
	MySQL      []Database `yaml:"mysql_databases" json:"mysql_databases"`
	PostgreSQL []Database `yaml:"postgresql_databases" json:"postgresql_databases"`
	Metadata   *Metadata  `yaml:"_metadata,omitempty" json:"_metadata,omitempty"`
}

// Add appends entries to the bucket matching their type. Entries of any
// other type are dropped.
func (c *EnhancedConfig) Add(entries ...Database) {
	for _, db := range entries {
		switch db.Type {
		case EngineMySQL:
			c.MySQL = append(c.MySQL, db)
		case EnginePostgreSQL:
			c.PostgreSQL = append(c.PostgreSQL, db)
		}
	}
}

// Metadata is informational only and ignored on read
type Metadata struct {
	GeneratedAt    time.Time         `yaml:"generated_at" json:"generated_at"`
	RegionsScanned []string          `yaml:"regions_scanned" json:"regions_scanned"`
	TagFilters     map[string]string `yaml:"tag_filters" json:"tag_filters"`
}

// Database is one enhanced database entry
type Database struct {
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Enabled     *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Type        Engine            `yaml:"type,omitempty" json:"type,omitempty"`
	Provider    Provider          `yaml:"provider,omitempty" json:"provider,omitempty"`
	Connection  *Connection       `yaml:"connection,omitempty" json:"connection,omitempty"`
	Credentials *Credentials      `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	Monitoring  *Monitoring       `yaml:"monitoring,omitempty" json:"monitoring,omitempty"`
	TLS         *TLS              `yaml:"tls,omitempty" json:"tls,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`

	// NameSet is true when the source document had a name key, even an
	// empty one
	NameSet bool `yaml:"-" json:"-"`
}

func (d *Database) UnmarshalYAML(node *yaml.Node) error {
	type database Database
	if err := node.Decode((*database)(d)); err != nil {
		return err
	}

	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "name" {
				d.NameSet = true
			}
		}
	}

	return nil
}

func (d *Database) UnmarshalJSON(b []byte) error {
	type database Database
	if err := json.Unmarshal(b, (*database)(d)); err != nil {
		return err
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(b, &keys); err == nil {
		_, d.NameSet = keys["name"]
	}

	return nil
}

// IsEnabled defaults to true when the field is absent
func (d Database) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// HostKind names the connection field an address came from
type HostKind string

const (
	HostKindHost            HostKind = "host"
	HostKindEndpoint        HostKind = "endpoint"
	HostKindClusterEndpoint HostKind = "cluster_endpoint"
)

// Target is the address a database is reached on, tagged with the shape of
// connection block it came from
type Target struct {
	Kind    HostKind
	Address string
}

type Connection struct {
	Host            string  `yaml:"host,omitempty" json:"host,omitempty"`
	Endpoint        string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	ClusterEndpoint string  `yaml:"cluster_endpoint,omitempty" json:"cluster_endpoint,omitempty"`
	ReaderEndpoint  string  `yaml:"reader_endpoint,omitempty" json:"reader_endpoint,omitempty"`
	Port            *Number `yaml:"port,omitempty" json:"port,omitempty"`
	Database        string  `yaml:"database,omitempty" json:"database,omitempty"`
	SSLMode         string  `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`
}

// Targets returns every populated host-like field in priority order: host,
// then endpoint, then cluster_endpoint
func (c Connection) Targets() []Target {
	candidates := []Target{
		{Kind: HostKindHost, Address: c.Host},
		{Kind: HostKindEndpoint, Address: c.Endpoint},
		{Kind: HostKindClusterEndpoint, Address: c.ClusterEndpoint},
	}

	targets := make([]Target, 0, len(candidates))
	for _, t := range candidates {
		if t.Address != "" {
			targets = append(targets, t)
		}
	}

	return targets
}

// Target returns the first populated host-like field
func (c Connection) Target() (Target, bool) {
	targets := c.Targets()
	if len(targets) == 0 {
		return Target{}, false
	}

	return targets[0], true
}

func (c *Connection) isEmpty() bool {
	return c == nil || *c == Connection{}
}

// Source is where a credential value comes from
type Source string

const (
	SourcePlain          Source = "plain"
	SourceSecretsManager Source = "aws_secrets_manager"
	SourceSSMParameter   Source = "aws_ssm_parameter"
	SourceEnvVar         Source = "env_var"
)

var sources = []Source{SourcePlain, SourceSecretsManager, SourceSSMParameter, SourceEnvVar}

// IsValid reports whether the source is one of the known sources
func (s Source) IsValid() bool {
	return slices.Contains(sources, s)
}

// IsAWS reports whether the source is one of the AWS secret stores
func (s Source) IsAWS() bool {
	return s == SourceSecretsManager || s == SourceSSMParameter
}

// Credentials is the credentials block as written in the file. Use
// UserReference and PasswordReference to get the typed form.
type Credentials struct {
	UserSource Source `yaml:"user_source,omitempty" json:"user_source,omitempty"`
	User       string `yaml:"user,omitempty" json:"user,omitempty"`
	// Username is accepted as an alias of User for plain sources
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	UserKey  string `yaml:"user_key,omitempty" json:"user_key,omitempty"`
	UserEnv  string `yaml:"user_env,omitempty" json:"user_env,omitempty"`

	PasswordSource Source `yaml:"password_source,omitempty" json:"password_source,omitempty"`
	Password       string `yaml:"password,omitempty" json:"password,omitempty"`
	PasswordKey    string `yaml:"password_key,omitempty" json:"password_key,omitempty"`
	PasswordEnv    string `yaml:"password_env,omitempty" json:"password_env,omitempty"`

	Region string `yaml:"region,omitempty" json:"region,omitempty"`
}

func (c *Credentials) isEmpty() bool {
	return c == nil || *c == Credentials{}
}

// EffectiveUserSource defaults to plain
func (c Credentials) EffectiveUserSource() Source {
	if c.UserSource == "" {
		return SourcePlain
	}

	return c.UserSource
}

// EffectivePasswordSource defaults to plain
func (c Credentials) EffectivePasswordSource() Source {
	if c.PasswordSource == "" {
		return SourcePlain
	}

	return c.PasswordSource
}

// PlainUser returns the plain user value, falling back to the username alias
func (c Credentials) PlainUser() string {
	if c.User != "" {
		return c.User
	}

	return c.Username
}

// UserReference returns the typed reference for the user name
func (c Credentials) UserReference() Reference {
	return newReference(FieldUser, c.EffectiveUserSource(), c.PlainUser(), c.UserKey, c.UserEnv)
}

// PasswordReference returns the typed reference for the password
func (c Credentials) PasswordReference() Reference {
	return newReference(FieldPassword, c.EffectivePasswordSource(), c.Password, c.PasswordKey, c.PasswordEnv)
}

// Monitoring holds the agent flags for a database. Flags are pointers so that
// an absent flag can be defaulted downstream.
type Monitoring struct {
	CollectInventory      *bool   `yaml:"collect_inventory,omitempty" json:"collect_inventory,omitempty"`
	ExtendedMetrics       *bool   `yaml:"extended_metrics,omitempty" json:"extended_metrics,omitempty"`
	CollectRDSMetrics     *bool   `yaml:"collect_rds_metrics,omitempty" json:"collect_rds_metrics,omitempty"`
	CollectAuroraMetrics  *bool   `yaml:"collect_aurora_metrics,omitempty" json:"collect_aurora_metrics,omitempty"`
	MonitorReaders        *bool   `yaml:"monitor_readers,omitempty" json:"monitor_readers,omitempty"`
	EnableQueryMonitoring *bool   `yaml:"enable_query_monitoring,omitempty" json:"enable_query_monitoring,omitempty"`
	GatherQuerySamples    *bool   `yaml:"gather_query_samples,omitempty" json:"gather_query_samples,omitempty"`
	CollectBloatMetrics   *bool   `yaml:"collect_bloat_metrics,omitempty" json:"collect_bloat_metrics,omitempty"`
	CollectDBLockMetrics  *bool   `yaml:"collect_db_lock_metrics,omitempty" json:"collect_db_lock_metrics,omitempty"`
	Interval              string  `yaml:"interval,omitempty" json:"interval,omitempty"`
	QueryMetricsInterval  string  `yaml:"query_metrics_interval,omitempty" json:"query_metrics_interval,omitempty"`
	MaxSQLQueryLength     *Number `yaml:"max_sql_query_length,omitempty" json:"max_sql_query_length,omitempty"`
	MaxSampleRate         *Number `yaml:"max_sample_rate,omitempty" json:"max_sample_rate,omitempty"`
	QueryTimeout          *Number `yaml:"query_timeout,omitempty" json:"query_timeout,omitempty"`
}

type TLS struct {
	Enabled                 bool   `yaml:"enabled" json:"enabled"`
	VerifyServerCertificate *bool  `yaml:"verify_server_certificate,omitempty" json:"verify_server_certificate,omitempty"`
	CABundleFile            string `yaml:"ca_bundle_file,omitempty" json:"ca_bundle_file,omitempty"`
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}

// BoolOr dereferences b, returning def when b is nil
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}

	return *b
}
