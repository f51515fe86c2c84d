package dbconfig

const (
	// PlaceholderLicenseKey is written when no license key is configured
	PlaceholderLicenseKey = "YOUR_LICENSE_KEY"
	// PlaceholderAccountID is written when no account ID is configured
	PlaceholderAccountID = "YOUR_ACCOUNT_ID"
)

// FlatConfig is the deployment-ready document with resolved credentials.
// Engine lists are omitted entirely when empty so consumers can treat a
// missing key as "engine not present".
type FlatConfig struct {
	LicenseKey string         `yaml:"newrelic_license_key" json:"newrelic_license_key"`
	AccountID  string         `yaml:"newrelic_account_id" json:"newrelic_account_id"`
	MySQL      []FlatDatabase `yaml:"mysql_databases,omitempty" json:"mysql_databases,omitempty"`
	PostgreSQL []FlatDatabase `yaml:"postgresql_databases,omitempty" json:"postgresql_databases,omitempty"`
}

// LicenseKeyConfigured reports whether a real license key is present
func (c *FlatConfig) LicenseKeyConfigured() bool {
	return c.LicenseKey != "" && c.LicenseKey != PlaceholderLicenseKey
}

// FlatDatabase is one denormalized database record. It is never modified
// after the transformer creates it.
type FlatDatabase struct {
	Host        string `yaml:"host" json:"host"`
	Port        int    `yaml:"port" json:"port"`
	User        string `yaml:"user" json:"user"`
	Password    string `yaml:"password" json:"password"`
	ServiceName string `yaml:"service_name" json:"service_name"`
	Environment string `yaml:"environment" json:"environment"`

	// PostgreSQL only
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
	SSLMode  string `yaml:"sslmode,omitempty" json:"sslmode,omitempty"`

	ExtendedMetrics       bool   `yaml:"extended_metrics" json:"extended_metrics"`
	Interval              string `yaml:"interval" json:"interval"`
	EnableQueryMonitoring bool   `yaml:"enable_query_monitoring" json:"enable_query_monitoring"`
	QueryMetricsInterval  string `yaml:"query_metrics_interval" json:"query_metrics_interval"`
	MaxSQLQueryLength     int    `yaml:"max_sql_query_length" json:"max_sql_query_length"`
	GatherQuerySamples    bool   `yaml:"gather_query_samples" json:"gather_query_samples"`

	// PostgreSQL only
	CollectBloatMetrics  *bool `yaml:"collect_bloat_metrics,omitempty" json:"collect_bloat_metrics,omitempty"`
	CollectDBLockMetrics *bool `yaml:"collect_db_lock_metrics,omitempty" json:"collect_db_lock_metrics,omitempty"`

	TLSEnabled bool   `yaml:"tls_enabled,omitempty" json:"tls_enabled,omitempty"`
	TLSCA      string `yaml:"tls_ca,omitempty" json:"tls_ca,omitempty"`

	CustomLabels map[string]string `yaml:"custom_labels" json:"custom_labels"`
}

// Name is the service name, or the host when no service name is set
func (d FlatDatabase) Name() string {
	if d.ServiceName != "" {
		return d.ServiceName
	}

	return d.Host
}
