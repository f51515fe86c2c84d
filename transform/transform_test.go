package transform

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/awsdbmon/cli/credentials"
	"github.com/awsdbmon/cli/dbconfig"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver resolves plain values and looks AWS references up in a map.
// Anything else fails the way the real resolver would.
type fakeResolver struct {
	secrets map[string]string
	calls   int
}

func (f *fakeResolver) resolve(ref dbconfig.Reference) credentials.Result {
	f.calls++

	switch ref := ref.(type) {
	case dbconfig.PlainValue:
		if ref.Value == "" {
			return credentials.Failed(&credentials.ResolveError{Field: ref.For, Source: ref.Source(), Kind: credentials.KindMissingValue})
		}
		return credentials.Resolved(ref.Value)
	case dbconfig.SecretsManagerSecret:
		if v, ok := f.secrets[ref.SecretID]; ok {
			return credentials.Resolved(v)
		}
		return credentials.Failed(&credentials.ResolveError{Field: ref.For, Source: ref.Source(), Kind: credentials.KindFetchFailed})
	case dbconfig.SSMParameter:
		if v, ok := f.secrets[ref.Name]; ok {
			return credentials.Resolved(v)
		}
		return credentials.Failed(&credentials.ResolveError{Field: ref.For, Source: ref.Source(), Kind: credentials.KindFetchFailed})
	default:
		return credentials.Failed(&credentials.ResolveError{Field: ref.Field(), Source: ref.Source(), Kind: credentials.KindEnvNotSet})
	}
}

func (f *fakeResolver) ResolveCredentials(ctx context.Context, creds dbconfig.Credentials) (credentials.Result, credentials.Result) {
	return f.resolve(creds.UserReference()), f.resolve(creds.PasswordReference())
}

func newTestTransformer(secrets map[string]string, env map[string]string) *Transformer {
	return &Transformer{
		Resolver: &fakeResolver{secrets: secrets},
		LookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
	}
}

func TestTransformRoundTrip(t *testing.T) {
	cfg := &dbconfig.EnhancedConfig{
		MySQL: []dbconfig.Database{
			{
				Name:     "db1",
				Type:     dbconfig.EngineMySQL,
				Provider: dbconfig.ProviderRDS,
				Connection: &dbconfig.Connection{
					Endpoint: "a.b.com",
					Port:     dbconfig.Int(3306),
				},
				Credentials: &dbconfig.Credentials{
					User:           "newrelic",
					PasswordSource: dbconfig.SourcePlain,
					Password:       "secret1",
				},
			},
		},
	}

	out := newTestTransformer(nil, nil).Transform(context.Background(), cfg)

	want := &dbconfig.FlatConfig{
		LicenseKey: dbconfig.PlaceholderLicenseKey,
		AccountID:  dbconfig.PlaceholderAccountID,
		MySQL: []dbconfig.FlatDatabase{
			{
				Host:                  "a.b.com",
				Port:                  3306,
				User:                  "newrelic",
				Password:              "secret1",
				ServiceName:           "db1",
				Environment:           "production",
				ExtendedMetrics:       true,
				Interval:              "30s",
				EnableQueryMonitoring: true,
				QueryMetricsInterval:  "60s",
				MaxSQLQueryLength:     1000,
				GatherQuerySamples:    true,
				CustomLabels:          map[string]string{},
			},
		},
	}

	if diff := cmp.Diff(want, out.Config); diff != "" {
		t.Errorf("unexpected flat config (-want +got):\n%v", diff)
	}
	assert.Empty(t, out.Failures)
}

func TestTransformPostgreSQL(t *testing.T) {
	cfg := &dbconfig.EnhancedConfig{
		PostgreSQL: []dbconfig.Database{
			{
				Name: "analytics",
				Type: dbconfig.EnginePostgreSQL,
				Connection: &dbconfig.Connection{
					ClusterEndpoint: "analytics.cluster-abc.eu-west-1.rds.amazonaws.com",
					Database:        "warehouse",
				},
				Credentials: &dbconfig.Credentials{
					UserSource:     dbconfig.SourceSSMParameter,
					UserKey:        "/analytics/user",
					PasswordSource: dbconfig.SourceSecretsManager,
					PasswordKey:    "/aurora/eu-west-1/analytics/newrelic",
				},
				Monitoring: &dbconfig.Monitoring{
					Interval:            "15s",
					MaxSQLQueryLength:   dbconfig.Int(4096),
					CollectBloatMetrics: dbconfig.Bool(false),
					GatherQuerySamples:  dbconfig.Bool(false),
				},
				TLS: &dbconfig.TLS{
					Enabled:      true,
					CABundleFile: "/etc/ssl/rds-global-bundle.pem",
				},
				Labels: map[string]string{
					"environment": "staging",
					"region":      "eu-west-1",
					"team":        "data",
				},
			},
		},
	}

	out := newTestTransformer(map[string]string{
		"/analytics/user":                      "monitor",
		"/aurora/eu-west-1/analytics/newrelic": "pg-pass",
	}, map[string]string{
		EnvLicenseKey: "license-123",
		EnvAccountID:  "42",
	}).Transform(context.Background(), cfg)

	want := &dbconfig.FlatConfig{
		LicenseKey: "license-123",
		AccountID:  "42",
		PostgreSQL: []dbconfig.FlatDatabase{
			{
				Host:                  "analytics.cluster-abc.eu-west-1.rds.amazonaws.com",
				Port:                  5432,
				User:                  "monitor",
				Password:              "pg-pass",
				ServiceName:           "analytics",
				Environment:           "staging",
				Database:              "warehouse",
				SSLMode:               "require",
				ExtendedMetrics:       true,
				Interval:              "15s",
				EnableQueryMonitoring: true,
				QueryMetricsInterval:  "60s",
				MaxSQLQueryLength:     4096,
				GatherQuerySamples:    false,
				CollectBloatMetrics:   dbconfig.Bool(false),
				CollectDBLockMetrics:  dbconfig.Bool(true),
				TLSEnabled:            true,
				TLSCA:                 "/etc/ssl/rds-global-bundle.pem",
				CustomLabels: map[string]string{
					"region": "eu-west-1",
					"team":   "data",
				},
			},
		},
	}

	if diff := cmp.Diff(want, out.Config); diff != "" {
		t.Errorf("unexpected flat config (-want +got):\n%v", diff)
	}
}

func TestTransformDropsDisabledAndOmitsEmptyBuckets(t *testing.T) {
	cfg := &dbconfig.EnhancedConfig{
		MySQL: []dbconfig.Database{
			{
				Name:        "off",
				Enabled:     dbconfig.Bool(false),
				Type:        dbconfig.EngineMySQL,
				Connection:  &dbconfig.Connection{Host: "h"},
				Credentials: &dbconfig.Credentials{User: "u", Password: "p"},
			},
		},
		PostgreSQL: []dbconfig.Database{
			{
				Name:        "on",
				Enabled:     dbconfig.Bool(true),
				Type:        dbconfig.EnginePostgreSQL,
				Connection:  &dbconfig.Connection{Host: "h"},
				Credentials: &dbconfig.Credentials{User: "u", Password: "p"},
			},
		},
	}

	out := newTestTransformer(nil, nil).Transform(context.Background(), cfg)

	assert.Nil(t, out.Config.MySQL)
	require.Len(t, out.Config.PostgreSQL, 1)
	assert.Equal(t, "on", out.Config.PostgreSQL[0].ServiceName)

	b, err := dbconfig.Encode(out.Config, dbconfig.FormatYAML)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "mysql_databases")
	assert.Contains(t, string(b), "postgresql_databases")

	b, err = dbconfig.Encode(out.Config, dbconfig.FormatJSON)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "mysql_databases")
}

func TestTransformKeepsFloatQueryLength(t *testing.T) {
	doc := `
mysql_databases:
  - name: orders
    type: mysql
    connection:
      host: orders.internal
    credentials:
      user: u
      password: p
    monitoring:
      max_sql_query_length: 500.0
  - name: billing
    type: mysql
    connection:
      host: billing.internal
    credentials:
      user: u
      password: p
    monitoring:
      max_sql_query_length: 750.5
`
	cfg := new(dbconfig.EnhancedConfig)
	require.NoError(t, dbconfig.Decode(strings.NewReader(doc), dbconfig.FormatYAML, cfg))
	require.True(t, dbconfig.Validate(cfg).Valid())

	out := newTestTransformer(nil, nil).Transform(context.Background(), cfg)

	require.Len(t, out.Config.MySQL, 2)
	assert.Equal(t, 500, out.Config.MySQL[0].MaxSQLQueryLength)
	assert.Equal(t, 750, out.Config.MySQL[1].MaxSQLQueryLength)
}

func TestTransformRecordsFailuresAndContinues(t *testing.T) {
	cfg := &dbconfig.EnhancedConfig{
		MySQL: []dbconfig.Database{
			{
				Name:       "unreachable",
				Type:       dbconfig.EngineMySQL,
				Connection: &dbconfig.Connection{Host: "h1"},
				Credentials: &dbconfig.Credentials{
					User:           "u",
					PasswordSource: dbconfig.SourceSecretsManager,
					PasswordKey:    "/rds/us-east-1/unreachable/newrelic",
				},
			},
			{
				Name:        "fine",
				Type:        dbconfig.EngineMySQL,
				Connection:  &dbconfig.Connection{Host: "h2"},
				Credentials: &dbconfig.Credentials{User: "u", Password: "p"},
			},
			{
				Name:        "nouser",
				Type:        dbconfig.EngineMySQL,
				Connection:  &dbconfig.Connection{Host: "h3"},
				Credentials: &dbconfig.Credentials{Password: "p"},
			},
		},
	}

	out := newTestTransformer(nil, nil).Transform(context.Background(), cfg)

	require.Len(t, out.Config.MySQL, 3)
	assert.Equal(t, credentials.SentinelFetchingSecret, out.Config.MySQL[0].Password)
	assert.Equal(t, "p", out.Config.MySQL[1].Password)
	assert.Equal(t, credentials.SentinelMissingUser, out.Config.MySQL[2].User)

	assert.Equal(t, []Failure{
		{Engine: dbconfig.EngineMySQL, ServiceName: "unreachable", Fields: []dbconfig.Field{dbconfig.FieldPassword}},
		{Engine: dbconfig.EngineMySQL, ServiceName: "nouser", Fields: []dbconfig.Field{dbconfig.FieldUser}},
	}, out.Failures)
}

func TestTransformIsDeterministic(t *testing.T) {
	cfg := &dbconfig.EnhancedConfig{
		MySQL: []dbconfig.Database{
			{
				Name:        "b",
				Type:        dbconfig.EngineMySQL,
				Connection:  &dbconfig.Connection{Host: "h"},
				Credentials: &dbconfig.Credentials{User: "u", Password: "p"},
				Labels:      map[string]string{"z": "1", "a": "2", "m": "3", "environment": "dev"},
			},
			{
				Name:        "a",
				Type:        dbconfig.EngineMySQL,
				Connection:  &dbconfig.Connection{Host: "h"},
				Credentials: &dbconfig.Credentials{User: "u", Password: "p"},
			},
		},
	}

	var first []byte
	for i := range 5 {
		out := newTestTransformer(nil, nil).Transform(context.Background(), cfg)

		b, err := dbconfig.Encode(out.Config, dbconfig.FormatYAML)
		require.NoError(t, err)

		if i == 0 {
			first = b
			continue
		}
		assert.Equal(t, string(first), string(b))
	}

	assert.Less(t, strings.Index(string(first), "service_name: b"), strings.Index(string(first), "service_name: a"))
}

func TestTransformEmptyLicenseKeyIsKept(t *testing.T) {
	out := newTestTransformer(nil, map[string]string{EnvLicenseKey: ""}).Transform(context.Background(), &dbconfig.EnhancedConfig{})

	assert.Equal(t, "", out.Config.LicenseKey)
	assert.False(t, out.Config.LicenseKeyConfigured())
	assert.Equal(t, dbconfig.PlaceholderAccountID, out.Config.AccountID)
}

func TestWriteReport(t *testing.T) {
	out := &Outcome{
		Config: &dbconfig.FlatConfig{
			MySQL:      []dbconfig.FlatDatabase{{ServiceName: "orders"}, {ServiceName: "users"}},
			PostgreSQL: []dbconfig.FlatDatabase{{ServiceName: "analytics"}},
		},
		Failures: []Failure{
			{Engine: dbconfig.EngineMySQL, ServiceName: "orders", Fields: []dbconfig.Field{dbconfig.FieldPassword}},
		},
	}

	var buf bytes.Buffer
	WriteReport(&buf, out)

	assert.Equal(t, `
Transformation complete:
  MySQL databases: 2
  PostgreSQL databases: 1

WARNING: Failed to resolve credentials for database: orders

Total credential resolution errors: 1
Please check your AWS credentials and ensure the secrets/parameters exist.
`, buf.String())
}

func TestMasked(t *testing.T) {
	cfg := &dbconfig.FlatConfig{
		LicenseKey: "license-123",
		MySQL:      []dbconfig.FlatDatabase{{ServiceName: "orders", Password: "hunter2"}},
	}

	masked := Masked(cfg)

	assert.Equal(t, MaskedPassword, masked.LicenseKey)
	assert.Equal(t, MaskedPassword, masked.MySQL[0].Password)
	assert.Nil(t, masked.PostgreSQL)
	assert.Equal(t, "hunter2", cfg.MySQL[0].Password, "original must not change")
}
