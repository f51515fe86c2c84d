package dbconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, doc string) *EnhancedConfig {
	t.Helper()

	cfg := new(EnhancedConfig)
	require.NoError(t, Decode(strings.NewReader(doc), FormatJSON, cfg))

	return cfg
}

func decodeYAML(t *testing.T, doc string) *EnhancedConfig {
	t.Helper()

	cfg := new(EnhancedConfig)
	require.NoError(t, Decode(strings.NewReader(doc), FormatYAML, cfg))

	return cfg
}

func TestValidateWellFormed(t *testing.T) {
	cfg := decodeJSON(t, `{"mysql_databases":[{"name":"db1","type":"mysql","connection":{"host":"h","port":3306},"credentials":{"user":"u","password":"p"}}]}`)

	r := Validate(cfg)

	assert.True(t, r.Valid())
	assert.Empty(t, r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestValidateInvalidPort(t *testing.T) {
	cfg := decodeJSON(t, `{"mysql_databases":[{"name":"db1","type":"mysql","connection":{"host":"h","port":70000},"credentials":{"user":"u","password":"p"}}]}`)

	r := Validate(cfg)

	assert.False(t, r.Valid())
	assert.Equal(t, []string{"mysql[0].connection: Invalid port '70000' - must be 1-65535"}, r.Errors)
	assert.Empty(t, r.Warnings)
}

func TestValidateDuplicateNames(t *testing.T) {
	t.Run("same bucket", func(t *testing.T) {
		cfg := decodeJSON(t, `{"mysql_databases":[
			{"name":"db1","type":"mysql","connection":{"host":"h1"},"credentials":{"user":"u","password":"p"}},
			{"name":"db1","type":"mysql","connection":{"host":"h2"},"credentials":{"user":"u","password":"p"}}
		]}`)

		r := Validate(cfg)

		require.Len(t, r.Errors, 1)
		assert.Contains(t, r.Errors[0], "Duplicate service names found: db1")
	})

	t.Run("across buckets and repeated", func(t *testing.T) {
		cfg := &EnhancedConfig{
			MySQL: []Database{
				validDatabase("a", EngineMySQL),
				validDatabase("b", EngineMySQL),
				validDatabase("a", EngineMySQL),
			},
			PostgreSQL: []Database{
				validDatabase("a", EnginePostgreSQL),
				validDatabase("b", EnginePostgreSQL),
				validDatabase("c", EnginePostgreSQL),
			},
		}

		r := Validate(cfg)

		assert.Equal(t, []string{"Duplicate service names found: a, b"}, r.Errors)
	})
}

func validDatabase(name string, engine Engine) Database {
	return Database{
		Name: name,
		Type: engine,
		Connection: &Connection{
			Host: "db.example.com",
			Port: Int(engine.DefaultPort()),
		},
		Credentials: &Credentials{
			User:           "newrelic",
			PasswordSource: SourceSecretsManager,
			PasswordKey:    "/rds/us-east-1/" + name + "/newrelic",
		},
	}
}

func TestValidateNoHost(t *testing.T) {
	cfg := decodeYAML(t, `
postgresql_databases:
  - name: pg
    type: postgresql
    connection:
      port: 5432
    credentials:
      user: u
      password: p
`)

	r := Validate(cfg)

	assert.Equal(t, []string{"postgresql[0].connection: No host specified"}, r.Errors)
}

func TestValidateAccumulatesEveryError(t *testing.T) {
	cfg := decodeYAML(t, `
mysql_databases:
  - name: "-bad name"
    type: postgresql
    connection:
      host: "not a host"
      port: "3306"
      ssl_mode: sometimes
    credentials:
      user_source: vault
      password_source: aws_ssm_parameter
      password_key: no-leading-slash
    monitoring:
      interval: 10 minutes
      max_sql_query_length: 0
      max_sample_rate: 1.5
      query_timeout: forever
`)

	r := Validate(cfg)

	assert.Equal(t, []string{
		"mysql[0]: Invalid name '-bad name' - must contain only alphanumeric, dash, underscore",
		"mysql[0]: Type mismatch - expected 'mysql', got 'postgresql'",
		"mysql[0].connection: Invalid host 'not a host'",
		"mysql[0].connection: Invalid port '3306' - must be 1-65535",
		"mysql[0].connection: Invalid ssl_mode 'sometimes'",
		"mysql[0].credentials: Invalid user_source 'vault'",
		"mysql[0].credentials: Invalid SSM parameter name 'no-leading-slash'",
		"mysql[0].monitoring: Invalid interval '10 minutes' - use format like '30s', '5m', '1h'",
		"mysql[0].monitoring: max_sql_query_length must be between 1 and 10000",
		"mysql[0].monitoring: max_sample_rate must be between 0.0 and 1.0",
		"mysql[0].monitoring: query_timeout must be a number",
	}, r.Errors)
}

func TestValidateMissingSections(t *testing.T) {
	cfg := decodeJSON(t, `{"mysql_databases":[{}],"postgresql_databases":[{"name":"x","type":"postgresql","connection":{}}]}`)

	r := Validate(cfg)

	assert.Equal(t, []string{
		"mysql[0]: Missing required field 'name'",
		"mysql[0]: Missing required field 'type'",
		"mysql[0]: Missing 'connection' section",
		"mysql[0]: Missing 'credentials' section",
		"postgresql[0]: Missing 'connection' section",
		"postgresql[0]: Missing 'credentials' section",
	}, r.Errors)
}

func TestValidateEmptyName(t *testing.T) {
	t.Run("present but empty", func(t *testing.T) {
		cfg := decodeYAML(t, `
mysql_databases:
  - name: ""
    type: mysql
    connection:
      host: h
    credentials:
      user: u
      password: p
`)

		r := Validate(cfg)

		assert.Equal(t, []string{"mysql[0]: Invalid name '' - must contain only alphanumeric, dash, underscore"}, r.Errors)
	})

	t.Run("empty names are counted as duplicates", func(t *testing.T) {
		cfg := decodeJSON(t, `{"mysql_databases":[
			{"name":"","type":"mysql","connection":{"host":"h1"},"credentials":{"user":"u","password":"p"}},
			{"name":"","type":"mysql","connection":{"host":"h2"},"credentials":{"user":"u","password":"p"}}
		]}`)

		r := Validate(cfg)

		assert.Equal(t, []string{
			"mysql[0]: Invalid name '' - must contain only alphanumeric, dash, underscore",
			"mysql[1]: Invalid name '' - must contain only alphanumeric, dash, underscore",
			"Duplicate service names found: ",
		}, r.Errors)
	})

	t.Run("absent names are not duplicates", func(t *testing.T) {
		cfg := decodeJSON(t, `{"mysql_databases":[
			{"type":"mysql","connection":{"host":"h1"},"credentials":{"user":"u","password":"p"}},
			{"type":"mysql","connection":{"host":"h2"},"credentials":{"user":"u","password":"p"}}
		]}`)

		r := Validate(cfg)

		assert.Equal(t, []string{
			"mysql[0]: Missing required field 'name'",
			"mysql[1]: Missing required field 'name'",
		}, r.Errors)
	})
}

func TestValidateCredentialCompanions(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		want  []string
	}{
		{
			name:  "plain user missing",
			creds: Credentials{Password: "p"},
			want:  []string{"mysql[0].credentials: Missing 'user' for plain text source"},
		},
		{
			name:  "legacy username satisfies plain user",
			creds: Credentials{Username: "admin", Password: "p"},
			want:  []string{},
		},
		{
			name:  "plain password missing",
			creds: Credentials{User: "u"},
			want:  []string{"mysql[0].credentials: Missing 'password' for plain text source"},
		},
		{
			name:  "env user missing name",
			creds: Credentials{UserSource: SourceEnvVar, Password: "p"},
			want:  []string{"mysql[0].credentials: Missing 'user_env' for environment variable source"},
		},
		{
			name:  "aws user missing key",
			creds: Credentials{UserSource: SourceSSMParameter, Password: "p"},
			want:  []string{"mysql[0].credentials: Missing 'user_key' for AWS source"},
		},
		{
			name:  "env password missing name",
			creds: Credentials{User: "u", PasswordSource: SourceEnvVar},
			want:  []string{"mysql[0].credentials: Missing 'password_env' for environment variable source"},
		},
		{
			name:  "secrets manager password missing key",
			creds: Credentials{User: "u", PasswordSource: SourceSecretsManager},
			want:  []string{"mysql[0].credentials: Missing 'password_key' for AWS source"},
		},
		{
			name:  "invalid secret name",
			creds: Credentials{User: "u", PasswordSource: SourceSecretsManager, PasswordKey: "bad name!"},
			want:  []string{"mysql[0].credentials: Invalid secret name 'bad name!'"},
		},
		{
			name:  "valid secret name with special characters",
			creds: Credentials{User: "u", PasswordSource: SourceSecretsManager, PasswordKey: "prod/db+ro=1.x@team_a-b"},
			want:  []string{},
		},
		{
			name:  "invalid password source",
			creds: Credentials{User: "u", PasswordSource: "vault"},
			want:  []string{"mysql[0].credentials: Invalid password_source 'vault'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := validDatabase("db1", EngineMySQL)
			creds := tt.creds
			db.Credentials = &creds

			r := Validate(&EnhancedConfig{MySQL: []Database{db}})

			assert.Equal(t, tt.want, r.Errors)
		})
	}
}

func TestValidateMultipleHostsIsWarning(t *testing.T) {
	db := validDatabase("db1", EngineMySQL)
	db.Connection.Endpoint = "db1.abc.us-east-1.rds.amazonaws.com"

	r := Validate(&EnhancedConfig{MySQL: []Database{db}})

	assert.True(t, r.Valid())
	assert.Equal(t, []string{"mysql[0].connection: Multiple hosts specified, will use first one"}, r.Warnings)
}

func TestValidateAcceptsIPAddresses(t *testing.T) {
	for _, host := range []string{"10.0.0.12", "::1", "fd00::1"} {
		db := validDatabase("db1", EngineMySQL)
		db.Connection.Host = host

		r := Validate(&EnhancedConfig{MySQL: []Database{db}})

		assert.True(t, r.Valid(), "host %v: %v", host, r.Errors)
	}
}

func TestValidateDoesNotMutate(t *testing.T) {
	db := validDatabase("db1", EngineMySQL)
	db.Connection.Port = nil
	cfg := &EnhancedConfig{MySQL: []Database{db}}

	Validate(cfg)

	assert.Nil(t, cfg.MySQL[0].Connection.Port)
	assert.Nil(t, cfg.MySQL[0].Enabled)
}
