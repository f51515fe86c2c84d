package dbconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberDecoding(t *testing.T) {
	tests := []struct {
		name      string
		format    Format
		doc       string
		isNumber  bool
		isInteger bool
		raw       string
	}{
		{name: "yaml int", format: FormatYAML, doc: "port: 3306", isNumber: true, isInteger: true, raw: "3306"},
		{name: "yaml float", format: FormatYAML, doc: "port: 0.5", isNumber: true, raw: "0.5"},
		{name: "yaml quoted", format: FormatYAML, doc: `port: "3306"`, raw: "3306"},
		{name: "yaml word", format: FormatYAML, doc: "port: abc", raw: "abc"},
		{name: "json int", format: FormatJSON, doc: `{"port": 70000}`, isNumber: true, isInteger: true, raw: "70000"},
		{name: "json float", format: FormatJSON, doc: `{"port": 1.5}`, isNumber: true, raw: "1.5"},
		{name: "json string", format: FormatJSON, doc: `{"port": "x"}`, raw: "x"},
		{name: "json bool", format: FormatJSON, doc: `{"port": true}`, raw: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var conn Connection
			require.NoError(t, Decode(strings.NewReader(tt.doc), tt.format, &conn))
			require.NotNil(t, conn.Port)

			assert.Equal(t, tt.isNumber, conn.Port.IsNumber())
			assert.Equal(t, tt.isInteger, conn.Port.IsInteger())
			assert.Equal(t, tt.raw, conn.Port.String())
		})
	}
}

func TestNumberEncodesAsWritten(t *testing.T) {
	b, err := Encode(Connection{Port: Int(5432)}, FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"port": 5432}`, string(b))

	b, err = Encode(Monitoring{MaxSampleRate: Float(0.25)}, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "max_sample_rate: 0.25\n", string(b))
}

func TestDecodeEmptyDocument(t *testing.T) {
	cfg := new(EnhancedConfig)

	require.NoError(t, Decode(strings.NewReader(""), FormatYAML, cfg))
	assert.Empty(t, cfg.MySQL)
	assert.Empty(t, cfg.PostgreSQL)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatForPath("databases.json"))
	assert.Equal(t, FormatJSON, FormatForPath("/etc/DATABASES.JSON"))
	assert.Equal(t, FormatYAML, FormatForPath("databases.yml"))
	assert.Equal(t, FormatYAML, FormatForPath("databases"))
}

func TestLoadEnhanced(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "databases.yaml")

	doc := `
mysql_databases:
  - name: orders
    type: mysql
    provider: rds
    connection:
      endpoint: orders.abc.us-east-1.rds.amazonaws.com
      port: 3306
    credentials:
      user: newrelic
      password_source: aws_secrets_manager
      password_key: /rds/us-east-1/orders/newrelic
_metadata:
  generated_at: 2026-01-02T03:04:05Z
  regions_scanned: [us-east-1]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := LoadEnhanced(path)
	require.NoError(t, err)
	require.Len(t, cfg.MySQL, 1)

	db := cfg.MySQL[0]
	assert.Equal(t, "orders", db.Name)
	assert.Equal(t, ProviderRDS, db.Provider)
	assert.True(t, db.IsEnabled())

	target, ok := db.Connection.Target()
	require.True(t, ok)
	assert.Equal(t, Target{Kind: HostKindEndpoint, Address: "orders.abc.us-east-1.rds.amazonaws.com"}, target)

	assert.Equal(t, SecretsManagerSecret{For: FieldPassword, SecretID: "/rds/us-east-1/orders/newrelic"}, db.Credentials.PasswordReference())
	assert.Equal(t, PlainValue{For: FieldUser, Value: "newrelic"}, db.Credentials.UserReference())
}

func TestLoadEnhancedErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadEnhanced(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "error opening config file")

	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mysql_databases": [`), 0o600))

	_, err = LoadEnhanced(path)
	assert.ErrorContains(t, err, "error parsing config file")
}

func TestWriteSecure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flat.yaml")

	// An existing world readable file must not keep its mode
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteSecure(path, []byte("password: hunter2\n")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "password: hunter2\n", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should be left behind")
}

func TestWriteSecureMissingDirectory(t *testing.T) {
	err := WriteSecure(filepath.Join(t.TempDir(), "nope", "flat.yaml"), []byte("x"))

	assert.Error(t, err)
}
