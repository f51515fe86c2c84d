package dbconfig

import (
	"fmt"
	"net/netip"
	"regexp"
	"slices"
	"strings"
)

var (
	namePattern         = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
	hostnamePattern     = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	intervalPattern     = regexp.MustCompile(`^\d+[smh]$`)
	secretNamePattern   = regexp.MustCompile(`^[a-zA-Z0-9/_\-+=.@]+$`)
	ssmParameterPattern = regexp.MustCompile(`^/[a-zA-Z0-9/_\-.]+$`)
)

// SSLModes are the accepted values of connection.ssl_mode
var SSLModes = []string{"disable", "require", "verify-ca", "verify-full", "prefer"}

// ValidationResult accumulates every problem found in one validation pass.
// Any error makes the config invalid, warnings never do.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether no errors were found
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks the structure and semantics of an enhanced config. It never
// stops at the first problem: every applicable check runs and every violation
// is reported. The config is not modified.
func Validate(cfg *EnhancedConfig) *ValidationResult {
	r := &ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if cfg == nil {
		return r
	}

	for i, db := range cfg.MySQL {
		r.validateDatabase(db, EngineMySQL, i)
	}

	for i, db := range cfg.PostgreSQL {
		r.validateDatabase(db, EnginePostgreSQL, i)
	}

	r.checkDuplicateNames(cfg)

	return r
}

func (r *ValidationResult) validateDatabase(db Database, bucket Engine, index int) {
	prefix := fmt.Sprintf("%v[%d]", bucket, index)

	if db.Name == "" && !db.NameSet {
		r.errorf("%v: Missing required field 'name'", prefix)
	} else if !namePattern.MatchString(db.Name) {
		r.errorf("%v: Invalid name '%v' - must contain only alphanumeric, dash, underscore", prefix, db.Name)
	}

	if db.Type == "" {
		r.errorf("%v: Missing required field 'type'", prefix)
	} else if db.Type != bucket {
		r.errorf("%v: Type mismatch - expected '%v', got '%v'", prefix, bucket, db.Type)
	}

	if db.Connection.isEmpty() {
		r.errorf("%v: Missing 'connection' section", prefix)
	} else {
		r.validateConnection(*db.Connection, prefix)
	}

	if db.Credentials.isEmpty() {
		r.errorf("%v: Missing 'credentials' section", prefix)
	} else {
		r.validateCredentials(*db.Credentials, prefix)
	}

	if db.Monitoring != nil {
		r.validateMonitoring(*db.Monitoring, prefix)
	}
}

func (r *ValidationResult) validateConnection(conn Connection, prefix string) {
	targets := conn.Targets()

	switch {
	case len(targets) == 0:
		r.errorf("%v.connection: No host specified", prefix)
	case len(targets) > 1:
		r.warnf("%v.connection: Multiple hosts specified, will use first one", prefix)
	default:
		if !validHost(targets[0].Address) {
			r.errorf("%v.connection: Invalid host '%v'", prefix, targets[0].Address)
		}
	}

	if conn.Port != nil {
		port, ok := conn.Port.IntValue()
		if !ok || port < 1 || port > 65535 {
			r.errorf("%v.connection: Invalid port '%v' - must be 1-65535", prefix, conn.Port)
		}
	}

	if conn.SSLMode != "" && !slices.Contains(SSLModes, conn.SSLMode) {
		r.errorf("%v.connection: Invalid ssl_mode '%v'", prefix, conn.SSLMode)
	}
}

func (r *ValidationResult) validateCredentials(creds Credentials, prefix string) {
	userSource := creds.EffectiveUserSource()
	if !userSource.IsValid() {
		r.errorf("%v.credentials: Invalid user_source '%v'", prefix, userSource)
	}

	switch {
	case userSource == SourcePlain && creds.PlainUser() == "":
		r.errorf("%v.credentials: Missing 'user' for plain text source", prefix)
	case userSource == SourceEnvVar && creds.UserEnv == "":
		r.errorf("%v.credentials: Missing 'user_env' for environment variable source", prefix)
	case userSource.IsAWS() && creds.UserKey == "":
		r.errorf("%v.credentials: Missing 'user_key' for AWS source", prefix)
	}

	passwordSource := creds.EffectivePasswordSource()
	if !passwordSource.IsValid() {
		r.errorf("%v.credentials: Invalid password_source '%v'", prefix, passwordSource)
	}

	switch {
	case passwordSource == SourcePlain && creds.Password == "":
		r.errorf("%v.credentials: Missing 'password' for plain text source", prefix)
	case passwordSource == SourceEnvVar && creds.PasswordEnv == "":
		r.errorf("%v.credentials: Missing 'password_env' for environment variable source", prefix)
	case passwordSource.IsAWS() && creds.PasswordKey == "":
		r.errorf("%v.credentials: Missing 'password_key' for AWS source", prefix)
	}

	r.validateKeyName(userSource, creds.UserKey, prefix)
	r.validateKeyName(passwordSource, creds.PasswordKey, prefix)
}

func (r *ValidationResult) validateKeyName(source Source, key, prefix string) {
	if key == "" {
		return
	}

	switch source { //nolint:exhaustive
	case SourceSecretsManager:
		if !secretNamePattern.MatchString(key) {
			r.errorf("%v.credentials: Invalid secret name '%v'", prefix, key)
		}
	case SourceSSMParameter:
		if !ssmParameterPattern.MatchString(key) {
			r.errorf("%v.credentials: Invalid SSM parameter name '%v'", prefix, key)
		}
	}
}

type numericBound struct {
	field    string
	value    *Number
	min, max string
	lo, hi   float64
}

func (r *ValidationResult) validateMonitoring(m Monitoring, prefix string) {
	if m.Interval != "" && !intervalPattern.MatchString(m.Interval) {
		r.errorf("%v.monitoring: Invalid interval '%v' - use format like '30s', '5m', '1h'", prefix, m.Interval)
	}

	bounds := []numericBound{
		{field: "max_sql_query_length", value: m.MaxSQLQueryLength, min: "1", max: "10000", lo: 1, hi: 10000},
		{field: "max_sample_rate", value: m.MaxSampleRate, min: "0.0", max: "1.0", lo: 0, hi: 1},
		{field: "query_timeout", value: m.QueryTimeout, min: "1", max: "3600", lo: 1, hi: 3600},
	}

	for _, b := range bounds {
		if b.value == nil {
			continue
		}

		if !b.value.IsNumber() {
			r.errorf("%v.monitoring: %v must be a number", prefix, b.field)
			continue
		}

		if v := b.value.Value(); v < b.lo || v > b.hi {
			r.errorf("%v.monitoring: %v must be between %v and %v", prefix, b.field, b.min, b.max)
		}
	}
}

// checkDuplicateNames reports each name used more than once across both
// buckets, once, in order of first appearance
func (r *ValidationResult) checkDuplicateNames(cfg *EnhancedConfig) {
	counts := make(map[string]int)
	order := make([]string, 0)

	for _, bucket := range [][]Database{cfg.MySQL, cfg.PostgreSQL} {
		for _, db := range bucket {
			if db.Name == "" && !db.NameSet {
				continue
			}

			if counts[db.Name] == 0 {
				order = append(order, db.Name)
			}
			counts[db.Name]++
		}
	}

	duplicates := make([]string, 0)
	for _, name := range order {
		if counts[name] > 1 {
			duplicates = append(duplicates, name)
		}
	}

	if len(duplicates) > 0 {
		r.errorf("Duplicate service names found: %v", strings.Join(duplicates, ", "))
	}
}

func validHost(host string) bool {
	if _, err := netip.ParseAddr(host); err == nil {
		return true
	}

	return hostnamePattern.MatchString(host)
}

