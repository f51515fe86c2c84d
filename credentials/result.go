package credentials

import (
	"fmt"
	"slices"

	"github.com/awsdbmon/cli/dbconfig"
)

// Kind classifies why a credential could not be resolved
type Kind int

const (
	// KindMissingValue means a plain source had no literal value
	KindMissingValue Kind = iota
	// KindMissingKey means an AWS source had no key or parameter name
	KindMissingKey
	// KindMissingEnvName means an env_var source had no variable name
	KindMissingEnvName
	// KindEnvNotSet means the named environment variable is not set
	KindEnvNotSet
	// KindFetchFailed means the secret store call failed
	KindFetchFailed
)

func (k Kind) String() string {
	switch k {
	case KindMissingValue:
		return "missing value"
	case KindMissingKey:
		return "missing key"
	case KindMissingEnvName:
		return "missing environment variable name"
	case KindEnvNotSet:
		return "environment variable not set"
	case KindFetchFailed:
		return "fetch failed"
	default:
		return "unknown"
	}
}

// Sentinel strings written into a flat config in place of a value that could
// not be resolved
const (
	SentinelFetchingSecret    = "ERROR_FETCHING_SECRET"
	SentinelFetchingParameter = "ERROR_FETCHING_PARAMETER"
	SentinelEnvVarNotSet      = "ENV_VAR_NOT_SET"
	SentinelMissingUser       = "MISSING_USER"
	SentinelMissingUserKey    = "MISSING_USER_KEY"
	SentinelMissingUserEnv    = "MISSING_USER_ENV"
	SentinelMissingPassword   = "MISSING_PASSWORD"
	SentinelMissingPassKey    = "MISSING_PASSWORD_KEY"
	SentinelMissingPassEnv    = "MISSING_PASSWORD_ENV"
)

var sentinels = []string{
	SentinelFetchingSecret,
	SentinelFetchingParameter,
	SentinelEnvVarNotSet,
	SentinelMissingUser,
	SentinelMissingUserKey,
	SentinelMissingUserEnv,
	SentinelMissingPassword,
	SentinelMissingPassKey,
	SentinelMissingPassEnv,
}

// IsSentinel reports whether v is one of the strings substituted for an
// unresolved credential
func IsSentinel(v string) bool {
	return slices.Contains(sentinels, v)
}

// ResolveError describes a failed resolution. It never carries request
// identifiers or backend error text.
type ResolveError struct {
	Field  dbconfig.Field
	Source dbconfig.Source
	Kind   Kind
	// Reason is a coarse classification of a fetch failure, e.g. "not_found"
	Reason string
}

func (e *ResolveError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("failed to retrieve credentials: %v %v from %v (%v)", e.Field, e.Kind, e.Source, e.Reason)
	}

	return fmt.Sprintf("failed to retrieve credentials: %v %v from %v", e.Field, e.Kind, e.Source)
}

// Sentinel returns the placeholder string for this failure
func (e *ResolveError) Sentinel() string {
	switch e.Kind {
	case KindFetchFailed:
		if e.Source == dbconfig.SourceSSMParameter {
			return SentinelFetchingParameter
		}
		return SentinelFetchingSecret
	case KindEnvNotSet:
		return SentinelEnvVarNotSet
	case KindMissingKey:
		if e.Field == dbconfig.FieldUser {
			return SentinelMissingUserKey
		}
		return SentinelMissingPassKey
	case KindMissingEnvName:
		if e.Field == dbconfig.FieldUser {
			return SentinelMissingUserEnv
		}
		return SentinelMissingPassEnv
	default:
		if e.Field == dbconfig.FieldUser {
			return SentinelMissingUser
		}
		return SentinelMissingPassword
	}
}

// Result is either a resolved value or the reason it could not be resolved
type Result struct {
	value string
	err   *ResolveError
}

// Resolved returns a successful result
func Resolved(value string) Result {
	return Result{value: value}
}

// Failed returns an unsuccessful result
func Failed(err *ResolveError) Result {
	return Result{err: err}
}

// OK reports whether the value was resolved
func (r Result) OK() bool {
	return r.err == nil
}

// Value returns the resolved value and whether resolution succeeded
func (r Result) Value() (string, bool) {
	return r.value, r.OK()
}

// Err returns the resolution error, or nil when the value was resolved
func (r Result) Err() error {
	if r.err == nil {
		return nil
	}

	return r.err
}

// OrSentinel returns the value, or the sentinel string for the failure. This
// is the only way a sentinel reaches a flat config.
func (r Result) OrSentinel() string {
	if r.err != nil {
		return r.err.Sentinel()
	}

	return r.value
}
