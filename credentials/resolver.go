// Package credentials resolves credential references from an enhanced config
// into literal values. Resolution never fails loudly: every failure becomes a
// typed Result so that one unreachable secret does not stop the others.
package credentials

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/smithy-go"
	"github.com/awsdbmon/cli/dbconfig"
	log "github.com/sirupsen/logrus"
)

// DefaultFetchTimeout bounds a single secret store call
const DefaultFetchTimeout = 10 * time.Second

type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type ParameterClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Clients are the secret store clients for one region
type Clients struct {
	Secrets    SecretsClient
	Parameters ParameterClient
}

// NewClients creates secret store clients from an AWS config
func NewClients(cfg aws.Config) Clients {
	return Clients{
		Secrets: secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
		Parameters: ssm.NewFromConfig(cfg, func(o *ssm.Options) {
			o.RetryMode = aws.RetryModeAdaptive
		}),
	}
}

// Resolver fetches credential values. The zero value is not usable, create
// one with NewResolver.
type Resolver struct {
	// Region is the region of the default clients
	Region string
	// ForRegion creates clients for entries that name a different region in
	// credentials.region. When nil the default clients are always used.
	ForRegion func(region string) Clients
	// LookupEnv looks up environment variables, os.LookupEnv by default
	LookupEnv func(key string) (string, bool)
	// FetchTimeout bounds each secret store call
	FetchTimeout time.Duration

	defaults Clients

	mu       sync.Mutex
	regional map[string]Clients
}

// NewResolver returns a resolver that uses the given clients for region
func NewResolver(region string, clients Clients) *Resolver {
	return &Resolver{
		Region:       region,
		LookupEnv:    os.LookupEnv,
		FetchTimeout: DefaultFetchTimeout,
		defaults:     clients,
		regional:     make(map[string]Clients),
	}
}

// ResolveCredentials resolves the user and password of a credentials block
// independently
func (r *Resolver) ResolveCredentials(ctx context.Context, creds dbconfig.Credentials) (user Result, password Result) {
	clients := r.clientsFor(creds.Region)

	user = r.resolve(ctx, clients, creds.UserReference())
	password = r.resolve(ctx, clients, creds.PasswordReference())

	return user, password
}

// Resolve resolves a single reference with the default clients
func (r *Resolver) Resolve(ctx context.Context, ref dbconfig.Reference) Result {
	return r.resolve(ctx, r.defaults, ref)
}

func (r *Resolver) resolve(ctx context.Context, clients Clients, ref dbconfig.Reference) Result {
	switch ref := ref.(type) {
	case dbconfig.PlainValue:
		if ref.Value == "" {
			return Failed(&ResolveError{Field: ref.For, Source: dbconfig.SourcePlain, Kind: KindMissingValue})
		}
		return Resolved(ref.Value)
	case dbconfig.EnvVar:
		return r.resolveEnv(ref)
	case dbconfig.SecretsManagerSecret:
		if ref.SecretID == "" {
			return Failed(&ResolveError{Field: ref.For, Source: ref.Source(), Kind: KindMissingKey})
		}
		return r.fetch(ctx, ref, func(ctx context.Context) (string, error) {
			return getSecret(ctx, clients.Secrets, ref.SecretID)
		})
	case dbconfig.SSMParameter:
		if ref.Name == "" {
			return Failed(&ResolveError{Field: ref.For, Source: ref.Source(), Kind: KindMissingKey})
		}
		return r.fetch(ctx, ref, func(ctx context.Context) (string, error) {
			return getParameter(ctx, clients.Parameters, ref.Name)
		})
	default:
		return Failed(&ResolveError{Field: dbconfig.FieldPassword, Source: dbconfig.SourcePlain, Kind: KindMissingValue})
	}
}

func (r *Resolver) resolveEnv(ref dbconfig.EnvVar) Result {
	if ref.Name == "" {
		return Failed(&ResolveError{Field: ref.For, Source: dbconfig.SourceEnvVar, Kind: KindMissingEnvName})
	}

	lookup := r.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	value, ok := lookup(ref.Name)
	if !ok {
		return Failed(&ResolveError{Field: ref.For, Source: dbconfig.SourceEnvVar, Kind: KindEnvNotSet})
	}

	return Resolved(value)
}

// fetch performs exactly one secret store call. On failure only the field,
// source and a coarse reason are logged.
func (r *Resolver) fetch(ctx context.Context, ref dbconfig.Reference, get func(context.Context) (string, error)) Result {
	timeout := r.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := get(ctx)
	if err != nil {
		resolveErr := &ResolveError{
			Field:  ref.Field(),
			Source: ref.Source(),
			Kind:   KindFetchFailed,
			Reason: classify(err),
		}

		log.WithFields(log.Fields{
			"field":  resolveErr.Field,
			"source": resolveErr.Source,
			"reason": resolveErr.Reason,
		}).Error("failed to retrieve credentials")

		return Failed(resolveErr)
	}

	return Resolved(value)
}

func (r *Resolver) clientsFor(region string) Clients {
	if region == "" || region == r.Region || r.ForRegion == nil {
		return r.defaults
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.regional == nil {
		r.regional = make(map[string]Clients)
	}

	clients, ok := r.regional[region]
	if !ok {
		clients = r.ForRegion(region)
		r.regional[region] = clients
	}

	return clients
}

var errEmptyValue = errors.New("empty value")

func getSecret(ctx context.Context, client SecretsClient, id string) (string, error) {
	if client == nil {
		return "", errors.New("no secrets manager client")
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &id,
	})
	if err != nil {
		return "", err
	}

	if out.SecretString == nil {
		return "", errEmptyValue
	}

	return *out.SecretString, nil
}

func getParameter(ctx context.Context, client ParameterClient, name string) (string, error) {
	if client == nil {
		return "", errors.New("no parameter store client")
	}

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}

	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", errEmptyValue
	}

	return *out.Parameter.Value, nil
}

// classify reduces an error to a fixed vocabulary that never contains
// identifiers from the request
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, errEmptyValue):
		return "empty_value"
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException", "ParameterNotFound", "ParameterVersionNotFound":
			return "not_found"
		case "AccessDeniedException", "AccessDenied", "UnrecognizedClientException", "ExpiredTokenException":
			return "access_denied"
		case "ThrottlingException", "TooManyUpdates":
			return "throttled"
		case "DecryptionFailure", "InvalidKeyId":
			return "decryption_failed"
		default:
			return "api_error"
		}
	}

	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return "request_failed"
	}

	return "unknown"
}
