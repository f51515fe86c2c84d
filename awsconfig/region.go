package awsconfig

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultRegion is used when no other source names a region
	DefaultRegion = "us-east-1"
	// MetadataTimeout bounds the instance metadata lookup
	MetadataTimeout = 2 * time.Second
)

type metadataClient interface {
	GetRegion(ctx context.Context, params *imds.GetRegionInput, optFns ...func(*imds.Options)) (*imds.GetRegionOutput, error)
}

// RegionResolver decides which region to use. Sources are tried in order:
// the explicit override, the EC2 instance metadata service, the
// AWS_DEFAULT_REGION environment variable, then DefaultRegion.
type RegionResolver struct {
	Override  string
	Metadata  metadataClient
	LookupEnv func(key string) (string, bool)
	Timeout   time.Duration
}

// NewRegionResolver returns a resolver that queries the real metadata
// service and process environment
func NewRegionResolver(override string) *RegionResolver {
	return &RegionResolver{
		Override:  override,
		Metadata:  imds.New(imds.Options{}),
		LookupEnv: os.LookupEnv,
		Timeout:   MetadataTimeout,
	}
}

func (r *RegionResolver) Resolve(ctx context.Context) string {
	if r.Override != "" {
		return r.Override
	}

	if region := r.fromMetadata(ctx); region != "" {
		log.WithField("region", region).Debug("Using region from instance metadata")
		return region
	}

	if r.LookupEnv != nil {
		if region, ok := r.LookupEnv("AWS_DEFAULT_REGION"); ok && region != "" {
			log.WithField("region", region).Debug("Using region from AWS_DEFAULT_REGION")
			return region
		}
	}

	log.WithField("region", DefaultRegion).Debug("Using default region")

	return DefaultRegion
}

func (r *RegionResolver) fromMetadata(ctx context.Context) string {
	if r.Metadata == nil {
		return ""
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = MetadataTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := r.Metadata.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		log.WithError(err).Debug("Instance metadata not available")
		return ""
	}

	return out.Region
}
