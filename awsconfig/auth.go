// Package awsconfig turns the CLI's AWS access options into aws.Config values
// and resolves the region secret clients should talk to.
package awsconfig

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	log "github.com/sirupsen/logrus"
)

// AppID is sent with every AWS request
const AppID = "awsdbmon"

// Strategy is how the tool obtains AWS credentials
type Strategy string

const (
	StrategyDefaults   Strategy = "defaults"
	StrategyAccessKey  Strategy = "access-key"
	StrategyExternalID Strategy = "external-id"
	StrategySSOProfile Strategy = "sso-profile"
)

// Strategies lists every supported strategy, in the order shown in help text
var Strategies = []Strategy{StrategyDefaults, StrategyAccessKey, StrategyExternalID, StrategySSOProfile}

type AuthConfig struct {
	Strategy        Strategy
	AccessKeyID     string
	SecretAccessKey string
	ExternalID      string
	TargetRoleARN   string
	Profile         string
	// AutoConfig loads the default credential chain regardless of Strategy
	AutoConfig bool
}

type authField struct {
	flag  string
	value string
}

func (c AuthConfig) fields() []authField {
	return []authField{
		{flag: "aws-access-key-id", value: c.AccessKeyID},
		{flag: "aws-secret-access-key", value: c.SecretAccessKey},
		{flag: "aws-external-id", value: c.ExternalID},
		{flag: "aws-target-role-arn", value: c.TargetRoleARN},
		{flag: "aws-profile", value: c.Profile},
	}
}

// required lists the flags each strategy needs. Every other flag must be
// blank.
var required = map[Strategy][]string{
	StrategyDefaults:   {},
	StrategyAccessKey:  {"aws-access-key-id", "aws-secret-access-key"},
	StrategyExternalID: {"aws-external-id", "aws-target-role-arn"},
	StrategySSOProfile: {"aws-profile"},
}

// Validate checks that exactly the flags the strategy needs are set. The
// defaults strategy ignores the other flags.
func (c AuthConfig) Validate() error {
	if c.AutoConfig {
		return nil
	}

	needed, ok := required[c.Strategy]
	if !ok {
		return fmt.Errorf("invalid aws-access-strategy %q", c.Strategy)
	}

	if c.Strategy == StrategyDefaults {
		return nil
	}

	for _, f := range c.fields() {
		isRequired := slices.Contains(needed, f.flag)

		switch {
		case isRequired && f.value == "":
			return fmt.Errorf("with %v strategy, %v cannot be blank", c.Strategy, f.flag)
		case !isRequired && f.value != "":
			return fmt.Errorf("with %v strategy, %v must be blank", c.Strategy, f.flag)
		}
	}

	return nil
}

// Load returns an aws.Config for region using the configured strategy
func (c AuthConfig) Load(ctx context.Context, region string) (aws.Config, error) {
	if region == "" {
		return aws.Config{}, errors.New("aws region cannot be blank")
	}

	if err := c.Validate(); err != nil {
		return aws.Config{}, err
	}

	options := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithAppID(AppID),
	}

	if c.AutoConfig {
		if c.Strategy != "" && c.Strategy != StrategyDefaults {
			log.WithField("aws-access-strategy", c.Strategy).Warn("auto-config is set, ignoring aws-access-strategy")
		}
		return config.LoadDefaultConfig(ctx, options...)
	}

	switch c.Strategy {
	case StrategyAccessKey:
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	case StrategyExternalID:
		base, err := config.LoadDefaultConfig(ctx, options...)
		if err != nil {
			return aws.Config{}, fmt.Errorf("could not load default config from environment: %w", err)
		}

		externalID := c.ExternalID
		options = append(options, config.WithCredentialsProvider(aws.NewCredentialsCache(
			stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), c.TargetRoleARN, func(o *stscreds.AssumeRoleOptions) {
				o.ExternalID = &externalID
			}),
		)))
	case StrategySSOProfile:
		options = append(options, config.WithSharedConfigProfile(c.Profile))
	case StrategyDefaults:
	}

	return config.LoadDefaultConfig(ctx, options...)
}

// LoadRegions returns one config per region, in the order given. Whitespace
// around region names is ignored and blank entries are skipped.
func (c AuthConfig) LoadRegions(ctx context.Context, regions []string) (map[string]aws.Config, []string, error) {
	configs := make(map[string]aws.Config, len(regions))
	order := make([]string, 0, len(regions))

	for _, region := range regions {
		region = strings.TrimSpace(region)
		if region == "" {
			continue
		}

		if _, seen := configs[region]; seen {
			continue
		}

		cfg, err := c.Load(ctx, region)
		if err != nil {
			return nil, nil, fmt.Errorf("error getting AWS config for region %v: %w", region, err)
		}

		configs[region] = cfg
		order = append(order, region)
	}

	if len(order) == 0 {
		return nil, nil, errors.New("no regions specified")
	}

	return configs, order, nil
}
