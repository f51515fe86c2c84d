package cmd

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/awsdbmon/cli/awsconfig"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// This file contains re-usable sets of flags that should be used when creating
// commands

// Adds the flags that control how AWS credentials are obtained
func addAWSFlags(flags *pflag.FlagSet) {
	strategies := make([]string, 0, len(awsconfig.Strategies))
	for _, s := range awsconfig.Strategies {
		strategies = append(strategies, string(s))
	}

	flags.String("aws-access-strategy", string(awsconfig.StrategyDefaults), fmt.Sprintf("The strategy to use to access AWS. Valid values: %v", strings.Join(strategies, ", ")))
	flags.String("aws-access-key-id", "", "The ID of the access key to use. Only used with the access-key strategy")
	flags.String("aws-secret-access-key", "", "The secret access key to use. Only used with the access-key strategy")
	flags.String("aws-external-id", "", "The external ID to use when assuming the role. Only used with the external-id strategy")
	flags.String("aws-target-role-arn", "", "The role to assume. Only used with the external-id strategy")
	flags.String("aws-profile", "", "The shared config profile to use. Only used with the sso-profile strategy")
	flags.Bool("auto-config", false, "Use the default AWS credential chain and ignore the other aws-* flags")
}

func awsAuthConfigFromViper() awsconfig.AuthConfig {
	return awsconfig.AuthConfig{
		Strategy:        awsconfig.Strategy(viper.GetString("aws-access-strategy")),
		AccessKeyID:     viper.GetString("aws-access-key-id"),
		SecretAccessKey: viper.GetString("aws-secret-access-key"),
		ExternalID:      viper.GetString("aws-external-id"),
		TargetRoleARN:   viper.GetString("aws-target-role-arn"),
		Profile:         viper.GetString("aws-profile"),
		AutoConfig:      viper.GetBool("auto-config"),
	}
}

// parseTagFilters turns key=value arguments into a map. Later duplicates of a
// key win.
func parseTagFilters(filters []string) (map[string]string, error) {
	tags := make(map[string]string, len(filters))

	for _, filter := range filters {
		key, value, ok := strings.Cut(filter, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid tag filter format: %v", filter)
		}
		tags[key] = value
	}

	return tags, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report problems using the flag or argument name rather than the Go field
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("flag"); name != "" {
			return name
		}
		return f.Name
	})

	return v
}

// validateOptions checks a command's options and describes every problem in
// terms of the command line
func validateOptions(opts any) error {
	err := validate.Struct(opts)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%v is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%v must be one of: %v", fe.Field(), fe.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%v needs at least %v value(s)", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%v is invalid", fe.Field()))
		}
	}

	return errors.New(strings.Join(msgs, "; "))
}
