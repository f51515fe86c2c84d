package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/awsdbmon/cli/awsconfig"
	"github.com/awsdbmon/cli/credentials"
	"github.com/awsdbmon/cli/dbconfig"
	"github.com/awsdbmon/cli/transform"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// transformCmd represents the transform command
var transformCmd = &cobra.Command{
	Use:   "transform <input> <output>",
	Short: "Resolves credentials and writes the flat configuration for the agent",
	Long: `Validates an enhanced configuration, resolves every credential reference
and writes the flat configuration the agent installation consumes. The output
is always YAML and the file is only readable by its owner.

Credentials that cannot be resolved are written as error markers and listed
in the report, they do not stop the transformation.`,
	Args: cobra.ExactArgs(2),
	RunE: Transform,
}

type transformOptions struct {
	Input  string `flag:"input" validate:"required"`
	Output string `flag:"output" validate:"required"`
	Region string `flag:"region"`
	DryRun bool   `flag:"dry-run"`
}

func Transform(cmd *cobra.Command, args []string) error {
	opts := transformOptions{
		Input:  args[0],
		Output: args[1],
		Region: viper.GetString("region"),
		DryRun: viper.GetBool("dry-run"),
	}
	if err := validateOptions(opts); err != nil {
		return err
	}

	auth := awsAuthConfigFromViper()

	return runTransform(cmd.Context(), cmd.OutOrStdout(), opts, func(ctx context.Context) (transform.CredentialResolver, error) {
		return newCredentialResolver(ctx, auth, opts.Region)
	})
}

// newCredentialResolver builds a resolver for the detected region. Entries
// that name another region get clients with the same credentials pointed at
// that region.
func newCredentialResolver(ctx context.Context, auth awsconfig.AuthConfig, override string) (*credentials.Resolver, error) {
	region := awsconfig.NewRegionResolver(override).Resolve(ctx)
	log.WithField("region", region).Info("Resolving credentials")

	cfg, err := auth.Load(ctx, region)
	if err != nil {
		return nil, err
	}

	resolver := credentials.NewResolver(region, credentials.NewClients(cfg))
	resolver.ForRegion = func(region string) credentials.Clients {
		regional := cfg.Copy()
		regional.Region = region
		return credentials.NewClients(regional)
	}

	return resolver, nil
}

func runTransform(ctx context.Context, out io.Writer, opts transformOptions, newResolver func(context.Context) (transform.CredentialResolver, error)) error {
	fmt.Fprintf(out, "Reading configuration from %v...\n", opts.Input)

	cfg, err := dbconfig.LoadEnhanced(opts.Input)
	if err != nil {
		log.WithError(err).Error("could not read configuration")
		return errFailed
	}

	fmt.Fprintln(out, "Validating configuration...")
	result := dbconfig.Validate(cfg)

	if !result.Valid() {
		fmt.Fprintln(out, "\nConfiguration validation failed:")
		writeFindings(out, result)
		return errFailed
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(out, "\nConfiguration warnings:")
		writeFindings(out, result)
	}

	resolver, err := newResolver(ctx)
	if err != nil {
		log.WithError(err).Error("could not create credential resolver")
		return errFailed
	}

	fmt.Fprintln(out, "Transforming configuration...")
	outcome := transform.NewTransformer(resolver).Transform(ctx, cfg)

	if opts.DryRun {
		data, err := dbconfig.Encode(transform.Masked(outcome.Config), dbconfig.FormatYAML)
		if err != nil {
			log.WithError(err).Error("error encoding configuration")
			return errFailed
		}

		fmt.Fprintln(out, "Transformed configuration (dry run):")
		if _, err := out.Write(data); err != nil {
			return err
		}
		transform.WriteReport(out, outcome)

		return nil
	}

	data, err := dbconfig.Encode(outcome.Config, dbconfig.FormatYAML)
	if err != nil {
		log.WithError(err).Error("error encoding configuration")
		return errFailed
	}

	fmt.Fprintf(out, "Writing transformed configuration to %v...\n", opts.Output)
	if err := dbconfig.WriteSecure(opts.Output, data); err != nil {
		log.WithError(err).Error("error writing configuration")
		return errFailed
	}

	transform.WriteReport(out, outcome)

	return nil
}

func init() {
	rootCmd.AddCommand(transformCmd)

	transformCmd.PersistentFlags().String("region", "", "AWS region of the secret stores. Detected from instance metadata, then AWS_DEFAULT_REGION, when not set")
	transformCmd.PersistentFlags().Bool("dry-run", false, "Print the transformed configuration with passwords masked instead of writing it")

	addAWSFlags(transformCmd.PersistentFlags())
}
