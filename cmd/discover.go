package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/awsdbmon/cli/dbconfig"
	"github.com/awsdbmon/cli/discovery"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Finds RDS instances and Aurora clusters and writes an enhanced configuration",
	Long: `Scans the given regions for RDS instances and Aurora clusters whose tags
match every --tag-filter and writes an enhanced configuration describing them.
Passwords are referenced in Secrets Manager under
/rds/<region>/<id>/newrelic or /aurora/<region>/<id>/newrelic.

A region that cannot be scanned is logged and skipped.`,
	Args: cobra.NoArgs,
	RunE: Discover,
}

type discoverOptions struct {
	Regions    []string          `flag:"regions" validate:"min=1,dive,required"`
	TagFilters map[string]string `flag:"tag-filter"`
	Output     string            `flag:"output" validate:"oneof=yaml json"`
	OutputFile string            `flag:"output-file"`
}

func discoverOptionsFromViper() (discoverOptions, error) {
	filters, err := parseTagFilters(viper.GetStringSlice("tag-filter"))
	if err != nil {
		return discoverOptions{}, err
	}

	opts := discoverOptions{
		Regions:    viper.GetStringSlice("regions"),
		TagFilters: filters,
		Output:     viper.GetString("output"),
		OutputFile: viper.GetString("output-file"),
	}

	return opts, validateOptions(opts)
}

func Discover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts, err := discoverOptionsFromViper()
	if err != nil {
		return err
	}

	configs, regions, err := awsAuthConfigFromViper().LoadRegions(ctx, opts.Regions)
	if err != nil {
		log.WithError(err).Error("could not load AWS config")
		return errFailed
	}

	d := discovery.NewDiscoverer(regions, opts.TagFilters, configs)

	return runDiscover(ctx, cmd.OutOrStdout(), d, opts)
}

type discoverer interface {
	Discover(ctx context.Context) *dbconfig.EnhancedConfig
}

func runDiscover(ctx context.Context, out io.Writer, d discoverer, opts discoverOptions) error {
	cfg := d.Discover(ctx)

	log.WithFields(log.Fields{
		"mysql":      len(cfg.MySQL),
		"postgresql": len(cfg.PostgreSQL),
	}).Info("Discovery complete")

	data, err := dbconfig.Encode(cfg, dbconfig.Format(opts.Output))
	if err != nil {
		log.WithError(err).Error("error generating configuration")
		return errFailed
	}

	if opts.OutputFile == "" {
		_, err = out.Write(data)
		return err
	}

	if err := dbconfig.WriteSecure(opts.OutputFile, data); err != nil {
		log.WithError(err).Error("error writing configuration")
		return errFailed
	}

	fmt.Fprintf(out, "Configuration written to %v\n", opts.OutputFile)

	return nil
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.PersistentFlags().StringSlice("regions", []string{"us-east-1"}, "AWS regions to scan. Multiple regions can be specified by repeating the flag or using a comma separated list.")
	discoverCmd.PersistentFlags().StringArray("tag-filter", []string{}, "Only include resources with this tag, in key=value format. Can be specified multiple times, all filters must match. Defaults to monitor=newrelic.")
	discoverCmd.PersistentFlags().String("output", string(dbconfig.FormatYAML), "Output format. Valid values: yaml, json")
	discoverCmd.PersistentFlags().String("output-file", "", "Write the configuration to this file instead of stdout")

	addAWSFlags(discoverCmd.PersistentFlags())
}
