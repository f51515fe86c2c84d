package cmd

import (
	"fmt"
	"io"

	"github.com/awsdbmon/cli/dbconfig"
	"github.com/awsdbmon/cli/probe"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// validateConfigCmd represents the validate-config command
var validateConfigCmd = &cobra.Command{
	Use:   "validate-config <file>",
	Short: "Checks an enhanced configuration file for errors",
	Long: `Checks the structure of an enhanced configuration file (YAML or JSON) and
reports every problem found. Exits with a non-zero status when there are
errors. Warnings do not affect the exit status.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidateConfig(cmd.OutOrStdout(), args[0])
	},
}

func runValidateConfig(out io.Writer, path string) error {
	cfg, err := dbconfig.LoadEnhanced(path)
	if err != nil {
		log.WithError(err).Error("could not read configuration")
		return errFailed
	}

	result := dbconfig.Validate(cfg)

	if !result.Valid() {
		fmt.Fprintln(out, Bold.TextStyle("Configuration validation failed:"))
		writeFindings(out, result)
		return errFailed
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(out, Bold.TextStyle("Configuration warnings:"))
		writeFindings(out, result)
	}

	fmt.Fprintf(out, "%v Configuration is valid (%d MySQL, %d PostgreSQL)\n", markStyle(probe.MarkOK), len(cfg.MySQL), len(cfg.PostgreSQL))

	return nil
}

// writeFindings prints errors, then warnings, one per line
func writeFindings(out io.Writer, result *dbconfig.ValidationResult) {
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  ERROR: %v\n", e)
	}

	if len(result.Errors) > 0 && len(result.Warnings) > 0 {
		fmt.Fprintln(out, "\nWarnings:")
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(out, "  WARNING: %v\n", w)
	}
}

func init() {
	rootCmd.AddCommand(validateConfigCmd)
}
