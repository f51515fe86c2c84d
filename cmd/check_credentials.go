package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/awsdbmon/cli/dbconfig"
	"github.com/awsdbmon/cli/probe"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// checkCredentialsCmd represents the check-credentials command
var checkCredentialsCmd = &cobra.Command{
	Use:   "check-credentials <flat-config>",
	Short: "Checks that every database in a flat configuration can be monitored",
	Long: `Connects to every database in a flat configuration (YAML or JSON) and checks
that the user has the permissions the monitoring agent needs. Exits with a
non-zero status when any check fails. Warnings do not affect the exit status.`,
	Args: cobra.ExactArgs(1),
	RunE: CheckCredentials,
}

type checkOptions struct {
	Config             string `flag:"flat-config" validate:"required"`
	Fix                bool   `flag:"fix"`
	FixFile            string `flag:"fix-file" validate:"required_if=Fix true"`
	SkipConnectionTest bool   `flag:"skip-connection-test"`
}

func CheckCredentials(cmd *cobra.Command, args []string) error {
	opts := checkOptions{
		Config:             args[0],
		Fix:                viper.GetBool("fix"),
		FixFile:            viper.GetString("fix-file"),
		SkipConnectionTest: viper.GetBool("skip-connection-test"),
	}
	if err := validateOptions(opts); err != nil {
		return err
	}

	return runCheckCredentials(cmd.Context(), cmd.OutOrStdout(), opts, probe.New(), time.Now)
}

type prober interface {
	Probe(ctx context.Context, engine dbconfig.Engine, db dbconfig.FlatDatabase) probe.Result
}

func runCheckCredentials(ctx context.Context, out io.Writer, opts checkOptions, p prober, now func() time.Time) error {
	cfg, err := dbconfig.LoadFlat(opts.Config)
	if err != nil {
		log.WithError(err).Error("could not read configuration")
		return errFailed
	}

	checker := &probe.Checker{
		Prober:             p,
		SkipConnectionTest: opts.SkipConnectionTest,
		Out:                out,
		Style:              markStyle,
	}

	checker.WriteHeader()
	report := checker.Check(ctx, cfg)
	checker.WriteSummary(report)

	if report.Valid() {
		return nil
	}

	if opts.Fix {
		fmt.Fprintln(out, "\nGenerating fix script...")

		script := probe.FixScript(report.Errors, now())
		if err := dbconfig.WriteSecure(opts.FixFile, []byte(script)); err != nil {
			log.WithError(err).Error("could not write fix script")
			return errFailed
		}

		fmt.Fprintf(out, "Fix script written to: %v\n", opts.FixFile)
	}

	return errFailed
}

func init() {
	rootCmd.AddCommand(checkCredentialsCmd)

	checkCredentialsCmd.PersistentFlags().Bool("fix", false, "Write a script with suggested fixes for the problems found")
	checkCredentialsCmd.PersistentFlags().String("fix-file", probe.FixScriptName, "Where to write the fix script")
	checkCredentialsCmd.PersistentFlags().Bool("skip-connection-test", false, "Only check the configuration, do not connect to the databases")
}
