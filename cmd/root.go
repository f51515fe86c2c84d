package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/awsdbmon/cli/logging"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	logCloser io.Closer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "awsdbmon",
	Short: "Discover AWS databases and prepare their credentials for monitoring",
	Long: `awsdbmon finds RDS instances and Aurora clusters, writes them to an
enhanced configuration that refers to credentials in Secrets Manager, SSM
Parameter Store or the environment, resolves those references into a flat
configuration for the monitoring agent, and checks that the resolved
credentials can connect and have the permissions monitoring needs.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// exitError ends the process with code. The command has already reported
// the problem so nothing else is printed.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// errFailed is returned by commands whose check found problems
var errFailed = exitError{code: 1}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())

	if logCloser != nil {
		_ = logCloser.Close()
	}

	if err == nil {
		return
	}

	var exit exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}

	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func init() {
	cobra.OnInitialize(initConfig)

	// General config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file for command line options (default is none)")
	rootCmd.PersistentFlags().String("log", "info", "Set the log level. Valid values: panic, fatal, error, warn, info, debug, trace")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format. Valid values: text, json")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this file, rotated by size")
	rootCmd.PersistentFlags().Int("log-max-size", 10, "Maximum size in megabytes of the log file before it is rotated")
	rootCmd.PersistentFlags().Int("log-max-backups", 3, "Maximum number of rotated log files to keep")
	rootCmd.PersistentFlags().Int("log-max-age", 28, "Maximum number of days to keep rotated log files")

	// Run this before we do anything to set up the loglevel
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Bind these to viper
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("could not bind flags: %w", err)
		}

		closer, err := logging.Configure(log.StandardLogger(), logging.Options{
			Level:      viper.GetString("log"),
			Format:     viper.GetString("log-format"),
			File:       viper.GetString("log-file"),
			MaxSizeMB:  viper.GetInt("log-max-size"),
			MaxBackups: viper.GetInt("log-max-backups"),
			MaxAgeDays: viper.GetInt("log-max-age"),
		})
		if err != nil {
			return err
		}
		logCloser = closer

		return nil
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A .env file is optional, it is only used to provide variables locally
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("could not load .env file")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("could not read config file")
		}
	}

	replacer := strings.NewReplacer("-", "_")

	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv() // read in environment variables that match
}
