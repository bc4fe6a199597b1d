package cmd

import (
	"fmt"
	"os"

	"mca-revenue-engine/cmd/mcaengine/config"
	"mca-revenue-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	envFile  string
	verbose  bool
	settings *config.Settings
	version  = "dev"
	commit   = "unknown"
	date     = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcaengine",
	Short: "True-revenue analysis for merchant cash advance underwriting",
	Long: `mcaengine classifies extracted bank statement transactions, separates true
business revenue from transfers, loans and refunds, detects existing MCA
positions and NSF activity, and computes monthly revenue and MCA capacity.

Corrections made by underwriters are stored as learned patterns and applied
to every stored statement.

Examples:
  mcaengine analyze statement.json
  mcaengine analyze statement.csv --format json --output report.json
  mcaengine analyze statement.json --database patterns.db --store
  mcaengine correct --database patterns.db --transaction-id tx-42 \
    --field revenue_classification --old-value true_revenue --new-value transfer
  mcaengine patterns list --database patterns.db`,
	Version:           getVersionString(),
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file loaded before reading MCAENGINE_* variables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("database", "", "SQLite database holding learned patterns and stored statements")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag(config.KeyDatabase, rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag(config.KeyLogFormat, rootCmd.PersistentFlags().Lookup("log-format"))

	config.SetDefaults(viper.GetViper())
}

// initConfig reads in the env file, config file and ENV variables.
func initConfig() {
	if err := config.LoadDotEnv(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading env file: %s\n", err)
		os.Exit(1)
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)

		// If a config file is specified, read it in.
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	// Read environment variables that match
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()
}

// loadSettings resolves the engine settings and configures the global
// logger before any subcommand runs.
func loadSettings(cmd *cobra.Command, args []string) error {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(s.LoggerConfig(viper.GetBool("verbose")))
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)

	settings = s
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
