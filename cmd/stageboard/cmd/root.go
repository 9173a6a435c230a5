package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	logLevel    string
	logFormat   string
	storeDriver string
	storePath   string
	storeDSN    string
	actor       string

	// Version info - set via SetVersion()
	appVersion string
	appCommit  string
	appDate    string
)

var rootCmd = &cobra.Command{
	Use:   "stageboard",
	Short: "Workflow stage engine for project boards",
	Long: `stageboard manages org-owned workflows: ordered pipelines of stages that
tasks and subtasks move through. It keeps stage orders dense, guarantees a
single done stage, validates stage assignments, explains progress and
migrates projects between workflows.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints a failing command's error.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	rootCmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		return initConfig(c.Root().PersistentFlags())
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .stageboard.yaml or ~/.config/stageboard/.stageboard.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().StringVar(&storeDriver, "store-driver", "",
		"store driver (sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "",
		"SQLite database file")
	rootCmd.PersistentFlags().StringVar(&storeDSN, "store-dsn", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "",
		"identity recorded as created_by and in audit events")
}

// initConfig binds the persistent flags onto the global viper instance.
// Binding here rather than in init keeps the bindings alive across
// viper.Reset.
func initConfig(flags *pflag.FlagSet) error {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	// Errors are nil when the flag exists.
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("store.driver", flags.Lookup("store-driver"))
	_ = viper.BindPFlag("store.path", flags.Lookup("store-path"))
	_ = viper.BindPFlag("store.dsn", flags.Lookup("store-dsn"))
	return nil
}
