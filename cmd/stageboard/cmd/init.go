package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/stageboard/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize stageboard in the current directory",
	Long: `Initialize stageboard in the current directory.
Writes .stageboard.yaml with the default configuration and creates the
.stageboard directory that holds the SQLite database.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initForce bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
}

func runInit(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	configPath := filepath.Join(cwd, ".stageboard.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration already exists, use --force to overwrite")
	}

	if err := config.AtomicWrite(configPath, []byte(config.DefaultConfigYAML)); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cwd, ".stageboard"), 0o750); err != nil {
		return fmt.Errorf("creating directory .stageboard: %w", err)
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "Initialized stageboard in %s", cwd)
	fmt.Fprintln(out, "Configuration file: .stageboard.yaml")
	fmt.Fprintln(out, "Run 'stageboard workflow create --org <org> --name <name>' to add a workflow")
	return nil
}
