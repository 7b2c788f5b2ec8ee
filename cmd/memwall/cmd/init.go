package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
	"github.com/hugo-lorenzo-mato/memwall/internal/fsutil"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file.

By default .memwall.yaml is created in the current directory. With --user
the file goes to ~/.config/memwall/config.yaml instead.`,
	RunE: runInit,
}

var (
	initForce bool
	initUser  bool
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
	initCmd.Flags().BoolVar(&initUser, "user", false, "Write the user-level config instead")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path, err := initTarget()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("configuration already exists at %s, use --force to overwrite", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := fsutil.AtomicWriteFile(path, []byte(config.DefaultConfigYAML), 0o644); err != nil { //nolint:gosec // Config file needs to be readable
		return fmt.Errorf("writing config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration file:", path)
	fmt.Fprintln(out, "Run 'memwall doctor' to verify setup")
	return nil
}

func initTarget() (string, error) {
	if initUser {
		dir, err := config.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("locating user config dir: %w", err)
		}
		return filepath.Join(dir, "config.yaml"), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return filepath.Join(cwd, ".memwall.yaml"), nil
}
