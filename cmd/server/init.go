package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prasenjit/mockforge/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Creates config.yaml with the default settings and the data directory
used by the file and badger storage backends.

If config.yaml already exists, it will not be overwritten unless --force is used.`,
	RunE: runInit,
}

var (
	initForce bool
	initPath  string
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing config file")
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "Path where to initialize (default: current directory)")
}

func runInit(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(initPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	configFile, err := writeDefaultConfig(absPath, initForce)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file: %s\n", configFile)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Initialization complete! You can now start the server with:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  cd %s\n", absPath)
	fmt.Fprintln(out, "  mockforge serve")
	return nil
}

// writeDefaultConfig creates dir/config.yaml and dir/data
func writeDefaultConfig(dir string, force bool) (string, error) {
	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); err == nil && !force {
		return "", fmt.Errorf("config.yaml already exists. Use --force to overwrite")
	}

	cfg := config.Default()
	if err := os.MkdirAll(filepath.Join(dir, cfg.Storage.Path), 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to generate config: %w", err)
	}

	header := `# MockForge configuration
# Any key can be overridden by environment, e.g. MOCKFORGE_SERVER_PORT=9090
# or MOCKFORGE_ASSISTANT_APIKEY for the openai provider.

`
	if err := os.WriteFile(configFile, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return configFile, nil
}
