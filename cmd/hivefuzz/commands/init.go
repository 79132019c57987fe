package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tpeyrard/hivefuzz/pkg/config"
)

var initForce bool

const sampleConfig = `# hivefuzz broker configuration

campaign:
  # Campaign directory: seed corpus, per-client logs, results.csv.
  workspace: workspace
  # Directory of candidate target executables (instrumented ELF builds).
  binaries: bin
  # Static-analysis defect report (JSON).
  report: report.json
  # Broking policy: FULL, NO_TRANSMIT or COVERAGE_ORDERED.
  mode: FULL
  # Assertion class clients enforce: CHECK_ALL or ALERT_ONLY.
  check_mode: CHECK_ALL
  # Fixed argument vector of the target program.
  argv: []
  # Extra command-line arguments per engine.
  # engine_args:
  #   TRITON: "--depth 500"
  journal:
    # Persist seeds-sent sets so a restart does not replay the whole
    # pool to reconnecting clients.
    enabled: true

logging:
  level: INFO
  format: text
  output: stdout

metrics:
  enabled: true

api:
  enabled: true
  port: 8080

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: http://localhost:4040
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Write a commented sample configuration file.

Examples:
  # Write to the default location
  hivefuzz init

  # Write to a custom path
  hivefuzz init --config ./hivefuzz.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Configuration written to %s\n", path)
	return nil
}
