// Package cli wires configuration, storage, and the pipeline into the
// aquamon command.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aquamon/aquamon/pkg/config"
	"github.com/aquamon/aquamon/pkg/infra/logger"
)

var (
	cliVersion   = "dev"
	cliBuildDate = "unknown"
	cliGitCommit = "unknown"
)

// SetVersion records the build metadata injected by the linker.
func SetVersion(version, buildDate, gitCommit string) {
	cliVersion = version
	cliBuildDate = buildDate
	cliGitCommit = gitCommit
}

type RootCommand struct {
	cmd *cobra.Command
	cfg *config.Config
}

func NewRootCommand() *RootCommand {
	root := &RootCommand{}

	cmd := &cobra.Command{
		Use:   "aquamon",
		Short: "Aquamon - water quality alerting",
		Long: `Aquamon ingests water quality sensor readings, evaluates them
against configurable thresholds, deduplicates the resulting alerts,
and dispatches notifications over email and push with real-time
fan-out to connected dashboards.`,
		PersistentPreRunE: root.persistentPreRunE,
	}

	pflags := cmd.PersistentFlags()
	pflags.String("config", "", "Config file path (default: ~/.aquamon/config.toml)")
	viper.BindPFlag("config", pflags.Lookup("config"))

	root.cmd = cmd
	root.cmd.AddCommand(NewVersionCommand())
	root.cmd.AddCommand(NewServeCommand(root))

	return root
}

func (r *RootCommand) persistentPreRunE(cmd *cobra.Command, args []string) error {
	cfgPath := viper.GetString("config")

	var err error
	r.cfg, err = config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var output io.Writer
	if r.cfg.Logging.File != "" {
		f, err := os.OpenFile(r.cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		output = f
	}

	logger.Init(logger.Config{
		Level:  r.cfg.Logging.Level,
		Format: r.cfg.Logging.Format,
		Output: output,
	})

	return nil
}

func Execute() {
	root := NewRootCommand()
	if err := root.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
