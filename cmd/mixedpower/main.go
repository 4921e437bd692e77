package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mixedpower/internal"
	"mixedpower/internal/config"
	"mixedpower/internal/container"

	"github.com/spf13/cobra"
)

// env is what every subcommand needs after the root has loaded config
type env struct {
	cfg    *config.Config
	logger *internal.Logger
	deps   *container.Container
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var configPath, logLevel string

	rootCmd := &cobra.Command{
		Use:   "mixedpower",
		Short: "Power analysis for crossed mixed-effects designs by simulation",
		Long: `mixedpower estimates statistical power for designs with crossed random
subject and item effects. It generates a design, fits a linear mixed model,
simulates new responses from the fit, refits each one and counts how often
each coefficient's Wald test rejects.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			e.cfg = cfg
			e.logger = internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
			e.deps, err = container.New(cfg, e.logger)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML sweep file overriding environment settings")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "ERROR, WARN, INFO, DEBUG or TRACE (default from LOG_LEVEL)")

	rootCmd.AddCommand(
		newDesignCmd(e),
		newSimulateCmd(e),
		newSweepCmd(e),
		newPlotCmd(e),
		newRunsCmd(e),
		newMigrateCmd(e),
	)
	return rootCmd
}

// outPath resolves name against the configured output directory unless
// it is already absolute or explicitly relative
func (e *env) outPath(name string) string {
	if name == "" || filepath.IsAbs(name) || filepath.Dir(name) != "." {
		return name
	}
	return filepath.Join(e.cfg.Output.Dir, name)
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
