// Package commands implements the near command tree.
package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/internal/config"
)

type globalFlags struct {
	config  string
	verbose bool
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "near",
		Short: "Nearest-neighbor index tool",
		Long: `Load, query and benchmark nearest-neighbor indexes.

The index kind, vector space and record storage come from the configuration
file, a .env file and NEAR_* environment variables, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)

	root.PersistentFlags().StringVarP(&g.config, "config", "c", "", "path to a YAML configuration file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newBackendsCmd(g),
		newBenchCmd(g),
		newLoadCmd(g),
		newQueryCmd(g),
	)
	return root
}

// env is the state shared by commands that operate on the configured index.
type env struct {
	cfg     config.Config
	logger  *near.Logger
	backend *config.Backend
	index   near.Index
}

func (g *globalFlags) load() (config.Config, *near.Logger, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, cfg.Logger(g.verbose), nil
}

// open loads the configuration and opens the configured index over the
// configured backend.
func (g *globalFlags) open(ctx context.Context) (*env, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, err
	}

	b, err := config.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	idx, err := cfg.OpenIndex(ctx, b, logger, nil)
	if err != nil {
		b.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, backend: b, index: idx}, nil
}

func (e *env) Close() error {
	if err := e.index.Close(); err != nil {
		e.backend.Close()
		return err
	}
	return e.backend.Close()
}
