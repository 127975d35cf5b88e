// Package main provides the entity filter CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/api/connectrpc"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/bootstrap"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/config"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/filter"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/observability"
)

var version = "0.1.0"

// app carries global flags and what PersistentPreRunE builds from them.
type app struct {
	cfgFile    string
	outputJSON bool
	noColor    bool
	verbose    bool
	tenant     string
	remote     string

	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "entity-filter-cli",
		Short: "Entity filter CLI for extraction, filtering and dictionary administration",
		Long: `Entity filter CLI extracts product entities and attributes from text and
decides which retrieved passages match a query.

Use this tool to:
- Inspect what a query or passage is recognized as
- Filter a batch of passages against a query
- Import, migrate and reload the rule dictionary

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			if a.tenant == "" {
				a.tenant = cfg.Tenancy.DefaultTenant
			}

			level := "warn"
			if a.verbose {
				level = "debug"
			}
			a.logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      "console",
				Output:      cmd.ErrOrStderr(),
				ServiceName: "entity-filter-cli",
			})
			a.ui = NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr(), a.outputJSON, a.noColor)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.ui != nil {
				a.ui.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	flags.BoolVar(&a.outputJSON, "json", false, "output in JSON format")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	flags.StringVarP(&a.tenant, "tenant", "t", "", "tenant id (default: configured default tenant)")
	flags.StringVar(&a.remote, "remote", "", "base URL of a running entity filter API; extract and filter call it instead of loading rules locally")

	root.AddCommand(newExtractCmd(a))
	root.AddCommand(newFilterCmd(a))
	root.AddCommand(newRulesCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime opens the configured dictionary, cache and registry.
func (a *app) runtime() (*bootstrap.Runtime, error) {
	return bootstrap.New(a.cfg, a.logger)
}

// engine returns the selected tenant's engine from rt.
func (a *app) engine(rt *bootstrap.Runtime) (*filter.Engine, error) {
	return rt.Registry.Engine(a.tenant)
}

func (a *app) remoteClient() *connectrpc.Client {
	return connectrpc.NewClient(http.DefaultClient, a.remote)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.outputJSON {
				return a.ui.JSON(map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entity-filter-cli v%s\n", version)
			return nil
		},
	}
}
