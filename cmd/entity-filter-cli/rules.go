package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/bootstrap"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/filter"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/rules"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/storage"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and maintain the rule dictionary",
	}
	cmd.AddCommand(newRulesStatsCmd(a))
	cmd.AddCommand(newRulesImportCmd(a))
	cmd.AddCommand(newRulesMigrateCmd(a))
	cmd.AddCommand(newRulesReloadCmd(a))
	return cmd
}

func newRulesStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Load the dictionary and report what was compiled",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			engine, err := a.engine(rt)
			if err != nil {
				return err
			}

			sp := a.ui.Spinner("Compiling dictionary...")
			sp.Start()
			engine.EnsureLoaded(cmd.Context())
			sp.Stop()

			printStats(a, engine.Stats())
			return nil
		},
	}
}

func printStats(a *app, stats filter.EngineStats) {
	if a.outputJSON {
		_ = a.ui.JSON(stats)
		return
	}

	a.ui.Section("Dictionary")
	a.ui.KeyValue("Tenant", stats.Name)
	a.ui.KeyValue("Source", stats.Source)
	if stats.Rules == nil {
		a.ui.Warning("Dictionary not loaded")
		return
	}
	a.ui.KeyValue("Version", stats.Rules.Version)
	a.ui.KeyValue("Entities", stats.Rules.Entities)
	a.ui.KeyValue("Attributes", stats.Rules.Attributes)
	a.ui.KeyValue("Prefilter", stats.Rules.Prefilter)
	a.ui.KeyValue("Compile time", FormatDuration(stats.Rules.Duration))

	if stats.Rules.Entities+stats.Rules.Attributes == 0 {
		a.ui.Warning("Dictionary is empty; every document will pass")
	}
	if len(stats.Rules.Skipped) > 0 {
		a.ui.Section("Skipped entries")
		rows := make([][]string, 0, len(stats.Rules.Skipped))
		for _, s := range stats.Rules.Skipped {
			rows = append(rows, []string{s.Name, string(s.Kind), s.Reason})
		}
		a.ui.Table([]string{"Name", "Kind", "Reason"}, rows)
	}
}

// importSummary is the JSON output of rules import.
type importSummary struct {
	Tenant  string `json:"tenant"`
	Rows    int    `json:"rows"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Deleted int64  `json:"deleted"`
	DryRun  bool   `json:"dryRun"`
}

func newRulesImportCmd(a *app) *cobra.Command {
	var (
		csvPath string
		replace bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import dictionary rows from a CSV file into the SQL table",
		Long: `Import reads a CSV with entity and attribute_type columns and upserts every
row into the configured SQL dictionary table for the selected tenant.
Use --replace to delete the tenant's existing rows first and --dry-run to
validate the file without writing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(csvPath)
			if err != nil {
				return fmt.Errorf("open csv: %w", err)
			}
			defer f.Close()

			rows, err := rules.ParseCSV(f)
			if err != nil {
				return err
			}

			summary := importSummary{Tenant: a.tenant, Rows: len(rows), DryRun: dryRun}
			if dryRun {
				a.ui.Info("%d rows parsed from %s", len(rows), csvPath)
				if a.outputJSON {
					return a.ui.JSON(summary)
				}
				return nil
			}

			rt, err := a.databaseRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if replace {
				n, err := rt.Repo.DeleteByTenant(ctx, a.tenant)
				if err != nil {
					return err
				}
				summary.Deleted = n
			}

			bar := a.ui.ImportBar(len(rows), "Importing")
			for _, row := range rows {
				created, err := rt.Repo.Upsert(ctx, &storage.EntityRule{
					TenantID:      a.tenant,
					Entity:        row.Entity,
					AttributeType: row.AttributeType,
				})
				if err != nil {
					return fmt.Errorf("import %q: %w", row.Entity, err)
				}
				if created {
					summary.Created++
				} else {
					summary.Updated++
				}
				_ = bar.Add(1)
			}
			_ = bar.Finish()

			// Running API instances pick up the new rows through the reload channel.
			engine, err := a.engine(rt)
			if err != nil {
				return err
			}
			engine.ClearCache(ctx)

			a.logger.Info().
				Str("tenant_id", a.tenant).
				Int("created", summary.Created).
				Int("updated", summary.Updated).
				Msg("Imported dictionary rows")

			if a.outputJSON {
				return a.ui.JSON(summary)
			}
			a.ui.Success("Imported %d rows for tenant %s (%d created, %d updated)",
				summary.Rows, a.tenant, summary.Created, summary.Updated)
			if replace {
				a.ui.Info("Removed %d previous rows", summary.Deleted)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file with entity,attribute_type columns")
	cmd.Flags().BoolVar(&replace, "replace", false, "delete the tenant's existing rows first")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate without writing")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func newRulesMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the SQL dictionary table",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.databaseRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			start := time.Now()
			if err := storage.Migrate(cmd.Context(), rt.DB, a.cfg.Dictionary.Table); err != nil {
				return err
			}

			if a.outputJSON {
				return a.ui.JSON(map[string]string{
					"driver": a.cfg.Dictionary.Driver,
					"table":  a.cfg.Dictionary.Table,
					"status": "migrated",
				})
			}
			a.ui.Success("Table %s ready on %s (%s)", a.cfg.Dictionary.Table, a.cfg.Dictionary.Driver,
				FormatDuration(time.Since(start)))
			return nil
		},
	}
}

func newRulesReloadCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask running instances to rebuild their compiled rules",
		Long: `Reload publishes a reload notice on the configured channel. API instances
sharing the cache backend drop their compiled rules and rebuild them on next
use. With --all every tenant is reloaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.PubSub == nil {
				a.ui.Warning("Cache is disabled; no instance can be notified")
			}

			if all {
				if rt.PubSub != nil {
					notice := filter.ReloadNotice{Tenant: filter.AllTenants, Origin: rt.Registry.ID(), At: time.Now().UTC()}
					if err := rt.PubSub.Publish(ctx, rt.Config.Cache.ReloadChannel, notice); err != nil {
						return fmt.Errorf("publish reload: %w", err)
					}
				}
				if a.outputJSON {
					return a.ui.JSON(map[string]string{"tenant": filter.AllTenants, "status": "published"})
				}
				a.ui.Success("Reload published for all tenants")
				return nil
			}

			engine, err := a.engine(rt)
			if err != nil {
				return err
			}
			engine.ClearCache(ctx)
			engine.EnsureLoaded(ctx)

			if !a.outputJSON {
				a.ui.Success("Reload published for tenant %s", a.tenant)
			}
			printStats(a, engine.Stats())
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "reload every tenant")
	return cmd
}

// databaseRuntime opens the runtime and requires a SQL dictionary.
func (a *app) databaseRuntime() (*bootstrap.Runtime, error) {
	if !a.cfg.UsesDatabase() {
		return nil, errors.New("a sqlite or postgres dictionary is required (set dictionary.driver or DATABASE_URL)")
	}
	return a.runtime()
}
