package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/entity-filter/internal/api/connectrpc"
	"github.com/spherical-ai/spherical/libs/entity-filter/internal/extraction"
)

func newExtractCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "extract <text>",
		Short: "Show the entity and attributes recognized in a text",
		Long: `Extract runs the rule dictionary over a text and prints the base entity,
the attributes and, for comparison queries, every entity mentioned.

Comparison mode is detected from the text unless --all is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			x, err := a.extract(cmd.Context(), text, all)
			if err != nil {
				return err
			}

			if a.outputJSON {
				return a.ui.JSON(x)
			}
			a.ui.Section("Extraction")
			a.ui.KeyValue("Tenant", a.tenant)
			a.ui.KeyValue("Text", text)
			a.ui.KeyValue("Base entity", orDash(x.BaseEntity))
			a.ui.KeyValue("Attributes", joinOrDash(x.Attributes))
			a.ui.KeyValue("Comparison", x.IsComparison)
			if x.IsComparison {
				a.ui.KeyValue("All entities", joinOrDash(x.AllEntities))
			}
			if !x.HasEntity() {
				a.ui.Warning("No base entity recognized; documents would not be filtered for this text")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "collect every entity mentioned (comparison mode)")
	return cmd
}

func (a *app) extract(ctx context.Context, text string, all bool) (extraction.EntityExtraction, error) {
	if a.remote != "" {
		res, err := a.remoteClient().Extract(ctx, &connectrpc.ExtractRequest{
			TenantID:   a.tenant,
			Text:       text,
			ExtractAll: all,
		})
		if err != nil {
			return extraction.EntityExtraction{}, err
		}
		return res.Extraction, nil
	}

	rt, err := a.runtime()
	if err != nil {
		return extraction.EntityExtraction{}, err
	}
	defer rt.Close()

	engine, err := a.engine(rt)
	if err != nil {
		return extraction.EntityExtraction{}, err
	}
	if all {
		return engine.Extract(ctx, text, true), nil
	}
	return engine.GetApplicableRules(ctx, text), nil
}
