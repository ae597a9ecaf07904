package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skiffcloud/skiff/internal/domain"
	"github.com/skiffcloud/skiff/internal/manifest"
	"github.com/skiffcloud/skiff/internal/store"
)

func publishCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a tenant's functions to its database",
		Long:  "Compiles every function definition for the tenant and replaces the tenant store's function set with the result in one transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			result, err := p.engine.Publish(ctx, tenantID)
			if err != nil {
				return err
			}

			fmt.Printf("Published %d functions to tenant %s\n", result.Published, result.TenantID)
			for _, sk := range result.Skipped {
				fmt.Printf("  skipped %s: %s\n", sk.Name, sk.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func deployCmd() *cobra.Command {
	var (
		tenantID string
		file     string
		publish  bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy function definitions from a manifest to the system store",
		Long:  "Applies the whole manifest as one batch: every function lands or none do. Use --publish to push the result to the tenant store in the same run",
		RunE: func(cmd *cobra.Command, args []string) error {
			multi, err := manifest.ParseFile(file)
			if err != nil {
				return err
			}

			batch := make([]*domain.Function, 0, len(multi.Functions))
			for i := range multi.Functions {
				fn, err := multi.Functions[i].ToFunction(tenantID)
				if err != nil {
					return err
				}
				batch = append(batch, fn)
			}

			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			results, err := p.engine.Deploy(ctx, tenantID, batch)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tACTION\tDETAIL")
			for _, r := range results {
				detail := r.ID
				if r.Action == store.ActionUpdated {
					detail = fmt.Sprintf("matched %d", r.Matched)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Action, detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if publish {
				result, err := p.engine.Publish(ctx, tenantID)
				if err != nil {
					return err
				}
				fmt.Printf("Published %d functions to tenant %s\n", result.Published, result.TenantID)
				for _, sk := range result.Skipped {
					fmt.Printf("  skipped %s: %s\n", sk.Name, sk.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Manifest file")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish to the tenant store after deploying")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("file")
	return cmd
}
