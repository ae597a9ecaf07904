package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skiffcloud/skiff/internal/manifest"
)

func functionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "function",
		Aliases: []string{"fn"},
		Short:   "Manage function definitions in the system store",
	}
	cmd.AddCommand(
		functionApplyCmd(),
		functionListCmd(),
		functionGetCmd(),
		functionDeleteCmd(),
		functionDeployedCmd(),
		functionExampleCmd(),
	)
	return cmd
}

func functionApplyCmd() *cobra.Command {
	var (
		tenantID string
		file     string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Save function definitions from a manifest file",
		RunE: func(cmd *cobra.Command, args []string) error {
			multi, err := manifest.ParseFile(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			for i := range multi.Functions {
				fn, err := multi.Functions[i].ToFunction(tenantID)
				if err != nil {
					return err
				}
				if err := p.store.SaveFunction(ctx, fn); err != nil {
					return err
				}
				fmt.Printf("Saved %s (%s)\n", fn.Name, fn.Hash)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Manifest file")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("file")
	return cmd
}

func functionListCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List function definitions for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			fns, err := p.store.FindByTenant(ctx, tenantID)
			if err != nil {
				return err
			}
			if len(fns) == 0 {
				fmt.Println("No functions")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tVERSION\tHASH\tUPDATED")
			for _, fn := range fns {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					fn.Name,
					fn.Status,
					fn.Version,
					truncate(fn.Hash, 12),
					formatMillis(fn.UpdatedAt),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func functionGetCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show one function definition as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			fn, err := p.store.FindByName(ctx, tenantID, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(fn, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func functionDeleteCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a function definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			if err := p.store.DeleteFunction(ctx, tenantID, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			fmt.Println("Run 'skiff publish' to remove it from the tenant store")
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func functionDeployedCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "deployed",
		Short: "List the functions currently live in the tenant store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			cfg, err := p.registry.Resolve(ctx, tenantID)
			if err != nil {
				return err
			}
			accessor, err := p.provisioner.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer accessor.Close()

			fns, err := accessor.ListFunctions(ctx)
			if err != nil {
				return err
			}
			if len(fns) == 0 {
				fmt.Println("No deployed functions")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tVERSION\tHASH\tUPDATED")
			for _, fn := range fns {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					fn.Name,
					fn.Status,
					fn.Version,
					truncate(fn.Hash, 12),
					formatMillis(fn.UpdatedAt),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func functionExampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Print an example function manifest",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(manifest.ExampleYAML())
		},
	}
}
