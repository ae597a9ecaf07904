package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}
	cmd.AddCommand(
		tenantCreateCmd(),
		tenantListCmd(),
		tenantGetCmd(),
		tenantStopCmd(),
	)
	return cmd
}

func tenantCreateCmd() *cobra.Command {
	var createdBy string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a tenant and provision its database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			t, err := p.registry.Create(ctx, args[0], createdBy)
			if err != nil {
				return err
			}

			if err := p.provisioner.CreateTenantDatabase(ctx, t.ConnConfig(p.cfg.TenantDB.BaseURI)); err != nil {
				return fmt.Errorf("provision database for tenant %s: %w", t.ID, err)
			}
			if err := p.registry.MarkRunning(ctx, t.ID); err != nil {
				return err
			}

			fmt.Printf("Tenant %s created\n", t.ID)
			fmt.Printf("  Name:     %s\n", t.Name)
			fmt.Printf("  Database: %s\n", t.DBName)
			fmt.Printf("  User:     %s\n", t.DBUser)
			return nil
		},
	}

	cmd.Flags().StringVar(&createdBy, "created-by", "", "Creator identity recorded on the tenant")
	return cmd
}

func tenantListCmd() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			tenants, err := p.store.ListTenants(ctx, limit, offset)
			if err != nil {
				return err
			}
			if len(tenants) == 0 {
				fmt.Println("No tenants")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tDATABASE\tCREATED")
			for _, t := range tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.ID,
					truncate(t.Name, 30),
					t.Status,
					t.DBName,
					formatMillis(t.CreatedAt),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum tenants to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset into the tenant list")
	return cmd
}

func tenantGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one tenant as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			t, err := p.registry.Get(ctx, args[0])
			if err != nil {
				return err
			}
			// Credentials stay out of command output.
			t.DBPassword = ""

			out, err := json.MarshalIndent(t, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func tenantStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Mark a tenant as stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := newPlatform(ctx, nil)
			if err != nil {
				return err
			}
			defer p.close()

			if err := p.registry.MarkStopped(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Tenant %s stopped\n", args[0])
			return nil
		},
	}
}
