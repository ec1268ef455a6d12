package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/leozw/ads-guardian/internal/db"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Inspect and register monitored tenants",
}

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenants the monitor will process",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		tenants, err := a.Tenants.ListActiveTenants(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tACCOUNT\tCONNECTION\tMONITORED\tLAST CHECKED")
		for _, t := range tenants {
			last := "never"
			if t.LastCheckedAt != nil {
				last = t.LastCheckedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", t.ID, t.Name, t.AccountID, t.ConnectionStatus, t.Monitorable(), last)
		}
		return w.Flush()
	},
}

var tenantsUpsertCmd = &cobra.Command{
	Use:   "upsert <id>",
	Short: "Create or update a tenant",
	Args:  cobra.ExactArgs(1),
	RunE:  upsertTenant,
}

func init() {
	f := tenantsUpsertCmd.Flags()
	f.String("name", "", "Display name")
	f.String("account-id", "", "Google Ads customer id")
	f.String("refresh-token", "", "OAuth refresh token for the account")
	f.String("connection-status", core.ConnectionConnected, "connected, disconnected or error")
	f.Bool("monitoring", true, "Enable monitoring")
	f.String("thresholds", "", `Threshold overrides as JSON, e.g. {"budget_cutoff_hour": 16}`)

	tenantsCmd.AddCommand(tenantsListCmd, tenantsUpsertCmd)
}

func upsertTenant(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()

	tenant, err := a.Tenants.GetTenant(ctx, args[0])
	switch {
	case errors.Is(err, db.ErrTenantNotFound):
		tenant = &core.Tenant{ID: args[0], IsActive: true}
	case err != nil:
		return err
	}

	f := cmd.Flags()
	if f.Changed("name") || tenant.Name == "" {
		tenant.Name, _ = f.GetString("name")
	}
	if f.Changed("account-id") {
		tenant.AccountID, _ = f.GetString("account-id")
	}
	if f.Changed("refresh-token") {
		tenant.RefreshToken, _ = f.GetString("refresh-token")
	}
	if f.Changed("connection-status") || tenant.ConnectionStatus == "" {
		tenant.ConnectionStatus, _ = f.GetString("connection-status")
	}
	if f.Changed("monitoring") || tenant.CreatedAt.IsZero() {
		tenant.MonitoringEnabled, _ = f.GetBool("monitoring")
	}
	if raw, _ := f.GetString("thresholds"); raw != "" {
		var thresholds core.Thresholds
		if err := json.Unmarshal([]byte(raw), &thresholds); err != nil {
			return fmt.Errorf("invalid thresholds: %w", err)
		}
		tenant.Thresholds = thresholds
	}

	switch tenant.ConnectionStatus {
	case core.ConnectionConnected, core.ConnectionDisconnected, core.ConnectionError:
	default:
		return fmt.Errorf("invalid connection status %q", tenant.ConnectionStatus)
	}

	if err := a.Tenants.UpsertTenant(ctx, tenant); err != nil {
		return err
	}
	fmt.Printf("Tenant %s saved (monitorable: %t)\n", tenant.ID, tenant.Monitorable())
	return nil
}
