package cmd

import (
	"errors"
	"time"

	"github.com/habedi/wanderlist/auth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// statusCmd shows the saved session without contacting the API.
func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Field", "Value"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)       // Align all columns to the left
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT) // Align headers to the left
			table.SetAutoWrapText(false)
			table.SetRowLine(false)
			table.AppendBulk(sessionRows(a, time.Now()))
			table.Render()
			return nil
		},
	}
}

func sessionRows(a *app, now time.Time) [][]string {
	state := a.client.AuthState()
	rows := [][]string{
		{"State", state.String()},
		{"API", a.cfg.BaseURL},
		{"Storage", a.cfg.Storage},
	}
	token := a.store.Get()
	if token == nil {
		return rows
	}

	rows = append(rows, []string{"Token", token.Prefix()})
	expiry := token.Expiry
	claims, err := auth.Inspect(token.AccessToken)
	switch {
	case errors.Is(err, auth.ErrOpaqueToken):
		rows = append(rows, []string{"Subject", "(opaque token)"})
	case err == nil:
		rows = append(rows, []string{"Subject", claims.Subject}, []string{"Issuer", claims.Issuer})
		if expiry.IsZero() {
			expiry = claims.ExpiresAt
		}
	}
	rows = append(rows, []string{"Expires", describeExpiry(expiry, now)})
	if token.RefreshToken != "" {
		rows = append(rows, []string{"Refresh", "available"})
	} else {
		rows = append(rows, []string{"Refresh", "none"})
	}
	return rows
}

func describeExpiry(expiry, now time.Time) string {
	switch {
	case expiry.IsZero():
		return "unknown"
	case !expiry.After(now):
		return expiry.Local().Format(time.RFC3339) + " (expired, will refresh on next request)"
	default:
		return expiry.Local().Format(time.RFC3339) + " (in " + expiry.Sub(now).Round(time.Second).String() + ")"
	}
}
