package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/leadbridge/leadbridge/internal/models"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize, inspect or revoke the CRM credential",
}

var authFlags struct {
	Account string
	All     bool
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the CRM consent URL",
	Long: `Print the URL that starts the CRM consent flow.

The callback must reach a process that can see the generated state: either
the running server with oauth.state_store set to redis, or a server with
oauth.enforce_state disabled.`,
	RunE: runAuthURL,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a CRM credential is stored",
	RunE:  runAuthStatus,
}

var authRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Forget the stored CRM credential",
	RunE:  runAuthRevoke,
}

func init() {
	authCmd.PersistentFlags().StringVar(&authFlags.Account, "account", "", "Account ID (defaults to crm.default_account_id)")
	authStatusCmd.Flags().BoolVar(&authFlags.All, "all", false, "List every stored account")
	authCmd.AddCommand(authURLCmd, authStatusCmd, authRevokeCmd)
	RootCmd.AddCommand(authCmd)
}

func runAuthURL(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setupApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.OAuth.EnforceState && a.cfg.OAuth.StateStore != "redis" {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: the state is kept in this process only; the server will reject the callback unless oauth.state_store is redis")
	}

	req, err := a.manager.BeginAuthorization(ctx, authFlags.Account)
	if err != nil {
		return err
	}
	if globalFlags.JSON {
		return writeJSON(cmd.OutOrStdout(), req)
	}
	fmt.Fprintln(cmd.OutOrStdout(), req.AuthURL)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd.Context(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if authFlags.All {
		accounts := a.manager.Accounts()
		if globalFlags.JSON {
			return writeJSON(cmd.OutOrStdout(), accounts)
		}
		return printAccounts(cmd.OutOrStdout(), accounts)
	}

	id := a.manager.ResolveAccount(authFlags.Account)
	out := models.AccountStatus{AccountID: id, AuthStatus: a.manager.AuthStatus(id)}
	if globalFlags.JSON {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	return printAuthStatus(cmd.OutOrStdout(), out)
}

func printAuthStatus(w io.Writer, out models.AccountStatus) error {
	t := newTable(w)
	fmt.Fprintf(t, "ACCOUNT\t%s\n", out.AccountID)
	fmt.Fprintf(t, "AUTHENTICATED\t%t\n", out.Authenticated)
	if out.Authenticated {
		fmt.Fprintf(t, "LOCATION\t%s\n", dash(out.LocationID))
		fmt.Fprintf(t, "COMPANY\t%s\n", dash(out.CompanyID))
		fmt.Fprintf(t, "EXPIRES\t%s\n", formatExpiry(out.ExpiresAt))
	}
	return t.Flush()
}

func printAccounts(w io.Writer, accounts []models.AccountStatus) error {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No credentials stored")
		return nil
	}
	t := newTable(w)
	fmt.Fprintln(t, "ACCOUNT\tAUTHENTICATED\tLOCATION\tEXPIRES")
	for _, acc := range accounts {
		fmt.Fprintf(t, "%s\t%t\t%s\t%s\n", acc.AccountID, acc.Authenticated, dash(acc.LocationID), formatExpiry(acc.ExpiresAt))
	}
	return t.Flush()
}

func formatExpiry(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func runAuthRevoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setupApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	id := a.manager.ResolveAccount(authFlags.Account)
	removed, err := a.manager.Revoke(ctx, id)
	if err != nil {
		return err
	}
	if globalFlags.JSON {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"accountId": id, "revoked": removed})
	}
	if removed {
		fmt.Fprintf(cmd.OutOrStdout(), "Credential for %s revoked\n", id)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "No credential stored for %s\n", id)
	}
	return nil
}
