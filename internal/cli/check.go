package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/leadbridge/leadbridge/internal/config"
	"github.com/leadbridge/leadbridge/internal/store"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:     "check",
	Aliases: []string{"c", "doctor"},
	Short:   "Validate configuration and storage",
	Long: `Check that LeadBridge can start with the current configuration.

This command checks:
- Configuration validity
- Credential store availability
- OAuth state store availability
- Whether a CRM credential is stored
- The last export batch and config reload recorded in the store

Example:
  leadbridge check --config config.yaml`,
	RunE: runCheck,
}

func init() {
	RootCmd.AddCommand(checkCmd)
}

// Check statuses.
const (
	CheckOK      = "OK"
	CheckWarning = "WARNING"
	CheckFail    = "FAIL"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	results := runChecks(ctx, globalFlags.Config)
	if globalFlags.JSON {
		if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else if err := outputCheckResultsTable(cmd.OutOrStdout(), results); err != nil {
		return err
	}

	for _, r := range results {
		if r.Status == CheckFail {
			return fmt.Errorf("health check failed")
		}
	}
	return nil
}

// runChecks stops after the configuration check when the file cannot be
// loaded, since every other check depends on it.
func runChecks(ctx context.Context, configPath string) []CheckResult {
	cfg, result := checkConfig(configPath)
	results := []CheckResult{result}
	if cfg == nil {
		return results
	}

	results = append(results, checkStorage(cfg))
	results = append(results, checkStateStore(ctx, cfg))
	results = append(results, checkCredential(ctx, cfg))
	results = append(results, checkActivity(cfg))
	return results
}

func checkConfig(path string) (*config.Config, CheckResult) {
	result := CheckResult{Name: "Configuration", Status: CheckOK}

	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		result.Status = CheckFail
		result.Message = fmt.Sprintf("Failed to load configuration: %v", err)
		return nil, result
	}
	applyGlobalOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		result.Status = CheckFail
		result.Message = fmt.Sprintf("Configuration validation failed: %v", err)
		return nil, result
	}

	result.Message = fmt.Sprintf("Configuration valid (version: %s)", cfg.Version)
	result.Details = fmt.Sprintf("Server: %s:%d, CRM: %s", cfg.Server.Host, cfg.Server.HTTPPort, cfg.CRM.APIBaseURL)
	return cfg, result
}

func checkStorage(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "Credential store", Status: CheckOK}

	s, err := openCredentialStore(cfg.Storage)
	if err != nil {
		result.Status = CheckFail
		result.Message = err.Error()
		return result
	}
	defer s.Close()

	switch cfg.Storage.Driver {
	case "sqlite":
		result.Message = fmt.Sprintf("SQLite database opened at: %s", cfg.Storage.Path)
	default:
		result.Status = CheckWarning
		result.Message = "In-memory store: credentials are lost on restart and not shared with CLI commands"
	}
	result.Details = fmt.Sprintf("Credentials: %d", s.Stats().CredentialCount)
	return result
}

func checkStateStore(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: "OAuth state store", Status: CheckOK}

	s, err := openStateStore(ctx, cfg.OAuth)
	if err != nil {
		result.Status = CheckFail
		result.Message = err.Error()
		return result
	}
	defer s.Close()

	result.Message = fmt.Sprintf("Using %s state store", cfg.OAuth.StateStore)
	result.Details = fmt.Sprintf("enforce_state=%t, state_ttl=%s", cfg.OAuth.EnforceState, cfg.OAuth.StateTTL)
	return result
}

func checkCredential(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Name: "CRM credential", Status: CheckOK}

	a, err := newApp(ctx, cfg, newLogger(cfg, io.Discard))
	if err != nil {
		result.Status = CheckFail
		result.Message = err.Error()
		return result
	}
	defer a.Close()

	id := a.manager.DefaultAccountID()
	status := a.manager.AuthStatus(id)
	if !status.Authenticated {
		result.Status = CheckWarning
		result.Message = fmt.Sprintf("No credential stored for %s; run the consent flow", id)
		return result
	}

	expires := time.UnixMilli(status.ExpiresAt).UTC()
	result.Message = fmt.Sprintf("Authorized for location %s", dash(status.LocationID))
	if time.Now().After(expires) {
		result.Details = "Access token expired; it is refreshed on next use"
	} else {
		result.Details = fmt.Sprintf("Access token valid until %s", expires.Format(time.RFC3339))
	}
	return result
}

// checkActivity reports what the store remembers about recent work. It
// never fails: a fresh install simply has nothing recorded.
func checkActivity(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "Activity", Status: CheckOK}

	s, err := openCredentialStore(cfg.Storage)
	if err != nil {
		result.Status = CheckWarning
		result.Message = err.Error()
		return result
	}
	defer s.Close()

	if last, ok := store.ReadLastExport(s.Settings()); ok {
		result.Message = fmt.Sprintf("Last export %s for %s: %d leads, %d failed",
			last.At.Format(time.RFC3339), last.AccountID, last.Total, last.Failed)
		if last.Failed > 0 {
			result.Status = CheckWarning
		}
	} else {
		result.Message = "No export recorded yet"
	}
	if at, ok := store.ConfigReloadedAt(s.Settings()); ok {
		result.Details = "Config reloaded at " + at.Format(time.RFC3339)
	}
	return result
}

func outputCheckResultsTable(out io.Writer, results []CheckResult) error {
	w := newTable(out)
	fmt.Fprintln(w, "CHECK\tSTATUS\tMESSAGE\tDETAILS")

	allPassed := true
	for _, r := range results {
		statusIcon := "✓"
		if r.Status == CheckFail {
			statusIcon = "✗"
			allPassed = false
		} else if r.Status == CheckWarning {
			statusIcon = "!"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			r.Name,
			statusIcon+" "+r.Status,
			r.Message,
			dash(r.Details),
		)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	if allPassed {
		fmt.Fprintln(out, "✓ All checks passed!")
	} else {
		fmt.Fprintln(out, "✗ Some checks failed. Please review the output above.")
	}
	return nil
}
