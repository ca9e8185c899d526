package cli

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/leads"
	"github.com/leadbridge/leadbridge/internal/models"
	"github.com/spf13/cobra"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Fetch leads or export them to the CRM",
}

var leadsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Print the leads returned by the lead source",
	RunE:  runLeadsFetch,
}

var leadsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Create CRM contacts from a batch of leads",
	Long: `Create one CRM contact per lead, sequentially, and print the report.

The batch comes from --file (a JSON array, or an object with a "leads"
array; "-" reads stdin) or, with --fetch, from the lead source.

Examples:
  leadbridge leads export --file leads.json
  leadbridge leads export --fetch --location loc-123

The command exits non-zero when any lead failed.`,
	RunE: runLeadsExport,
}

var exportFlags struct {
	File     string
	Fetch    bool
	Location string
	Account  string
}

func init() {
	leadsExportCmd.Flags().StringVarP(&exportFlags.File, "file", "f", "", "JSON file with the leads (- for stdin)")
	leadsExportCmd.Flags().BoolVar(&exportFlags.Fetch, "fetch", false, "Pull the batch from the lead source")
	leadsExportCmd.Flags().StringVar(&exportFlags.Location, "location", "", "Target CRM location (defaults to the authorized one)")
	leadsExportCmd.Flags().StringVar(&exportFlags.Account, "account", "", "Account ID (defaults to crm.default_account_id)")

	leadsCmd.AddCommand(leadsFetchCmd, leadsExportCmd)
	RootCmd.AddCommand(leadsCmd)
}

func runLeadsFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setupApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	raw, err := a.leadSource.FetchLeads(ctx)
	if err != nil {
		return err
	}
	return writeRawJSON(cmd.OutOrStdout(), raw)
}

func runLeadsExport(cmd *cobra.Command, args []string) error {
	if exportFlags.File == "" && !exportFlags.Fetch {
		return fmt.Errorf("either --file or --fetch is required")
	}
	if exportFlags.File != "" && exportFlags.Fetch {
		return fmt.Errorf("--file and --fetch are mutually exclusive")
	}

	ctx := cmd.Context()
	a, err := setupApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	var raw []byte
	if exportFlags.Fetch {
		raw, err = a.leadSource.FetchLeads(ctx)
	} else {
		raw, err = readLeadsFile(cmd.InOrStdin(), exportFlags.File)
	}
	if err != nil {
		return err
	}

	batch, err := leads.DecodeBatch(unwrapLeads(raw))
	var empty *errors.ErrEmptyBatch
	if err != nil && !stderrors.As(err, &empty) {
		return err
	}

	report, err := a.orchestrator.ExportLeads(ctx, batch, exportFlags.Account, exportFlags.Location)
	if err != nil {
		return err
	}

	if globalFlags.JSON {
		err = writeJSON(cmd.OutOrStdout(), report)
	} else {
		err = printExportReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return err
	}
	if report.FailedCount > 0 {
		return fmt.Errorf("%d of %d leads failed", report.FailedCount, report.Total)
	}
	return nil
}

func readLeadsFile(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: path, Err: err}
	}
	return data, nil
}

// unwrapLeads returns the "leads" member of an object payload, or raw
// unchanged.
func unwrapLeads(raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return raw
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return raw
	}
	return envelope["leads"]
}

func printExportReport(w io.Writer, report *models.ExportReport) error {
	t := newTable(w)
	fmt.Fprintln(t, "#\tLEAD\tEMAIL\tSTATUS\tCONTACT/ERROR")
	for i, res := range report.Results {
		status, detail := "✓ created", res.ContactID
		if !res.Success {
			status, detail = "✗ failed", res.Error
		}
		fmt.Fprintf(t, "%d\t%s\t%s\t%s\t%s\n", i+1, dash(res.LeadID), dash(res.Email), status, dash(detail))
	}
	if err := t.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Total: %d, created: %d, failed: %d\n", report.Total, report.SuccessCount, report.FailedCount)
	return nil
}
