package cli

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// EnvDBPath names the environment variable holding the SQLite path.
const EnvDBPath = "LEADBRIDGE_DB_PATH"

// GlobalFlags contains global flags available for all commands
type GlobalFlags struct {
	Config  string
	DBPath  string
	Verbose bool
	JSON    bool
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "leadbridge",
	Short: "LeadBridge - CRM credential manager and lead exporter",
	Long: `LeadBridge authorizes access to a CRM account over OAuth2, keeps the
access token fresh, pulls leads from the lead source and pushes them into
the CRM as contacts.

Usage:
  leadbridge [command] [flags]

Available Commands:
  serve      Start the LeadBridge HTTP server
  auth       Authorize, inspect or revoke the CRM credential
  leads      Fetch leads or export them to the CRM
  check      Validate configuration and storage
  version    Print version information

Flags:
  --config string   Path to configuration file (default "config.yaml")
  --db string       Path to SQLite database (selects the sqlite store)
  --verbose         Enable verbose output
  --json            Output in JSON format

Use "leadbridge [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// InitRoot initializes the root command with global flags
func InitRoot() {
	RootCmd.PersistentFlags().StringVar(&globalFlags.Config, "config", configPathDefault(), "Path to configuration file")
	RootCmd.PersistentFlags().StringVar(&globalFlags.DBPath, "db", os.Getenv(EnvDBPath), "Path to SQLite database (overrides storage.path and selects sqlite)")
	RootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	RootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format")

	RootCmd.AddCommand(versionCmd)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of LeadBridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion(cmd.OutOrStdout())
	},
}

var globalFlags GlobalFlags

// GetGlobalFlags returns the global flags
func GetGlobalFlags() GlobalFlags {
	return globalFlags
}

// Version is set at build time with -ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

func printVersion(w io.Writer) error {
	info := GetVersionInfo()
	if globalFlags.JSON {
		return writeJSON(w, info)
	}
	fmt.Fprintln(w, "LeadBridge Version:", info.Version)
	fmt.Fprintln(w, "Go Version:", info.GoVersion)
	fmt.Fprintln(w, "OS/Arch:", info.OS+"/"+info.Arch)
	fmt.Fprintln(w, "Build Date:", info.BuildDate)
	return nil
}

// VersionInfo contains version information
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	BuildDate string `json:"build_date"`
}

// GetVersionInfo returns version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		BuildDate: BuildDate,
	}
}
