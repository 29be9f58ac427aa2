// Package commands implements the paylinkctl command tree.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/paylink/internal/cli/output"
	"github.com/marmos91/paylink/pkg/apiclient"
)

// Build-time version info, set by main.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	serverURL    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "paylinkctl",
	Short: "Control a running paylink daemon",
	Long: `paylinkctl talks to the paylink daemon's control plane API.

It lists live channel sessions and inspects or grants caller quotas.

Examples:
  # List live sessions
  paylinkctl session list

  # Inspect a caller's quota
  paylinkctl quota get alice

  # Grant additional quota
  paylinkctl quota grant alice 50000`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "Control plane URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("paylinkctl %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

// newClient builds an API client from the global flags.
func newClient() *apiclient.Client {
	return apiclient.New(serverURL)
}

// printOutput prints data in the configured format. For table format it
// displays emptyMsg if data is empty, otherwise uses the tableRenderer.
func printOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// stdout is the default output target, split out for clarity at call sites.
var stdout io.Writer = os.Stdout
