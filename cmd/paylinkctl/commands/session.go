package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/paylink/pkg/apiclient"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect live channel sessions",
}

func init() {
	sessionCmd.AddCommand(sessionListCmd)
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	Long: `List all live channel sessions on the daemon.

Examples:
  # List sessions as table
  paylinkctl session list

  # List as JSON
  paylinkctl session list -o json`,
	RunE: runSessionList,
}

// SessionList is a list of sessions for table rendering.
type SessionList []apiclient.Session

// Headers implements TableRenderer.
func (sl SessionList) Headers() []string {
	return []string{"TOKEN", "CALLER", "HOST"}
}

// Rows implements TableRenderer.
func (sl SessionList) Rows() [][]string {
	rows := make([][]string, 0, len(sl))
	for _, s := range sl {
		rows = append(rows, []string{s.Token, s.CallerID, s.HostID})
	}
	return rows
}

func runSessionList(cmd *cobra.Command, args []string) error {
	sessions, err := newClient().ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	return printOutput(stdout, sessions, len(sessions) == 0, "No live sessions.", SessionList(sessions))
}
