package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/paylink/internal/cli/output"
	"github.com/marmos91/paylink/pkg/apiclient"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and grant caller quotas",
}

func init() {
	quotaCmd.AddCommand(quotaGetCmd)
	quotaCmd.AddCommand(quotaGrantCmd)
}

var quotaGetCmd = &cobra.Command{
	Use:   "get <caller>",
	Short: "Show a caller's remaining quota",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuotaGet,
}

var quotaGrantCmd = &cobra.Command{
	Use:   "grant <caller> <amount>",
	Short: "Raise a caller's quota",
	Long: `Raise a caller's spendable quota by the given amount.

Examples:
  paylinkctl quota grant alice 50000`,
	Args: cobra.ExactArgs(2),
	RunE: runQuotaGrant,
}

func runQuotaGet(cmd *cobra.Command, args []string) error {
	quota, err := newClient().GetQuota(args[0])
	if err != nil {
		return fmt.Errorf("failed to get quota: %w", err)
	}

	return printQuota(quota)
}

func runQuotaGrant(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[1], err)
	}

	quota, err := newClient().GrantQuota(args[0], amount)
	if err != nil {
		return fmt.Errorf("failed to grant quota: %w", err)
	}

	return printQuota(quota)
}

func printQuota(quota *apiclient.Quota) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return output.Print(stdout, format, quota)
	}

	return output.SimpleTable(stdout, [][2]string{
		{"Caller", quota.Caller},
		{"Quota", strconv.FormatInt(quota.Quota, 10)},
	})
}
