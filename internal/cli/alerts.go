package cli

import (
	"github.com/spf13/cobra"
)

var sendDigestCmd = &cobra.Command{
	Use:   "send-digest",
	Short: "Flush the alert digest buffered in this process",
	Long: `Flushes the alert digest buffer. The buffer lives in process memory and is
filled by ingestion runs in the same process, so this is only meaningful
inside the running daemon; invoked standalone it reports an empty digest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SendDigest(cmd.Context())
	},
}

var testAlertCmd = &cobra.Command{
	Use:   "test-alert <rule-name>",
	Short: "Send a synthetic alert through the configured handlers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().TestAlert(cmd.Context(), args[0])
	},
}
