package cmd

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get the status of a search job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().GetStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printStatus(cmd, *status)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a search job",
	Long: `Request cancellation of a search job. A batch in flight is abandoned and
the job ends in the cancelled state; results found so far are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("✓ Cancel requested for %s\n", status.JobID)
		printStatus(cmd, *status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
}
