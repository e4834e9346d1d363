package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirychukyurii/domain-search/pkg/api"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job_id]",
	Short: "Stream live progress of a search job",
	Long:  `Stream live progress of a search job until it ends. Ctrl+C stops watching; the job keeps running.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchJob(cmd, newClient(), args[0])
	},
}

func watchJob(cmd *cobra.Command, client *Client, jobID string) error {
	// Trap Ctrl+C to stop watching gracefully
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var final string
	err := client.Watch(ctx, jobID, func(ev StreamEvent) error {
		if ev.Name == "status" {
			var s api.StatusResponse
			if err := json.Unmarshal(ev.Data, &s); err != nil {
				return fmt.Errorf("failed to parse status: %w", err)
			}
			cmd.Printf("%s job %s is %s (batches %d, results %d)\n",
				stateIcon(s.State), s.JobID, s.State, s.BatchesRun, s.ResultCount)
			if isTerminal(s.State) {
				final = s.State
			}
			return nil
		}

		var e api.Event
		if err := json.Unmarshal(ev.Data, &e); err != nil {
			return fmt.Errorf("failed to parse event: %w", err)
		}
		printEvent(cmd, e)
		if e.Type == "state_changed" && isTerminal(e.State) {
			final = e.State
			return errStopStream
		}
		return nil
	})
	if err != nil {
		return err
	}

	if final == "" {
		return nil
	}
	results, err := client.GetResults(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return err
	}
	cmd.Println()
	printResults(cmd, results.Results)
	return nil
}

func printEvent(cmd *cobra.Command, e api.Event) {
	switch e.Type {
	case "batch_completed":
		cmd.Printf("  %sbatch %d%s %s (results %d)\n", colorCyan, e.BatchesRun, colorReset, e.Message, e.ResultCount)
	case "followup_requested":
		cmd.Printf("%s follow-up requested: domainctl followup %s\n", stateIcon(e.State), e.JobID)
	case "cancel_requested":
		cmd.Printf("%s⊘ cancel requested%s\n", colorYellow, colorReset)
	default:
		line := fmt.Sprintf("%s → %s", stateIcon(e.State), colorizeState(e.State))
		if e.Message != "" {
			line += " " + colorDim + e.Message + colorReset
		}
		cmd.Println(line)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
