package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var followupCmd = &cobra.Command{
	Use:   "followup [job_id]",
	Short: "Show the pending follow-up questions of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		followup, err := newClient().GetFollowup(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		cmd.Printf("%s?%s %sFollow-up requested%s\n", colorCyan, colorReset, colorBold, colorReset)
		if followup.Reason != "" {
			cmd.Printf("%s%s%s\n", colorDim, followup.Reason, colorReset)
		}
		for _, q := range followup.Questions {
			cmd.Printf("  [%s] %s\n", q.ID, q.Text)
		}
		cmd.Printf("\nAnswer with: domainctl resume %s --answer <id>=<text>\n", followup.JobID)
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [job_id]",
	Short: "Answer the follow-up questions and resume a job",
	Long: `Answer the pending follow-up questions and resume the search.

Example:
  domainctl resume <job-id> --answer vibe="calm, premium" --answer keywords=loaf,crumb`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetStringArray("answer")
		answers, err := parseAnswers(raw)
		if err != nil {
			return err
		}

		status, err := newClient().Resume(cmd.Context(), args[0], answers)
		if err != nil {
			return err
		}
		cmd.Printf("✓ Job %s resumed\n", status.JobID)
		return nil
	},
}

// parseAnswers turns id=text pairs into an answer map
func parseAnswers(raw []string) (map[string]string, error) {
	answers := make(map[string]string, len(raw))
	for _, item := range raw {
		id, text, ok := strings.Cut(item, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid answer %q, expected id=text", item)
		}
		answers[id] = strings.TrimSpace(text)
	}
	return answers, nil
}

func init() {
	resumeCmd.Flags().StringArray("answer", nil, "answer as id=text, repeatable")

	rootCmd.AddCommand(followupCmd)
	rootCmd.AddCommand(resumeCmd)
}
