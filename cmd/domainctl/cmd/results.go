package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirychukyurii/domain-search/pkg/api"
)

var resultsCmd = &cobra.Command{
	Use:   "results [job_id]",
	Short: "List the ranked results of a search job",
	Long:  `List the available domains found so far, best first. Results of a running job are partial.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		results, err := newClient().GetResults(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, results)
		}
		printResults(cmd, results.Results)
		return nil
	},
}

func printResults(cmd *cobra.Command, results []api.Result) {
	if len(results) == 0 {
		cmd.Println("No results yet.")
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tDOMAIN\tSCORE\tPRICE\tBATCH")
	for i, r := range results {
		score := "-"
		if r.Score != nil {
			score = fmt.Sprintf("%.1f", r.Score.Overall)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", i+1, r.Domain, score, formatPrice(r.Pricing), r.Batch)
	}
	w.Flush()
}

func init() {
	resultsCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(resultsCmd)
}
