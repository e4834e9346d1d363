package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kirychukyurii/domain-search/pkg/api"
)

var searchCmd = &cobra.Command{
	Use:   "search [business name]",
	Short: "Start a domain search job",
	Long: `Start a domain search job for a business. The job runs in the background
until it collects --target available names or runs --max-batches batches.

Example:
  domainctl search "Sunrise Bakery" --tld com --tld co --target 10
  domainctl search "Sunrise Bakery" --tld com --vibe "warm, rustic" --keyword bread --watch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		tlds, _ := flags.GetStringSlice("tld")
		target, _ := flags.GetInt("target")
		maxBatches, _ := flags.GetInt("max-batches")
		vibe, _ := flags.GetString("vibe")
		keywords, _ := flags.GetStringSlice("keyword")
		constraints, _ := flags.GetStringArray("constraint")
		backend, _ := flags.GetString("backend")
		notify, _ := flags.GetString("notify")
		watch, _ := flags.GetBool("watch")

		client := newClient()
		result, err := client.CreateJob(cmd.Context(), api.CreateJobRequest{
			BusinessName:  args[0],
			Vibe:          vibe,
			Keywords:      keywords,
			Constraints:   constraints,
			TLDs:          tlds,
			TargetResults: target,
			MaxBatches:    maxBatches,
			Backend:       backend,
			NotifyEmail:   notify,
		})
		if err != nil {
			return err
		}

		cmd.Printf("✓ Search started!\nID: %s\n", result.JobID)
		if !watch {
			cmd.Printf("%sFollow it with: domainctl watch %s%s\n", colorDim, result.JobID, colorReset)
			return nil
		}
		return watchJob(cmd, client, result.JobID)
	},
}

func init() {
	flags := searchCmd.Flags()
	flags.StringSlice("tld", []string{"com"}, "TLDs to search, repeatable or comma separated")
	flags.Int("target", 10, "number of available domains to collect")
	flags.Int("max-batches", 5, "maximum number of generation batches")
	flags.String("vibe", "", "tone of the names, e.g. \"playful, modern\"")
	flags.StringSlice("keyword", nil, "keywords to draw from, repeatable")
	flags.StringArray("constraint", nil, "free-form constraint, repeatable")
	flags.String("backend", "", "AI backend (default: the service default)")
	flags.String("notify", "", "email notified when the search ends")
	flags.Bool("watch", false, "stream progress until the job ends")

	rootCmd.AddCommand(searchCmd)
}
