package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "domainctl",
	Short: "domainctl is a command line tool for the domain search service",
	Long: `domainctl talks to the domain search service, which runs AI-assisted
domain name discovery jobs: names are generated in batches, scored by a swarm
of evaluators, checked for availability over RDAP and priced.

Common workflows:

  Start a search and follow it live:
    domainctl search "Sunrise Bakery" --tld com --tld co --target 10 --watch

  Check on a job:
    domainctl status <job-id>
    domainctl results <job-id>

  Answer a follow-up round:
    domainctl followup <job-id>
    domainctl resume <job-id> --answer vibe="warm, rustic" --answer keywords=bread,oven

  Check domains directly, without the service:
    domainctl check sunrisebakery.com sunrise.co
    domainctl check domains.txt --json

Configuration:
  Flags, $HOME/.domainctl.yaml or environment variables:
    DOMAINCTL_URL        service endpoint (default: http://localhost:8080)
    DOMAINCTL_RDAP_URL   RDAP base URL used by check
    DOMAINCTL_PRICING_URL  pricing endpoint used by check`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	rootCmd.SetOut(os.Stdout)
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".domainctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".domainctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "DOMAINCTL_VARNAME"
	viper.SetEnvPrefix("DOMAINCTL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.domainctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:8080", "domain search service URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}

func newClient() *Client {
	return NewClient(viper.GetString("url"))
}
