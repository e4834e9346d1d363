package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kirychukyurii/domain-search/internal/checker"
	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/logger"
	"github.com/kirychukyurii/domain-search/internal/model"
	"github.com/kirychukyurii/domain-search/internal/pricing"
	"github.com/kirychukyurii/domain-search/pkg/api"
)

// Check statuses as printed by the check command
const (
	statusAvailable  = "AVAILABLE"
	statusRegistered = "REGISTERED"
	statusUnknown    = "UNKNOWN"
)

var categoryOrder = []struct {
	name   string
	symbol string
}{
	{model.PriceCategoryBundled, "📦"},
	{model.PriceCategoryRecommended, "✅"},
	{model.PriceCategoryStandard, "🔹"},
	{model.PriceCategoryPremium, "💎"},
}

// checkResult is one line of check output
type checkResult struct {
	Domain     string       `json:"domain"`
	Status     string       `json:"status"`
	Registrar  string       `json:"registrar,omitempty"`
	Expiration string       `json:"expiration,omitempty"`
	Creation   string       `json:"creation,omitempty"`
	Error      string       `json:"error,omitempty"`
	Pricing    *api.Pricing `json:"pricing,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check [domain or file]...",
	Short: "Check domain availability and pricing directly",
	Long: `Check domain availability over RDAP, with registration pricing for
available names. Arguments are domain names or files with one domain per line;
lines starting with # are ignored. The service is not involved.

Example:
  domainctl check sunrisebakery.com sunrise.co
  domainctl check candidates.txt --no-pricing --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		noPricing, _ := flags.GetBool("no-pricing")
		asJSON, _ := flags.GetBool("json")
		quiet, _ := flags.GetBool("quiet")
		concurrency, _ := flags.GetInt("concurrency")

		domains, err := collectDomains(args)
		if err != nil {
			return err
		}
		if len(domains) == 0 {
			return fmt.Errorf("no domains to check")
		}

		ctx := cmd.Context()
		stderr := cmd.ErrOrStderr()
		if !quiet {
			fmt.Fprintf(stderr, "Checking %d domain(s)...\n", len(domains))
		}

		rdap := checker.NewRDAP(checker.Options{
			BaseURL:     viper.GetString("rdap_url"),
			MaxAttempts: 3,
			BaseBackoff: 500 * time.Millisecond,
		}, checker.NewLimiter(concurrency, float64(concurrency), concurrency), logger.Discard())

		results := make([]checkResult, 0, len(domains))
		for _, r := range rdap.CheckAll(ctx, domains) {
			results = append(results, toCheckResult(r))
		}

		if !noPricing {
			table, err := loadPricing(ctx, viper.GetString("pricing_url"))
			if err != nil {
				fmt.Fprintf(stderr, "Warning: could not fetch pricing: %v\n", err)
			} else {
				attachPricing(results, table)
			}
		}

		if asJSON {
			return printJSON(cmd, results)
		}
		printCheckSummary(cmd, results, !noPricing)
		return nil
	},
}

// collectDomains expands file arguments into their domains
func collectDomains(args []string) ([]string, error) {
	var domains []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = model.NormalizeDomain(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		domains = append(domains, name)
	}

	for _, item := range args {
		info, err := os.Stat(item)
		if err != nil || !info.Mode().IsRegular() {
			add(item)
			continue
		}

		f, err := os.Open(item)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", item, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			add(line)
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", item, err)
		}
	}
	return domains, nil
}

func toCheckResult(r checker.Result) checkResult {
	out := checkResult{Domain: r.Name}
	switch r.Availability {
	case model.AvailabilityAvailable:
		out.Status = statusAvailable
	case model.AvailabilityTaken:
		out.Status = statusRegistered
	default:
		out.Status = statusUnknown
	}
	if r.Detail != nil {
		out.Registrar = r.Detail.Registrar
		out.Expiration = r.Detail.Expiration
		out.Creation = r.Detail.Created
		out.Error = r.Detail.Error
	}
	return out
}

func loadPricing(ctx context.Context, url string) (*pricing.Table, error) {
	defaults := config.Default().Pricing
	table := pricing.NewTable(0, defaults.Currency, model.PriceThresholds{
		BundledMaxCents:       defaults.BundledMaxCents,
		RecommendedMaxCents:   defaults.RecommendedMaxCents,
		PremiumFlagAboveCents: defaults.PremiumFlagAboveCents,
	})

	prices, err := pricing.NewHTTPSource(url, defaults.Timeout).FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	table.Replace(prices)
	return table, nil
}

func attachPricing(results []checkResult, table pricing.Lookup) {
	for i := range results {
		if results[i].Status != statusAvailable {
			continue
		}
		price, ok := priceByLongestSuffix(table, results[i].Domain)
		if !ok {
			continue
		}
		results[i].Pricing = &api.Pricing{
			PriceCents:    price.Cents,
			PriceDollars:  price.Dollars(),
			RenewalCents:  price.RenewalCents,
			Currency:      price.Currency,
			Category:      price.Category,
			IsBundled:     price.Category == model.PriceCategoryBundled,
			IsRecommended: price.Category == model.PriceCategoryRecommended,
			IsPremium:     price.Category == model.PriceCategoryPremium,
		}
	}
}

func priceByLongestSuffix(table pricing.Lookup, domain string) (*model.Price, bool) {
	for _, tld := range model.TLDSuffixes(domain) {
		if price, ok := table.FetchPrice(tld); ok {
			return price, true
		}
	}
	return nil, false
}

func printCheckSummary(cmd *cobra.Command, results []checkResult, withPricing bool) {
	groups := map[string][]checkResult{}
	for _, r := range results {
		groups[r.Status] = append(groups[r.Status], r)
	}

	cmd.Println()
	cmd.Println(strings.Repeat("=", 60))
	cmd.Println("DOMAIN CHECK RESULTS")
	cmd.Println(strings.Repeat("=", 60))

	if available := groups[statusAvailable]; len(available) > 0 {
		cmd.Printf("\n🟢 AVAILABLE (%d):\n", len(available))
		counts := map[string]int{}
		for _, r := range available {
			cmd.Printf("  %s\n", formatCheckResult(r))
			if r.Pricing != nil {
				counts[r.Pricing.Category]++
			}
		}

		if withPricing && len(counts) > 0 {
			cmd.Println("\n    Pricing Summary:")
			for _, c := range categoryOrder {
				if counts[c.name] > 0 {
					cmd.Printf("      %s %s: %d domains\n", c.symbol, strings.ToUpper(c.name[:1])+c.name[1:], counts[c.name])
				}
			}
		}
	}

	if registered := groups[statusRegistered]; len(registered) > 0 {
		cmd.Printf("\n🔴 REGISTERED (%d):\n", len(registered))
		for _, r := range registered {
			cmd.Printf("  %s\n", formatCheckResult(r))
		}
	}

	if unknown := groups[statusUnknown]; len(unknown) > 0 {
		cmd.Printf("\n🟡 UNKNOWN (%d):\n", len(unknown))
		for _, r := range unknown {
			cmd.Printf("  %s\n", formatCheckResult(r))
		}
	}

	cmd.Println()
}

func formatCheckResult(r checkResult) string {
	var b strings.Builder
	switch r.Status {
	case statusAvailable:
		fmt.Fprintf(&b, "%s%s: ✓ AVAILABLE%s", colorGreen, r.Domain, colorReset)
		if r.Pricing != nil {
			fmt.Fprintf(&b, " $%.2f (%s)", r.Pricing.PriceDollars, r.Pricing.Category)
		}
	case statusRegistered:
		fmt.Fprintf(&b, "%s%s: ✗ REGISTERED%s", colorRed, r.Domain, colorReset)
		var details []string
		if r.Registrar != "" {
			details = append(details, "Registrar: "+r.Registrar)
		}
		if r.Expiration != "" {
			details = append(details, "Expires: "+r.Expiration)
		}
		if len(details) > 0 {
			b.WriteString("\n    " + strings.Join(details, " | "))
		}
	default:
		fmt.Fprintf(&b, "%s%s: ? UNKNOWN%s", colorYellow, r.Domain, colorReset)
		if r.Error != "" {
			b.WriteString("\n    Error: " + r.Error)
		}
	}
	return b.String()
}

func init() {
	flags := checkCmd.Flags()
	flags.Bool("no-pricing", false, "skip the pricing lookup")
	flags.Bool("json", false, "output results as JSON")
	flags.BoolP("quiet", "q", false, "suppress progress output")
	flags.Int("concurrency", 4, "parallel RDAP lookups")

	flags.String("rdap-url", config.Default().Checker.BaseURL, "RDAP base URL")
	viper.BindPFlag("rdap_url", flags.Lookup("rdap-url"))
	flags.String("pricing-url", config.Default().Pricing.URL, "TLD pricing endpoint")
	viper.BindPFlag("pricing_url", flags.Lookup("pricing-url"))

	rootCmd.AddCommand(checkCmd)
}
