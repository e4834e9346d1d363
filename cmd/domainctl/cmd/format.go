package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirychukyurii/domain-search/pkg/api"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func stateIcon(state string) string {
	switch state {
	case "completed":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "cancelled":
		return colorDim + "⊘" + colorReset
	case "running", "finalizing":
		return colorYellow + "⏳" + colorReset
	case "awaiting_followup":
		return colorCyan + "?" + colorReset
	default:
		return "•"
	}
}

func colorizeState(state string) string {
	icon := stateIcon(state)
	switch state {
	case "completed":
		return icon + " " + colorGreen + state + colorReset
	case "failed":
		return icon + " " + colorRed + state + colorReset
	case "running", "finalizing":
		return icon + " " + colorYellow + state + colorReset
	case "awaiting_followup":
		return icon + " " + colorCyan + state + colorReset
	default:
		return icon + " " + state
	}
}

func isTerminal(state string) bool {
	return state == "completed" || state == "cancelled" || state == "failed"
}

func printStatus(cmd *cobra.Command, s api.StatusResponse) {
	cmd.Printf("%s %sJob Details%s\n", stateIcon(s.State), colorBold, colorReset)
	cmd.Println("──────────────────────────────")
	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, s.JobID)
	cmd.Printf("%sState:%s       %s\n", colorDim, colorReset, colorizeState(s.State))
	cmd.Printf("%sBatches:%s     %d\n", colorDim, colorReset, s.BatchesRun)
	cmd.Printf("%sResults:%s     %d\n", colorDim, colorReset, s.ResultCount)
	if s.CancelRequested && !isTerminal(s.State) {
		cmd.Printf("%sCancel:%s      %srequested%s\n", colorDim, colorReset, colorYellow, colorReset)
	}
	if s.FailureReason != "" {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, s.FailureReason, colorReset)
	}
	cmd.Printf("%sUpdated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(s.UpdatedAt))
}

func formatPrice(p *api.Pricing) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("$%.2f (%s)", p.PriceDollars, p.Category)
}

func formatTimeWithRelative(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s %s(%s ago)%s", t.Local().Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relativeTime(t), colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	case duration < time.Hour:
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// printJSON writes v as indented JSON
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
