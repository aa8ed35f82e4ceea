package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	hudK             int
	hudMinConfidence float64
	hudStatuses      []string
)

// hudCmd queries hypothesis context for a research question
var hudCmd = &cobra.Command{
	Use:   "hud <query>",
	Short: "Retrieve hypothesis context for a query",
	Long: `Retrieve the top hypotheses relevant to a query, as the research HUD
would display them alongside a running trail.

Examples:
  # Top hypotheses for a question
  claimbank hud "why does tail latency spike during rollouts"

  # Ask for more entries, including drafts
  claimbank hud --k 10 --status draft --status active "replica lag"`,
	Args: cobra.ExactArgs(1),
	RunE: runHUD,
}

// getCmd fetches a single hypothesis
var getCmd = &cobra.Command{
	Use:   "get <hypothesis-id>",
	Short: "Fetch a hypothesis by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := httpGet("/api/v1/hypotheses/" + url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

// statsCmd reports store-level counts
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show hypothesis store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := httpGet("/api/v1/stats")
		if err != nil {
			return err
		}
		return printJSON(body)
	},
}

func init() {
	hudCmd.Flags().IntVar(&hudK, "k", 0, "number of entries to return (0 uses the server default)")
	hudCmd.Flags().Float64Var(&hudMinConfidence, "min-confidence", 0, "confidence floor (unset uses the server default)")
	hudCmd.Flags().StringArrayVar(&hudStatuses, "status", nil, "lifecycle states to include (repeatable)")
}

func runHUD(cmd *cobra.Command, args []string) error {
	params := url.Values{}
	params.Set("q", args[0])
	if hudK > 0 {
		params.Set("k", strconv.Itoa(hudK))
	}
	if cmd.Flags().Changed("min-confidence") {
		params.Set("min_confidence", fmt.Sprintf("%g", hudMinConfidence))
	}
	for _, status := range hudStatuses {
		params.Add("status", status)
	}

	body, err := httpGet("/api/v1/hud?" + params.Encode())
	if err != nil {
		return err
	}
	return printJSON(body)
}
