package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/communityfood/discovery-engine/internal/cooldown"
	"github.com/communityfood/discovery-engine/internal/model"
)

var cooldownCmd = &cobra.Command{
	Use:   "cooldown",
	Short: "Inspect the per-area search cooldown",
}

var cooldownCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether an area may be searched now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		city, _ := cmd.Flags().GetString("city")
		state, _ := cmd.Flags().GetString("state")
		area, err := parseArea(city, state)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		elig, err := cooldownGuard(st).CheckEligibility(ctx, area.LocationHash())
		if err != nil {
			return eris.Wrap(err, "cooldown check")
		}
		formatEligibility(os.Stdout, area, elig)
		return nil
	},
}

func init() {
	cooldownCheckCmd.Flags().String("city", "", "city (required)")
	cooldownCheckCmd.Flags().String("state", "", "state name or two-letter code (required)")
	_ = cooldownCheckCmd.MarkFlagRequired("city")
	_ = cooldownCheckCmd.MarkFlagRequired("state")

	cooldownCmd.AddCommand(cooldownCheckCmd)
	rootCmd.AddCommand(cooldownCmd)
}

func formatEligibility(out io.Writer, area model.Area, e cooldown.Eligibility) {
	if e.ShouldSearch {
		_, _ = fmt.Fprintf(out, "%s (%s): eligible\n", area, area.LocationHash())
		return
	}
	_, _ = fmt.Fprintf(out, "%s (%s): blocked: %s\n", area, area.LocationHash(), e.Reason)
	if e.NextEligibleAt != nil {
		_, _ = fmt.Fprintf(out, "next eligible: %s\n", e.NextEligibleAt.Format(time.RFC3339))
	}
}
