package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/communityfood/discovery-engine/internal/discovery"
	"github.com/communityfood/discovery-engine/internal/model"
	"github.com/communityfood/discovery-engine/internal/validate"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover food resources for an area",
}

var discoverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run discovery for a city",
	Long:  "Checks the area cooldown, searches the web, extracts and geocodes resources, then scores and stores them.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		city, _ := cmd.Flags().GetString("city")
		state, _ := cmd.Flags().GetString("state")
		user, _ := cmd.Flags().GetString("user")
		asJSON, _ := cmd.Flags().GetBool("json")

		area, err := parseArea(city, state)
		if err != nil {
			return err
		}

		env, err := initDiscovery(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		req := discovery.RunRequest{
			Area: area,
			Progress: func(p discovery.Progress) {
				zap.L().Info(p.Message, zap.String("stage", string(p.Stage)))
			},
		}
		if user != "" {
			req.UserID = &user
		}

		report, err := env.Runner.Run(ctx, req)
		if err != nil {
			return eris.Wrapf(err, "discover %s", area)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		formatReport(os.Stdout, report)
		return nil
	},
}

var discoverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent discovery runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		events, err := cooldownGuard(st).Recent(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "discover status")
		}

		if len(events) == 0 {
			zap.L().Info("no discovery runs found")
			return nil
		}

		formatEvents(os.Stdout, events)
		return nil
	},
}

func init() {
	discoverRunCmd.Flags().String("city", "", "city to search (required)")
	discoverRunCmd.Flags().String("state", "", "state name or two-letter code (required)")
	discoverRunCmd.Flags().String("user", "", "ID of the user triggering the run")
	discoverRunCmd.Flags().Bool("json", false, "print the full run report as JSON")
	_ = discoverRunCmd.MarkFlagRequired("city")
	_ = discoverRunCmd.MarkFlagRequired("state")

	discoverStatusCmd.Flags().Int("limit", 20, "number of runs to show")

	discoverCmd.AddCommand(discoverRunCmd, discoverStatusCmd)
	rootCmd.AddCommand(discoverCmd)
}

// parseArea trims the city and canonicalizes the state to its two-letter code.
func parseArea(city, state string) (model.Area, error) {
	city = strings.Join(strings.Fields(city), " ")
	if city == "" {
		return model.Area{}, eris.New("city is required")
	}
	st, err := validate.State(state)
	if err != nil {
		return model.Area{}, eris.Wrap(err, "state")
	}
	return model.Area{City: city, State: st}, nil
}

func formatReport(out io.Writer, r *discovery.RunReport) {
	_, _ = fmt.Fprintln(out, r.Summary())
	if r.Blocked {
		if r.Eligibility != nil && r.Eligibility.NextEligibleAt != nil {
			_, _ = fmt.Fprintf(out, "next eligible: %s\n", r.Eligibility.NextEligibleAt.Format(time.RFC3339))
		}
		return
	}
	if len(r.Resources) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tADDRESS\tZIP\tSCORE\tSTATUS")
	_, _ = fmt.Fprintln(w, "----\t-------\t---\t-----\t------")
	for _, res := range r.Resources {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n",
			truncate(res.Result.Name, 40),
			truncate(res.Result.Address, 40),
			res.Result.Zip,
			res.Confidence,
			res.Status,
		)
	}
	_ = w.Flush()
}

func formatEvents(out io.Writer, events []model.DiscoveryEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tAREA\tSTATUS\tPROVIDER\tFOUND\tSEARCHED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t--------\t-----\t--------")

	for _, ev := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			shortUUID(ev.ID),
			ev.LocationHash,
			ev.Status,
			ev.Provider,
			ev.ResultCount,
			ev.SearchedAt.Format(time.RFC3339),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func shortUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
