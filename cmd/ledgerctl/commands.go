package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kiranshivaraju/fineprint/internal/costs"
	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/spf13/cobra"
)

type openFunc func(ctx context.Context) (*costs.Ledger, func() error, error)

// cli carries what every subcommand needs.
type cli struct {
	open   openFunc
	out    io.Writer
	asJSON bool
}

func newRootCmd(open openFunc, out io.Writer) *cobra.Command {
	c := &cli{open: open, out: out}

	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Inspect and maintain the Fine Print cost ledger",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(out)
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print raw JSON instead of tables")

	root.AddCommand(
		c.reportCmd(),
		c.recommendationsCmd(),
		c.userCmd(),
		c.exportCmd(),
		c.alertsCmd(),
		c.resetAlertsCmd(),
	)
	return root
}

// withLedger opens the ledger, runs fn and closes the store.
func (c *cli) withLedger(cmd *cobra.Command, fn func(ctx context.Context, l *costs.Ledger) error) error {
	ledger, closeFn, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(cmd.Context(), ledger)
}

func (c *cli) reportCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the monthly cost report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLedger(cmd, func(ctx context.Context, l *costs.Ledger) error {
				report, err := l.GenerateCostReport(ctx, period)
				if err != nil {
					return fmt.Errorf("generating report: %w", err)
				}
				if c.asJSON {
					return c.printJSON(report)
				}
				c.renderReport(report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "current", `month as YYYY-MM or "current"`)
	return cmd
}

func (c *cli) recommendationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "List cost optimization recommendations for this month",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLedger(cmd, func(ctx context.Context, l *costs.Ledger) error {
				opt, err := l.GetOptimizationRecommendations(ctx)
				if err != nil {
					return fmt.Errorf("building recommendations: %w", err)
				}
				if c.asJSON {
					return c.printJSON(opt)
				}
				c.renderRecommendations(opt)
				return nil
			})
		},
	}
}

func (c *cli) userCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user <user-id>",
		Short: "Show one user's spend this month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withLedger(cmd, func(ctx context.Context, l *costs.Ledger) error {
				summary, err := l.GetUserCostSummary(ctx, args[0])
				if err != nil {
					return fmt.Errorf("reading user summary: %w", err)
				}
				if c.asJSON {
					return c.printJSON(summary)
				}
				c.renderUser(summary)
				return nil
			})
		},
	}
}

func (c *cli) exportCmd() *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export per-user costs for billing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLedger(cmd, func(ctx context.Context, l *costs.Ledger) error {
				exp, err := l.ExportCostData(ctx, month)
				if err != nil {
					return fmt.Errorf("exporting costs: %w", err)
				}
				if c.asJSON {
					return c.printJSON(exp)
				}
				c.renderExport(exp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "current", `month as YYYY-MM or "current"`)
	return cmd
}

func (c *cli) alertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "List budget alerts raised since the last reset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLedger(cmd, func(ctx context.Context, l *costs.Ledger) error {
				alerts, err := l.Alerts(ctx)
				if err != nil {
					return err
				}
				if c.asJSON {
					return c.printJSON(alerts)
				}
				c.renderAlerts(alerts)
				return nil
			})
		},
	}
}

func (c *cli) resetAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-alerts",
		Short: "Clear fired budget alerts so they can fire again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLedger(cmd, func(ctx context.Context, l *costs.Ledger) error {
				if err := l.ResetMonthlyAlerts(ctx); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "budget alerts reset")
				return nil
			})
		},
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(c.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func dollars(v float64) string { return fmt.Sprintf("$%.4f", v) }

func (c *cli) renderReport(r *costs.CostReport) {
	t := c.newTable("Cost report " + r.Period)
	t.AppendRows([]table.Row{
		{"Total cost", dollars(r.TotalCost)},
		{"Requests", r.TotalRequests},
		{"Cache savings", dollars(r.CacheSavings)},
		{"Cache hits", r.CacheHits},
		{"Cache hit rate", fmt.Sprintf("%.1f%%", r.CacheHitRate*100)},
		{"Projected month", dollars(r.ProjectedMonthlyCost)},
	})
	t.Render()

	tiers := make([]models.UserTier, 0, len(r.TierBreakdown))
	for tier := range r.TierBreakdown {
		tiers = append(tiers, tier)
	}
	slices.Sort(tiers)
	tt := c.newTable("By tier")
	tt.AppendHeader(table.Row{"Tier", "Cost", "Requests", "Users"})
	for _, tier := range tiers {
		tc := r.TierBreakdown[tier]
		tt.AppendRow(table.Row{tier, dollars(tc.Cost), tc.Requests, tc.Users})
	}
	tt.Render()

	mt := c.newTable("By model")
	mt.AppendHeader(table.Row{"Model", "Cost", "Requests", "Avg/request"})
	for _, m := range r.ModelBreakdown {
		mt.AppendRow(table.Row{m.Model, dollars(m.Cost), m.Requests, dollars(m.AvgCostPerRequest)})
	}
	mt.Render()
}

func (c *cli) renderRecommendations(o *costs.OptimizationReport) {
	t := c.newTable("Recommendations")
	t.AppendHeader(table.Row{"Priority", "Type", "Title", "Est. savings"})
	for _, r := range o.Recommendations {
		t.AppendRow(table.Row{r.Priority, r.Type, r.Title, dollars(r.EstimatedSavings)})
	}
	t.AppendFooter(table.Row{"", "", "Optimized cost", dollars(o.PotentialOptimizedCost)})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, Align: text.AlignRight}})
	t.Render()
}

func (c *cli) renderUser(s *costs.UserCostSummary) {
	t := c.newTable("User " + s.UserID + " " + s.Period)
	t.AppendRows([]table.Row{
		{"Tier", s.BudgetUsage.Tier},
		{"Total cost", dollars(s.TotalCost)},
		{"Requests", s.TotalRequests},
		{"Avg/request", dollars(s.AvgCostPerRequest)},
		{"Cache savings", dollars(s.SavingsFromCache)},
		{"Budget used", fmt.Sprintf("%.1f%% of %s", s.BudgetUsage.Percentage, dollars(s.BudgetUsage.Budget))},
	})
	t.Render()
}

func (c *cli) renderExport(e *costs.CostExport) {
	t := c.newTable("Billing export " + e.Period)
	t.AppendHeader(table.Row{"User", "Cost", "Requests"})
	for _, u := range e.UserCosts {
		t.AppendRow(table.Row{u.UserID, dollars(u.Cost), u.Requests})
	}
	t.AppendFooter(table.Row{"Total", dollars(e.TotalCost), ""})
	t.Render()
}

func (c *cli) renderAlerts(alerts []models.BudgetAlert) {
	if len(alerts) == 0 {
		fmt.Fprintln(c.out, "no budget alerts")
		return
	}
	t := c.newTable("Budget alerts")
	t.AppendHeader(table.Row{"Time", "User", "Tier", "Threshold", "Cost"})
	for _, a := range alerts {
		t.AppendRow(table.Row{
			a.Timestamp.Format("2006-01-02 15:04"),
			a.UserID,
			a.UserTier,
			fmt.Sprintf("%d%%", a.Threshold),
			dollars(a.CurrentCost),
		})
	}
	t.Render()
}
