package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"mixedpower/adapters/excel"
	"mixedpower/domain/core"
	apperrors "mixedpower/internal/errors"
	"mixedpower/internal/report"
	"mixedpower/ports"

	"github.com/spf13/cobra"
)

func newRunsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List and export stored sweep runs",
	}
	cmd.AddCommand(newRunsListCmd(e), newRunsShowCmd(e))
	return cmd
}

// withRepo opens the configured store for the duration of fn
func (e *env) withRepo(ctx context.Context, fn func(ports.SweepRepository) error) error {
	if err := e.deps.InitWithDatabase(ctx); err != nil {
		return err
	}
	if !e.deps.HasDatabase() {
		return apperrors.ConfigInvalid("DATABASE_URL is required for stored runs")
	}
	defer e.deps.Shutdown(ctx)
	return fn(e.deps.Sweeps)
}

func newRunsListCmd(e *env) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withRepo(cmd.Context(), func(repo ports.SweepRepository) error {
				runs, err := repo.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(runs)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCREATED\tNSIMS\tALPHA\tSEED\tFORMULA")
				for _, r := range runs {
					fmt.Fprintf(w, "%s\t%s\t%d\t%g\t%d\t%s\n",
						r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.NSims, r.Alpha, r.Seed, r.Formula)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newRunsShowCmd(e *env) *cobra.Command {
	var (
		out        string
		reportPath string
	)
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run's power table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withRepo(cmd.Context(), func(repo ports.SweepRepository) error {
				run, table, err := repo.LoadRun(cmd.Context(), core.RunID(args[0]))
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "EFFECT\tPOWER\tITEM_N\tSUB_N")
				for _, row := range table.Rows() {
					fmt.Fprintf(w, "%s\t%.3f\t%d\t%d\n", row.Effect, row.Power, row.ItemN, row.SubN)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				if out != "" {
					p := e.outPath(out)
					if err := ensureDir(p); err != nil {
						return err
					}
					if err := excel.WriteSweep(p, table); err != nil {
						return err
					}
				}
				if reportPath != "" {
					p := e.outPath(reportPath)
					if err := ensureDir(p); err != nil {
						return err
					}
					return report.Write(p, report.Report{Run: *run, Table: table, TargetPower: e.cfg.TargetPower})
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Also write the table to this .csv or .xlsx file")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a Markdown (.md) or HTML (.html) report")
	return cmd
}
