package main

import (
	"fmt"

	"mixedpower/adapters/excel"
	"mixedpower/internal/report"

	"github.com/spf13/cobra"
)

func newSweepCmd(e *env) *cobra.Command {
	var (
		nsims      int
		seed       int64
		out        string
		xlsxPath   string
		reportPath string
		noStore    bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Estimate power over a grid of subject and item counts",
		Long: `Run one power simulation per (sub_n, item_n) grid point and write the
table effect,power,item_n,sub_n. When DATABASE_URL is set the run is also
stored and can be listed with "mixedpower runs".

Example: mixedpower sweep --config sweep.yaml --report power.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sc := e.cfg.Sweep
			if cmd.Flags().Changed("nsims") {
				sc.NSims = nsims
			}
			if cmd.Flags().Changed("seed") {
				sc.Seed = seed
			}
			req, err := sc.Request()
			if err != nil {
				return err
			}

			if !noStore {
				if err := e.deps.InitWithDatabase(ctx); err != nil {
					return err
				}
				defer e.deps.Shutdown(ctx)
			}

			result, err := e.deps.Service.RunSweep(ctx, req)
			if err != nil {
				return err
			}

			path := e.outPath(out)
			if err := ensureDir(path); err != nil {
				return err
			}
			if err := excel.WriteSweep(path, result.Table); err != nil {
				return err
			}
			if xlsxPath != "" {
				p := e.outPath(xlsxPath)
				if err := ensureDir(p); err != nil {
					return err
				}
				if err := excel.WriteXLSX(p, "power", excel.SweepRecords(result.Table)); err != nil {
					return err
				}
			}
			if reportPath != "" {
				p := e.outPath(reportPath)
				if err := ensureDir(p); err != nil {
					return err
				}
				if err := report.Write(p, report.Report{
					Run:         result.Run,
					Table:       result.Table,
					TargetPower: e.cfg.TargetPower,
				}); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "run %s: %d rows written to %s\n", result.Run.ID, result.Table.Len(), path)
			for _, p := range result.Skipped {
				fmt.Fprintf(w, "skipped sub_n=%d item_n=%d (fit failed)\n", p.SubN, p.ItemN)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&nsims, "nsims", 0, "Replicates per grid point (default from settings)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Base random seed (default from settings)")
	cmd.Flags().StringVar(&out, "out", "power.csv", "Sweep table file (.csv or .xlsx)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the table to this workbook")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a Markdown (.md) or HTML (.html) report")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not save the run even if DATABASE_URL is set")
	return cmd
}
