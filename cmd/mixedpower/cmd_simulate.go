package main

import (
	"fmt"
	"path/filepath"

	"mixedpower/adapters/excel"
	"mixedpower/app"
	"mixedpower/domain/sim"
	"mixedpower/internal/report"
	"mixedpower/internal/simulation"
	"mixedpower/ports"

	"github.com/spf13/cobra"
)

func newSimulateCmd(e *env) *cobra.Command {
	var (
		subN, itemN int
		nsims       int
		seed        int64
		dataPath    string
		factors     []string
		outDir      string
		xlsx        bool
		reportPath  string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Estimate power at one design size",
		Long: `Run the simulate-refit loop at a single design size, or against an
existing dataset with --data, and write power.csv, draws.csv, summary.csv
and diagnostics.csv. Model, contrasts and parameters come from the sweep
settings.

Example: mixedpower simulate --sub-n 30 --item-n 20 --nsims 500
Example: mixedpower simulate --data pilot.xlsx --factor subj --factor item`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sc := e.cfg.Sweep
			if cmd.Flags().Changed("nsims") {
				sc.NSims = nsims
			}
			if cmd.Flags().Changed("seed") {
				sc.Seed = seed
			}
			base, err := sc.Request()
			if err != nil {
				return err
			}

			req := app.PointRequest{
				SubN:       subN,
				ItemN:      itemN,
				NSims:      base.NSims,
				Params:     base.Params,
				Formula:    base.Formula,
				Codings:    base.Codings,
				Conditions: base.Conditions,
				Alpha:      base.Alpha,
				Workers:    base.Workers,
				Names:      base.Names,
			}

			svc := e.deps.Service
			var point *app.PointResult
			if dataPath != "" {
				frame, err := excel.NewDataReader(dataPath, e.logger).ReadFrame(factors...)
				if err != nil {
					return err
				}
				stream, err := e.deps.RNG.SeededStream(ctx, "pilot", base.Seed)
				if err != nil {
					return err
				}
				point, err = svc.PowerFromData(ctx, stream, frame, req)
				if err != nil {
					return err
				}
			} else {
				stream, err := e.deps.RNG.GridStream(ctx, base.Seed, subN, itemN)
				if err != nil {
					return err
				}
				point, err = svc.MySim(ctx, stream, req)
				if err != nil {
					return err
				}
			}

			summaries, err := simulation.Summarize(point.Results)
			if err != nil {
				return err
			}
			var diags []simulation.CoefDiagnostics
			if point.Results.Len() >= 4 {
				if diags, err = simulation.Diagnose(point.Results); err != nil {
					return err
				}
			}

			dir := outDir
			if dir == "" {
				dir = e.cfg.Output.Dir
			}
			names := []string{"power", "draws", "summary"}
			tables := []ports.Table{
				excel.PowerRecords(point.Power),
				excel.DrawRecords(point.Results),
				excel.SummaryRecords(summaries),
			}
			if diags != nil {
				names = append(names, "diagnostics")
				tables = append(tables, excel.DiagnosticRecords(diags))
			}
			if xlsx {
				path := filepath.Join(dir, "simulation.xlsx")
				if err := ensureDir(path); err != nil {
					return err
				}
				if err := excel.WriteWorkbook(path, names, tables); err != nil {
					return err
				}
			} else {
				for i, name := range names {
					path := filepath.Join(dir, name+".csv")
					if err := ensureDir(path); err != nil {
						return err
					}
					if err := excel.WriteCSV(path, tables[i]); err != nil {
						return err
					}
				}
			}

			if reportPath != "" {
				table := sim.NewSweepTable()
				table.AppendPower(point.Power, point.SubN, point.ItemN)
				path := filepath.Join(dir, reportPath)
				if filepath.IsAbs(reportPath) {
					path = reportPath
				}
				if err := ensureDir(path); err != nil {
					return err
				}
				if err := report.Write(path, report.Report{
					Title:       "Power at one design",
					Run:         sim.SweepRun{Formula: base.Formula, Seed: base.Seed, NSims: base.NSims, Alpha: base.Alpha},
					Table:       table,
					Summaries:   summaries,
					Diagnostics: diags,
					TargetPower: e.cfg.TargetPower,
				}); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, row := range point.Power {
				fmt.Fprintf(out, "%-24s %.3f\n", row.Effect, row.Power)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&subN, "sub-n", 20, "Subjects per age group")
	cmd.Flags().IntVar(&itemN, "item-n", 10, "Items")
	cmd.Flags().IntVar(&nsims, "nsims", 0, "Replicates (default from settings)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (default from settings)")
	cmd.Flags().StringVar(&dataPath, "data", "", "Fit this CSV or xlsx dataset instead of a generated design")
	cmd.Flags().StringSliceVar(&factors, "factor", nil, "Treat this --data column as a factor even if it looks numeric")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory (default from settings)")
	cmd.Flags().BoolVar(&xlsx, "xlsx", false, "Write one workbook instead of CSV files")
	cmd.Flags().StringVar(&reportPath, "report", "", "Also write a Markdown (.md) or HTML (.html) report")
	return cmd
}
