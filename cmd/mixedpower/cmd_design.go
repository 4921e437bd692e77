package main

import (
	"fmt"

	"mixedpower/adapters/excel"
	"mixedpower/internal/design"

	"github.com/spf13/cobra"
)

func newDesignCmd(e *env) *cobra.Command {
	var (
		subN, itemN int
		seed        int64
		conditions  bool
		out         string
	)

	cmd := &cobra.Command{
		Use:   "design",
		Short: "Write one simulated design table",
		Long: `Cross item_n items with 2*sub_n subjects (half old, half young) and,
with --conditions, a two-level within factor. The dv column is a
standard-normal placeholder.

Example: mixedpower design --sub-n 20 --item-n 10 --out design.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := e.deps.RNG.SeededStream(cmd.Context(), "design", seed)
			if err != nil {
				return err
			}
			frame, err := design.Simdat(stream, subN, itemN, design.Options{Conditions: conditions})
			if err != nil {
				return err
			}

			path := e.outPath(out)
			if err := ensureDir(path); err != nil {
				return err
			}
			if err := excel.WriteTable(path, excel.FrameRecords(frame)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", frame.Rows(), path)
			return nil
		},
	}

	cmd.Flags().IntVar(&subN, "sub-n", 1, "Subjects per age group")
	cmd.Flags().IntVar(&itemN, "item-n", 1, "Items")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for the placeholder response")
	cmd.Flags().BoolVar(&conditions, "conditions", false, "Add the within-subject condition factor")
	cmd.Flags().StringVar(&out, "out", "design.csv", "Output file (.csv or .xlsx)")
	return cmd
}
