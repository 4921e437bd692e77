package main

import (
	"fmt"

	"mixedpower/adapters/excel"
	"mixedpower/adapters/plot"
	apperrors "mixedpower/internal/errors"

	"github.com/spf13/cobra"
)

func newPlotCmd(e *env) *cobra.Command {
	var (
		command string
		out     string
	)

	cmd := &cobra.Command{
		Use:   "plot <sweep.csv>",
		Short: "Render a sweep table with an external plotting script",
		Long: `Read a sweep table and hand it to the configured plotting command
(PLOT_COMMAND or plot.command). {input} and {output} in the command are
replaced by the table path and the image path.

Example: mixedpower plot power.csv --command "Rscript power.R {input} {output}" --out power.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := excel.NewDataReader(args[0], e.logger).ReadSweepTable()
			if err != nil {
				return err
			}

			line := command
			if line == "" {
				line = e.cfg.Plot.Command
			}
			if line == "" {
				return apperrors.ConfigInvalid("no plot command: set PLOT_COMMAND or pass --command")
			}
			name, argv, err := plot.ParseCommand(line)
			if err != nil {
				return apperrors.ConfigInvalid(err.Error())
			}
			v := plot.NewExternalVisualizer(e.logger, name, argv...)
			v.Timeout = e.cfg.Plot.Timeout

			path := e.outPath(out)
			if err := v.Render(cmd.Context(), excel.SweepRecords(table), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&command, "command", "", "Plotting command line (default from settings)")
	cmd.Flags().StringVar(&out, "out", "power.png", "Image file the command writes")
	return cmd
}
