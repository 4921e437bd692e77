// Package plot hands tables to an external plotting program, such as an R
// or Python script, and waits for the image it writes.
package plot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mixedpower/adapters/excel"
	"mixedpower/internal"
	apperrors "mixedpower/internal/errors"
	"mixedpower/ports"
)

// Placeholders substituted in Args
const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
)

// ExternalVisualizer implements ports.Visualizer by writing the table to a
// temporary CSV and running Command with Args. {input} and {output} in
// Args are replaced by the CSV path and the requested image path.
type ExternalVisualizer struct {
	Command string
	Args    []string
	// Env is appended to the current environment
	Env     []string
	Dir     string
	Timeout time.Duration

	logger *internal.Logger
}

var _ ports.Visualizer = (*ExternalVisualizer)(nil)

// NewExternalVisualizer creates a visualizer for command args...
func NewExternalVisualizer(logger *internal.Logger, command string, args ...string) *ExternalVisualizer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ExternalVisualizer{
		Command: command,
		Args:    args,
		logger:  logger.With("ExternalVisualizer"),
	}
}

// ParseCommand splits a command line on whitespace, for configuration
// values like "Rscript plots/power.R {input} {output}". Quoting is not
// supported.
func ParseCommand(line string) (string, []string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty plot command")
	}
	return fields[0], fields[1:], nil
}

// Render writes table, runs the command and checks that outPath exists
func (v *ExternalVisualizer) Render(ctx context.Context, table ports.Table, outPath string) error {
	if v.Command == "" {
		return apperrors.InvalidInput("plot command is not configured")
	}
	if outPath == "" {
		return apperrors.InvalidInput("output path is required")
	}

	tmp, err := os.MkdirTemp("", "mixedpower-plot-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	input := filepath.Join(tmp, "table.csv")
	if err := excel.WriteCSV(input, table); err != nil {
		return fmt.Errorf("failed to write plot input: %w", err)
	}
	absOut, err := filepath.Abs(outPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absOut), 0o755); err != nil {
		return err
	}

	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		defer cancel()
	}

	args := make([]string, len(v.Args))
	for i, a := range v.Args {
		a = strings.ReplaceAll(a, InputPlaceholder, input)
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, absOut)
	}

	cmd := exec.CommandContext(ctx, v.Command, args...)
	cmd.Dir = v.Dir
	cmd.Env = append(os.Environ(), v.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	v.logger.Debug("running %s %s", v.Command, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("plot cancelled: %w", ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return apperrors.ExternalProcessError(v.Command, err)
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		v.logger.Trace("%s: %s", v.Command, out)
	}

	if _, err := os.Stat(absOut); err != nil {
		return apperrors.ExternalProcessError(v.Command, fmt.Errorf("expected output %s: %w", absOut, err))
	}
	v.logger.Info("rendered %s in %v", outPath, time.Since(start).Round(time.Millisecond))
	return nil
}
