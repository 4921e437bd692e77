package ports

import "context"

// Table is a plain rectangular table handed to external tools
type Table struct {
	Header []string
	Rows   [][]string
}

// Visualizer renders a table to an image file. Implementations are
// external black boxes; only the output file is inspected.
type Visualizer interface {
	Render(ctx context.Context, table Table, outPath string) error
}
