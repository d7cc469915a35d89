// Package sheets writes clip index tables to a spreadsheet document.
package sheets

import (
	"context"
	"strings"
)

// Sheet identifies a tab created inside a document.
type Sheet struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// RowRange is a half-open, zero-based row interval [Start, End).
type RowRange struct {
	Start int64
	End   int64
}

// TableWriter creates a sheet, fills it, and adjusts its row heights.
type TableWriter interface {
	CreateSheet(ctx context.Context, documentID, title string) (Sheet, error)
	// WriteRange writes rows starting at startCell. Values are entered as if
	// typed by a user, so formulas evaluate.
	WriteRange(ctx context.Context, documentID string, sheet Sheet, startCell string, rows [][]string) error
	SetRowHeight(ctx context.Context, documentID string, sheet Sheet, rows RowRange, pixels int64) error
}

// Locator is implemented by writers that can point a user at a sheet.
type Locator interface {
	SheetURL(documentID string, sheet Sheet) string
}

// ImageFormula renders a cell formula that displays the image at url.
func ImageFormula(url string) string {
	return `=IMAGE("` + strings.ReplaceAll(url, `"`, `""`) + `")`
}

// a1Range qualifies cell with the sheet title, quoting it for A1 notation.
func a1Range(title, cell string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cell
}
