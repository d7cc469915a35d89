package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// CSVWriter stores each sheet as <root>/<documentID>/<title>.csv. It is meant
// for offline runs; row heights are not representable and are ignored.
type CSVWriter struct {
	root   string
	logger *slog.Logger

	mu     sync.Mutex
	nextID map[string]int64
}

func NewCSVWriter(root string, logger *slog.Logger) (*CSVWriter, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create csv root: %w", err)
	}
	if err := ValidateOutputDir(root); err != nil {
		return nil, err
	}
	return &CSVWriter{root: root, logger: logger, nextID: make(map[string]int64)}, nil
}

// CreateSheet fails if a sheet with the same title already exists.
func (w *CSVWriter) CreateSheet(_ context.Context, documentID, title string) (Sheet, error) {
	dir, err := w.documentDir(documentID)
	if err != nil {
		return Sheet{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Sheet{}, fmt.Errorf("create document dir: %w", err)
	}

	f, err := os.OpenFile(sheetPath(dir, title), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return Sheet{}, fmt.Errorf("add sheet %q: a sheet with this name already exists", title)
		}
		return Sheet{}, fmt.Errorf("add sheet %q: %w", title, err)
	}
	f.Close()

	w.mu.Lock()
	w.nextID[documentID]++
	id := w.nextID[documentID]
	w.mu.Unlock()

	return Sheet{ID: id, Title: title}, nil
}

func (w *CSVWriter) WriteRange(_ context.Context, documentID string, sheet Sheet, startCell string, rows [][]string) error {
	dir, err := w.documentDir(documentID)
	if err != nil {
		return err
	}
	col, row, err := parseCell(startCell)
	if err != nil {
		return err
	}

	path := sheetPath(dir, sheet.Title)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open sheet %q: %w", sheet.Title, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	// a lone empty field would read back as a blank line
	pad := make([]string, max(col+1, 2))
	for i := 0; i < row; i++ {
		if err := cw.Write(pad); err != nil {
			return err
		}
	}
	for _, r := range rows {
		record := make([]string, col, col+len(r))
		record = append(record, r...)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write sheet %q: %w", sheet.Title, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write sheet %q: %w", sheet.Title, err)
	}
	return nil
}

func (w *CSVWriter) SetRowHeight(_ context.Context, documentID string, sheet Sheet, rows RowRange, pixels int64) error {
	if rows.Start < 0 || rows.End < rows.Start {
		return fmt.Errorf("invalid row range [%d, %d)", rows.Start, rows.End)
	}
	w.logger.Debug("row height ignored for csv output",
		"document_id", documentID, "sheet", sheet.Title, "rows", rows.End-rows.Start, "pixels", pixels)
	return nil
}

func (w *CSVWriter) SheetURL(documentID string, sheet Sheet) string {
	dir, err := w.documentDir(documentID)
	if err != nil {
		return ""
	}
	return "file://" + filepath.ToSlash(sheetPath(dir, sheet.Title))
}

func (w *CSVWriter) documentDir(documentID string) (string, error) {
	if strings.TrimSpace(documentID) == "" {
		return "", errors.New("document id is required")
	}
	if documentID == "." || documentID == ".." || strings.ContainsAny(documentID, `/\`) {
		return "", fmt.Errorf("invalid document id %q", documentID)
	}
	return filepath.Join(w.root, documentID), nil
}

func sheetPath(dir, title string) string {
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(title)
	if name == "" || name == "." || name == ".." {
		name = "_" + name
	}
	return filepath.Join(dir, name+".csv")
}

// parseCell converts an A1 reference into zero-based column and row offsets.
func parseCell(cell string) (col, row int, err error) {
	i := 0
	for i < len(cell) && cell[i] >= 'A' && cell[i] <= 'Z' {
		col = col*26 + int(cell[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(cell) {
		return 0, 0, fmt.Errorf("invalid cell reference %q", cell)
	}
	n, err := strconv.Atoi(cell[i:])
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("invalid cell reference %q", cell)
	}
	return col - 1, n - 1, nil
}

// ValidateOutputDir checks that dir is a clean path to an existing directory.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output dir is required")
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("output dir cannot contain path traversal")
		}
	}

	if filepath.Clean(dir) != dir {
		return fmt.Errorf("output dir must be clean path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output dir does not exist")
		}
		return fmt.Errorf("invalid output dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output dir is not a directory")
	}
	return nil
}
