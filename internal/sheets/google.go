package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// GoogleWriter writes tables through the Sheets v4 API.
type GoogleWriter struct {
	svc    *gsheets.Service
	logger *slog.Logger
}

func NewGoogleWriter(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*GoogleWriter, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleWriter{svc: svc, logger: logger}, nil
}

// CreateSheet adds a tab to an existing document. Google rejects duplicate
// titles, so re-running with the same title fails.
func (w *GoogleWriter) CreateSheet(ctx context.Context, documentID, title string) (Sheet, error) {
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{Title: title},
			},
		}},
	}

	resp, err := w.svc.Spreadsheets.BatchUpdate(documentID, req).Context(ctx).Do()
	if err != nil {
		return Sheet{}, fmt.Errorf("add sheet %q: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return Sheet{}, errors.New("add sheet: empty reply")
	}

	props := resp.Replies[0].AddSheet.Properties
	w.logger.Debug("sheet created", "document_id", documentID, "sheet_id", props.SheetId, "title", props.Title)
	return Sheet{ID: props.SheetId, Title: props.Title}, nil
}

func (w *GoogleWriter) WriteRange(ctx context.Context, documentID string, sheet Sheet, startCell string, rows [][]string) error {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, cell := range row {
			values[i][j] = cell
		}
	}

	_, err := w.svc.Spreadsheets.Values.
		Update(documentID, a1Range(sheet.Title, startCell), &gsheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write %d rows to %q: %w", len(rows), sheet.Title, err)
	}
	return nil
}

func (w *GoogleWriter) SetRowHeight(ctx context.Context, documentID string, sheet Sheet, rows RowRange, pixels int64) error {
	req := &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			UpdateDimensionProperties: &gsheets.UpdateDimensionPropertiesRequest{
				Range: &gsheets.DimensionRange{
					SheetId:    sheet.ID,
					Dimension:  "ROWS",
					StartIndex: rows.Start,
					EndIndex:   rows.End,
					// zero is a valid sheet id and start row
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
				Properties: &gsheets.DimensionProperties{PixelSize: pixels},
				Fields:     "pixelSize",
			},
		}},
	}

	if _, err := w.svc.Spreadsheets.BatchUpdate(documentID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("set row height on %q: %w", sheet.Title, err)
	}
	return nil
}

func (w *GoogleWriter) SheetURL(documentID string, sheet Sheet) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit#gid=%d", documentID, sheet.ID)
}

// StatusCode extracts the HTTP status from a Google API error, or 0.
func StatusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
