package google

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/api/sheets/v4"
)

// ValueRange pairs an A1-notation range with the values to write there.
type ValueRange struct {
	Range  string
	Values [][]any
}

// backend is the slice of the Sheets API the sync logic needs. The real
// implementation wraps sheets.Service; tests substitute an in-memory
// spreadsheet.
type backend interface {
	SheetTitles(ctx context.Context, documentID string) ([]string, error)
	AddSheet(ctx context.Context, documentID, title string) error
	// CopySheet clones the titled sheet from the source document into the
	// destination and returns the clone's title.
	CopySheet(ctx context.Context, sourceDocumentID, title, destinationDocumentID string) (string, error)
	RenameSheet(ctx context.Context, documentID, oldTitle, newTitle string) error
	ClearRanges(ctx context.Context, documentID string, ranges []string) error
	UpdateRanges(ctx context.Context, documentID string, data []ValueRange) error
	GetValues(ctx context.Context, documentID, rng string) ([][]any, error)
	ReorderSheets(ctx context.Context, documentID string, titlesInOrder []string) error
	FormatHeaders(ctx context.Context, documentID string) error
}

// sheetsBackend implements backend against the Sheets v4 API.
type sheetsBackend struct {
	service *sheets.Service
}

func (b *sheetsBackend) sheetProperties(ctx context.Context, documentID string) ([]*sheets.SheetProperties, error) {
	doc, err := b.service.Spreadsheets.Get(documentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching spreadsheet %s: %w", documentID, err)
	}
	properties := make([]*sheets.SheetProperties, 0, len(doc.Sheets))
	for _, sheet := range doc.Sheets {
		properties = append(properties, sheet.Properties)
	}
	return properties, nil
}

func (b *sheetsBackend) sheetID(ctx context.Context, documentID, title string) (int64, error) {
	properties, err := b.sheetProperties(ctx, documentID)
	if err != nil {
		return 0, err
	}
	for _, p := range properties {
		if p.Title == title {
			return p.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in document %s", title, documentID)
}

func (b *sheetsBackend) SheetTitles(ctx context.Context, documentID string) ([]string, error) {
	properties, err := b.sheetProperties(ctx, documentID)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(properties))
	for _, p := range properties {
		titles = append(titles, p.Title)
	}
	return titles, nil
}

func (b *sheetsBackend) AddSheet(ctx context.Context, documentID, title string) error {
	_, err := b.service.Spreadsheets.BatchUpdate(documentID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("adding sheet %q: %w", title, err)
	}
	return nil
}

func (b *sheetsBackend) CopySheet(ctx context.Context, sourceDocumentID, title, destinationDocumentID string) (string, error) {
	sheetID, err := b.sheetID(ctx, sourceDocumentID, title)
	if err != nil {
		return "", err
	}

	copied, err := b.service.Spreadsheets.Sheets.CopyTo(sourceDocumentID, sheetID, &sheets.CopySheetToAnotherSpreadsheetRequest{
		DestinationSpreadsheetId: destinationDocumentID,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("copying sheet %q: %w", title, err)
	}
	return copied.Title, nil
}

func (b *sheetsBackend) RenameSheet(ctx context.Context, documentID, oldTitle, newTitle string) error {
	sheetID, err := b.sheetID(ctx, documentID, oldTitle)
	if err != nil {
		return err
	}

	_, err = b.service.Spreadsheets.BatchUpdate(documentID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{SheetId: sheetID, Title: newTitle},
				Fields:     "title",
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("renaming sheet %q to %q: %w", oldTitle, newTitle, err)
	}
	return nil
}

func (b *sheetsBackend) ClearRanges(ctx context.Context, documentID string, ranges []string) error {
	_, err := b.service.Spreadsheets.Values.BatchClear(documentID, &sheets.BatchClearValuesRequest{
		Ranges: ranges,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing ranges %v: %w", ranges, err)
	}
	return nil
}

func (b *sheetsBackend) UpdateRanges(ctx context.Context, documentID string, data []ValueRange) error {
	valueRanges := make([]*sheets.ValueRange, 0, len(data))
	for _, vr := range data {
		values := make([][]interface{}, len(vr.Values))
		for i, row := range vr.Values {
			values[i] = row
		}
		valueRanges = append(valueRanges, &sheets.ValueRange{Range: vr.Range, Values: values})
	}

	_, err := b.service.Spreadsheets.Values.BatchUpdate(documentID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             valueRanges,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("updating %d range(s): %w", len(data), err)
	}
	return nil
}

func (b *sheetsBackend) GetValues(ctx context.Context, documentID, rng string) ([][]any, error) {
	resp, err := b.service.Spreadsheets.Values.Get(documentID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting values from %s: %w", rng, err)
	}
	values := make([][]any, len(resp.Values))
	for i, row := range resp.Values {
		values[i] = row
	}
	return values, nil
}

func (b *sheetsBackend) ReorderSheets(ctx context.Context, documentID string, titlesInOrder []string) error {
	properties, err := b.sheetProperties(ctx, documentID)
	if err != nil {
		return err
	}
	byTitle := make(map[string]int64, len(properties))
	for _, p := range properties {
		byTitle[p.Title] = p.SheetId
	}

	requests := make([]*sheets.Request, 0, len(titlesInOrder))
	for i, title := range titlesInOrder {
		sheetID, ok := byTitle[title]
		if !ok {
			continue
		}
		requests = append(requests, &sheets.Request{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{SheetId: sheetID, Index: int64(i)},
				Fields:     "index",
			},
		})
	}

	_, err = b.service.Spreadsheets.BatchUpdate(documentID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reordering %d sheets: %w", len(requests), err)
	}
	return nil
}

func (b *sheetsBackend) FormatHeaders(ctx context.Context, documentID string) error {
	properties, err := b.sheetProperties(ctx, documentID)
	if err != nil {
		return err
	}

	var requests []*sheets.Request
	for _, p := range properties {
		columnCount := int64(26)
		if p.GridProperties != nil && p.GridProperties.ColumnCount > 0 {
			columnCount = p.GridProperties.ColumnCount
		}
		requests = append(requests,
			&sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{SheetId: p.SheetId, StartRowIndex: 0, EndRowIndex: 1},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							BackgroundColor:     &sheets.Color{Red: 0.2, Green: 0.2, Blue: 0.2},
							HorizontalAlignment: "CENTER",
							TextFormat: &sheets.TextFormat{
								ForegroundColor: &sheets.Color{Red: 1.0, Green: 1.0, Blue: 1.0},
								Bold:            true,
							},
						},
					},
					Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
				},
			},
			&sheets.Request{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        p.SheetId,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
			&sheets.Request{
				AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
					Dimensions: &sheets.DimensionRange{
						SheetId:    p.SheetId,
						Dimension:  "COLUMNS",
						StartIndex: 0,
						EndIndex:   columnCount,
					},
				},
			},
		)
	}

	_, err = b.service.Spreadsheets.BatchUpdate(documentID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("formatting %d sheets: %w", len(properties), err)
	}
	return nil
}

// reverseTitleOrder returns titles sorted descending, so the newest
// monthly tab lands first.
func reverseTitleOrder(titles []string) []string {
	ordered := append([]string(nil), titles...)
	sort.Sort(sort.Reverse(sort.StringSlice(ordered)))
	return ordered
}
