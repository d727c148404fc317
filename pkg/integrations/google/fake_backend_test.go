package google

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// fakeBackend is an in-memory spreadsheet that mimics the slice of the
// Sheets API semantics the sync logic depends on: A1-notation ranges,
// unbounded row/column ranges, and trailing-empty trimming on reads.
type fakeBackend struct {
	docs map[string]*fakeDocument

	reordered map[string][]string
	formatted map[string]int
}

type fakeDocument struct {
	order  []string
	sheets map[string]*fakeSheet
}

type fakeSheet struct {
	cells  map[[2]int]any // [row, col], 1-based
	maxRow int
	maxCol int
}

func newFakeBackend(documentIDs ...string) *fakeBackend {
	b := &fakeBackend{
		docs:      make(map[string]*fakeDocument),
		reordered: make(map[string][]string),
		formatted: make(map[string]int),
	}
	for _, id := range documentIDs {
		b.docs[id] = &fakeDocument{sheets: make(map[string]*fakeSheet)}
	}
	return b
}

func (b *fakeBackend) doc(documentID string) (*fakeDocument, error) {
	doc, ok := b.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("unknown document %s", documentID)
	}
	return doc, nil
}

func (b *fakeBackend) sheet(documentID, title string) (*fakeSheet, error) {
	doc, err := b.doc(documentID)
	if err != nil {
		return nil, err
	}
	sheet, ok := doc.sheets[title]
	if !ok {
		return nil, fmt.Errorf("unknown sheet %s in %s", title, documentID)
	}
	return sheet, nil
}

func (b *fakeBackend) SheetTitles(_ context.Context, documentID string) ([]string, error) {
	doc, err := b.doc(documentID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), doc.order...), nil
}

func (b *fakeBackend) AddSheet(_ context.Context, documentID, title string) error {
	doc, err := b.doc(documentID)
	if err != nil {
		return err
	}
	if _, ok := doc.sheets[title]; ok {
		return fmt.Errorf("sheet %s already exists", title)
	}
	doc.sheets[title] = &fakeSheet{cells: make(map[[2]int]any)}
	doc.order = append(doc.order, title)
	return nil
}

func (b *fakeBackend) CopySheet(_ context.Context, sourceDocumentID, title, destinationDocumentID string) (string, error) {
	source, err := b.sheet(sourceDocumentID, title)
	if err != nil {
		return "", err
	}
	dest, err := b.doc(destinationDocumentID)
	if err != nil {
		return "", err
	}

	clone := &fakeSheet{cells: make(map[[2]int]any), maxRow: source.maxRow, maxCol: source.maxCol}
	for k, v := range source.cells {
		clone.cells[k] = v
	}
	copiedTitle := "Copy of " + title
	dest.sheets[copiedTitle] = clone
	dest.order = append(dest.order, copiedTitle)
	return copiedTitle, nil
}

func (b *fakeBackend) RenameSheet(_ context.Context, documentID, oldTitle, newTitle string) error {
	doc, err := b.doc(documentID)
	if err != nil {
		return err
	}
	sheet, ok := doc.sheets[oldTitle]
	if !ok {
		return fmt.Errorf("unknown sheet %s", oldTitle)
	}
	delete(doc.sheets, oldTitle)
	doc.sheets[newTitle] = sheet
	for i, title := range doc.order {
		if title == oldTitle {
			doc.order[i] = newTitle
		}
	}
	return nil
}

func (b *fakeBackend) ClearRanges(_ context.Context, documentID string, ranges []string) error {
	for _, rng := range ranges {
		title, r1, c1, r2, c2, err := parseRange(rng)
		if err != nil {
			return err
		}
		sheet, err := b.sheet(documentID, title)
		if err != nil {
			return err
		}
		if r2 == 0 {
			r2 = sheet.maxRow
		}
		if c2 == 0 {
			c2 = sheet.maxCol
		}
		for key := range sheet.cells {
			if key[0] >= r1 && key[0] <= r2 && key[1] >= c1 && key[1] <= c2 {
				delete(sheet.cells, key)
			}
		}
	}
	return nil
}

func (b *fakeBackend) UpdateRanges(_ context.Context, documentID string, data []ValueRange) error {
	for _, vr := range data {
		title, r1, c1, _, _, err := parseRange(vr.Range)
		if err != nil {
			return err
		}
		sheet, err := b.sheet(documentID, title)
		if err != nil {
			return err
		}
		for i, row := range vr.Values {
			for j, value := range row {
				r, c := r1+i, c1+j
				sheet.cells[[2]int{r, c}] = value
				if r > sheet.maxRow {
					sheet.maxRow = r
				}
				if c > sheet.maxCol {
					sheet.maxCol = c
				}
			}
		}
	}
	return nil
}

func (b *fakeBackend) GetValues(_ context.Context, documentID, rng string) ([][]any, error) {
	title, r1, c1, r2, c2, err := parseRange(rng)
	if err != nil {
		return nil, err
	}
	sheet, err := b.sheet(documentID, title)
	if err != nil {
		return nil, err
	}
	if r2 == 0 {
		r2 = sheet.maxRow
	}
	if c2 == 0 {
		c2 = sheet.maxCol
	}

	var values [][]any
	for r := r1; r <= r2; r++ {
		var row []any
		last := -1
		for c := c1; c <= c2; c++ {
			value, ok := sheet.cells[[2]int{r, c}]
			if !ok {
				value = ""
			} else {
				last = len(row)
			}
			row = append(row, value)
		}
		if last < 0 {
			values = append(values, nil)
		} else {
			values = append(values, row[:last+1])
		}
	}
	// The API trims trailing empty rows.
	for len(values) > 0 && len(values[len(values)-1]) == 0 {
		values = values[:len(values)-1]
	}
	return values, nil
}

func (b *fakeBackend) ReorderSheets(_ context.Context, documentID string, titlesInOrder []string) error {
	b.reordered[documentID] = titlesInOrder
	return nil
}

func (b *fakeBackend) FormatHeaders(_ context.Context, documentID string) error {
	b.formatted[documentID]++
	return nil
}

// rows returns the sheet contents as a grid for assertions.
func (b *fakeBackend) rows(documentID, title string) [][]any {
	grid, err := b.GetValues(context.Background(), documentID, title)
	if err != nil {
		return nil
	}
	return grid
}

// parseRange handles "Sheet", "Sheet!A1", "Sheet!A1:C5", "Sheet!A:A",
// "Sheet!1:1" and "Sheet!A3:C". Zero bounds mean unbounded.
func parseRange(rng string) (title string, r1, c1, r2, c2 int, err error) {
	parts := strings.SplitN(rng, "!", 2)
	title = parts[0]
	r1, c1 = 1, 1
	if len(parts) == 1 {
		return title, 1, 1, 0, 0, nil
	}

	bounds := strings.SplitN(parts[1], ":", 2)
	r1, c1, err = parseCell(bounds[0], 1, 1)
	if err != nil {
		return "", 0, 0, 0, 0, fmt.Errorf("range %q: %w", rng, err)
	}
	if len(bounds) == 1 {
		return title, r1, c1, r1, c1, nil
	}
	r2, c2, err = parseCell(bounds[1], 0, 0)
	if err != nil {
		return "", 0, 0, 0, 0, fmt.Errorf("range %q: %w", rng, err)
	}
	return title, r1, c1, r2, c2, nil
}

// parseCell splits "C5" into row 5, col 3. Missing parts fall back to the
// provided defaults ("C" has no row, "5" has no column).
func parseCell(cell string, defaultRow, defaultCol int) (row, col int, err error) {
	letters := 0
	for letters < len(cell) && cell[letters] >= 'A' && cell[letters] <= 'Z' {
		letters++
	}

	col = defaultCol
	if letters > 0 {
		col = 0
		for _, ch := range cell[:letters] {
			col = col*26 + int(ch-'A') + 1
		}
	}

	row = defaultRow
	if letters < len(cell) {
		row, err = strconv.Atoi(cell[letters:])
		if err != nil {
			return 0, 0, fmt.Errorf("bad cell %q", cell)
		}
	}
	return row, col, nil
}
