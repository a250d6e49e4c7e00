package pointio

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX reads samples from a worksheet whose first row is the header.
func ReadXLSX(ctx context.Context, path string, cols Columns) (*Dataset, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "pointio: xlsx open file")
	}

	sheet, err := getSheet(f, cols.Sheet)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("pointio: xlsx sheet %q is empty", sheet.Name)
	}

	l, err := resolveLayout(rowToStrings(sheet.Rows[0]), cols)
	if err != nil {
		return nil, err
	}
	b := newBuilder(l.weight >= 0)

	for i, row := range sheet.Rows[1:] {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		if err := b.addRecord(cells, l, i+2); err != nil {
			return nil, err
		}
	}
	return b.dataset()
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("pointio: xlsx sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("pointio: xlsx file has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
