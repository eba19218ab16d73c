// Package workbook turns a binary spreadsheet export into named sheets of
// text rows, each row being its cells joined by Separator.
package workbook

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"
)

// Separator joins the cells of a row.
const Separator = ";"

// Sheet is a sequence of raw text rows.
type Sheet []string

// Workbook is a decoded export. SheetNames keeps the workbook order.
type Workbook struct {
	SheetNames []string
	Sheets     map[string]Sheet
}

// Decoder turns a binary payload into a Workbook.
type Decoder interface {
	Decode(data []byte) (*Workbook, error)
}

// FromRows builds a workbook from in-memory sheets, in the given name order.
func FromRows(names []string, sheets map[string]Sheet) *Workbook {
	wb := &Workbook{Sheets: make(map[string]Sheet, len(sheets))}
	for _, name := range names {
		wb.SheetNames = append(wb.SheetNames, name)
		wb.Sheets[name] = sheets[name]
	}
	return wb
}

// First returns the first sheet, or nil for an empty workbook.
func (w *Workbook) First() Sheet {
	if w == nil || len(w.SheetNames) == 0 {
		return nil
	}
	return w.Sheets[w.SheetNames[0]]
}

// Sheet looks a sheet up by name.
func (w *Workbook) Sheet(name string) (Sheet, bool) {
	if w == nil {
		return nil, false
	}
	s, ok := w.Sheets[name]
	return s, ok
}

// XLSDecoder reads legacy Excel (BIFF) files.
type XLSDecoder struct {
	Charset string
}

// NewXLSDecoder returns a decoder using the charset of the bank exports.
func NewXLSDecoder() *XLSDecoder {
	return &XLSDecoder{Charset: "cp1252"}
}

func (d *XLSDecoder) Decode(data []byte) (wb *Workbook, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty workbook payload")
	}
	// the BIFF reader panics on some truncated files
	defer func() {
		if rec := recover(); rec != nil {
			wb, err = nil, fmt.Errorf("malformed workbook: %v", rec)
		}
	}()
	book, err := xls.OpenReader(bytes.NewReader(data), d.Charset)
	if err != nil {
		return nil, fmt.Errorf("error creating workbook: %w", err)
	}

	wb = &Workbook{Sheets: make(map[string]Sheet)}
	for i := 0; i < book.NumSheets(); i++ {
		sheet := book.GetSheet(i)
		if sheet == nil {
			continue
		}
		rows := make(Sheet, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			rows = append(rows, joinRow(row(sheet, r)))
		}
		wb.SheetNames = append(wb.SheetNames, sheet.Name)
		wb.Sheets[sheet.Name] = rows
	}
	if len(wb.SheetNames) == 0 {
		return nil, fmt.Errorf("no data found in workbook")
	}
	return wb, nil
}

// row returns nil for rows the file stores no record for; the reader panics
// on them.
func row(sheet *xls.WorkSheet, i int) (r *xls.Row) {
	defer func() {
		if recover() != nil {
			r = nil
		}
	}()
	return sheet.Row(i)
}

func joinRow(row *xls.Row) string {
	if row == nil {
		return ""
	}
	cells := make([]string, 0, row.LastCol())
	for c := 0; c < row.LastCol(); c++ {
		cells = append(cells, strings.TrimSpace(row.Col(c)))
	}
	return strings.Join(cells, Separator)
}
