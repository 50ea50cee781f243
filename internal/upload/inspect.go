// Package upload describes a user-selected file before it is sent to the
// backend.
package upload

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmptyFile is returned for a selection with no content.
var ErrEmptyFile = errors.New("selected file is empty")

// Kind classifies a selected file by extension.
type Kind string

const (
	KindCSV   Kind = "csv"
	KindXLSX  Kind = "xlsx"
	KindXLS   Kind = "xls"
	KindOther Kind = "other"
)

// maxHeaderColumns caps how many header names are kept for display.
const maxHeaderColumns = 50

// Selection describes a file chosen for upload.
type Selection struct {
	Name      string   `json:"name"`
	Size      int64    `json:"size"`
	SizeLabel string   `json:"sizeLabel"`
	Kind      Kind     `json:"kind"`
	Sheet     string   `json:"sheet,omitempty"`
	Header    []string `json:"header,omitempty"`
}

// KindOf returns the kind of a file name.
func KindOf(name string) Kind {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "csv":
		return KindCSV
	case "xlsx":
		return KindXLSX
	case "xls":
		return KindXLS
	default:
		return KindOther
	}
}

// Inspect builds a Selection for the given file content. Header sniffing is
// best effort: a file whose header cannot be read is still a valid selection.
func Inspect(name string, data []byte) (*Selection, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	sel := &Selection{
		Name:      filepath.Base(name),
		Size:      int64(len(data)),
		SizeLabel: FormatSize(int64(len(data))),
		Kind:      KindOf(name),
	}

	switch sel.Kind {
	case KindCSV:
		sel.Header = csvHeader(data)
	case KindXLSX:
		sel.Sheet, sel.Header = xlsxHeader(data)
	}

	if len(sel.Header) > maxHeaderColumns {
		sel.Header = sel.Header[:maxHeaderColumns]
	}
	return sel, nil
}

func csvHeader(data []byte) []string {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if err != nil && err != io.EOF {
		return nil
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}

func xlsxHeader(data []byte) (string, []string) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", nil
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return "", nil
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return sheet, nil
	}
	defer rows.Close()

	if !rows.Next() {
		return sheet, nil
	}
	header, err := rows.Columns()
	if err != nil {
		return sheet, nil
	}
	return sheet, header
}

// FormatSize renders a byte count the way the upload panel shows it.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
