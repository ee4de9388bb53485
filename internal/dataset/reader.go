package dataset

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"MailMerge/internal/models"
)

const (
	// EmailColumn must be the first header of every uploaded dataset.
	EmailColumn = "Email"

	// AttachmentColumn carries the per-row Y/N attachment flag. It is
	// control metadata, not renderable data.
	AttachmentColumn = "Attachment"
)

var (
	ErrEmptyDataset = errors.New("dataset has no header row")
	ErrBadFormat    = errors.New("dataset is not a readable workbook")
)

// Dataset is the parsed form of an uploaded workbook: the ordered header
// row plus one Row per data row, in sheet order. Rows with an empty Email
// are kept here and skipped at dispatch time.
type Dataset struct {
	Headers []string
	Rows    []models.Row
}

// Read parses xlsx content from r. The first sheet is used; the first
// header must be "Email". Cell values are typed: integers become int64,
// other numerics float64, everything else string.
func Read(r io.Reader) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyDataset
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}
	if len(headers) == 0 || headers[0] != EmailColumn {
		return nil, fmt.Errorf("%w: first column must be %q", ErrBadFormat, EmailColumn)
	}

	attachmentIdx := -1
	for i, h := range headers {
		if h == AttachmentColumn {
			attachmentIdx = i
		}
	}

	rows := make([]models.Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := models.Row{Fields: make(map[string]any, len(headers))}

		for i, header := range headers {
			var cell string
			if i < len(record) {
				cell = strings.TrimSpace(record[i])
			}

			switch {
			case i == 0:
				row.Email = cell
			case i == attachmentIdx:
				row.WantAttachment = strings.EqualFold(cell, "Y")
			case header == "":
				// unnamed column, nothing to key the value on
			default:
				row.Fields[header] = parseValue(cell)
			}
		}

		rows = append(rows, row)
	}

	return &Dataset{Headers: headers, Rows: rows}, nil
}

// parseValue types a raw cell. Numeric strings come back from the sheet
// already formatted, so integers are tried before floats.
func parseValue(cell string) any {
	if cell == "" {
		return ""
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}
