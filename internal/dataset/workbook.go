package dataset

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"MailMerge/internal/placeholder"
)

// DefaultBlankRows is how many empty data rows a generated workbook is
// pre-populated with.
const DefaultBlankRows = 500

// maxSheetRows is the xlsx row limit; the attachment-flag validation
// covers the whole column so rows typed beyond the pre-filled block
// keep the dropdown.
const maxSheetRows = 1048576

// BuildWorkbook generates the upload format for a template: a header row
// of Email, one column per distinct placeholder in first-occurrence
// order, and a trailing Attachment column constrained to Y/N with every
// blank row defaulted to N. Returns the serialized xlsx bytes.
func BuildWorkbook(placeholders []string, blankRows int) ([]byte, error) {
	if blankRows <= 0 {
		blankRows = DefaultBlankRows
	}

	headers := append([]string{EmailColumn}, placeholder.Unique(placeholders)...)
	headers = append(headers, AttachmentColumn)

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}

	attachmentCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return nil, fmt.Errorf("resolve attachment column: %w", err)
	}

	dv := excelize.NewDataValidation(true)
	dv.Sqref = fmt.Sprintf("%s2:%s%d", attachmentCol, attachmentCol, maxSheetRows)
	if err := dv.SetDropList([]string{"Y", "N"}); err != nil {
		return nil, fmt.Errorf("build attachment validation: %w", err)
	}
	if err := f.AddDataValidation(sheet, dv); err != nil {
		return nil, fmt.Errorf("apply attachment validation: %w", err)
	}

	for r := 2; r <= blankRows+1; r++ {
		cell := fmt.Sprintf("%s%d", attachmentCol, r)
		if err := f.SetCellValue(sheet, cell, "N"); err != nil {
			return nil, fmt.Errorf("prefill attachment flag: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
