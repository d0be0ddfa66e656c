package sheet

import (
	"fmt"
	"time"

	"movefines/internal/models"

	"github.com/xuri/excelize/v2"
)

var reportHeader = []any{
	"Dato", "Flyttedato", "", "Anmeldelsesdato", "Sagsnr.", "Flyttetype", "Status",
	"CPR-nr.", "Navn", "Brev dato", "Faktura dato", "Journalisering dato",
}

var dateColumns = []string{"A", "B", "D", "J", "K", "L"}

// WriteTasks renders tasks as the status/result spreadsheet sent back to
// the requester.
func WriteTasks(tasks []models.Task) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	dateFmt := "dd-mm-yyyy"
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return nil, fmt.Errorf("date style: %w", err)
	}
	for _, col := range dateColumns {
		if err := f.SetColStyle(sheet, col, dateStyle); err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, 14); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "I", "I", 28); err != nil {
		return nil, err
	}

	header := reportHeader
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, t := range tasks {
		row := []any{
			t.TaskDate, t.MoveDate, "", t.RegisterDate,
			t.EflytCaseNumber, t.EflytCategories, t.EflytStatus, t.CPR, t.Name,
			optionalDate(t.LetterDate), optionalDate(t.InvoiceDate), optionalDate(t.JournalDate),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func optionalDate(t *time.Time) any {
	if t == nil {
		return ""
	}
	return *t
}
