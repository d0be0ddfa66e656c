package sheet

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"movefines/internal/models"
	"movefines/internal/utils"

	"github.com/xuri/excelize/v2"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Input columns: Dato, Flyttedato, (blank), Anmeldelsesdato, Sagsnr.,
// Flyttetype, Status, CPR-nr., Navn.
const (
	colTaskDate = iota
	colMoveDate
	_
	colRegisterDate
	colCaseNumber
	colCategories
	colStatus
	colCPR
	colName
	inputColumns
)

var ErrNoSheets = errors.New("xlsx has no sheets")

var dateLayouts = []string{
	"02-01-2006",
	"02.01.2006",
	"2006-01-02",
	"02/01/2006",
	"2006-01-02T15:04:05",
	"02-01-2006 15:04:05",
}

// ReadTasks reads one task per row of the active sheet. The first row is
// a header, blank rows are skipped.
func ReadTasks(r io.Reader) ([]models.TaskData, error) {
	start := time.Now()
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoSheets
		}
		sheet = sheets[0]
	}
	log.Printf("[SHEET] sheet=%q", sheet)

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Error()
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	log.Printf("[SHEET] header=%v", header)

	tasks := make([]models.TaskData, 0)
	line := 1
	for rows.Next() {
		line++
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if blank(cols) {
			continue
		}
		t, err := taskFromRow(cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Error(); err != nil {
		return nil, err
	}

	log.Printf("[SHEET][DONE] tasks=%d duration=%s", len(tasks), time.Since(start))
	return tasks, nil
}

func taskFromRow(cols []string) (models.TaskData, error) {
	v := func(i int) string {
		if i < len(cols) {
			return strings.TrimSpace(cols[i])
		}
		return ""
	}

	var (
		t   models.TaskData
		err error
	)
	if t.TaskDate, err = parseCellDate(v(colTaskDate)); err != nil {
		return t, fmt.Errorf("Dato: %w", err)
	}
	if t.MoveDate, err = parseCellDate(v(colMoveDate)); err != nil {
		return t, fmt.Errorf("Flyttedato: %w", err)
	}
	if t.RegisterDate, err = parseCellDate(v(colRegisterDate)); err != nil {
		return t, fmt.Errorf("Anmeldelsesdato: %w", err)
	}
	t.EflytCaseNumber = trimNumber(v(colCaseNumber))
	t.EflytCategories = v(colCategories)
	t.EflytStatus = v(colStatus)
	t.CPR = utils.NormalizeCPR(v(colCPR))
	t.Name = v(colName)

	if t.CPR == "" {
		return t, errors.New("CPR-nr. is empty")
	}
	if t.EflytCaseNumber == "" {
		return t, errors.New("Sagsnr. is empty")
	}
	return t, nil
}

// parseCellDate accepts an Excel serial date (raw cell value) or a
// formatted date string.
func parseCellDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	for _, l := range dateLayouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// trimNumber turns "123456.0" from a numeric cell back into "123456".
func trimNumber(s string) string {
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(s, ".0")); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
