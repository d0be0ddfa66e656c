package sheet

import (
	"bytes"
	"testing"
	"time"

	"movefines/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildInput(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []any{"Dato", "Flyttedato", "", "Anmeldelsesdato", "Sagsnr.", "Flyttetype", "Status", "CPR-nr.", "Navn"}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i, r := range rows {
		row := r
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadTasks(t *testing.T) {
	move := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	input := buildInput(t, [][]any{
		{move.AddDate(0, 0, 30), move, "", move.AddDate(0, 0, 20), 123456, "Indflytning", "Afsluttet", "0101011234", "Test Testesen"},
		{"", "", "", "", "", "", "", "", ""},
		{"05-03-2024", "01.02.2024", "", "2024-02-21", "654321", "Udflytning", "Åben", "101011234", "Anden Person"},
	})

	tasks, err := ReadTasks(bytes.NewReader(input))
	require.NoError(t, err)
	require.Len(t, tasks, 2, "blank rows are skipped")

	first := tasks[0]
	assert.True(t, first.MoveDate.Equal(move), "serial date: %s", first.MoveDate)
	assert.True(t, first.RegisterDate.Equal(move.AddDate(0, 0, 20)))
	assert.Equal(t, "123456", first.EflytCaseNumber)
	assert.Equal(t, "Indflytning", first.EflytCategories)
	assert.Equal(t, "0101011234", first.CPR)
	assert.Equal(t, "Test Testesen", first.Name)

	second := tasks[1]
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), second.TaskDate)
	assert.Equal(t, move, second.MoveDate)
	assert.Equal(t, "0101011234", second.CPR, "nine digit CPR is padded")
}

func TestReadTasksRejectsBadRow(t *testing.T) {
	input := buildInput(t, [][]any{
		{"05-03-2024", "not a date", "", "2024-02-21", "654321", "", "", "0101011234", "X"},
	})
	_, err := ReadTasks(bytes.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.Contains(t, err.Error(), "Flyttedato")
}

func TestReadTasksRejectsMissingCPR(t *testing.T) {
	input := buildInput(t, [][]any{
		{"05-03-2024", "01-02-2024", "", "21-02-2024", "654321", "", "", "", "X"},
	})
	_, err := ReadTasks(bytes.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CPR")
}

func TestWriteTasks(t *testing.T) {
	move := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	letter := time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)
	addr := "Testvej 1"
	tasks := []models.Task{
		{
			TaskData: models.TaskData{
				TaskDate: move, MoveDate: move, RegisterDate: move,
				EflytCaseNumber: "123456", CPR: "0101011234", Name: "Test Testesen",
			},
			Progress: models.Progress{Address: &addr, LetterDate: &letter},
		},
	}

	out, err := WriteTasks(tasks)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Journalisering dato", rows[0][11])
	assert.Equal(t, "123456", rows[1][4])
	assert.Equal(t, "Test Testesen", rows[1][8])
	assert.Equal(t, "02-04-2024", rows[1][9])
	assert.Len(t, rows[1], 10, "unset milestones leave trailing cells empty")
}
