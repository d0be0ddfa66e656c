package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestStageFollowsMilestoneOrder(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var p Progress
	assert.Equal(t, StageNew, p.Stage())

	steps := []struct {
		m     Milestone
		delta Progress
		want  Stage
	}{
		{MilestoneAddress, Progress{Address: strPtr("Testvej 1, 8000 Aarhus C")}, StageAddressResolved},
		{MilestoneCase, Progress{CaseUUID: strPtr("c-uuid"), CaseNumber: strPtr("S2024-1")}, StageCaseCreated},
		{MilestoneDocument, Progress{DocumentUUID: strPtr("d-uuid")}, StageLetterRendered},
		{MilestoneLetter, Progress{LetterDate: timePtr(now)}, StageLetterSent},
		{MilestoneInvoice, Progress{InvoiceDate: timePtr(now)}, StageInvoiced},
		{MilestoneJournal, Progress{JournalDate: timePtr(now)}, StageDone},
	}

	for _, s := range steps {
		next, ok := p.Stage().Next()
		require.True(t, ok)
		require.Equal(t, s.m, next)

		var err error
		p, err = p.Apply(s.m, s.delta)
		require.NoError(t, err, s.m)
		assert.Equal(t, s.want, p.Stage())
		require.NoError(t, p.Validate())
	}

	_, ok := p.Stage().Next()
	assert.False(t, ok, "done has no next milestone")
}

func TestApplyRejectsOutOfOrderAndOverwrite(t *testing.T) {
	now := time.Now()
	p := Progress{Address: strPtr("a")}

	_, err := p.Apply(MilestoneInvoice, Progress{InvoiceDate: timePtr(now)})
	assert.ErrorIs(t, err, ErrOutOfOrder)

	_, err = p.Apply(MilestoneAddress, Progress{Address: strPtr("b")})
	assert.ErrorIs(t, err, ErrAlreadySet)

	_, err = p.Apply(MilestoneCase, Progress{CaseUUID: strPtr("c")})
	assert.ErrorIs(t, err, ErrEmptyMilestone, "half a case is not a case")

	_, err = p.Apply(MilestoneCase, Progress{CaseUUID: strPtr("c"), CaseNumber: strPtr("n"), DocumentUUID: strPtr("d")})
	assert.ErrorIs(t, err, ErrForeignField)

	assert.Equal(t, "a", *p.Address, "failed apply leaves the receiver untouched")
	assert.Nil(t, p.CaseUUID)
}

func TestValidateRejectsInvoiceWithoutLetter(t *testing.T) {
	now := time.Now()
	p := Progress{
		Address:      strPtr("a"),
		CaseUUID:     strPtr("c"),
		CaseNumber:   strPtr("n"),
		DocumentUUID: strPtr("d"),
		InvoiceDate:  timePtr(now),
	}
	assert.Equal(t, StageLetterRendered, p.Stage())
	assert.ErrorIs(t, p.Validate(), ErrBrokenPrefix)

	half := Progress{Address: strPtr("a"), CaseUUID: strPtr("c")}
	assert.ErrorIs(t, half.Validate(), ErrBrokenPrefix)
}

func TestTaskRoundTripThroughQueueElement(t *testing.T) {
	move := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	task := Task{
		TaskData: TaskData{
			TaskDate:        move.AddDate(0, 0, 20),
			MoveDate:        move,
			RegisterDate:    move.AddDate(0, 0, 14),
			EflytCaseNumber: "123456",
			CPR:             "0101011234",
			Name:            "Test Testesen",
		},
		Progress: Progress{Address: strPtr("Testvej 1")},
	}

	data, message, err := task.Encode()
	require.NoError(t, err)

	var asMap map[string]any
	require.NoError(t, json.Unmarshal(message, &asMap))
	assert.Contains(t, asMap, "journal_date")
	assert.Nil(t, asMap["journal_date"])

	got, err := TaskFromElement(QueueElement{ID: "qe-1", Reference: "ref", Status: QueueStatusInProgress, Data: data, Message: message})
	require.NoError(t, err)
	assert.Equal(t, "qe-1", got.QueueElementID)
	assert.Equal(t, "ref", got.Reference)
	assert.True(t, got.MoveDate.Equal(move))
	assert.Equal(t, StageAddressResolved, got.Stage())
	assert.False(t, got.Terminal())
}

func TestTaskFromElementWithoutMessage(t *testing.T) {
	got, err := TaskFromElement(QueueElement{ID: "x", Data: json.RawMessage(`{"cpr":"0101011234"}`)})
	require.NoError(t, err)
	assert.Equal(t, StageNew, got.Stage())

	_, err = TaskFromElement(QueueElement{ID: "y", Data: json.RawMessage(`{}`), Message: json.RawMessage(`{"invoice_date":"2024-01-01T00:00:00Z"}`)})
	assert.ErrorIs(t, err, ErrBrokenPrefix)
}

func TestInvoiceSettledBefore(t *testing.T) {
	inv := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := Progress{InvoiceDate: &inv}
	assert.True(t, p.InvoiceSettledBefore(inv))
	assert.True(t, p.InvoiceSettledBefore(inv.Add(time.Minute)))
	assert.False(t, p.InvoiceSettledBefore(inv.Add(-time.Minute)))
	assert.False(t, Progress{}.InvoiceSettledBefore(inv))
}
