package models

import (
	"errors"
	"fmt"
	"time"
)

type Milestone string

const (
	MilestoneAddress  Milestone = "address"
	MilestoneCase     Milestone = "case"
	MilestoneDocument Milestone = "document"
	MilestoneLetter   Milestone = "letter"
	MilestoneInvoice  Milestone = "invoice"
	MilestoneJournal  Milestone = "journal"
)

// Milestones in the order they must be reached.
var Milestones = []Milestone{
	MilestoneAddress,
	MilestoneCase,
	MilestoneDocument,
	MilestoneLetter,
	MilestoneInvoice,
	MilestoneJournal,
}

// Stage is the position of a task in the linear chain. A task in stage
// s has exactly the first s milestones set.
type Stage int

const (
	StageNew Stage = iota
	StageAddressResolved
	StageCaseCreated
	StageLetterRendered
	StageLetterSent
	StageInvoiced
	StageDone
)

var stageNames = [...]string{"new", "address_resolved", "case_created", "letter_rendered", "letter_sent", "invoiced", "done"}

func (s Stage) String() string {
	if s < StageNew || s > StageDone {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Next returns the milestone that moves a task out of this stage.
func (s Stage) Next() (Milestone, bool) {
	if s < StageNew || s >= StageDone {
		return "", false
	}
	return Milestones[s], true
}

var (
	ErrOutOfOrder     = errors.New("milestone out of order")
	ErrAlreadySet     = errors.New("milestone already set")
	ErrEmptyMilestone = errors.New("milestone not set by step")
	ErrForeignField   = errors.New("step set a field of another milestone")
	ErrBrokenPrefix   = errors.New("progress fields do not form a prefix")
)

// Progress holds the milestone fields. Every field starts nil and is
// set once, in the order of Milestones.
type Progress struct {
	Address      *string    `json:"address"`
	CaseUUID     *string    `json:"case_uuid"`
	CaseNumber   *string    `json:"case_number"`
	DocumentUUID *string    `json:"document_uuid"`
	LetterDate   *time.Time `json:"letter_date"`
	InvoiceDate  *time.Time `json:"invoice_date"`
	JournalDate  *time.Time `json:"journal_date"`
}

// fields returns how many of the milestone's fields are set and how many it has.
func (p Progress) fields(m Milestone) (set, total int) {
	count := func(ok ...bool) (int, int) {
		n := 0
		for _, b := range ok {
			if b {
				n++
			}
		}
		return n, len(ok)
	}
	switch m {
	case MilestoneAddress:
		return count(p.Address != nil)
	case MilestoneCase:
		return count(p.CaseUUID != nil, p.CaseNumber != nil)
	case MilestoneDocument:
		return count(p.DocumentUUID != nil)
	case MilestoneLetter:
		return count(p.LetterDate != nil)
	case MilestoneInvoice:
		return count(p.InvoiceDate != nil)
	case MilestoneJournal:
		return count(p.JournalDate != nil)
	}
	return 0, 0
}

// Has reports whether every field of the milestone is set.
func (p Progress) Has(m Milestone) bool {
	set, total := p.fields(m)
	return total > 0 && set == total
}

// Stage counts the leading milestones that are set.
func (p Progress) Stage() Stage {
	s := StageNew
	for _, m := range Milestones {
		if !p.Has(m) {
			break
		}
		s++
	}
	return s
}

// Validate checks the prefix invariant: no field is set after the
// first unset milestone and no milestone is half set.
func (p Progress) Validate() error {
	stage := p.Stage()
	for i, m := range Milestones {
		if Stage(i) < stage {
			continue
		}
		if set, _ := p.fields(m); set > 0 {
			return fmt.Errorf("%w: %s set at stage %s", ErrBrokenPrefix, m, stage)
		}
	}
	return nil
}

// Apply merges the result of the step for milestone m into p. The
// delta must set all fields of m and nothing else, and m must be the
// next milestone of p.
func (p Progress) Apply(m Milestone, delta Progress) (Progress, error) {
	next, ok := p.Stage().Next()
	if !ok {
		return p, fmt.Errorf("%w: %s", ErrAlreadySet, m)
	}
	if next != m {
		if p.Has(m) {
			return p, fmt.Errorf("%w: %s", ErrAlreadySet, m)
		}
		return p, fmt.Errorf("%w: %s before %s", ErrOutOfOrder, m, next)
	}
	for _, other := range Milestones {
		if other == m {
			continue
		}
		if set, _ := delta.fields(other); set > 0 {
			return p, fmt.Errorf("%w: %s while performing %s", ErrForeignField, other, m)
		}
	}
	if !delta.Has(m) {
		return p, fmt.Errorf("%w: %s", ErrEmptyMilestone, m)
	}

	switch m {
	case MilestoneAddress:
		p.Address = delta.Address
	case MilestoneCase:
		p.CaseUUID, p.CaseNumber = delta.CaseUUID, delta.CaseNumber
	case MilestoneDocument:
		p.DocumentUUID = delta.DocumentUUID
	case MilestoneLetter:
		p.LetterDate = delta.LetterDate
	case MilestoneInvoice:
		p.InvoiceDate = delta.InvoiceDate
	case MilestoneJournal:
		p.JournalDate = delta.JournalDate
	}
	return p, nil
}

// InvoiceSettledBefore reports whether the invoice milestone was set at
// or before the cutoff.
func (p Progress) InvoiceSettledBefore(cutoff time.Time) bool {
	return p.InvoiceDate != nil && !p.InvoiceDate.After(cutoff)
}
