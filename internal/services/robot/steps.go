package robot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"movefines/internal/models"
	"movefines/internal/ports"
	"movefines/internal/services/fines"
	"movefines/internal/services/letter"
)

const (
	LetterTitle  = "Bøde - For sent anmeldt flytning"
	InvoiceTitle = "Faktura"
)

// Step performs the side effect of one milestone and returns the fields
// it sets. It must not touch any other milestone.
type Step func(ctx context.Context, t models.Task) (models.Progress, error)

// Steps maps every milestone to the step producing it.
type Steps map[models.Milestone]Step

var ErrMissingDependency = errors.New("step dependency not configured")

// Systems are the external systems and settings the steps use.
type Systems struct {
	Addresses ports.AddressRegistry
	Cases     ports.CaseSystem
	Post      ports.PostDelivery
	Ledger    ports.Ledger

	// Template is the Word notice template.
	Template []byte
	Rates    fines.Table
	// Contact is printed on the notice as the caseworker to contact.
	Contact string
	Now     func() time.Time
}

func (s Systems) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s Systems) fine(t models.Task) (int, error) {
	rates := s.Rates
	if rates == nil {
		rates = fines.Default
	}
	return rates.RateAt(fines.FineDate(t.MoveDate))
}

// NewSteps builds the step table in milestone order.
func NewSteps(sys Systems) Steps {
	return Steps{
		models.MilestoneAddress:  sys.resolveAddress,
		models.MilestoneCase:     sys.createCase,
		models.MilestoneDocument: sys.renderLetter,
		models.MilestoneLetter:   sys.sendLetter,
		models.MilestoneInvoice:  sys.createInvoice,
		models.MilestoneJournal:  sys.journalInvoice,
	}
}

func (s Systems) resolveAddress(ctx context.Context, t models.Task) (models.Progress, error) {
	if s.Addresses == nil {
		return models.Progress{}, fmt.Errorf("%w: address registry", ErrMissingDependency)
	}
	addr, err := s.Addresses.CaseAddress(ctx, t.EflytCaseNumber)
	if err != nil {
		return models.Progress{}, err
	}
	return models.Progress{Address: &addr}, nil
}

func (s Systems) createCase(ctx context.Context, t models.Task) (models.Progress, error) {
	if s.Cases == nil {
		return models.Progress{}, fmt.Errorf("%w: case system", ErrMissingDependency)
	}
	caseUUID, caseNumber, err := s.Cases.CreateCase(ctx, t.CPR, t.Name)
	if err != nil {
		return models.Progress{}, err
	}
	return models.Progress{CaseUUID: &caseUUID, CaseNumber: &caseNumber}, nil
}

func (s Systems) renderLetter(ctx context.Context, t models.Task) (models.Progress, error) {
	if s.Cases == nil {
		return models.Progress{}, fmt.Errorf("%w: case system", ErrMissingDependency)
	}
	if len(s.Template) == 0 {
		return models.Progress{}, fmt.Errorf("%w: letter template", ErrMissingDependency)
	}
	amount, err := s.fine(t)
	if err != nil {
		return models.Progress{}, err
	}
	lines, err := s.Cases.AddressLines(ctx, t.CPR)
	if err != nil {
		return models.Progress{}, err
	}

	notice := letter.Notice{
		SendDate:     s.now(),
		RegisterDate: t.RegisterDate,
		MoveDate:     t.MoveDate,
		AddressLines: lines,
		MoveAddress:  *t.Address,
		Amount:       amount,
		Contact:      s.Contact,
		CaseNumber:   *t.CaseNumber,
	}
	content, err := letter.Render(s.Template, notice.Replacements())
	if err != nil {
		return models.Progress{}, fmt.Errorf("render letter: %w", err)
	}

	docUUID, err := s.Cases.AttachDocument(ctx, *t.CaseUUID, ports.Document{
		Kind:     ports.DocumentLetter,
		Title:    LetterTitle,
		FileName: LetterTitle + ".docx",
		Content:  content,
	})
	if err != nil {
		return models.Progress{}, err
	}
	return models.Progress{DocumentUUID: &docUUID}, nil
}

func (s Systems) sendLetter(ctx context.Context, t models.Task) (models.Progress, error) {
	if s.Post == nil {
		return models.Progress{}, fmt.Errorf("%w: post delivery", ErrMissingDependency)
	}
	if err := s.Post.Send(ctx, *t.CaseUUID, *t.DocumentUUID, t.CPR); err != nil {
		return models.Progress{}, err
	}
	sent := s.now()
	return models.Progress{LetterDate: &sent}, nil
}

func (s Systems) createInvoice(ctx context.Context, t models.Task) (models.Progress, error) {
	if s.Ledger == nil {
		return models.Progress{}, fmt.Errorf("%w: ledger", ErrMissingDependency)
	}
	amount, err := s.fine(t)
	if err != nil {
		return models.Progress{}, err
	}
	err = s.Ledger.CreateInvoice(ctx, ports.InvoiceRequest{
		CPR:          t.CPR,
		MoveDate:     t.MoveDate,
		RegisterDate: t.RegisterDate,
		ToAddress:    *t.Address,
		Amount:       amount,
	})
	if err != nil {
		return models.Progress{}, err
	}
	if err := s.Ledger.ImmediateInvoicing(ctx, t.CPR); err != nil {
		return models.Progress{}, err
	}
	invoiced := s.now()
	return models.Progress{InvoiceDate: &invoiced}, nil
}

func (s Systems) journalInvoice(ctx context.Context, t models.Task) (models.Progress, error) {
	if s.Ledger == nil || s.Cases == nil {
		return models.Progress{}, fmt.Errorf("%w: ledger or case system", ErrMissingDependency)
	}
	pdf, err := s.Ledger.FetchInvoice(ctx, t.CPR, *t.InvoiceDate)
	if err != nil {
		return models.Progress{}, err
	}
	_, err = s.Cases.AttachDocument(ctx, *t.CaseUUID, ports.Document{
		Kind:     ports.DocumentInvoice,
		Title:    InvoiceTitle,
		FileName: InvoiceTitle + ".pdf",
		Content:  pdf,
	})
	if err != nil {
		return models.Progress{}, err
	}
	journaled := s.now()
	return models.Progress{JournalDate: &journaled}, nil
}
