package ports

import (
	"context"
	"time"
)

// AddressRegistry looks up the address a person moved to.
type AddressRegistry interface {
	CaseAddress(ctx context.Context, caseNumber string) (string, error)
}

type DocumentKind string

const (
	DocumentLetter  DocumentKind = "letter"
	DocumentInvoice DocumentKind = "invoice"
)

type Document struct {
	Kind     DocumentKind
	Title    string
	FileName string
	Content  []byte
}

// CaseSystem is the case and document store the fine is journaled in.
type CaseSystem interface {
	CreateCase(ctx context.Context, cpr, name string) (caseUUID, caseNumber string, err error)
	AddressLines(ctx context.Context, cpr string) ([]string, error)
	AttachDocument(ctx context.Context, caseUUID string, doc Document) (documentUUID string, err error)
}

// PostDelivery sends a document that is already attached to a case.
type PostDelivery interface {
	Send(ctx context.Context, caseUUID, documentUUID, cpr string) error
}

type InvoiceRequest struct {
	CPR          string
	MoveDate     time.Time
	RegisterDate time.Time
	ToAddress    string
	Amount       int
}

// Ledger creates the fine as a receivable and renders its invoice.
type Ledger interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) error
	ImmediateInvoicing(ctx context.Context, cpr string) error
	FetchInvoice(ctx context.Context, cpr string, invoiceDate time.Time) ([]byte, error)
}

type Archive interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}
