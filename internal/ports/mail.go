package ports

import (
	"context"
	"time"
)

type Mail struct {
	ID       string
	Sender   string
	Subject  string
	Received time.Time
	Body     string
}

type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

type OutgoingMail struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailbox reads fine requests from the robot's inbox folder.
type Mailbox interface {
	ListRequests(ctx context.Context) ([]Mail, error)
	Attachments(ctx context.Context, mail Mail) ([]Attachment, error)
	Delete(ctx context.Context, mail Mail) error
}

type Mailer interface {
	Send(ctx context.Context, mail OutgoingMail) error
}
