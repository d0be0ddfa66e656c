// Package intake turns request mails and uploaded spreadsheets into queue
// elements and reports progress back to the requester.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"slices"
	"sort"
	"strings"
	"time"

	"movefines/internal/models"
	"movefines/internal/ports"
	"movefines/internal/services/sheet"

	"github.com/google/uuid"
)

var (
	ErrNoAttachment = errors.New("request mail has no spreadsheet attachment")
	ErrInvalidSheet = errors.New("invalid spreadsheet")
	ErrEmptySheet   = errors.New("spreadsheet has no tasks")
)

type Config struct {
	QueueName     string
	ApprovedUsers []string
	CreatedBy     string
}

type Service struct {
	Queue   ports.Queue
	Mailbox ports.Mailbox
	Mailer  ports.Mailer
	// Archive is optional.
	Archive ports.Archive

	cfg Config
	now func() time.Time
}

func NewService(q ports.Queue, mb ports.Mailbox, mailer ports.Mailer, archive ports.Archive, cfg Config) *Service {
	if cfg.CreatedBy == "" {
		cfg.CreatedBy = "Robot"
	}
	return &Service{Queue: q, Mailbox: mb, Mailer: mailer, Archive: archive, cfg: cfg, now: time.Now}
}

// CheckQueueAndEmail takes at most one approved request from the inbox,
// and only when the queue has no new or in-progress elements. Requests
// from users that are not approved are rejected and deleted on the way.
func (s *Service) CheckQueueAndEmail(ctx context.Context) error {
	busy, err := s.queueBusy(ctx)
	if err != nil {
		return err
	}
	if busy {
		log.Printf("[INTAKE] queue %q has open elements, inbox not checked", s.cfg.QueueName)
		return nil
	}
	if s.Mailbox == nil {
		return nil
	}

	mails, err := s.Mailbox.ListRequests(ctx)
	if err != nil {
		return fmt.Errorf("list request mails: %w", err)
	}
	sort.SliceStable(mails, func(i, j int) bool { return mails[i].Received.Before(mails[j].Received) })

	for _, m := range mails {
		req, err := ParseRequest(m.Body)
		if err != nil {
			log.Printf("[INTAKE][SKIP] mail=%s: %v", m.ID, err)
			continue
		}
		if !s.approved(req.Ident) {
			log.Printf("[INTAKE][REJECT] mail=%s ident=%s", m.ID, req.Ident)
			if err := s.send(ctx, req.Email, subjectRejected, bodyRejected, nil); err != nil {
				return err
			}
			if err := s.Mailbox.Delete(ctx, m); err != nil {
				return fmt.Errorf("delete rejected mail: %w", err)
			}
			continue
		}
		return s.accept(ctx, m, req)
	}
	return nil
}

// accept queues the request before the mail is deleted and acknowledged, so
// a failed insert leaves the mail for the next pass. A mail without a
// readable spreadsheet is answered with a rejection and deleted.
func (s *Service) accept(ctx context.Context, m ports.Mail, req Request) error {
	atts, err := s.Mailbox.Attachments(ctx, m)
	if err != nil {
		return fmt.Errorf("request attachments: %w", err)
	}
	att, ok := spreadsheet(atts)
	if !ok {
		return s.refuse(ctx, m, req, ErrNoAttachment)
	}
	tasks, err := parse(att.Content)
	if err != nil {
		return s.refuse(ctx, m, req, err)
	}

	ref, err := s.insert(ctx, req.Email, tasks, att.Content)
	if err != nil {
		return err
	}
	if err := s.Mailbox.Delete(ctx, m); err != nil {
		s.rollback(ctx, ref)
		return fmt.Errorf("delete accepted mail: %w", err)
	}
	if err := s.send(ctx, req.Email, subjectAccepted, bodyAccepted, nil); err != nil {
		log.Printf("[INTAKE][ERR] reference=%q queued but not acknowledged: %v", ref, err)
	}
	log.Printf("[INTAKE][ACCEPT] mail=%s ident=%s reference=%q tasks=%d", m.ID, req.Ident, ref, len(tasks))
	return nil
}

func (s *Service) refuse(ctx context.Context, m ports.Mail, req Request, cause error) error {
	log.Printf("[INTAKE][REJECT] mail=%s ident=%s: %v", m.ID, req.Ident, cause)
	if err := s.send(ctx, req.Email, subjectRejected, fmt.Sprintf(bodyInvalidSheet, cause), nil); err != nil {
		return err
	}
	if err := s.Mailbox.Delete(ctx, m); err != nil {
		return fmt.Errorf("delete rejected mail: %w", err)
	}
	return nil
}

// Enqueue archives the spreadsheet and creates one queue element per row
// under a fresh reference. Nothing is left behind on failure.
func (s *Service) Enqueue(ctx context.Context, receiver string, xlsx []byte) (string, int, error) {
	tasks, err := parse(xlsx)
	if err != nil {
		return "", 0, err
	}
	ref, err := s.insert(ctx, receiver, tasks, xlsx)
	if err != nil {
		return "", 0, err
	}
	return ref, len(tasks), nil
}

func parse(xlsx []byte) ([]models.TaskData, error) {
	tasks, err := sheet.ReadTasks(bytes.NewReader(xlsx))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSheet, err)
	}
	if len(tasks) == 0 {
		return nil, ErrEmptySheet
	}
	return tasks, nil
}

func (s *Service) insert(ctx context.Context, receiver string, tasks []models.TaskData, xlsx []byte) (string, error) {
	now := s.now()
	reference := receiver + ";" + now.Format(time.RFC3339)

	for i, td := range tasks {
		data, _, err := models.Task{TaskData: td}.Encode()
		if err == nil {
			_, err = s.Queue.CreateElement(ctx, s.cfg.QueueName, reference, data, s.cfg.CreatedBy)
		}
		if err != nil {
			s.rollback(ctx, reference)
			return "", fmt.Errorf("create queue element %d: %w", i+1, err)
		}
	}
	s.archive(ctx, path.Join("requests", now.Format("2006-01-02"), uuid.NewString()+".xlsx"), xlsx)
	log.Printf("[INTAKE] reference=%q tasks=%d", reference, len(tasks))
	return reference, nil
}

func (s *Service) rollback(ctx context.Context, reference string) {
	n, err := s.Queue.DeleteReference(context.WithoutCancel(ctx), s.cfg.QueueName, reference)
	if err != nil {
		log.Printf("[INTAKE][ERR] rollback %q: %v", reference, err)
		return
	}
	log.Printf("[INTAKE] rolled back %d elements of %q", n, reference)
}

// Tasks returns the tasks of a reference in creation order.
func (s *Service) Tasks(ctx context.Context, reference string) ([]models.Task, error) {
	elems, err := s.Queue.ListElements(ctx, models.QueueFilter{QueueName: s.cfg.QueueName, Reference: reference})
	if err != nil {
		return nil, fmt.Errorf("list reference %q: %w", reference, err)
	}
	tasks := make([]models.Task, 0, len(elems))
	for _, qe := range elems {
		t, err := models.TaskFromElement(qe)
		if err != nil {
			log.Printf("[INTAKE][ERR] skipping unreadable element %s: %v", qe.ID, err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Report mails the state of every task of the reference to the requester:
// a result when all are done, a status otherwise.
func (s *Service) Report(ctx context.Context, reference string) error {
	tasks, err := s.Tasks(ctx, reference)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		log.Printf("[INTAKE] nothing to report on %q", reference)
		return nil
	}
	xlsx, err := sheet.WriteTasks(tasks)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	done := true
	for _, t := range tasks {
		if !t.Terminal() {
			done = false
			break
		}
	}
	subject, body := subjectStatus, bodyStatus
	if done {
		subject, body = subjectResult, bodyResult
	}

	receiver, _, _ := strings.Cut(reference, ";")
	s.archive(ctx, path.Join("reports", s.now().Format("2006-01-02"), uuid.NewString()+".xlsx"), xlsx)

	att := []ports.Attachment{{Name: ReportFileName, ContentType: sheet.ContentType, Content: xlsx}}
	if err := s.send(ctx, receiver, subject, body, att); err != nil {
		return err
	}
	log.Printf("[INTAKE][REPORT] reference=%q tasks=%d done=%t", reference, len(tasks), done)
	return nil
}

func (s *Service) queueBusy(ctx context.Context) (bool, error) {
	for _, st := range []models.QueueStatus{models.QueueStatusInProgress, models.QueueStatusNew} {
		elems, err := s.Queue.ListElements(ctx, models.QueueFilter{QueueName: s.cfg.QueueName, Status: st, Limit: 1})
		if err != nil {
			return false, fmt.Errorf("check queue: %w", err)
		}
		if len(elems) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) approved(ident string) bool {
	return slices.ContainsFunc(s.cfg.ApprovedUsers, func(u string) bool { return strings.EqualFold(u, ident) })
}

func (s *Service) send(ctx context.Context, to, subject, body string, atts []ports.Attachment) error {
	if s.Mailer == nil {
		return errors.New("mailer not configured")
	}
	err := s.Mailer.Send(ctx, ports.OutgoingMail{To: to, Subject: subject, Body: body, Attachments: atts})
	if err != nil {
		return fmt.Errorf("mail %q to %s: %w", subject, to, err)
	}
	return nil
}

// archive keeps a copy; failures are logged, not returned.
func (s *Service) archive(ctx context.Context, key string, xlsx []byte) {
	if s.Archive == nil {
		return
	}
	if _, err := s.Archive.Put(ctx, key, sheet.ContentType, xlsx); err != nil {
		log.Printf("[INTAKE][ERR] archive %s: %v", key, err)
	}
}

func spreadsheet(atts []ports.Attachment) (ports.Attachment, bool) {
	for _, a := range atts {
		if strings.HasSuffix(strings.ToLower(a.Name), ".xlsx") || a.ContentType == sheet.ContentType {
			return a, true
		}
	}
	if len(atts) > 0 {
		return atts[0], true
	}
	return ports.Attachment{}, false
}
