package robot

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"movefines/internal/models"
	"movefines/internal/ports"

	"github.com/stretchr/testify/require"
)

const testQueue = "Folkeregisterbøder"

var errBoom = errors.New("boom")

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)} }

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

type fakeQueue struct {
	mu    sync.Mutex
	elems []models.QueueElement
	sets  int
}

func (q *fakeQueue) put(t *testing.T, id, ref string, status models.QueueStatus, task models.Task) {
	t.Helper()
	data, msg, err := task.Encode()
	require.NoError(t, err)
	q.elems = append(q.elems, models.QueueElement{
		ID: id, QueueName: testQueue, Reference: ref, Status: status, Data: data, Message: msg,
	})
}

func (q *fakeQueue) get(id string) models.QueueElement {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.elems {
		if e.ID == id {
			return e
		}
	}
	return models.QueueElement{}
}

func (q *fakeQueue) task(t *testing.T, id string) models.Task {
	t.Helper()
	task, err := models.TaskFromElement(q.get(id))
	require.NoError(t, err)
	return task
}

func (q *fakeQueue) CreateElement(_ context.Context, queueName, reference string, data []byte, createdBy string) (models.QueueElement, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := models.QueueElement{ID: reference + "-" + string(rune('a'+len(q.elems))), QueueName: queueName, Reference: reference, Status: models.QueueStatusNew, Data: data, CreatedBy: createdBy}
	q.elems = append(q.elems, e)
	return e, nil
}

func (q *fakeQueue) ListElements(_ context.Context, f models.QueueFilter) ([]models.QueueElement, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.QueueElement
	for _, e := range q.elems {
		if f.QueueName != "" && e.QueueName != f.QueueName {
			continue
		}
		if f.Reference != "" && e.Reference != f.Reference {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (q *fakeQueue) SetStatus(_ context.Context, id string, status models.QueueStatus, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.elems {
		if q.elems[i].ID == id {
			q.elems[i].Status = status
			q.elems[i].Message = message
			q.sets++
			return nil
		}
	}
	return errors.New("not found")
}

func (q *fakeQueue) DeleteReference(_ context.Context, queueName, reference string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.elems[:0]
	var n int64
	for _, e := range q.elems {
		if e.QueueName == queueName && e.Reference == reference {
			n++
			continue
		}
		kept = append(kept, e)
	}
	q.elems = kept
	return n, nil
}

type fakeJournal struct{ entries []models.StepEntry }

func (j *fakeJournal) Record(_ context.Context, e models.StepEntry) { j.entries = append(j.entries, e) }

// fakeSystems implements every external port the steps use.
type fakeSystems struct {
	addressErr error
	caseErr    error
	fetchErr   error

	addressCalls int
	cases        int
	documents    []ports.Document
	sent         []string
	invoices     []ports.InvoiceRequest
	immediate    int
}

func (f *fakeSystems) CaseAddress(_ context.Context, caseNumber string) (string, error) {
	f.addressCalls++
	if f.addressErr != nil {
		return "", f.addressErr
	}
	return "Testvej 1, 8000 Aarhus C", nil
}

func (f *fakeSystems) CreateCase(_ context.Context, cpr, name string) (string, string, error) {
	if f.caseErr != nil {
		return "", "", f.caseErr
	}
	f.cases++
	return "case-uuid", "S2024-42", nil
}

func (f *fakeSystems) AddressLines(context.Context, string) ([]string, error) {
	return []string{"Test Testesen", "Testvej 1", "8000 Aarhus C"}, nil
}

func (f *fakeSystems) AttachDocument(_ context.Context, caseUUID string, doc ports.Document) (string, error) {
	f.documents = append(f.documents, doc)
	return "doc-uuid", nil
}

func (f *fakeSystems) Send(_ context.Context, caseUUID, documentUUID, cpr string) error {
	f.sent = append(f.sent, documentUUID)
	return nil
}

func (f *fakeSystems) CreateInvoice(_ context.Context, req ports.InvoiceRequest) error {
	f.invoices = append(f.invoices, req)
	return nil
}

func (f *fakeSystems) ImmediateInvoicing(context.Context, string) error {
	f.immediate++
	return nil
}

func (f *fakeSystems) FetchInvoice(context.Context, string, time.Time) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return []byte("%PDF"), nil
}

func (f *fakeSystems) systems(c *clock, template []byte) Systems {
	return Systems{
		Addresses: f,
		Cases:     f,
		Post:      f,
		Ledger:    f,
		Template:  template,
		Contact:   "Borgerservice",
		Now:       c.Now,
	}
}

func docx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:t>` + body + `</w:t></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readDocx(t *testing.T, b []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		var out bytes.Buffer
		_, err = out.ReadFrom(rc)
		require.NoError(t, err)
		return out.String()
	}
	t.Fatal("document.xml missing")
	return ""
}

func newTask(move time.Time) models.Task {
	return models.Task{TaskData: models.TaskData{
		TaskDate:        move.AddDate(0, 0, 30),
		MoveDate:        move,
		RegisterDate:    move.AddDate(0, 0, 20),
		EflytCaseNumber: "123456",
		CPR:             "0101011234",
		Name:            "Test Testesen",
	}}
}
