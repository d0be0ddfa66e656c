package robot

import (
	"context"
	"testing"
	"time"

	"movefines/internal/models"
	"movefines/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct{ sent []ports.OutgoingMail }

func (m *fakeMailer) Send(_ context.Context, mail ports.OutgoingMail) error {
	m.sent = append(m.sent, mail)
	return nil
}

type fakeIntake struct{ calls int }

func (f *fakeIntake) CheckQueueAndEmail(context.Context) error {
	f.calls++
	return nil
}

type fakeReporter struct{ references []string }

func (f *fakeReporter) Report(_ context.Context, reference string) error {
	f.references = append(f.references, reference)
	return nil
}

func TestRunnerReportsSessionReference(t *testing.T) {
	c := newClock()
	q := &fakeQueue{}
	q.put(t, "e1", "a@aarhus.dk;2024-05-02T09:00:00Z", models.QueueStatusNew, newTask(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	sys := &fakeSystems{}
	r := New(q, nil, NewSteps(sys.systems(c, docx(t, "x"))), Options{QueueName: testQueue})
	r.now = c.Now

	intake := &fakeIntake{}
	reporter := &fakeReporter{}
	runner := &Runner{Robot: r, Intake: intake, Reporter: reporter}

	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopQueueEmpty, res.Stop)
	assert.Equal(t, 1, intake.calls)
	assert.Equal(t, []string{"a@aarhus.dk;2024-05-02T09:00:00Z"}, reporter.references)
}

func TestRunnerGivesUpAndMails(t *testing.T) {
	c := newClock()
	q := &fakeQueue{}
	q.put(t, "e1", "ref-a", models.QueueStatusNew, newTask(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	sys := &fakeSystems{addressErr: errBoom}
	r := New(q, nil, NewSteps(sys.systems(c, nil)), Options{QueueName: testQueue})
	r.now = c.Now

	mailer := &fakeMailer{}
	reporter := &fakeReporter{}
	runner := &Runner{Robot: r, Reporter: reporter, Mailer: mailer, ErrorEmail: "ops@aarhus.dk", MaxRetries: 3}

	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, sys.addressCalls)
	assert.Empty(t, reporter.references)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ops@aarhus.dk", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Body, "ref-a")
	assert.Contains(t, mailer.sent[0].Body, "boom")
}

func TestRunnerNoErrorMailWithoutAddress(t *testing.T) {
	c := newClock()
	q := &fakeQueue{}
	q.put(t, "e1", "ref-a", models.QueueStatusNew, newTask(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	sys := &fakeSystems{addressErr: errBoom}
	r := New(q, nil, NewSteps(sys.systems(c, nil)), Options{QueueName: testQueue})
	r.now = c.Now

	mailer := &fakeMailer{}
	_, err := (&Runner{Robot: r, Mailer: mailer, MaxRetries: 1}).Run(context.Background())
	assert.ErrorIs(t, err, ErrTooManyErrors)
	assert.Equal(t, 1, sys.addressCalls)
	assert.Empty(t, mailer.sent)
}
