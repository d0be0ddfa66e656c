package sap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"movefines/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	t *testing.T

	mu          sync.Mutex
	message     string
	invoices    []invoiceRequest
	immediate   []map[string]string
	accounts    string
	docs        string
	docsAfter   int
	docListHits int
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if u, p, ok := r.BasicAuth(); !ok || u != "robot" || p != "pw" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/invoices":
		var req invoiceRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.invoices = append(f.invoices, req)
		fmt.Fprintf(w, `{"message":%q}`, f.message)
	case r.URL.Path == "/partners/0101011234/accounts":
		fmt.Fprint(w, f.accounts)
	case r.URL.Path == "/invoicing/immediate":
		var body map[string]string
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.immediate = append(f.immediate, body)
	case r.URL.Path == "/partners/0101011234/documents":
		f.docListHits++
		if f.docListHits <= f.docsAfter {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, f.docs)
	case r.URL.Path == "/documents/d2/pdf":
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.7")
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, fake *fakeGateway) *Client {
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c := New(Config{
		BaseURL:      srv.URL,
		Username:     "robot",
		Password:     "pw",
		PollInterval: time.Millisecond,
		PollTimeout:  50 * time.Millisecond,
	}, nil)
	c.now = func() time.Time { return time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC) }
	return c
}

func TestCreateInvoice(t *testing.T) {
	fake := &fakeGateway{t: t, message: createdMessage}
	c := newTestClient(t, fake)

	err := c.CreateInvoice(context.Background(), ports.InvoiceRequest{
		CPR:          "0101011234",
		MoveDate:     time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		RegisterDate: time.Date(2024, 2, 21, 0, 0, 0, 0, time.UTC),
		ToAddress:    "Testvej 1, 8000 Aarhus C",
		Amount:       945,
	})
	require.NoError(t, err)

	require.Len(t, fake.invoices, 1)
	inv := fake.invoices[0]
	assert.Equal(t, "21.02.2024", inv.DueDate)
	assert.Equal(t, "For sent anmeldt flytning 21.02.2024", inv.TextLines[1])
	assert.Equal(t, "til Testvej 1, 8000 Aarhus C", inv.TextLines[2])
	line := inv.InvoiceLines[0]
	assert.Equal(t, 945, line.Amount)
	assert.Equal(t, "15.02.2024", line.PeriodFrom)
	assert.Equal(t, "02.05.2024", line.ValueDate)
	assert.Equal(t, "KFFORBØ", line.ClaimType)
}

func TestCreateInvoiceNotConfirmed(t *testing.T) {
	c := newTestClient(t, &fakeGateway{t: t, message: "Fejl i partner"})
	err := c.CreateInvoice(context.Background(), ports.InvoiceRequest{CPR: "0101011234"})
	assert.ErrorIs(t, err, ErrInvoiceNotCreated)
}

func TestImmediateInvoicing(t *testing.T) {
	fake := &fakeGateway{t: t, accounts: `[{"id":"1","name":"Borgerservice"},{"id":"7","name":"Magistratsafdelingen - MKB"}]`}
	c := newTestClient(t, fake)

	require.NoError(t, c.ImmediateInvoicing(context.Background(), "0101011234"))
	require.Len(t, fake.immediate, 1)
	assert.Equal(t, map[string]string{"partner": "0101011234", "process": "FI", "account": "7"}, fake.immediate[0])

	fake.accounts = `[{"id":"1","name":"Borgerservice"}]`
	assert.ErrorIs(t, c.ImmediateInvoicing(context.Background(), "0101011234"), ErrAccountNotFound)
}

func TestFetchInvoice(t *testing.T) {
	invoiceDate := time.Date(2024, 5, 2, 13, 0, 0, 0, time.UTC)

	t.Run("waits for the print", func(t *testing.T) {
		fake := &fakeGateway{t: t, docsAfter: 2, docs: `[
			{"id":"d1","date":"01.05.2024","contactRelation":"FKRB-1"},
			{"id":"d2","date":"02.05.2024","contactRelation":"FKRB-2"},
			{"id":"d3","date":"02.05.2024","contactRelation":"RENO"}]`}
		pdf, err := newTestClient(t, fake).FetchInvoice(context.Background(), "0101011234", invoiceDate)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.7", string(pdf))
		assert.Equal(t, 3, fake.docListHits)
	})

	t.Run("not found", func(t *testing.T) {
		fake := &fakeGateway{t: t, docs: `[{"id":"d1","date":"01.05.2024","contactRelation":"FKRB-1"}]`}
		_, err := newTestClient(t, fake).FetchInvoice(context.Background(), "0101011234", invoiceDate)
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	})

	t.Run("ambiguous", func(t *testing.T) {
		fake := &fakeGateway{t: t, docs: `[
			{"id":"d1","date":"02.05.2024","contactRelation":"FKRB-1"},
			{"id":"d2","date":"02.05.2024","contactRelation":"FKRB-2"}]`}
		_, err := newTestClient(t, fake).FetchInvoice(context.Background(), "0101011234", invoiceDate)
		assert.ErrorIs(t, err, ErrTooManyInvoices)
		assert.Equal(t, 1, fake.docListHits, "ambiguity is not retried")
	})
}
