// Package sap creates fines as receivables in SAP through an HTTP gateway
// and fetches the rendered invoices.
package sap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"movefines/internal/ports"
	"movefines/internal/utils"

	"github.com/sethvargo/go-retry"
)

const (
	mainTransaction = "FKRB"
	subTransaction  = "FK01"
	claimType       = "KFFORBØ"
	receiverCode    = "02"
	createdMessage  = "Krav(ene) blev oprettet."

	dateLayout = "02.01.2006"
)

var (
	ErrInvoiceNotCreated = errors.New("sap did not confirm the invoice")
	ErrAccountNotFound   = errors.New("sap contract account not found")
	ErrInvoiceNotFound   = errors.New("sap invoice not found")
	ErrTooManyInvoices   = errors.New("sap found more than one invoice")
)

type Config struct {
	BaseURL  string
	Username string
	Password string

	// Contract account immediate invoicing runs on.
	Account        string
	InvoiceProcess string

	PollInterval time.Duration
	PollTimeout  time.Duration
	Timeout      time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func New(cfg Config, transport http.RoundTripper) *Client {
	if cfg.Account == "" {
		cfg.Account = "Magistratsafdelingen - MKB"
	}
	if cfg.InvoiceProcess == "" {
		cfg.InvoiceProcess = "FI"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 2 * time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		now:  time.Now,
	}
}

type invoiceLine struct {
	Amount             int    `json:"amount"`
	PeriodFrom         string `json:"periodFrom"`
	PeriodTo           string `json:"periodTo"`
	FoundationDate     string `json:"foundationDate"`
	ValueDate          string `json:"valueDate"`
	MainTransaction    string `json:"mainTransaction"`
	SubTransaction     string `json:"subTransaction"`
	ClaimType          string `json:"claimType"`
	PaymentReceiverKey string `json:"paymentReceiverCode"`
	PaymentReceiver    string `json:"paymentReceiver"`
	ServiceReceiverKey string `json:"serviceReceiverCode"`
	ServiceReceiver    string `json:"serviceReceiver"`
}

type invoiceRequest struct {
	Partner      string        `json:"partner"`
	Transaction  string        `json:"transaction"`
	Reference    string        `json:"reference"`
	DueDate      string        `json:"dueDate"`
	TextLines    []string      `json:"textLines"`
	InvoiceLines []invoiceLine `json:"lines"`
}

// CreateInvoice registers the fine as a claim on the person.
func (c *Client) CreateInvoice(ctx context.Context, req ports.InvoiceRequest) error {
	period := req.MoveDate.AddDate(0, 0, 14).Format(dateLayout)
	registered := req.RegisterDate.Format(dateLayout)

	body := invoiceRequest{
		Partner:     req.CPR,
		Transaction: mainTransaction,
		Reference:   req.CPR,
		DueDate:     registered,
		TextLines: []string{
			"Folkeregisterbøde - CPR-lovens §§ 57-58",
			"For sent anmeldt flytning " + registered,
			"til " + req.ToAddress,
		},
		InvoiceLines: []invoiceLine{{
			Amount:             req.Amount,
			PeriodFrom:         period,
			PeriodTo:           period,
			FoundationDate:     period,
			ValueDate:          c.now().Format(dateLayout),
			MainTransaction:    mainTransaction,
			SubTransaction:     subTransaction,
			ClaimType:          claimType,
			PaymentReceiverKey: receiverCode,
			PaymentReceiver:    req.CPR,
			ServiceReceiverKey: receiverCode,
			ServiceReceiver:    req.CPR,
		}},
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/invoices", body, &resp); err != nil {
		return fmt.Errorf("sap create invoice: %w", err)
	}
	if resp.Message != createdMessage {
		return fmt.Errorf("%w: cpr=%s message=%q", ErrInvoiceNotCreated, utils.MaskCPR(req.CPR), resp.Message)
	}
	log.Printf("[SAP] invoice created cpr=%s amount=%d", utils.MaskCPR(req.CPR), req.Amount)
	return nil
}

// ImmediateInvoicing runs invoicing at once on the configured account of the person.
func (c *Client) ImmediateInvoicing(ctx context.Context, cpr string) error {
	var accounts []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/partners/"+url.PathEscape(cpr)+"/accounts", nil, &accounts); err != nil {
		return fmt.Errorf("sap accounts: %w", err)
	}
	accountID := ""
	for _, a := range accounts {
		if a.Name == c.cfg.Account {
			accountID = a.ID
			break
		}
	}
	if accountID == "" {
		return fmt.Errorf("%w: %q", ErrAccountNotFound, c.cfg.Account)
	}

	body := map[string]string{
		"partner": cpr,
		"process": c.cfg.InvoiceProcess,
		"account": accountID,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/invoicing/immediate", body, nil); err != nil {
		return fmt.Errorf("sap immediate invoicing: %w", err)
	}
	log.Printf("[SAP] immediate invoicing done cpr=%s", utils.MaskCPR(cpr))
	return nil
}

type printDocument struct {
	ID              string `json:"id"`
	Date            string `json:"date"`
	ContactRelation string `json:"contactRelation"`
}

// FetchInvoice waits for the fine invoice of the given day to be printed
// and returns the PDF.
func (c *Client) FetchInvoice(ctx context.Context, cpr string, invoiceDate time.Time) ([]byte, error) {
	day := invoiceDate.Format(dateLayout)

	var docID string
	backoff := retry.WithMaxDuration(c.cfg.PollTimeout, retry.NewConstant(c.cfg.PollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var docs []printDocument
		if err := c.doJSON(ctx, http.MethodGet, "/partners/"+url.PathEscape(cpr)+"/documents", nil, &docs); err != nil {
			return err
		}
		var matches []string
		for _, d := range docs {
			if d.Date == day && strings.HasPrefix(d.ContactRelation, mainTransaction) {
				matches = append(matches, d.ID)
			}
		}
		switch len(matches) {
		case 0:
			return retry.RetryableError(ErrInvoiceNotFound)
		case 1:
			docID = matches[0]
			return nil
		default:
			return fmt.Errorf("%w: %d on %s", ErrTooManyInvoices, len(matches), day)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("sap invoice cpr=%s date=%s: %w", utils.MaskCPR(cpr), day, err)
	}

	pdf, err := c.get(ctx, "/documents/"+url.PathEscape(docID)+"/pdf")
	if err != nil {
		return nil, fmt.Errorf("sap invoice pdf %s: %w", docID, err)
	}
	log.Printf("[SAP] invoice pdf fetched document=%s size=%d", docID, len(pdf))
	return pdf, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	raw, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(b) > 512 {
			b = b[:512]
		}
		return nil, fmt.Errorf("%s %s: http status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(b))
	}
	return b, nil
}
