// Package nova talks to the KMD Nova case and document API.
package nova

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"movefines/internal/ports"
	"movefines/internal/utils"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	CaseTitle       = "Bøder efter CPR lovens § 57"
	kleNumber       = "23.05.13"
	proceedingFacet = "G01"
	sensitivity     = "Fortrolige"
	progressState   = "Opstaaet"
	description     = "Oprettet af robot."

	letterCategory  = "92e1a314-d0f7-4b99-b199-1ecd88f3a999"
	invoiceCategory = "aa015e27-669c-4934-a661-46900351f0aa"
)

var ErrCaseNotFound = errors.New("nova case not found after creation")

type Caseworker struct {
	Name  string
	Ident string
	UUID  string
}

type Department struct {
	ID      int
	Name    string
	UserKey string
}

type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	APIVersion   string

	Caseworker Caseworker
	Department Department

	// The new case is looked up PollAttempts times, PollInterval apart.
	PollAttempts uint64
	PollInterval time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

// New returns a client authenticated with the client-credentials grant.
func New(ctx context.Context, cfg Config) *Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	hc := cc.Client(ctx)
	hc.Timeout = 60 * time.Second
	return NewWithHTTP(cfg, hc)
}

// NewWithHTTP uses hc as is; it must already attach credentials.
func NewWithHTTP(cfg Config, hc *http.Client) *Client {
	if cfg.PollAttempts == 0 {
		cfg.PollAttempts = 5
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2.0-Case"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc, now: time.Now}
}

// CreateCase imports a new case on the person and waits until Nova has
// assigned it a case number.
func (c *Client) CreateCase(ctx context.Context, cpr, name string) (string, string, error) {
	caseUUID := uuid.NewString()
	dept := c.department()

	req := caseImport{
		Common: common{TransactionID: uuid.NewString(), UUID: caseUUID},
		CaseAttributes: caseAttributes{
			Title:    CaseTitle,
			CaseDate: c.now().Format("2006-01-02T15:04:05"),
		},
		CaseClassification: classification{
			KleNumber:       codeRef{Code: kleNumber},
			ProceedingFacet: codeRef{Code: proceedingFacet},
		},
		State:       progressState,
		Sensitivity: sensitivity,
		CaseParties: []caseParty{{
			Index:              uuid.NewString(),
			IdentificationType: "CprNummer",
			Identification:     cpr,
			PartyRole:          "Primær",
			Name:               name,
		}},
		Caseworker:            c.caseworker(),
		ResponsibleDepartment: dept,
		SecurityUnit:          dept,
	}
	if err := c.post(ctx, "/api/Case/Import", req, nil); err != nil {
		return "", "", fmt.Errorf("nova import case: %w", err)
	}
	log.Printf("[NOVA] case imported uuid=%s cpr=%s", caseUUID, utils.MaskCPR(cpr))

	var caseNumber string
	backoff := retry.WithMaxRetries(c.cfg.PollAttempts-1, retry.NewConstant(c.cfg.PollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		n, err := c.findCaseNumber(ctx, cpr, caseUUID)
		if err != nil {
			return err
		}
		if n == "" {
			return retry.RetryableError(ErrCaseNotFound)
		}
		caseNumber = n
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("nova case %s: %w", caseUUID, err)
	}
	log.Printf("[NOVA] case uuid=%s number=%s", caseUUID, caseNumber)
	return caseUUID, caseNumber, nil
}

func (c *Client) findCaseNumber(ctx context.Context, cpr, caseUUID string) (string, error) {
	req := caseList{
		Common:         common{TransactionID: uuid.NewString()},
		Paging:         paging{StartRow: 1, NumberOfRows: 100},
		CaseAttributes: caseAttributes{Title: CaseTitle},
		CaseParty:      partyFilter{IdentificationType: "CprNummer", Identification: cpr},
	}
	var resp caseListResponse
	if err := c.post(ctx, "/api/Case/GetList", req, &resp); err != nil {
		return "", fmt.Errorf("nova list cases: %w", err)
	}
	for _, cs := range resp.Cases {
		if cs.Common.UUID == caseUUID {
			return cs.CaseAttributes.CaseNumber, nil
		}
	}
	return "", nil
}

// AddressLines returns the five postal address lines registered in CPR,
// padded with empty lines.
func (c *Client) AddressLines(ctx context.Context, cpr string) ([]string, error) {
	req := addressRequest{TransactionID: uuid.NewString(), Cpr: cpr}
	var resp addressResponse
	if err := c.post(ctx, "/api/Cpr/GetAddressByCpr", req, &resp); err != nil {
		return nil, fmt.Errorf("nova address %s: %w", utils.MaskCPR(cpr), err)
	}
	a := resp.Address
	lines := []string{a.AddressLine1, a.AddressLine2, a.AddressLine3, a.AddressLine4, a.AddressLine5}
	if strings.TrimSpace(strings.Join(lines, "")) == "" {
		return nil, fmt.Errorf("nova address %s: empty address", utils.MaskCPR(cpr))
	}
	return lines, nil
}

// AttachDocument uploads the file and journals it on the case.
func (c *Client) AttachDocument(ctx context.Context, caseUUID string, doc ports.Document) (string, error) {
	docUUID := uuid.NewString()
	if err := c.upload(ctx, docUUID, doc.FileName, doc.Content); err != nil {
		return "", fmt.Errorf("nova upload %s: %w", doc.FileName, err)
	}

	docType, category := "Udgående", letterCategory
	if doc.Kind == ports.DocumentInvoice {
		docType, category = "Internt", invoiceCategory
	}
	req := documentImport{
		Common:           common{TransactionID: uuid.NewString(), UUID: docUUID},
		CaseUUID:         caseUUID,
		Title:            doc.Title,
		Sensitivity:      sensitivity,
		DocumentType:     docType,
		DocumentCategory: uuidRef{UUID: category},
		Description:      description,
		ApprovedState:    "Godkendt",
		Caseworker:       c.caseworker(),
		DocumentDate:     c.now().Format("2006-01-02T15:04:05"),
	}
	if err := c.post(ctx, "/api/Document/Import", req, nil); err != nil {
		return "", fmt.Errorf("nova attach %s: %w", doc.FileName, err)
	}
	log.Printf("[NOVA] document %s attached case=%s kind=%s", docUUID, caseUUID, doc.Kind)
	return docUUID, nil
}

func (c *Client) caseworker() caseworkerRef {
	var r caseworkerRef
	r.KSPIdentity.NovaUserID = c.cfg.Caseworker.UUID
	r.KSPIdentity.RacfID = c.cfg.Caseworker.Ident
	r.KSPIdentity.FullName = c.cfg.Caseworker.Name
	return r
}

func (c *Client) department() departmentRef {
	var r departmentRef
	r.LosIdentity.AdministrativeUnitID = c.cfg.Department.ID
	r.LosIdentity.FullName = c.cfg.Department.Name
	r.LosIdentity.UserKey = c.cfg.Department.UserKey
	return r
}
