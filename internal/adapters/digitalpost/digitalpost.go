// Package digitalpost sends a journaled Nova document as Digital Post
// through the Nova web application's own endpoint.
package digitalpost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"movefines/internal/adapters/webform"
	"movefines/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

const (
	Title = "Bøde - For sent anmeldt flytning"

	tokenField = "__RequestVerificationToken"
	tokenAttr  = "ncg-request-verification-token"
)

var ErrLoginFailed = errors.New("digital post login failed")

type Config struct {
	LoginURL string // Nova logon page
	AppURL   string // page that carries the request verification token
	SendURL  string // .../api/ServiceRelayer/kmdnova/v1/digitalpost/SendDigitalPost
	Username string
	Password string

	// EncryptionKey is the Nova "Key" object, passed through verbatim.
	EncryptionKey json.RawMessage

	AgreementID    string
	AgreementName  string
	DocumentTypeID string
	Timeout        time.Duration
}

type Client struct {
	cfg Config
	wf  *webform.Client

	mu    sync.Mutex
	token string
}

func New(cfg Config, transport http.RoundTripper) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.AgreementID == "" {
		cfg.AgreementID, cfg.AgreementName = "af3156e4-c3b0-4c53-ad5f-a3b8c36f89d1", "Aarhus"
	}
	if cfg.DocumentTypeID == "" {
		cfg.DocumentTypeID = "22fdd50b-b888-4bfd-b019-6399fd0f93f2"
	}
	if len(cfg.EncryptionKey) == 0 {
		cfg.EncryptionKey = json.RawMessage("null")
	}
	wf, err := webform.NewClient("DP", cfg.Timeout, transport)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, wf: wf}, nil
}

func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	c.token = ""
	page, err := c.wf.Get(ctx, c.cfg.LoginURL)
	if err != nil {
		return fmt.Errorf("nova logon page: %w", err)
	}
	action, err := webform.FormAction(page, c.cfg.LoginURL)
	if err != nil {
		return fmt.Errorf("nova logon page: %w", err)
	}
	form := webform.FormValues(page)
	form.Set(inputName(page, "inputUsername", "username"), c.cfg.Username)
	form.Set(inputName(page, "inputPassword", "password"), c.cfg.Password)
	if _, err := c.wf.PostForm(ctx, action, form); err != nil {
		return fmt.Errorf("nova logon: %w", err)
	}

	app, err := c.wf.Get(ctx, c.cfg.AppURL)
	if err != nil {
		return fmt.Errorf("nova app page: %w", err)
	}
	el := webform.Find(app, webform.ByName(tokenField))
	if el == nil {
		return ErrLoginFailed
	}
	token := webform.Attr(el, tokenAttr)
	if token == "" {
		token = webform.Attr(el, "value")
	}
	if token == "" {
		return ErrLoginFailed
	}
	c.token = token
	log.Printf("[DP] logged in user=%s", c.cfg.Username)
	return nil
}

func inputName(doc *html.Node, id, fallback string) string {
	if n := webform.Find(doc, webform.ByID(id)); n != nil {
		if name := webform.Attr(n, "name"); name != "" {
			return name
		}
	}
	return fallback
}

// Send posts the document as Digital Post to the person.
func (c *Client) Send(ctx context.Context, caseUUID, documentUUID, cpr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" {
		if err := c.login(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(map[string]any{"digitalPost": c.payload(caseUUID, documentUUID, cpr)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SendURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("RequestVerificationToken", c.token)
	req.AddCookie(&http.Cookie{Name: "kmdNovaIndstillingerCurrent", Value: "Standardgruppe"})

	resp, err := c.wf.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("send digital post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.token = ""
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send digital post: http status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	log.Printf("[DP] sent document=%s case=%s cpr=%s", documentUUID, caseUUID, utils.MaskCPR(cpr))
	return nil
}

func (c *Client) payload(caseUUID, documentUUID, cpr string) map[string]any {
	return map[string]any{
		"BatchId": uuid.NewString(),
		"Title":   Title,
		"Channel": map[string]any{
			"Code": "DIGITALPOST",
			"Name": "Send til Digital Post / KMD Print",
		},
		"PostPriority": "B",
		"Key":          c.cfg.EncryptionKey,
		"DocumentType": map[string]any{
			"Id":                c.cfg.DocumentTypeID,
			"Description":       "Oprettet af KMD",
			"Name":              "KMDSAGBREV1",
			"ShowReceipt":       false,
			"AcceptReply":       true,
			"CanCaseworkerEdit": true,
			"PostPriority":      "B",
			"IsDefault":         true,
		},
		"AgreementKey": map[string]any{
			"Id":   c.cfg.AgreementID,
			"Name": c.cfg.AgreementName,
		},
		"AcceptReply":            true,
		"RemoveBlankAddressPage": false,
		"IsMassMerge":            false,
		"Recipients": []any{
			map[string]any{
				"SearchObjectType":        "Person",
				"SearchObjectSubCategory": 0,
				"Id":                      cpr,
				"Country": map[string]any{
					"Country":     map[string]any{"Code": "DK", "Name": "Danmark"},
					"AnotherCode": false,
					"CountryCode": nil,
				},
			},
		},
		"MainDocument": map[string]any{
			"Silo":            "UNKNOWN",
			"DocumentId":      documentUUID,
			"DocumentVersion": 1,
			"MetadataId":      documentUUID,
			"DocumentName":    Title,
			"FileType":        "docx",
		},
		"Attachments": []any{},
		"CaseId":      caseUUID,
	}
}
