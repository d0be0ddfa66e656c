// Package graph reads fine requests from an Exchange mailbox through
// Microsoft Graph.
package graph

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
	"sync"
	"time"

	"movefines/internal/adapters/webform"
	"movefines/internal/ports"

	"golang.org/x/oauth2"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

var ErrFolderNotFound = errors.New("mail folder not found")

type Config struct {
	BaseURL  string
	TenantID string
	ClientID string
	Username string
	Password string

	// Mailbox owner; the folder path is relative to its root, e.g.
	// "Indbakke/Folkeregisterbøder".
	Mailbox string
	Folder  string
	Sender  string
	Subject string
}

type Mailbox struct {
	cfg  Config
	http *http.Client

	mu       sync.Mutex
	folderID string
}

// Login gets a token with the resource-owner password grant and returns a
// mailbox whose client refreshes it.
func Login(ctx context.Context, cfg Config) (*Mailbox, error) {
	oc := &oauth2.Config{
		ClientID: cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL: "https://login.microsoftonline.com/" + url.PathEscape(cfg.TenantID) + "/oauth2/v2.0/token",
		},
		Scopes: []string{"https://graph.microsoft.com/.default"},
	}
	tok, err := oc.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("graph token: %w", err)
	}
	hc := oauth2.NewClient(ctx, oc.TokenSource(ctx, tok))
	hc.Timeout = 60 * time.Second
	return New(cfg, hc), nil
}

// New uses hc as is; it must already attach credentials.
func New(cfg Config, hc *http.Client) *Mailbox {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Mailbox{cfg: cfg, http: hc}
}

type message struct {
	ID               string    `json:"id"`
	Subject          string    `json:"subject"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	From             struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

// ListRequests returns the mails in the folder from the configured sender
// with the configured subject, oldest first.
func (m *Mailbox) ListRequests(ctx context.Context) ([]ports.Mail, error) {
	folder, err := m.folder(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("$select", "id,subject,from,receivedDateTime,body")
	q.Set("$orderby", "receivedDateTime asc")
	q.Set("$top", "50")
	next := m.userURL("/mailFolders/"+url.PathEscape(folder)+"/messages") + "?" + q.Encode()

	var mails []ports.Mail
	for next != "" {
		var page struct {
			Value    []message `json:"value"`
			NextLink string    `json:"@odata.nextLink"`
		}
		if err := m.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("graph list messages: %w", err)
		}
		for _, msg := range page.Value {
			if !strings.EqualFold(msg.From.EmailAddress.Address, m.cfg.Sender) || msg.Subject != m.cfg.Subject {
				continue
			}
			mails = append(mails, ports.Mail{
				ID:       msg.ID,
				Sender:   msg.From.EmailAddress.Address,
				Subject:  msg.Subject,
				Received: msg.ReceivedDateTime,
				Body:     bodyText(msg.Body.ContentType, msg.Body.Content),
			})
		}
		next = page.NextLink
	}
	log.Printf("[MAIL] folder=%q requests=%d", m.cfg.Folder, len(mails))
	return mails, nil
}

func (m *Mailbox) Attachments(ctx context.Context, mail ports.Mail) ([]ports.Attachment, error) {
	var resp struct {
		Value []struct {
			Name         string `json:"name"`
			ContentType  string `json:"contentType"`
			ContentBytes []byte `json:"contentBytes"`
		} `json:"value"`
	}
	if err := m.getJSON(ctx, m.userURL("/messages/"+url.PathEscape(mail.ID)+"/attachments"), &resp); err != nil {
		return nil, fmt.Errorf("graph attachments: %w", err)
	}
	out := make([]ports.Attachment, 0, len(resp.Value))
	for _, a := range resp.Value {
		out = append(out, ports.Attachment{Name: a.Name, ContentType: a.ContentType, Content: a.ContentBytes})
	}
	return out, nil
}

// Delete moves the mail to Deleted Items.
func (m *Mailbox) Delete(ctx context.Context, mail ports.Mail) error {
	body, _ := json.Marshal(map[string]string{"destinationId": "deleteditems"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.userURL("/messages/"+url.PathEscape(mail.ID)+"/move"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := m.do(req); err != nil {
		return fmt.Errorf("graph delete mail: %w", err)
	}
	log.Printf("[MAIL] deleted id=%s", mail.ID)
	return nil
}

// folder resolves the configured folder path once per mailbox.
func (m *Mailbox) folder(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.folderID != "" {
		return m.folderID, nil
	}

	parts := strings.Split(strings.Trim(m.cfg.Folder, "/"), "/")
	list := m.userURL("/mailFolders")
	id := ""
	for _, name := range parts {
		q := url.Values{}
		q.Set("$filter", "displayName eq '"+strings.ReplaceAll(name, "'", "''")+"'")
		var resp struct {
			Value []struct {
				ID string `json:"id"`
			} `json:"value"`
		}
		if err := m.getJSON(ctx, list+"?"+q.Encode(), &resp); err != nil {
			return "", fmt.Errorf("graph folder %q: %w", name, err)
		}
		if len(resp.Value) == 0 {
			return "", fmt.Errorf("%w: %s", ErrFolderNotFound, m.cfg.Folder)
		}
		id = resp.Value[0].ID
		list = m.userURL("/mailFolders/" + url.PathEscape(id) + "/childFolders")
	}
	m.folderID = id
	return id, nil
}

func (m *Mailbox) userURL(path string) string {
	return m.cfg.BaseURL + "/users/" + url.PathEscape(m.cfg.Mailbox) + path
}

func (m *Mailbox) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	b, err := m.do(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func (m *Mailbox) do(req *http.Request) ([]byte, error) {
	resp, err := m.http.Do(req)
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

func bodyText(contentType, content string) string {
	if !strings.EqualFold(contentType, "html") {
		return strings.Join(strings.Fields(content), " ")
	}
	doc, err := webform.Parse(strings.NewReader(content), "text/html; charset=utf-8")
	if err != nil {
		return content
	}
	return webform.Text(doc)
}
