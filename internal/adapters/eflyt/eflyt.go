// Package eflyt looks up move cases in the eFlyt web application.
package eflyt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"movefines/internal/adapters/webform"
)

const (
	searchPrefix  = "ctl00$ContentPlaceHolder1$searchControl$"
	resultTableID = "ctl00_ContentPlaceHolder1_searchControl_GridViewSearchResult"
	loginFieldID  = "Login1_UserName"

	searchFrom = "01-01-2020"
	dateLayout = "02-01-2006"
)

var (
	ErrLoginFailed  = errors.New("eflyt login failed")
	ErrCaseNotFound = errors.New("eflyt case not found")
)

type Config struct {
	BaseURL   string // login page, e.g. https://notuskommunal.scandihealth.net/
	SearchURL string // case search page
	Username  string
	Password  string
	Timeout   time.Duration
}

// Client keeps one logged-in session for the whole run.
type Client struct {
	cfg Config
	wf  *webform.Client
	now func() time.Time

	mu       sync.Mutex
	loggedIn bool
}

func New(cfg Config, transport http.RoundTripper) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	wf, err := webform.NewClient("EFLYT", cfg.Timeout, transport)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, wf: wf, now: time.Now}, nil
}

func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	doc, err := c.wf.Get(ctx, c.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("eflyt login page: %w", err)
	}
	action, err := webform.FormAction(doc, c.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("eflyt login page: %w", err)
	}

	form := webform.FormValues(doc)
	form.Set("Login1$UserName", c.cfg.Username)
	form.Set("Login1$Password", c.cfg.Password)
	form.Set("Login1$LoginImageButton.x", "0")
	form.Set("Login1$LoginImageButton.y", "0")

	after, err := c.wf.PostForm(ctx, action, form)
	if err != nil {
		return fmt.Errorf("eflyt login: %w", err)
	}
	if webform.Find(after, webform.ByID(loginFieldID)) != nil {
		return ErrLoginFailed
	}
	c.loggedIn = true
	log.Printf("[EFLYT] logged in user=%s", c.cfg.Username)
	return nil
}

// CaseAddress searches eFlyt for the case and returns the address column
// of the first result row.
func (c *Client) CaseAddress(ctx context.Context, caseNumber string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loggedIn {
		if err := c.login(ctx); err != nil {
			return "", err
		}
	}

	page, err := c.wf.Get(ctx, c.cfg.SearchURL)
	if err != nil {
		return "", fmt.Errorf("eflyt search page: %w", err)
	}
	if webform.Find(page, webform.ByID(loginFieldID)) != nil {
		// session expired, log in again once
		c.loggedIn = false
		if err := c.login(ctx); err != nil {
			return "", err
		}
		if page, err = c.wf.Get(ctx, c.cfg.SearchURL); err != nil {
			return "", fmt.Errorf("eflyt search page: %w", err)
		}
	}

	action, err := webform.FormAction(page, c.cfg.SearchURL)
	if err != nil {
		return "", fmt.Errorf("eflyt search page: %w", err)
	}
	form := webform.FormValues(page)
	form.Set(searchPrefix+"txtSagNr", caseNumber)
	form.Set(searchPrefix+"txtdatoFra", searchFrom)
	form.Set(searchPrefix+"txtdatoTo", c.now().Format(dateLayout))
	form.Set(searchPrefix+"btnSearch", "Søg")

	result, err := c.wf.PostForm(ctx, action, form)
	if err != nil {
		return "", fmt.Errorf("eflyt search %s: %w", caseNumber, err)
	}

	address, err := webform.TableCell(result, resultTableID, 2, 5)
	if err != nil {
		if errors.Is(err, webform.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrCaseNotFound, caseNumber)
		}
		return "", err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: %s has no address", ErrCaseNotFound, caseNumber)
	}
	log.Printf("[EFLYT] case=%s address found", caseNumber)
	return address, nil
}
