// Package webform drives server-rendered HTML applications: it keeps a
// cookie session, posts forms back with their hidden state and finds
// elements in the returned documents.
package webform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

var ErrNotFound = errors.New("element not found")

type Client struct {
	HTTP *http.Client
	tag  string
}

// NewClient returns a client with its own cookie jar. tag prefixes log lines.
func NewClient(tag string, timeout time.Duration, transport http.RoundTripper) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		HTTP: &http.Client{Jar: jar, Timeout: timeout, Transport: transport},
		tag:  tag,
	}, nil
}

// Get fetches a page and parses it.
func (c *Client) Get(ctx context.Context, rawURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// PostForm submits values url-encoded, as a browser posts a form.
func (c *Client) PostForm(ctx context.Context, rawURL string, values url.Values) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

// Cookie returns the value of a session cookie set for rawURL.
func (c *Client) Cookie(rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil || c.HTTP.Jar == nil {
		return ""
	}
	for _, ck := range c.HTTP.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) do(req *http.Request) (*html.Node, error) {
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.Printf("[%s][HTTP][ERR] %s %s: %v", c.tag, req.Method, req.URL.Path, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s %s: http status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	doc, err := Parse(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	log.Printf("[%s][HTTP] %s %s status=%d duration=%s", c.tag, req.Method, req.URL.Path, resp.StatusCode, time.Since(start))
	return doc, nil
}

// Parse decodes r according to contentType (falling back to sniffing) and
// parses it as HTML.
func Parse(r io.Reader, contentType string) (*html.Node, error) {
	utf8, err := charset.NewReader(r, contentType)
	if err != nil {
		return nil, fmt.Errorf("charset: %w", err)
	}
	doc, err := html.Parse(utf8)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Find returns the first node in document order for which match is true.
func Find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := Find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every matching node in document order.
func FindAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

func ByID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Type == html.ElementNode && Attr(n, "id") == id }
}

func ByName(name string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Type == html.ElementNode && Attr(n, "name") == name }
}

func ByTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == tag }
}

func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Text is the whitespace-collapsed text content of n.
func Text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		case n.Type == html.ElementNode && (n.Data == "br" || n.Data == "p" || n.Data == "div"):
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FormValues collects the named inputs of the first form under n: hidden
// state such as __VIEWSTATE plus the current values of text fields.
// Submit buttons are left out; the caller adds the one it presses.
func FormValues(n *html.Node) url.Values {
	v := url.Values{}
	form := Find(n, ByTag("form"))
	if form == nil {
		form = n
	}
	for _, in := range FindAll(form, ByTag("input")) {
		name := Attr(in, "name")
		if name == "" {
			continue
		}
		switch strings.ToLower(Attr(in, "type")) {
		case "submit", "image", "button", "reset":
			continue
		case "checkbox", "radio":
			if !hasAttr(in, "checked") {
				continue
			}
		}
		v.Set(name, Attr(in, "value"))
	}
	return v
}

// FormAction resolves the action of the first form against base.
func FormAction(n *html.Node, base string) (string, error) {
	form := Find(n, ByTag("form"))
	if form == nil {
		return "", fmt.Errorf("form: %w", ErrNotFound)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	a, err := url.Parse(Attr(form, "action"))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(a).String(), nil
}

// TableCell returns the text of cell col of row in the table with the
// given id. row and col are 1-based and count header rows.
func TableCell(doc *html.Node, tableID string, row, col int) (string, error) {
	table := Find(doc, ByID(tableID))
	if table == nil {
		return "", fmt.Errorf("table %s: %w", tableID, ErrNotFound)
	}
	rows := FindAll(table, ByTag("tr"))
	if row < 1 || row > len(rows) {
		return "", fmt.Errorf("table %s row %d: %w", tableID, row, ErrNotFound)
	}
	var cells []*html.Node
	for c := rows[row-1].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, c)
		}
	}
	if col < 1 || col > len(cells) {
		return "", fmt.Errorf("table %s row %d col %d: %w", tableID, row, col, ErrNotFound)
	}
	return Text(cells[col-1]), nil
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
