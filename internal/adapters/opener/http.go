package opener

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"movefines/internal/ports"
)

// HTTPOpener fetches a file with GET. Header is copied onto every request,
// e.g. an Authorization header for an intranet file share.
type HTTPOpener struct {
	Client *http.Client
	Header http.Header
}

func NewHTTPOpener(cli *http.Client) *HTTPOpener {
	if cli == nil {
		cli = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPOpener{Client: cli, Header: http.Header{}}
}

func (h *HTTPOpener) Open(ctx context.Context, url string) (io.ReadCloser, ports.Meta, error) {
	log.Printf("[OPENER][HTTP][START] url=%q", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ports.Meta{}, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range h.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		log.Printf("[OPENER][HTTP][ERR] do request: %v", err)
		return nil, ports.Meta{}, err
	}
	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		log.Printf("[OPENER][HTTP][ERR] status=%d content_type=%q", resp.StatusCode, ct)
		return nil, ports.Meta{}, fmt.Errorf("http status %d", resp.StatusCode)
	}
	size := resp.ContentLength
	if size < 0 {
		size = -1
	}
	log.Printf("[OPENER][HTTP][OK] content_type=%q size=%d", ct, size)
	return resp.Body, ports.Meta{
		Source:      "https",
		ContentType: ct,
		Size:        size,
	}, nil
}
