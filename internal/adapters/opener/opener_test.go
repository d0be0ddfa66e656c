package opener

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"movefines/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseS3URL(t *testing.T) {
	cases := []struct {
		in          string
		bucket, key string
		wantErr     bool
	}{
		{"s3://templates/letters/bode.docx", "templates", "letters/bode.docx", false},
		{"s3://templates/", "", "", true},
		{"s3:///key", "", "", true},
		{"http://x/y", "", "", true},
	}
	for _, c := range cases {
		b, k, err := parseS3URL(c.in)
		if c.wantErr {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.bucket, b)
		assert.Equal(t, c.key, k)
	}
}

func TestCompoundOpenerLocalFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brev.docx"), []byte("docx"), 0o600))

	op := NewCompoundOpener(nil, nil, NewLocalOpener(dir), "")

	b, meta, err := ports.ReadFile(context.Background(), op, "brev.docx")
	require.NoError(t, err)
	assert.Equal(t, "docx", string(b))
	assert.Equal(t, "file", meta.Source)
	assert.Equal(t, filepath.Join(dir, "brev.docx"), meta.Path)

	_, _, err = op.Open(context.Background(), "missing.docx")
	assert.ErrorContains(t, err, "missing bucket")
}

func TestCompoundOpenerHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, "template")
	}))
	defer srv.Close()

	httpOp := NewHTTPOpener(srv.Client())
	op := NewCompoundOpener(httpOp, nil, nil, "")

	_, _, err := op.Open(context.Background(), srv.URL+"/brev.docx")
	assert.ErrorContains(t, err, "401")

	httpOp.Header.Set("Authorization", "Bearer t")
	b, meta, err := ports.ReadFile(context.Background(), op, srv.URL+"/brev.docx")
	require.NoError(t, err)
	assert.Equal(t, "template", string(b))
	assert.Equal(t, "application/octet-stream", meta.ContentType)
}

func TestCompoundOpenerUnconfigured(t *testing.T) {
	op := NewCompoundOpener(nil, nil, nil, "")
	_, _, err := op.Open(context.Background(), "s3://b/k")
	assert.ErrorContains(t, err, "s3 opener not configured")
	_, _, err = op.Open(context.Background(), "https://example.invalid/x")
	assert.ErrorContains(t, err, "http opener not configured")
}
