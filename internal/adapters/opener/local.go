package opener

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"

	"movefines/internal/ports"
)

// LocalOpener reads files relative to Root (or absolute paths when Root is empty).
type LocalOpener struct{ Root string }

func NewLocalOpener(root string) *LocalOpener { return &LocalOpener{Root: root} }

func (l *LocalOpener) resolve(p string) string {
	if l.Root == "" || filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(l.Root, p)
}

// Exists reports whether p names a regular file.
func (l *LocalOpener) Exists(p string) bool {
	st, err := os.Stat(l.resolve(p))
	return err == nil && st.Mode().IsRegular()
}

func (l *LocalOpener) Open(ctx context.Context, p string) (io.ReadCloser, ports.Meta, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.Meta{}, err
	}
	full := l.resolve(p)
	log.Printf("[OPENER][FILE][START] path=%q", full)
	f, err := os.Open(full)
	if err != nil {
		log.Printf("[OPENER][FILE][ERR] open: %v", err)
		return nil, ports.Meta{}, fmt.Errorf("open file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ports.Meta{}, fmt.Errorf("stat file: %w", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(full))
	log.Printf("[OPENER][FILE][OK] content_type=%q size=%d", ct, st.Size())
	return f, ports.Meta{
		Source:      "file",
		ContentType: ct,
		Size:        st.Size(),
		Path:        full,
	}, nil
}
