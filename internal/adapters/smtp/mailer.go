// Package smtp sends notification mails through a plain SMTP relay.
package smtp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"movefines/internal/ports"
)

type Config struct {
	Host string
	Port int
	From string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Mailer struct {
	cfg  Config
	send sendFunc
	now  func() time.Time
}

func New(cfg Config) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	return &Mailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (m *Mailer) Send(ctx context.Context, mail ports.OutgoingMail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mail.To == "" {
		return errors.New("mail has no recipient")
	}
	msg, err := m.compose(mail)
	if err != nil {
		return fmt.Errorf("compose mail: %w", err)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, nil, m.cfg.From, []string{mail.To}, msg); err != nil {
		log.Printf("[MAIL][ERR] send to=%s subject=%q: %v", mail.To, mail.Subject, err)
		return fmt.Errorf("send mail: %w", err)
	}
	log.Printf("[MAIL] sent to=%s subject=%q attachments=%d", mail.To, mail.Subject, len(mail.Attachments))
	return nil
}

func (m *Mailer) compose(mail ports.OutgoingMail) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&out, "To: %s\r\n", mail.To)
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", mail.Subject))
	fmt.Fprintf(&out, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())

	textPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(textPart)
	if _, err := qp.Write([]byte(mail.Body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	for _, a := range mail.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(ct, map[string]string{"name": a.Name})},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Name})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, a.Content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	out.Write(buf.Bytes())
	return out.Bytes(), nil
}

// writeBase64 wraps the encoding at 76 characters per line.
func writeBase64(w io.Writer, content []byte) error {
	enc := base64.StdEncoding.EncodeToString(content)
	for len(enc) > 76 {
		if _, err := fmt.Fprintf(w, "%s\r\n", enc[:76]); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := fmt.Fprintf(w, "%s\r\n", enc)
	return err
}
