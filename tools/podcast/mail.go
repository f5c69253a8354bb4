package podcast

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petasbytes/toolloop/internal/fsops"
)

// Message is one email digest.
type Message struct {
	From     string
	To       []string
	Subject  string
	Body     string
	Priority string // low, normal or high
	Date     time.Time
}

// Receipt records how a digest left the process.
type Receipt struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Transport string `json:"transport"`
	Path      string `json:"path,omitempty"`
	MessageID string `json:"message_id"`
	SentAt    string `json:"sent_at"`
}

// Mailer delivers digests.
type Mailer interface {
	Send(ctx context.Context, m Message) (Receipt, error)
}

var xPriority = map[string]string{"high": "1 (Highest)", "normal": "3 (Normal)", "low": "5 (Lowest)"}

// render produces an RFC 5322 message with a plain-text UTF-8 body.
func render(m Message, id string) []byte {
	var b bytes.Buffer
	hdr := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	hdr("From", m.From)
	hdr("To", strings.Join(m.To, ", "))
	hdr("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	hdr("Date", m.Date.Format(time.RFC1123Z))
	hdr("Message-ID", "<"+id+">")
	if p, ok := xPriority[m.Priority]; ok {
		hdr("X-Priority", p)
	}
	hdr("MIME-Version", "1.0")
	hdr("Content-Type", "text/plain; charset=utf-8")
	hdr("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func messageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = strings.Trim(from[at+1:], "> ")
	}
	return uuid.NewString() + "@" + domain
}

// SMTPMailer sends through an SMTP relay with PLAIN auth when a username is set.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (s SMTPMailer) Send(ctx context.Context, m Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if len(m.To) == 0 {
		return Receipt{}, fmt.Errorf("send digest: no recipients configured")
	}
	port := s.Port
	if port == 0 {
		port = 587
	}
	id := messageID(m.From)
	addr := net.JoinHostPort(s.Host, strconv.Itoa(port))
	if err := s.deliver(ctx, addr, m.From, m.To, render(m, id)); err != nil {
		return Receipt{}, fmt.Errorf("send digest via %s: %w", addr, err)
	}
	return Receipt{
		Success:   true,
		Message:   "Email sent successfully",
		Transport: "smtp",
		MessageID: id,
		SentAt:    m.Date.Format(time.RFC3339),
	}, nil
}

// deliver runs one SMTP transaction bound to ctx: the dial honours it and
// the connection is closed when ctx ends.
func (s SMTPMailer) deliver(ctx context.Context, addr, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Hello("localhost"); err != nil {
		return err
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return err
		}
	}
	if s.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.Username, s.Password, s.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// OutboxMailer writes each digest as an .eml file under Dir in the sandbox.
type OutboxMailer struct {
	Sandbox *fsops.Sandbox
	Dir     string
}

var slugRE = regexp.MustCompile(`[^a-z0-9]+`)

func (o OutboxMailer) Send(ctx context.Context, m Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	slug := strings.Trim(slugRE.ReplaceAllString(strings.ToLower(m.Subject), "-"), "-")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	if slug == "" {
		slug = "digest"
	}
	id := messageID(m.From)
	name := path.Join(o.Dir, m.Date.UTC().Format("20060102T150405Z")+"-"+slug+"-"+id[:8]+".eml")
	abs, err := o.Sandbox.WriteFile(name, render(m, id))
	if err != nil {
		return Receipt{}, fmt.Errorf("write digest to outbox: %w", err)
	}
	return Receipt{
		Success:   true,
		Message:   "Email written to outbox",
		Transport: "outbox",
		Path:      abs,
		MessageID: id,
		SentAt:    m.Date.Format(time.RFC3339),
	}, nil
}
