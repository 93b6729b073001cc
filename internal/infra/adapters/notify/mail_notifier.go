package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/infra/logging"
)

var _ adapter.Notifier = (*MailNotifier)(nil)

const (
	reportFilename = "MarketingGenome_Report.pdf"
	failureSubject = "Issue Processing Your Content"
)

type SMTPOptions struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// SendFunc hands a finished RFC 5322 message to the transport.
type SendFunc func(ctx context.Context, from, to string, msg []byte) error

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// MailNotifier emails reports (PDF attached when the store can provide
// it) and failure notices.
type MailNotifier struct {
	opts  SMTPOptions
	store adapter.ArtifactStore
	md    goldmark.Markdown
	send  SendFunc
	log   *zerolog.Logger
}

func NewMailNotifier(opts SMTPOptions, store adapter.ArtifactStore, logger *zerolog.Logger) *MailNotifier {
	if opts.FromName == "" {
		opts.FromName = "Pixaro AI Agent"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	n := &MailNotifier{opts: opts, store: store, md: goldmark.New(), log: logger}
	n.send = n.smtpSend
	return n
}

// WithSender replaces the SMTP transport.
func (n *MailNotifier) WithSender(fn SendFunc) *MailNotifier {
	n.send = fn
	return n
}

func (n *MailNotifier) DeliverReport(ctx context.Context, to, brand string, art model.Artifact) error {
	log := logging.With(ctx, n.log)
	var atts []Attachment
	if n.store != nil && art.Key != "" {
		body, ct, err := n.store.Get(ctx, art.Key)
		if err != nil {
			log.Warn().Err(err).Str("key", art.Key).Msg("report attachment unavailable, sending link only")
		} else {
			atts = append(atts, Attachment{Filename: reportFilename, ContentType: ct, Content: body})
		}
	}
	subject := fmt.Sprintf("🧬 Your Marketing Genome Report is Ready - %s", brand)
	html, text, err := n.render(reportBody(brand, art.URL, len(atts) > 0))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	if err := n.sendMessage(ctx, to, subject, html, text, atts); err != nil {
		return err
	}
	log.Info().Str("to", logging.RedactEmail(to)).Int("attachments", len(atts)).Msg("report email sent")
	return nil
}

func (n *MailNotifier) NotifyFailure(ctx context.Context, to, brand, reason string) error {
	html, text, err := n.render(failureBody(brand, reason))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	return n.sendMessage(ctx, to, failureSubject, html, text, nil)
}

func (n *MailNotifier) render(markdown string) (string, string, error) {
	var buf bytes.Buffer
	if err := n.md.Convert([]byte(markdown), &buf); err != nil {
		return "", "", err
	}
	html := "<!DOCTYPE html><html><body style=\"font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;\">" +
		buf.String() + "</body></html>"
	return html, markdown, nil
}

func (n *MailNotifier) sendMessage(ctx context.Context, to, subject, html, text string, atts []Attachment) error {
	msg, err := BuildMessage(n.opts.FromName, n.opts.FromEmail, to, subject, html, text, atts)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()
	if err := n.send(ctx, n.opts.FromEmail, to, msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDelivery, err)
	}
	return nil
}

func (n *MailNotifier) smtpSend(ctx context.Context, from, to string, msg []byte) error {
	if n.opts.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	addr := net.JoinHostPort(n.opts.Host, strconv.Itoa(n.opts.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	c, err := smtp.NewClient(conn, n.opts.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.opts.Host}); err != nil {
			return err
		}
	}
	if n.opts.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
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

// BuildMessage writes a multipart/mixed message with text and HTML
// alternatives plus attachments.
func BuildMessage(fromName, from, to, subject, html, text string, atts []Attachment) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: fromName, Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	for _, alt := range []struct{ ct, body string }{{"text/plain", text}, {"text/html", html}} {
		var ih mail.InlineHeader
		ih.SetContentType(alt.ct, map[string]string{"charset": "utf-8"})
		if err := writePart(func() (io.WriteCloser, error) { return iw.CreatePart(ih) }, []byte(alt.body)); err != nil {
			return nil, err
		}
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}

	for _, a := range atts {
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		var ah mail.AttachmentHeader
		ah.SetContentType(ct, nil)
		ah.SetFilename(a.Filename)
		if err := writePart(func() (io.WriteCloser, error) { return mw.CreateAttachment(ah) }, a.Content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(create func() (io.WriteCloser, error), body []byte) error {
	w, err := create()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func reportBody(brand, url string, attached bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 🧬 Your Marketing Genome Report is Ready\n\n")
	fmt.Fprintf(&b, "Hello! We finished analysing **%s**.\n\n", brand)
	b.WriteString("## What's inside\n\n")
	b.WriteString("- **Brand DNA Analysis:** personality, audience, values and positioning\n")
	b.WriteString("- **Competitive Intelligence:** key competitors, gaps and advantages\n")
	b.WriteString("- **90-Day Growth Roadmap:** month-by-month actions and KPIs\n")
	b.WriteString("- **Content Strategy Blueprint:** pillars, content mix and cadence\n\n")
	if attached {
		fmt.Fprintf(&b, "Your complete report is attached as `%s`.", reportFilename)
	} else {
		b.WriteString("Your complete report is ready to download.")
	}
	if url != "" {
		fmt.Fprintf(&b, " You can also [download it here](%s).", url)
	}
	b.WriteString("\n\n## How to use this report\n\n")
	b.WriteString("1. Review your Brand DNA\n")
	b.WriteString("2. Study the competitor analysis\n")
	b.WriteString("3. Follow the 90-day roadmap\n")
	b.WriteString("4. Implement the content strategy\n\n")
	b.WriteString("**Best regards,**  \nPixaro AI Team\n")
	return b.String()
}

func failureBody(brand, reason string) string {
	display := brand
	if r := []rune(display); len(r) > 50 {
		display = string(r[:50]) + "..."
	}
	var b strings.Builder
	b.WriteString("# ⚠️ Processing Issue\n\n")
	b.WriteString("Hello! We encountered an issue while generating your Marketing Genome report.\n\n")
	fmt.Fprintf(&b, "**Brand:** %s\n\n", display)
	fmt.Fprintf(&b, "**Error details:** `%s`\n\n", strings.ReplaceAll(reason, "`", "'"))
	b.WriteString("Please try again. If the issue persists, contact our support team.\n\n")
	b.WriteString("**Best regards,**  \nPixaro AI Team\n")
	return b.String()
}
