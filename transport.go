package mailer

import (
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	gomail "gopkg.in/gomail.v2"
)

// Standard submission ports, used when the caller doesn't set one:
// implicit-TLS SMTP listens on 465, STARTTLS submission on 587.
const (
	defaultTLSPort    = 465
	defaultSubmitPort = 587
)

// Transport is the handle the Mailer dispatches merged messages through.
// Implementations own everything on the wire, from dialing and TLS to the
// SMTP conversation itself. The Mailer relays a Transport's result and
// error to callers verbatim.
type Transport interface {
	SendMail(m *gomail.Message) (*SendResult, error)
}

// Envelope is the sender and recipients a message was addressed with.
type Envelope struct {
	From string
	To   []string
}

// SendResult reports a successful handoff to the SMTP server.
type SendResult struct {
	// MessageID is the value of the generated Message-Id header,
	// including its angle brackets.
	MessageID string
	Envelope  Envelope
}

// smtpTransport sends merged messages through an SMTP server, using a
// gomail dialer built once at construction and shared across sends.
type smtpTransport struct {
	dialer *gomail.Dialer
}

func newSMTPTransport(c *Config) (*smtpTransport, error) {
	port := c.Port()
	if port == 0 {
		if c.Secure() {
			port = defaultTLSPort
		} else {
			port = defaultSubmitPort
		}
	}

	tlsc, err := c.TLS().clientConfig(c.Hostname())
	if err != nil {
		return nil, err
	}

	auth := c.Auth()
	return &smtpTransport{
		dialer: &gomail.Dialer{
			Host:      c.Hostname(),
			Port:      port,
			Username:  auth.User,
			Password:  auth.Pass,
			SSL:       c.Secure(),
			TLSConfig: tlsc,
			LocalName: c.Name(),
		},
	}, nil
}

// SendMail implements Transport. A lack of an error means the message was
// received by the destination SMTP server.
func (t *smtpTransport) SendMail(m *gomail.Message) (*SendResult, error) {
	if err := t.dialer.DialAndSend(m); err != nil {
		return nil, err
	}
	return resultFromPayload(m), nil
}

// buildPayload merges a checked message and its attachments into the single
// payload the transport sends. This is also where the Message-Id header is
// stamped, since the underlying library doesn't generate one.
func buildPayload(msg Message, attachments []Attachment, hostname string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", splitAddressList(msg.To)...)
	if msg.Cc != "" {
		m.SetHeader("Cc", splitAddressList(msg.Cc)...)
	}
	if msg.Bcc != "" {
		m.SetHeader("Bcc", splitAddressList(msg.Bcc)...)
	}
	if msg.Subject != "" {
		m.SetHeader("Subject", msg.Subject)
	}
	m.SetHeader("Message-Id", fmt.Sprintf("<%v@%v>", uuid.New(), hostname))

	// With both bodies present, text/plain goes first: MIME clients
	// prefer the last alternative part they can display.
	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	case msg.Text != "":
		m.SetBody("text/plain", msg.Text)
	}

	for i, a := range attachments {
		name := a.Filename
		if name == "" {
			name = fmt.Sprintf("attachment-%v", i+1)
		}
		m.Attach(name, gomail.SetCopyFunc(a.copyFunc()))
	}
	return m
}

// splitAddressList breaks a comma-separated address list into one string
// per address, since the transport reads each header entry as a single
// address. An unparseable list passes through unsplit so the SMTP server
// gets the final say on malformed addresses.
func splitAddressList(list string) []string {
	addrs, err := mail.ParseAddressList(list)
	if err != nil {
		return []string{list}
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		if a.Name == "" {
			out[i] = a.Address
		} else {
			out[i] = a.String()
		}
	}
	return out
}

// resultFromPayload reports the Message-Id and envelope of a sent payload.
// Bcc recipients count toward the envelope like any others.
func resultFromPayload(m *gomail.Message) *SendResult {
	res := &SendResult{}
	if from := m.GetHeader("From"); len(from) > 0 {
		res.Envelope.From = bareAddress(from[0])
	}
	for _, field := range []string{"To", "Cc", "Bcc"} {
		for _, a := range m.GetHeader(field) {
			res.Envelope.To = append(res.Envelope.To, bareAddress(a))
		}
	}
	if id := m.GetHeader("Message-Id"); len(id) > 0 {
		res.MessageID = id[0]
	}
	return res
}

// bareAddress strips the display name, leaving the address itself.
func bareAddress(s string) string {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return s
	}
	return a.Address
}
