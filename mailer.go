package mailer

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Callback receives the outcome of an asynchronous send: the transport's
// result, or the validation or transport error that stopped the message.
// Exactly one of the two is non-nil.
type Callback func(*SendResult, error)

// Mailer validates outgoing messages and dispatches them through a single
// transport handle built at construction. Its configuration can't change
// after New, so a Mailer is safe for concurrent sends as long as its
// transport is.
type Mailer struct {
	config    *Config
	transport Transport
}

// New validates opts and returns a Mailer that sends through an SMTP
// transport built from the normalized fields. Returns an error on
// validation failure or when the transport can't be built; no connection
// is attempted until the first send.
func New(opts Options) (*Mailer, error) {
	c := &Config{}
	if err := c.Configure(opts); err != nil {
		return nil, err
	}
	t, err := newSMTPTransport(c)
	if err != nil {
		return nil, err
	}
	return &Mailer{config: c, transport: t}, nil
}

// NewWithTransport is New with a caller-supplied transport in place of the
// SMTP one, e.g. a stub for tests or an API-backed sender.
func NewWithTransport(opts Options, t Transport) (*Mailer, error) {
	c := &Config{}
	if err := c.Configure(opts); err != nil {
		return nil, err
	}
	return &Mailer{config: c, transport: t}, nil
}

// Config returns the Mailer's normalized configuration.
func (m *Mailer) Config() *Config {
	return m.config
}

// Send validates msg, merges it with its attachments, and hands the result
// to the transport, blocking until the SMTP conversation finishes. The
// transport's result and error come back verbatim: a nil error means the
// destination server accepted the message. A validation failure returns a
// *ValidationError before any transport contact. ctx is only checked
// before dispatch; the transport call itself can't be interrupted.
func (m *Mailer) Send(ctx context.Context, msg Message, attachments []Attachment) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	checked, err := msg.checkAndSetDefaults(m.config.NoreplyAddress())
	if err != nil {
		return nil, err
	}

	payload := buildPayload(checked, attachments, m.config.Hostname())
	log.Debug().
		Str("to", checked.To).
		Int("attachments", len(attachments)).
		Msg("dispatching a message to the SMTP transport")
	return m.transport.SendMail(payload)
}

// SendAsync is Send without the wait: it returns immediately and delivers
// the outcome to cb from the dispatch goroutine. cb is invoked exactly
// once, whether the message failed validation, failed on the wire, or was
// accepted. A nil cb discards the outcome.
func (m *Mailer) SendAsync(ctx context.Context, msg Message, attachments []Attachment, cb Callback) {
	go func() {
		res, err := m.Send(ctx, msg, attachments)
		if cb != nil {
			cb(res, err)
		}
	}()
}
