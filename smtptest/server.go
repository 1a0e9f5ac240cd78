package smtptest

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
)

// capturedMessage is one message the server accepted: its envelope as seen
// in the SMTP conversation, the raw payload from DATA, and a timestamp so
// tests can ignore messages sent before a point in time.
type capturedMessage struct {
	created time.Time
	from    string
	rcpts   []string
	payload string
}

// Envelope is the MAIL FROM and RCPT TO addresses of one captured message.
type Envelope struct {
	From  string
	Rcpts []string
}

// capture retains accepted messages in memory for comparison against a
// test's expected output. Goroutine safe since we don't know how many
// connections will hit the server at once.
type capture struct {
	mu       sync.Mutex
	messages []capturedMessage
}

func (c *capture) save(m capturedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

// backend implements smtp.Backend. It's a thin authentication wrapper for
// the capture store.
type backend struct {
	store *capture
}

// Login implements smtp.Backend. Any username/password is fine, since we
// don't want to couple this with specific test configurations.
func (be *backend) Login(_ *smtp.ConnectionState, username string, password string) (smtp.Session, error) {
	if username != "" && password != "" {
		return &session{store: be.store}, nil
	}
	return nil, errors.New("no username or password provided")
}

// AnonymousLogin implements smtp.Backend. Not supported since we want to
// enforce AUTH.
func (be *backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	return nil, smtp.ErrAuthUnsupported
}

// session implements smtp.Session, recording the envelope as the SMTP
// conversation builds it and saving everything once DATA completes.
type session struct {
	store *capture
	from  string
	rcpts []string
}

func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *session) Rcpt(to string) error {
	s.rcpts = append(s.rcpts, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	// doubtful a test will send a message this big, but we need a limit
	var maxMessageSize int64 = 100 * units.MiB
	buf, err := io.ReadAll(io.LimitReader(r, maxMessageSize))
	if err != nil {
		return err
	}
	s.store.save(capturedMessage{
		created: time.Now(),
		from:    s.from,
		rcpts:   append([]string{}, s.rcpts...),
		payload: string(buf),
	})
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.rcpts = nil
}

func (s *session) Logout() error { return nil }

// InProcessServer is an SMTP server that runs in the same process as the
// test suite, capturing every message sent to it so tests can inspect raw
// payloads and envelopes. You must initialize this via NewInProcessServer.
// The server requires AUTH over STARTTLS, like the relays a mailer meets
// in production, so clients should expect a TLS upgrade and send
// credentials; any non-empty username and password pass.
type InProcessServer struct {
	srv   *smtp.Server
	store *capture
}

// NewInProcessServer creates an InProcessServer listening on addr, e.g.
// ":2526". Must provide the paths to the key and cert used for TLS. The
// cert must be a root cert.
func NewInProcessServer(addr string, keypath string, certpath string) *InProcessServer {
	store := &capture{}

	srv := smtp.NewServer(&backend{store: store})
	srv.Addr = addr
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = false // need AUTH here
	srv.AuthDisabled = false      // need AUTH here
	// Strict is undocumented, but it looks like it enforces <address>
	// syntax in messages:
	// https://github.com/emersion/go-smtp/blob/f92bf7f1a25777bcdaa28a142b1cd1a54b74c8f4/conn.go#L321-L325
	srv.Strict = true

	cert, err := tls.LoadX509KeyPair(certpath, keypath)
	// No way to carry on without a cert, so we panic. We're in a test
	// suite, so this should be fine.
	if err != nil {
		panic(err)
	}
	srv.TLSConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	return &InProcessServer{
		srv:   srv,
		store: store,
	}
}

// Start starts the test server. Blocking.
func (is *InProcessServer) Start() error {
	// Not using ListenAndServeTLS--the client should upgrade the
	// connection to TLS
	return is.srv.ListenAndServe()
}

// WaitReady blocks until the server accepts TCP connections or the timeout
// passes. Start listens asynchronously from the test's point of view, so
// call this before dialing to avoid a race with the listener setup.
func (is *InProcessServer) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", is.Address(), 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("the test SMTP server never came up on %v", is.Address())
}

// Close shuts down the test server. You must initialize a new
// InProcessServer instead of restarting this one.
func (is *InProcessServer) Close() {
	is.srv.Close()
}

// RetrieveEmails returns the raw payloads of all messages sent to the
// server after epoch nanoseconds t. Not expected to return an error; the
// signature leaves room for implementations that have to hit the network.
func (is *InProcessServer) RetrieveEmails(t int64) ([]string, error) {
	is.store.mu.Lock()
	defer is.store.mu.Unlock()
	r := make([]string, 0, len(is.store.messages))
	for _, m := range is.store.messages {
		if m.created.UnixNano() >= t {
			r = append(r, m.payload)
		}
	}
	return r, nil
}

// RetrieveEnvelopes returns the envelopes of all messages sent to the
// server after epoch nanoseconds t, in the order the server accepted them.
func (is *InProcessServer) RetrieveEnvelopes(t int64) []Envelope {
	is.store.mu.Lock()
	defer is.store.mu.Unlock()
	r := make([]Envelope, 0, len(is.store.messages))
	for _, m := range is.store.messages {
		if m.created.UnixNano() >= t {
			r = append(r, Envelope{From: m.from, Rcpts: m.rcpts})
		}
	}
	return r
}

// Address returns the host:port of the test SMTP server. Listen addresses
// without a host, e.g. ":2526", resolve against the server's domain.
func (is *InProcessServer) Address() string {
	if host, _, err := net.SplitHostPort(is.srv.Addr); err == nil && host != "" {
		return is.srv.Addr
	}
	return is.srv.Domain + is.srv.Addr
}
