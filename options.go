package mailer

import (
	"crypto/tls"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// Auth carries the credentials handed to the SMTP transport. Empty values
// are allowed: the transport skips AUTH entirely when both are empty, which
// is what you want for unauthenticated relays on localhost.
type Auth struct {
	User string
	Pass string
}

// TLSOptions represents TLS settings provided by the caller.
//
// Normally taking raw PEM blocks as user input isn't great for testing,
// but we're accommodating the tls package, which uses these.
// https://golang.org/pkg/crypto/tls/#X509KeyPair
type TLSOptions struct {
	// ServerName overrides the hostname used to verify the server
	// certificate. Leave empty to verify against the SMTP host.
	ServerName string
	// SkipVerify disables certificate verification. Meant for test
	// servers with self-signed certs.
	SkipVerify bool
	Cert       []byte // PEM-encoded TLS client cert
	Key        []byte // PEM-encoded TLS client key
}

// clientConfig converts o into the tls.Config handed to the SMTP dialer.
// A zero TLSOptions converts to nil so the dialer falls back to its own
// defaults, which verify the server cert against the SMTP host.
func (o TLSOptions) clientConfig(host string) (*tls.Config, error) {
	if o.ServerName == "" && !o.SkipVerify && o.Cert == nil && o.Key == nil {
		return nil, nil
	}

	c := &tls.Config{
		ServerName:         o.ServerName,
		InsecureSkipVerify: o.SkipVerify,
	}
	if c.ServerName == "" {
		c.ServerName = host
	}

	if o.Cert != nil || o.Key != nil {
		cert, err := tls.X509KeyPair(o.Cert, o.Key)
		if err != nil {
			return nil, fmt.Errorf("can't parse the TLS cert and key: %v", err)
		}
		c.Certificates = []tls.Certificate{cert}
	}
	return c, nil
}

// Options represents config fields provided by the caller. Not meant to be
// used directly for sending email without validation: pass it to Configure,
// New, or NewWithTransport.
type Options struct {
	// Auth is required even when the relay skips authentication; use
	// empty credentials in that case.
	Auth *Auth
	// Hostname of the SMTP server. Defaults to "localhost".
	Hostname string
	// Name is the client hostname sent with HELO. The transport falls
	// back to "localhost" when empty.
	Name string
	// NoreplyAddress is the sender substituted into messages that don't
	// set one.
	NoreplyAddress string
	// Port of the SMTP server. 0 means unset: the transport picks 465 or
	// 587 depending on Secure.
	Port int
	// Secure selects an implicit-TLS connection. When false the
	// transport connects in plaintext and upgrades via STARTTLS if the
	// server supports it.
	Secure bool
	TLS    *TLSOptions
}

// CheckAndSetDefaults validates o and either returns a copy of o with
// default settings applied or returns a *ValidationError due to an invalid
// configuration. Checks run in a fixed order and the first failure wins.
func (o *Options) CheckAndSetDefaults() (Options, error) {
	if o.Auth == nil {
		return Options{}, &ValidationError{
			Field:    "auth",
			Expected: "a user/pass credential pair",
		}
	}

	host, err := normalizeHostname(o.Hostname)
	if err != nil {
		return Options{}, &ValidationError{
			Field:    "hostname",
			Expected: "a valid hostname",
		}
	}

	name, err := normalizeHostname(o.Name)
	if err != nil {
		return Options{}, &ValidationError{
			Field:    "name",
			Expected: "a valid hostname",
		}
	}

	noreply := strings.TrimSpace(o.NoreplyAddress)
	if noreply != "" {
		if _, err := mail.ParseAddress(noreply); err != nil {
			return Options{}, &ValidationError{
				Field:    "noreplyAddress",
				Expected: "an email address",
			}
		}
	}

	if o.Port < 0 || o.Port > 65535 {
		return Options{}, &ValidationError{
			Field:    "port",
			Expected: "an integer between 0 and 65535",
		}
	}

	t := TLSOptions{}
	if o.TLS != nil {
		t = *o.TLS
	}
	if (t.Cert == nil) != (t.Key == nil) {
		return Options{}, &ValidationError{
			Field:    "tls",
			Expected: "a cert and key provided together",
		}
	}
	if t.Cert != nil {
		if _, err := tls.X509KeyPair(t.Cert, t.Key); err != nil {
			return Options{}, &ValidationError{
				Field:    "tls",
				Expected: "a parseable cert/key PEM pair",
			}
		}
	}

	if host == "" {
		host = "localhost"
	}

	a := *o.Auth
	return Options{
		Auth:           &a,
		Hostname:       host,
		Name:           name,
		NoreplyAddress: noreply,
		Port:           o.Port,
		Secure:         o.Secure,
		TLS:            &t,
	}, nil
}

// normalizeHostname converts host to its punycode (ASCII) form, leaving
// already-ASCII names alone. SMTP servers expect ASCII in HELO and DNS
// lookups, but config files are a natural place for unicode hostnames.
func normalizeHostname(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", nil
	}
	if strings.ContainsAny(host, " \t/:") {
		return "", fmt.Errorf("%q is not a bare hostname", host)
	}

	for _, r := range host {
		if r > unicode.MaxASCII {
			return idna.Lookup.ToASCII(host)
		}
	}
	return host, nil
}

// Config holds normalized mailer settings. Each field is written at most
// once: the first Configure call to store a value owns it, and later calls
// can't overwrite it. Fields that an earlier call left unset, such as a
// zero port, can still be filled in later. Note that the first call also
// locks every field it defaults, so a missing hostname becomes "localhost"
// for good.
type Config struct {
	auth    *Auth
	host    string
	name    string
	noreply string
	port    int
	secure  *bool
	tls     *TLSOptions
}

// Configure validates opts and stores each of its fields unless a previous
// call already did. Returns a *ValidationError and stores nothing if any
// field of opts is malformed, even one an earlier call claimed.
func (c *Config) Configure(opts Options) error {
	n, err := opts.CheckAndSetDefaults()
	if err != nil {
		return err
	}

	if c.auth == nil {
		c.auth = n.Auth
	}
	if c.host == "" {
		c.host = n.Hostname
	}
	if c.name == "" {
		c.name = n.Name
	}
	if c.noreply == "" {
		c.noreply = n.NoreplyAddress
	}
	if c.port == 0 {
		c.port = n.Port
	}
	if c.secure == nil {
		s := n.Secure
		c.secure = &s
	}
	if c.tls == nil {
		c.tls = n.TLS
	}
	return nil
}

// Auth returns the stored credentials, or a zero Auth before the first
// Configure call.
func (c *Config) Auth() Auth {
	if c.auth == nil {
		return Auth{}
	}
	return *c.auth
}

// Hostname returns the SMTP server hostname in ASCII form.
func (c *Config) Hostname() string {
	return c.host
}

// Name returns the client HELO name, or "" if none was configured.
func (c *Config) Name() string {
	return c.name
}

// NoreplyAddress returns the default sender, or "" if none was configured.
func (c *Config) NoreplyAddress() string {
	return c.noreply
}

// Port returns the SMTP server port, or 0 if none was configured.
func (c *Config) Port() int {
	return c.port
}

// Secure reports whether the connection uses implicit TLS.
func (c *Config) Secure() bool {
	if c.secure == nil {
		return false
	}
	return *c.secure
}

// TLS returns the stored TLS settings, or a zero TLSOptions before the
// first Configure call.
func (c *Config) TLS() TLSOptions {
	if c.tls == nil {
		return TLSOptions{}
	}
	return *c.tls
}
