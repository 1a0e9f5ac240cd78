package mailer

import (
	"errors"
	"os"
	"testing"

	"github.com/fieldpost/mailer/smtptest"
)

func TestOptionsCheckAndSetDefaults(t *testing.T) {
	testCases := []struct {
		description string
		opts        Options
		// empty means no error expected, otherwise the Field of the
		// expected *ValidationError
		wantField string
	}{
		{
			description: "valid minimal case",
			opts: Options{
				Auth: &Auth{User: "myuser", Pass: "mypassword"},
			},
			wantField: "",
		},
		{
			description: "valid full case",
			opts: Options{
				Auth:           &Auth{User: "myuser", Pass: "mypassword"},
				Hostname:       "smtp.example.com",
				Name:           "client.example.com",
				NoreplyAddress: "noreply@example.com",
				Port:           2525,
				Secure:         true,
				TLS:            &TLSOptions{SkipVerify: true},
			},
			wantField: "",
		},
		{
			description: "missing auth",
			opts:        Options{Hostname: "smtp.example.com"},
			wantField:   "auth",
		},
		{
			description: "empty credentials are allowed",
			opts:        Options{Auth: &Auth{}},
			wantField:   "",
		},
		{
			description: "hostname with a scheme",
			opts: Options{
				Auth:     &Auth{},
				Hostname: "smtp://smtp.example.com",
			},
			wantField: "hostname",
		},
		{
			description: "hostname with a port",
			opts: Options{
				Auth:     &Auth{},
				Hostname: "smtp.example.com:2525",
			},
			wantField: "hostname",
		},
		{
			description: "hostname with interior whitespace",
			opts: Options{
				Auth:     &Auth{},
				Hostname: "smtp server",
			},
			wantField: "hostname",
		},
		{
			description: "unicode hostname that has no punycode form",
			opts: Options{
				Auth:     &Auth{},
				Hostname: "€.example",
			},
			wantField: "hostname",
		},
		{
			description: "client name with a scheme",
			opts: Options{
				Auth: &Auth{},
				Name: "smtp://client.example.com",
			},
			wantField: "name",
		},
		{
			description: "noreply address without a domain",
			opts: Options{
				Auth:           &Auth{},
				NoreplyAddress: "not an address",
			},
			wantField: "noreplyAddress",
		},
		{
			description: "noreply address with a display name",
			opts: Options{
				Auth:           &Auth{},
				NoreplyAddress: "Example Support <noreply@example.com>",
			},
			wantField: "",
		},
		{
			description: "negative port",
			opts: Options{
				Auth: &Auth{},
				Port: -1,
			},
			wantField: "port",
		},
		{
			description: "port beyond the TCP range",
			opts: Options{
				Auth: &Auth{},
				Port: 70000,
			},
			wantField: "port",
		},
		{
			description: "TLS cert without a key",
			opts: Options{
				Auth: &Auth{},
				TLS:  &TLSOptions{Cert: []byte("CERT")},
			},
			wantField: "tls",
		},
		{
			description: "TLS key without a cert",
			opts: Options{
				Auth: &Auth{},
				TLS:  &TLSOptions{Key: []byte("KEY")},
			},
			wantField: "tls",
		},
		{
			description: "TLS pair that isn't PEM",
			opts: Options{
				Auth: &Auth{},
				TLS: &TLSOptions{
					Cert: []byte("not a cert"),
					Key:  []byte("not a key"),
				},
			},
			wantField: "tls",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			_, err := tc.opts.CheckAndSetDefaults()
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected validation error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected a *ValidationError but got %v", err)
			}
			if verr.Field != tc.wantField {
				t.Errorf(
					"expected the error to name field %v but it named %v",
					tc.wantField,
					verr.Field,
				)
			}
		})
	}
}

func TestOptionsCheckAndSetDefaultsNormalization(t *testing.T) {
	o := Options{
		Auth:           &Auth{User: "myuser", Pass: "mypassword"},
		Hostname:       " bücher.example ",
		NoreplyAddress: " noreply@example.com ",
	}
	n, err := o.CheckAndSetDefaults()
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if n.Hostname != "xn--bcher-kva.example" {
		t.Errorf("expected the hostname in punycode but got %v", n.Hostname)
	}
	if n.NoreplyAddress != "noreply@example.com" {
		t.Errorf("expected a trimmed noreply address but got %v", n.NoreplyAddress)
	}
	if n.TLS == nil {
		t.Error("expected default TLS options to be filled in")
	}
}

// TestConfigureFirstWriteWins covers the write-once behavior: whichever
// Configure call stores a field first owns it, including fields the first
// call only filled with defaults.
func TestConfigureFirstWriteWins(t *testing.T) {
	var c Config
	err := c.Configure(Options{
		Auth:     &Auth{User: "first", Pass: "pass1"},
		Hostname: "mail.one.example",
	})
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	err = c.Configure(Options{
		Auth:           &Auth{User: "second", Pass: "pass2"},
		Hostname:       "mail.two.example",
		Port:           2525,
		NoreplyAddress: "noreply@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	if c.Hostname() != "mail.one.example" {
		t.Errorf("expected the first hostname to win but got %v", c.Hostname())
	}
	if c.Auth().User != "first" {
		t.Errorf("expected the first credentials to win but got %v", c.Auth().User)
	}
	// the first call never set these, so the second call fills them
	if c.Port() != 2525 {
		t.Errorf("expected the second call to fill the port but got %v", c.Port())
	}
	if c.NoreplyAddress() != "noreply@example.com" {
		t.Errorf(
			"expected the second call to fill the noreply address but got %v",
			c.NoreplyAddress(),
		)
	}

	// a malformed call must not disturb anything already stored
	err = c.Configure(Options{Auth: &Auth{}, Port: -5})
	if err == nil {
		t.Fatal("expected a validation error for the bad port")
	}
	if c.Port() != 2525 {
		t.Errorf("expected the stored port to survive a failed call, got %v", c.Port())
	}
}

func TestConfigureDefaults(t *testing.T) {
	var c Config
	if err := c.Configure(Options{Auth: &Auth{}}); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if c.Hostname() != "localhost" {
		t.Errorf("expected the default hostname localhost but got %v", c.Hostname())
	}
	if c.Secure() {
		t.Error("expected secure to default to false")
	}
	tl := c.TLS()
	if tl.ServerName != "" || tl.SkipVerify || tl.Cert != nil || tl.Key != nil {
		t.Errorf("expected zero TLS options by default but got %+v", tl)
	}

	// hostname was defaulted, which counts as a write
	if err := c.Configure(Options{Auth: &Auth{}, Hostname: "mail.example.com"}); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if c.Hostname() != "localhost" {
		t.Errorf("expected the defaulted hostname to stick but got %v", c.Hostname())
	}
}

func TestConfigureTLSPair(t *testing.T) {
	keyPath, certPath, err := smtptest.GenerateTLSFiles(t)
	if err != nil {
		t.Fatal(err)
	}
	key, err := os.ReadFile(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatal(err)
	}

	var c Config
	err = c.Configure(Options{
		Auth:     &Auth{User: "myuser", Pass: "mypassword"},
		Hostname: "smtp.example.com",
		TLS:      &TLSOptions{Cert: cert, Key: key},
	})
	if err != nil {
		t.Fatalf("unexpected validation error for a real PEM pair: %v", err)
	}

	tlsc, err := c.TLS().clientConfig(c.Hostname())
	if err != nil {
		t.Fatalf("unexpected error building the client TLS config: %v", err)
	}
	if tlsc == nil {
		t.Fatal("expected a non-nil TLS config when a cert pair is set")
	}
	if len(tlsc.Certificates) != 1 {
		t.Errorf("expected one client certificate but got %v", len(tlsc.Certificates))
	}
	if tlsc.ServerName != "smtp.example.com" {
		t.Errorf("expected the server name to fall back to the host, got %v", tlsc.ServerName)
	}
}

func TestTLSOptionsClientConfig(t *testing.T) {
	zero, err := TLSOptions{}.clientConfig("smtp.example.com")
	if err != nil {
		t.Fatalf("unexpected error for zero TLS options: %v", err)
	}
	if zero != nil {
		t.Error("expected zero TLS options to convert to a nil config")
	}

	skip, err := TLSOptions{SkipVerify: true}.clientConfig("smtp.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skip == nil || !skip.InsecureSkipVerify {
		t.Error("expected a config with verification disabled")
	}

	named, err := TLSOptions{ServerName: "other.example"}.clientConfig("smtp.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if named.ServerName != "other.example" {
		t.Errorf("expected the explicit server name to win, got %v", named.ServerName)
	}
}
