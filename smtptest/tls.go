package smtptest

import (
	"testing"
	"time"

	"github.com/flashmob/go-guerrilla/tests/testcert"
)

// GenerateTLSFiles writes a TLS key and certificate to a temporary test
// directory that is removed after the test suite runs. It returns the file
// paths of the key and certificate. The certificate is a root cert, and
// self-signed, so clients should skip verification.
func GenerateTLSFiles(t *testing.T) (keyPath string, certPath string, err error) {
	host := "localhost"
	d := t.TempDir() + "/"
	err = testcert.GenerateCert(
		host,
		"",                         // validity starts now
		time.Duration(1)*time.Hour, // the test suite won't run for this long
		true,                       // is a CA cert
		2048,                       // keeps generation fast; strength doesn't matter here
		"",                         // using the default ecdsa curve
		d,
	)
	if err != nil {
		return
	}

	// testcert.GenerateCert appends these names to the directory path
	// without a separator, hence the trailing slash above
	keyPath = d + host + ".key.pem"
	certPath = d + host + ".cert.pem"
	return
}
