package smtptest

import (
	"net/mail"
	"strings"
)

// Header returns the value of the named header in a captured message
// payload, or "" if the payload can't be parsed or the header is missing.
// Useful for asserting on generated headers like Message-Id.
func Header(payload string, name string) string {
	msg, err := mail.ReadMessage(strings.NewReader(payload))
	if err != nil {
		return ""
	}
	return msg.Header.Get(name)
}
