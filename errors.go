package mailer

import "fmt"

// ValidationError flags a single configuration or message field that failed
// validation before any contact with an SMTP server. Field is the path of
// the offending field, e.g. "hostname" or "tls" for configuration fields
// and "mail.to" or "mail.from" for message fields. Expected describes what
// a valid value would have looked like.
//
// Every error the package raises on its own is a *ValidationError. Anything
// else returned from a send comes from the transport and is passed along
// unmodified.
type ValidationError struct {
	Field    string
	Expected string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: expected %v", e.Field, e.Expected)
}
