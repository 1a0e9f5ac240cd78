package mailer

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message represents the user-facing content of a single email. The address
// fields accept either one address or a comma-separated list, with or
// without display names.
type Message struct {
	To      string
	From    string
	Cc      string
	Bcc     string
	Subject string
	// HTML and Text are the message bodies. Set both to send a
	// multipart/alternative message; either may be empty.
	HTML string
	Text string
}

// checkAndSetDefaults validates m and either returns a copy of m with the
// configured default sender applied or returns a *ValidationError due to an
// invalid message.
func (m *Message) checkAndSetDefaults(noreply string) (Message, error) {
	if m.To == "" {
		return Message{}, &ValidationError{
			Field:    "mail.to",
			Expected: "a non-empty string",
		}
	}
	if m.From == "" && noreply == "" {
		return Message{}, &ValidationError{
			Field:    "mail.from",
			Expected: "a non-empty string",
		}
	}

	c := *m
	if c.From == "" {
		c.From = noreply
	}
	return c, nil
}

// Attachment is one file to include with a message. Set exactly one content
// source; when several are set the first in the order Content, Reader, HRef
// wins.
type Attachment struct {
	Filename string
	// Content is inline file content.
	Content []byte
	// Reader streams file content. Read happens during the transport's
	// send, so the reader must stay usable until the send returns.
	Reader io.Reader
	// HRef is the URL of remote file content, fetched during the
	// transport's send.
	HRef string
}

// We don't want to wait forever for a remote attachment, but a large file
// on a slow host can legitimately take a while.
var attachmentClient = &http.Client{
	Timeout: time.Duration(60) * time.Second,
}

// copyFunc returns the function the transport calls to write the attachment
// content into the outgoing MIME part. Streaming and fetching happen inside
// the transport's send, not when the message is merged, so an unreadable
// source surfaces as a transport error.
func (a Attachment) copyFunc() func(io.Writer) error {
	switch {
	case a.Content != nil:
		return func(w io.Writer) error {
			_, err := w.Write(a.Content)
			return err
		}
	case a.Reader != nil:
		return func(w io.Writer) error {
			_, err := io.Copy(w, a.Reader)
			return err
		}
	case a.HRef != "":
		return func(w io.Writer) error {
			resp, err := attachmentClient.Get(a.HRef)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("can't fetch the attachment at %v: %v", a.HRef, resp.Status)
			}
			_, err = io.Copy(w, resp.Body)
			return err
		}
	default:
		return func(io.Writer) error {
			return fmt.Errorf("attachment %q has no content source", a.Filename)
		}
	}
}
