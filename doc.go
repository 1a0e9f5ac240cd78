package mailer

// mailer wraps an SMTP sending library with configuration and message
// validation. It owns parsing user-provided options, resolving defaults,
// and merging a message with its attachments into a single payload. It
// owns nothing on the wire: connecting, TLS negotiation, AUTH, and the
// SMTP conversation itself belong to the gomail transport built at
// construction, and the transport's results and errors reach callers
// untouched.
