package mail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Email is a rendered message ready for delivery.
type Email struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body"`
	HTMLBody string   `json:"html_body,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

const consoleSeparator = "-------------------------------------------------------------------------------"

// ConsoleSender writes emails to an io.Writer instead of delivering them.
type ConsoleSender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSender creates a sender writing to w.
func NewConsoleSender(w io.Writer) *ConsoleSender {
	return &ConsoleSender{w: w}
}

// Send writes the headers, the text body and the HTML alternative, if any.
func (c *ConsoleSender) Send(_ context.Context, email Email) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", email.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(email.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	if len(email.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(email.Tags, ", "))
	}
	b.WriteString("\n")
	b.WriteString(email.TextBody)
	b.WriteString("\n")
	if email.HTMLBody != "" {
		b.WriteString("\nContent-Type: text/html\n\n")
		b.WriteString(email.HTMLBody)
		b.WriteString("\n")
	}
	b.WriteString(consoleSeparator)
	b.WriteString("\n")

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, b.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToSendEmail, err)
	}
	return nil
}
