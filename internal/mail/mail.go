// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mail sends transactional email: password reset links,
// registration confirmations and password-change notices.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidMessage is returned for messages that cannot be sent as built.
var ErrInvalidMessage = errors.New("invalid mail message")

// Message is a single outgoing HTML email.
type Message struct {
	From     string
	To       string
	ReplyTo  string
	Subject  string
	HTMLBody string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f(ctx, msg).
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// validate checks addresses and rejects header values carrying line breaks.
func (m Message) validate() (from, to *netmail.Address, err error) {
	for name, v := range map[string]string{"from": m.From, "to": m.To, "reply-to": m.ReplyTo, "subject": m.Subject} {
		if strings.ContainsAny(v, "\r\n") {
			return nil, nil, fmt.Errorf("%w: line break in %s", ErrInvalidMessage, name)
		}
	}

	from, err = netmail.ParseAddress(m.From)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: from address: %v", ErrInvalidMessage, err)
	}
	to, err = netmail.ParseAddress(m.To)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: to address: %v", ErrInvalidMessage, err)
	}
	if m.ReplyTo != "" {
		if _, err := netmail.ParseAddress(m.ReplyTo); err != nil {
			return nil, nil, fmt.Errorf("%w: reply-to address: %v", ErrInvalidMessage, err)
		}
	}
	return from, to, nil
}

// Bytes renders the message as an RFC 5322 document with CRLF line endings.
func (m Message) Bytes(now time.Time) ([]byte, error) {
	from, to, err := m.validate()
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	header("From", from.String())
	header("To", to.String())
	if m.ReplyTo != "" {
		header("Reply-To", m.ReplyTo)
	}
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+domainOf(from.Address)+">")
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(m.HTMLBody, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\r\n")
	}

	return b.Bytes(), nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
