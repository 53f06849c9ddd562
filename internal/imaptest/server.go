// Package imaptest runs an in-process IMAP server backed by an in-memory
// mailbox, for exercising real protocol round-trips in tests.
package imaptest

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/emersion/go-message"
	"github.com/stretchr/testify/require"
)

const (
	Username = "username"
	Password = "password"
)

// NewServer starts an IMAP server on a random local port with an empty
// INBOX and returns its address plus the mailbox for direct inspection.
// The server is shut down when the test ends.
func NewServer(t *testing.T) (string, *memory.Mailbox) {
	t.Helper()

	be := memory.New()
	user, err := be.Login(nil, Username, Password)
	require.NoError(t, err)

	mb, err := user.GetMailbox("INBOX")
	require.NoError(t, err)

	mailbox := mb.(*memory.Mailbox)
	mailbox.Messages = nil

	s := server.New(be)
	s.AllowInsecureAuth = true
	t.Cleanup(func() { _ = s.Close() })

	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	go func() { _ = s.Serve(l) }()

	return l.Addr().String(), mailbox
}

// BuildMessage renders a minimal plain-text RFC822 message. An empty
// messageID omits the Message-ID header.
func BuildMessage(t *testing.T, messageID, from, subject, body string) []byte {
	t.Helper()

	hdr := message.Header{}
	hdr.Set("From", from)
	hdr.Set("To", "archive@example.com")
	hdr.Set("Subject", subject)
	hdr.Set("Date", "Wed, 11 May 2022 14:31:59 +0000")
	hdr.Set("Content-Type", "text/plain; charset=utf-8")
	if messageID != "" {
		hdr.Set("Message-Id", messageID)
	}

	msg, err := message.New(hdr, strings.NewReader(body))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, msg.WriteTo(&buf))
	return buf.Bytes()
}

// Deliver appends raw bytes to the mailbox as a new unread message and
// returns its UID.
func Deliver(mbox *memory.Mailbox, raw []byte) uint32 {
	var uid uint32
	for _, msg := range mbox.Messages {
		if msg.Uid > uid {
			uid = msg.Uid
		}
	}
	uid++

	mbox.Messages = append(mbox.Messages, &memory.Message{
		Uid:   uid,
		Date:  time.Now(),
		Size:  uint32(len(raw)),
		Flags: []string{},
		Body:  raw,
	})
	return uid
}

// Unread returns the UIDs of messages without the \Seen flag.
func Unread(mbox *memory.Mailbox) []uint32 {
	var uids []uint32
	for _, msg := range mbox.Messages {
		seen := false
		for _, f := range msg.Flags {
			if f == `\Seen` {
				seen = true
				break
			}
		}
		if !seen {
			uids = append(uids, msg.Uid)
		}
	}
	return uids
}
