package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

var (
	// ErrAuth means the server rejected the credentials.
	ErrAuth = errors.New("authentication failed")
	// ErrConnectivity means the server could not be reached or a session
	// command failed at the transport level.
	ErrConnectivity = errors.New("mail server unreachable")
	// ErrFetch means a message reference is no longer valid.
	ErrFetch = errors.New("message fetch failed")
	// ErrMark means the unread flag could not be cleared. Never fatal to a
	// run: the record may already be durably stored.
	ErrMark = errors.New("mark processed failed")
)

// Config connection settings for one IMAP account
type Config struct {
	Server      string // host:port
	Email       string
	Password    string
	Mailbox     string // defaults to INBOX
	TLS         bool
	DialTimeout time.Duration
}

// Session is a single authenticated IMAP connection. It is owned by one
// goroutine for the duration of a run and must be closed when the run ends.
type Session struct {
	config  Config
	client  *client.Client
	logger  *slog.Logger
	section *imap.BodySectionName
}

// NewSession creates an unconnected session.
func NewSession(cfg Config, logger *slog.Logger) *Session {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &Session{
		config: cfg,
		logger: logger.With("component", "mailbox", "email", cfg.Email),
		// Peek keeps the fetch itself from setting \Seen; the flag is only
		// cleared explicitly after the record is durably stored.
		section: &imap.BodySectionName{Peek: true},
	}
}

// Connect dials the server, authenticates and selects the mailbox.
func (s *Session) Connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	timeout := s.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	s.logger.Info("connecting to mail server", "server", s.config.Server)

	dialer := &net.Dialer{Timeout: timeout}
	var conn net.Conn
	var err error
	if s.config.TLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", s.config.Server, nil)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.config.Server)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	imapClient.Timeout = timeout

	if err := imapClient.Login(s.config.Email, s.config.Password); err != nil {
		imapClient.Logout()
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	if _, err := imapClient.Select(s.config.Mailbox, false); err != nil {
		imapClient.Logout()
		return fmt.Errorf("%w: select %s: %v", ErrConnectivity, s.config.Mailbox, err)
	}

	s.client = imapClient
	s.logger.Info("connected to mail server", "mailbox", s.config.Mailbox)
	return nil
}

// ListUnread returns the UIDs of all messages currently flagged unread, in
// server order. The result is a finite snapshot; messages arriving later
// are not included.
func (s *Session) ListUnread() ([]uint32, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: not connected", ErrConnectivity)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: search unseen: %v", ErrConnectivity, err)
	}
	return uids, nil
}

// Fetch downloads the full raw message for one UID.
func (s *Session) Fetch(uid uint32) ([]byte, error) {
	if s.client == nil {
		return nil, fmt.Errorf("%w: not connected", ErrFetch)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, []imap.FetchItem{s.section.FetchItem()}, messages)
	}()

	var raw []byte
	for msg := range messages {
		body := msg.GetBody(s.section)
		if body == nil {
			continue
		}
		b, err := io.ReadAll(body)
		if err != nil {
			<-done
			return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
		}
		raw = b
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: uid %d: %v", ErrFetch, uid, err)
	}
	if raw == nil {
		// The message was deleted or moved by another client between the
		// unread search and this fetch.
		return nil, fmt.Errorf("%w: uid %d no longer in mailbox", ErrFetch, uid)
	}
	return raw, nil
}

// MarkProcessed clears the unread flag by adding \Seen.
func (s *Session) MarkProcessed(uid uint32) error {
	if s.client == nil {
		return fmt.Errorf("%w: not connected", ErrMark)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := s.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("%w: uid %d: %v", ErrMark, uid, err)
	}
	return nil
}

// Close logs out and releases the connection, best effort. Safe to call
// more than once.
func (s *Session) Close() {
	imapClient := s.client
	s.client = nil
	if imapClient == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		imapClient.Logout()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		imapClient.Terminate()
	}
	s.logger.Info("mail session closed")
}
