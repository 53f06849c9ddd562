package pipeline

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/mailvault/internal/imaptest"
	"github.com/mailvault/mailvault/internal/mailbox"
	"github.com/mailvault/mailvault/internal/store"
)

// TestEndToEnd runs the whole pipeline against a real in-process IMAP
// server and a real sqlite store: three unread messages in, three records
// out, zero unread left behind.
func TestEndToEnd(t *testing.T) {
	addr, mbox := imaptest.NewServer(t)
	imaptest.Deliver(mbox, imaptest.BuildMessage(t, "<one@example.com>", "alice@example.com", "First", "message one"))
	imaptest.Deliver(mbox, imaptest.BuildMessage(t, "<two@example.com>", "bob@example.com", "Second", "message two"))
	imaptest.Deliver(mbox, imaptest.BuildMessage(t, "<three@example.com>", "carol@example.com", "Third", "message three"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storeCfg := store.Config{
		Path:       filepath.Join(t.TempDir(), "vault.db"),
		Collection: "messages",
	}

	pipe := New(Config{
		OpenSession: func(ctx context.Context) (Session, error) {
			sess := mailbox.NewSession(mailbox.Config{
				Server:      addr,
				Email:       imaptest.Username,
				Password:    imaptest.Password,
				TLS:         false,
				DialTimeout: 5 * time.Second,
			}, logger)
			if err := sess.Connect(ctx); err != nil {
				return nil, err
			}
			return sess, nil
		},
		OpenSink: func(ctx context.Context) (Sink, error) {
			return store.Open(ctx, storeCfg, logger)
		},
		Logger: logger,
	})

	ctx := context.Background()
	summary, err := pipe.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StateDone, pipe.State())
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Failed)

	assert.Empty(t, imaptest.Unread(mbox), "all messages should be marked seen")

	s, err := store.Open(ctx, storeCfg, logger)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	rec, err := s.Get(ctx, "two@example.com")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", rec.Sender)
	assert.Equal(t, "Second", rec.Subject)
	assert.Equal(t, "message two", rec.Body)

	// A second run over the now-empty unread set changes nothing.
	summary, err = pipe.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Attempted)

	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
