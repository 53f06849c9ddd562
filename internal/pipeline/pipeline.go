package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailvault/mailvault/internal/mailbox"
	"github.com/mailvault/mailvault/internal/parser"
	"github.com/mailvault/mailvault/pkg/models"
)

// Session is the mail-server side of a run: one authenticated connection,
// opened by the orchestrator and closed when the run ends.
type Session interface {
	ListUnread() ([]uint32, error)
	Fetch(uid uint32) ([]byte, error)
	MarkProcessed(uid uint32) error
	Close()
}

// Sink is the document-store side of a run.
type Sink interface {
	Upsert(ctx context.Context, rec *models.Record) error
	Close() error
}

// Config wires the pipeline to its collaborators. OpenSession and OpenSink
// must return handles that are already connected and verified reachable.
type Config struct {
	OpenSession func(ctx context.Context) (Session, error)
	OpenSink    func(ctx context.Context) (Sink, error)
	Logger      *slog.Logger

	// Bounded retry around session open. Zero values mean 3 attempts with
	// a 5 second backoff. Authentication failures are never retried.
	ConnectAttempts int
	ConnectBackoff  time.Duration
}

// Pipeline drives one retrieval-extraction-persistence run at a time. It
// owns the session and sink handles for the duration of a run; nothing
// else may touch them.
type Pipeline struct {
	cfg    Config
	parser *parser.Parser
	logger *slog.Logger
	state  State
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 3
	}
	if cfg.ConnectBackoff <= 0 {
		cfg.ConnectBackoff = 5 * time.Second
	}
	return &Pipeline{
		cfg:    cfg,
		parser: parser.New(),
		logger: cfg.Logger.With("component", "pipeline"),
		state:  StateIdle,
	}
}

// State returns the state the pipeline most recently reached.
func (p *Pipeline) State() State {
	return p.state
}

// Run executes one complete pass: open session, open sink, list unread,
// then per message fetch, parse, upsert and mark processed, strictly in
// that order and one message at a time. A failing message is recorded in
// the summary and never aborts the run; only setup failures do. Both
// handles are released before Run returns, whatever the outcome.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	p.state = StateIdle

	sess, err := p.openSession(ctx)
	if err != nil {
		p.state = StateAborted
		return nil, fmt.Errorf("open mail session: %w", err)
	}
	p.state = StateSessionOpen

	sink, err := p.cfg.OpenSink(ctx)
	if err != nil {
		sess.Close()
		p.state = StateAborted
		return nil, fmt.Errorf("open store: %w", err)
	}
	p.state = StateSinkOpen

	p.state = StateListing
	uids, err := sess.ListUnread()
	if err != nil {
		_ = sink.Close()
		sess.Close()
		p.state = StateAborted
		return nil, fmt.Errorf("list unread: %w", err)
	}
	p.logger.Info("unread messages found", "count", len(uids))

	summary := &Summary{}
	for _, uid := range uids {
		p.state = StatePerMessage
		out := p.processOne(ctx, sess, sink, uid)
		summary.Record(out)

		if out.Err != nil {
			p.logger.Warn("message failed", "uid", uid, "stage", out.Stage, "error", out.Err)
		} else {
			p.logger.Info("message archived", "uid", uid, "message_id", out.MessageID)
		}
	}

	p.state = StateFinalizing
	if err := sink.Close(); err != nil {
		p.logger.Warn("store close failed", "error", err)
	}
	sess.Close()

	p.state = StateDone
	p.logger.Info("run complete",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, nil
}

// processOne runs fetch → parse → upsert → mark for a single reference. A
// message is never marked processed before its record is durably upserted.
func (p *Pipeline) processOne(ctx context.Context, sess Session, sink Sink, uid uint32) Outcome {
	raw, err := sess.Fetch(uid)
	if err != nil {
		return Outcome{UID: uid, Stage: StageFetch, Err: err}
	}

	rec, err := p.parser.Parse(raw)
	if err != nil {
		return Outcome{UID: uid, Stage: StageParse, Err: err}
	}

	if err := sink.Upsert(ctx, rec); err != nil {
		// The message stays unread on the server and is picked up again on
		// the next run.
		return Outcome{UID: uid, MessageID: rec.MessageID, Stage: StageStore, Err: err}
	}

	if err := sess.MarkProcessed(uid); err != nil {
		// Soft failure: the record is already stored, so the worst case is
		// an idempotent re-upsert on the next run.
		p.logger.Warn("record stored but message left unread", "uid", uid, "message_id", rec.MessageID)
		return Outcome{UID: uid, MessageID: rec.MessageID, Stage: StageMark, Err: err}
	}

	return Outcome{UID: uid, MessageID: rec.MessageID}
}

// openSession opens the mail session with bounded retry. Connectivity
// failures back off and retry; bad credentials fail immediately.
func (p *Pipeline) openSession(ctx context.Context) (Session, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.ConnectAttempts; attempt++ {
		sess, err := p.cfg.OpenSession(ctx)
		if err == nil {
			return sess, nil
		}
		if errors.Is(err, mailbox.ErrAuth) {
			return nil, err
		}
		lastErr = err

		if attempt < p.cfg.ConnectAttempts {
			p.logger.Warn("mail session open failed, retrying",
				"attempt", attempt,
				"of", p.cfg.ConnectAttempts,
				"error", err,
			)
			select {
			case <-time.After(p.cfg.ConnectBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}
