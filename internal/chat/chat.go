// Package chat drives one conversation turn against the remote assistant:
// thread lifecycle, message submission, stream consumption (or polling)
// and committing the answer into the session.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/attach"
	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/tui"
)

const (
	// DefaultRunTimeout bounds a single run, streamed or polled, when
	// Options.RunTimeout is unset.
	DefaultRunTimeout = 60 * time.Second
	// DefaultPollInterval is the wait between status checks of a polled run.
	DefaultPollInterval = time.Second
)

// Options configures the runs started by a Chat.
type Options struct {
	AssistantID  string
	Instructions string // appended to the assistant's own instructions
	RunTimeout   time.Duration
	PollInterval time.Duration

	// Validate is called before every turn; a non-nil error fails the
	// turn without touching the session.
	Validate func() error
}

// Receipt acknowledges a submitted user message.
type Receipt struct {
	ThreadID  string
	MessageID string
}

// Result is the outcome of one run.
type Result struct {
	Text        string
	Attachments []session.Attachment
	RunID       string
	Status      assistant.RunStatus
	Committed   bool
}

// Chat runs turns for sessions. It allows a single turn in flight.
type Chat struct {
	svc    assistant.Service
	io     tui.IO
	files  *attach.Materializer
	opts   Options
	log    zerolog.Logger
	mailer Mailer

	tracer trace.Tracer

	mu sync.Mutex

	// overridable in tests
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	retryBase time.Duration
}

// New creates a Chat. files may be nil, in which case attachments are
// downloaded from svc into the system temp dir.
func New(svc assistant.Service, ui tui.IO, files *attach.Materializer, opts Options, log zerolog.Logger) *Chat {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if files == nil {
		files = attach.New(svc, "")
	}
	return &Chat{
		svc:       svc,
		io:        ui,
		files:     files,
		opts:      opts,
		log:       log.With().Str("component", "chat").Logger(),
		tracer:    otel.Tracer("github.com/Ads2024/Demo-Assistant-API-AI/internal/chat"),
		now:       time.Now,
		sleep:     sleepWithContext,
		retryBase: baseDelay,
	}
}

func (c *Chat) runRequest() assistant.RunRequest {
	return assistant.RunRequest{
		AssistantID:            c.opts.AssistantID,
		AdditionalInstructions: c.opts.Instructions,
	}
}

// Ask runs a full streamed turn: record the question, make sure the
// session has a thread, submit, consume the run and commit the answer.
// A partial answer is committed before the stream error is returned.
func (c *Chat) Ask(ctx context.Context, sess *session.Session, text string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op cerrors.Op = "chat.Ask"

	if err := c.validate(); err != nil {
		return Result{}, cerrors.E(op, err)
	}

	sess.AddUserTurn(text)
	defer func() { c.io.SetStatus(sess.ThreadID, sess.Len()) }()

	threadID, err := c.EnsureThread(ctx, sess)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.Submit(ctx, threadID, text); err != nil {
		return Result{}, err
	}

	res, err := c.Consume(ctx, threadID)
	res.Committed = c.Commit(sess, res)
	return res, err
}

// AskPolled is Ask over the non-streaming path: create the run, poll it
// to a terminal status, then read the run's messages.
func (c *Chat) AskPolled(ctx context.Context, sess *session.Session, text string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op cerrors.Op = "chat.AskPolled"

	if err := c.validate(); err != nil {
		return Result{}, cerrors.E(op, err)
	}

	sess.AddUserTurn(text)
	defer func() { c.io.SetStatus(sess.ThreadID, sess.Len()) }()

	threadID, err := c.EnsureThread(ctx, sess)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.Submit(ctx, threadID, text); err != nil {
		return Result{}, err
	}

	res, err := c.runPolled(ctx, threadID)
	if err != nil {
		return res, err
	}
	res.Committed = c.Commit(sess, res)
	return res, nil
}

// Reset clears the session and unbinds its thread; the next turn
// creates a new one.
func (c *Chat) Reset(sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := sess.ThreadID
	sess.Reset()
	c.log.Info().Str("session_id", sess.ID).Str("old_thread_id", old).Msg("session reset")
	c.io.SetStatus("", 0)
}

func (c *Chat) validate() error {
	if c.opts.Validate != nil {
		if err := c.opts.Validate(); err != nil {
			return err
		}
	}
	if c.opts.AssistantID == "" {
		return cerrors.E(cerrors.KindConfig, "no assistant configured (set ASSISTANT_ID)")
	}
	return nil
}

// recordError marks span failed.
func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func runAttrs(threadID, runID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("thread_id", threadID)}
	if runID != "" {
		attrs = append(attrs, attribute.String("run_id", runID))
	}
	return attrs
}

// timeoutOr maps an expired run deadline to KindTimeout.
func timeoutOr(ctx context.Context, err error, kind cerrors.Kind) cerrors.Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return cerrors.KindTimeout
	}
	return kind
}
