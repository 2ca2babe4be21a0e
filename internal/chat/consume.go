package chat

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/tui"
)

// Consume starts a streaming run on threadID and demultiplexes its events
// until the run ends, the stream fails or the run timeout elapses.
// The text accumulated so far is always returned, also with an error.
func (c *Chat) Consume(ctx context.Context, threadID string) (Result, error) {
	const op cerrors.Op = "chat.Consume"

	ctx, cancel := context.WithTimeout(ctx, c.opts.RunTimeout)
	defer cancel()
	if lc, ok := c.io.(tui.LoopCanceller); ok {
		lc.SetLoopCancel(cancel)
		defer lc.ClearLoopCancel()
	}

	ctx, span := c.tracer.Start(ctx, "chat.consume", trace.WithAttributes(runAttrs(threadID, "")...))
	defer span.End()

	events, err := c.svc.StreamRun(ctx, threadID, c.runRequest())
	if err != nil {
		recordError(span, err)
		return Result{}, cerrors.E(op, timeoutOr(ctx, err, cerrors.KindStream), err)
	}

	c.io.ThinkingStart()

	var (
		text      strings.Builder
		res       Result
		run       *assistant.Run
		streamErr error
		tools     = make(map[string]bool)
		fetched   = make(map[string]bool)
	)

	for ev := range events {
		switch ev.Type {
		case assistant.EventTextDelta:
			text.WriteString(ev.TextDelta)
			c.io.TextDelta(ev.TextDelta)

		case assistant.EventToolCall:
			if !tools[ev.ToolCall.ID] {
				tools[ev.ToolCall.ID] = true
				c.io.ToolNotice(ev.ToolCall.Kind)
			}

		case assistant.EventContentBlock:
			if att, ok := c.materialize(ctx, *ev.Content, fetched); ok {
				res.Attachments = append(res.Attachments, att)
			}

		case assistant.EventUnknown:
			c.log.Warn().Str("thread_id", threadID).Str("event", ev.Name).Msg("unknown stream event")
			c.io.Warning(fmt.Sprintf("ignored unrecognized stream event %q", ev.Name))

		case assistant.EventDone:
			run = ev.Run

		case assistant.EventError:
			streamErr = ev.Error
		}
	}

	res.Text = text.String()
	c.io.TextDone(res.Text)

	if run != nil {
		res.RunID = run.ID
		res.Status = run.Status
		span.SetAttributes(attribute.String("run_id", run.ID), attribute.String("run_status", string(run.Status)))
	}

	switch {
	case streamErr != nil:
		err = streamErr
	case run == nil && ctx.Err() != nil:
		err = ctx.Err()
	case run == nil:
		// Stream ended cleanly without a run status event.
		res.Status = assistant.RunStatusCompleted
	case !run.Status.Succeeded():
		err = runFailure(*run)
	}

	log := c.log.With().Str("thread_id", threadID).Str("run_id", res.RunID).Logger()
	if err != nil {
		recordError(span, err)
		kind := timeoutOr(ctx, err, cerrors.KindStream)
		log.Error().Err(err).Int("partial_len", len(res.Text)).Str("kind", kind.String()).Msg("run stream ended with error")
		return res, cerrors.E(op, kind, err)
	}
	log.Info().Int("text_len", len(res.Text)).Int("attachments", len(res.Attachments)).Msg("run completed")
	return res, nil
}

// materialize fetches a content block once per file id and shows it.
// A fetch failure skips the attachment; a display failure keeps it.
func (c *Chat) materialize(ctx context.Context, ref assistant.ContentRef, fetched map[string]bool) (session.Attachment, bool) {
	if fetched[ref.FileID] {
		return session.Attachment{}, false
	}
	fetched[ref.FileID] = true

	att := session.Attachment{
		Kind: session.AttachmentKind(ref.Kind),
		Ref:  ref.FileID,
		Name: ref.Name,
	}
	err := c.files.With(ctx, ref, func(path string) error {
		return c.io.Attachment(att, path)
	})
	switch {
	case err == nil:
		return att, true
	case cerrors.Is(err, cerrors.KindAttachmentFetch):
		c.log.Warn().Err(err).Str("file_id", ref.FileID).Msg("attachment skipped")
		c.io.Warning(fmt.Sprintf("skipped %s %s: %v", ref.Kind, ref.FileID, err))
		return session.Attachment{}, false
	default:
		c.log.Warn().Err(err).Str("file_id", ref.FileID).Msg("attachment display failed")
		c.io.Warning(fmt.Sprintf("could not display %s %s: %v", ref.Kind, ref.FileID, err))
		return att, true
	}
}

func runFailure(run assistant.Run) error {
	if run.LastError != "" {
		return fmt.Errorf("run %s: %s", run.Status, run.LastError)
	}
	return fmt.Errorf("run ended with status %s", run.Status)
}
