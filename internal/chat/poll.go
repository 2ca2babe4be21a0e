package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ads2024/Demo-Assistant-API-AI/internal/assistant"
	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
)

// PollUntilComplete polls the run every PollInterval until it reaches a
// terminal status or timeout elapses. A terminal status is returned as
// soon as it is seen. When the bound elapses first the result is
// RunStatusTimeout with a KindTimeout error, returned after exactly
// timeout on the Chat's clock.
func (c *Chat) PollUntilComplete(ctx context.Context, threadID, runID string, timeout time.Duration) (assistant.RunStatus, error) {
	run, err := c.pollRun(ctx, threadID, runID, timeout)
	return run.Status, err
}

// pollRun is PollUntilComplete returning the last run it fetched, so a
// failed run's LastError is available without another request.
func (c *Chat) pollRun(ctx context.Context, threadID, runID string, timeout time.Duration) (assistant.Run, error) {
	const op cerrors.Op = "chat.PollUntilComplete"
	if timeout <= 0 {
		timeout = c.opts.RunTimeout
	}

	ctx, span := c.tracer.Start(ctx, "chat.poll", trace.WithAttributes(runAttrs(threadID, runID)...))
	defer span.End()

	start := c.now()
	polls := 0
	for {
		run, err := c.svc.GetRun(ctx, threadID, runID)
		polls++
		if err != nil {
			recordError(span, err)
			return assistant.Run{ID: runID}, cerrors.E(op, timeoutOr(ctx, err, cerrors.KindRemote), err)
		}
		if run.Status.Terminal() {
			span.SetAttributes(attribute.String("run_status", string(run.Status)), attribute.Int("polls", polls))
			c.log.Debug().Str("run_id", runID).Str("status", string(run.Status)).Int("polls", polls).Msg("run finished")
			return run, nil
		}

		elapsed := c.now().Sub(start)
		if elapsed >= timeout {
			err := fmt.Errorf("run %s still %s after %s", runID, run.Status, timeout)
			recordError(span, err)
			c.log.Warn().Str("run_id", runID).Dur("timeout", timeout).Int("polls", polls).Msg("run poll timed out")
			run.Status = assistant.RunStatusTimeout
			return run, cerrors.E(op, cerrors.KindTimeout, err)
		}

		wait := c.opts.PollInterval
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}
		if err := c.sleep(ctx, wait); err != nil {
			return assistant.Run{ID: runID}, cerrors.E(op, timeoutOr(ctx, err, cerrors.KindRemote), err)
		}
	}
}

// runPolled creates a run, waits for it and collects its answer.
func (c *Chat) runPolled(ctx context.Context, threadID string) (Result, error) {
	const op cerrors.Op = "chat.AskPolled"

	run, err := c.svc.CreateRun(ctx, threadID, c.runRequest())
	if err != nil {
		return Result{}, cerrors.E(op, cerrors.KindSubmission, err)
	}
	res := Result{RunID: run.ID}

	c.io.ThinkingStart()
	last, err := c.pollRun(ctx, threadID, run.ID, c.opts.RunTimeout)
	res.Status = last.Status
	if err != nil {
		return res, err
	}
	if !last.Status.Succeeded() {
		return res, cerrors.E(op, cerrors.KindStream, runFailure(last))
	}

	msgs, err := c.svc.ListMessages(ctx, threadID, run.ID)
	if err != nil {
		return res, cerrors.E(op, cerrors.KindRemote, err)
	}

	var sb strings.Builder
	fetched := make(map[string]bool)
	for _, m := range msgs {
		if m.Role != string(session.RoleAssistant) {
			continue
		}
		if sb.Len() > 0 && m.Text != "" {
			sb.WriteString("\n\n")
		}
		sb.WriteString(m.Text)
		for _, ref := range m.Content {
			if att, ok := c.materialize(ctx, ref, fetched); ok {
				res.Attachments = append(res.Attachments, att)
			}
		}
	}
	res.Text = sb.String()
	c.io.TextDelta(res.Text)
	c.io.TextDone(res.Text)
	return res, nil
}
