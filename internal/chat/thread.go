package chat

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
	"github.com/Ads2024/Demo-Assistant-API-AI/internal/session"
)

// EnsureThread returns the session's thread, creating it on first use.
// On failure the session is left untouched.
func (c *Chat) EnsureThread(ctx context.Context, sess *session.Session) (string, error) {
	const op cerrors.Op = "chat.EnsureThread"
	if sess.HasThread() {
		return sess.ThreadID, nil
	}

	ctx, span := c.tracer.Start(ctx, "chat.ensure_thread")
	defer span.End()

	var id string
	err := c.withRetry(ctx, "create thread", func(ctx context.Context) error {
		var err error
		id, err = c.svc.CreateThread(ctx)
		return err
	})
	if err == nil && id == "" {
		err = errors.New("remote returned no thread id")
	}
	if err != nil {
		recordError(span, err)
		c.log.Error().Err(err).Str("session_id", sess.ID).Msg("thread creation failed")
		return "", cerrors.E(op, cerrors.KindThreadCreation, err)
	}

	sess.SetThread(id)
	span.SetAttributes(attribute.String("thread_id", id))
	c.log.Info().Str("session_id", sess.ID).Str("thread_id", id).Msg("thread created")
	return id, nil
}
