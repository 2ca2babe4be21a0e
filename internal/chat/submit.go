package chat

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	cerrors "github.com/Ads2024/Demo-Assistant-API-AI/internal/errors"
)

// Submit posts text as a user message into threadID.
func (c *Chat) Submit(ctx context.Context, threadID, text string) (Receipt, error) {
	const op cerrors.Op = "chat.Submit"
	if threadID == "" {
		return Receipt{}, cerrors.E(op, cerrors.KindSubmission, errors.New("no thread"))
	}

	ctx, span := c.tracer.Start(ctx, "chat.submit", trace.WithAttributes(runAttrs(threadID, "")...))
	defer span.End()

	var msgID string
	err := c.withRetry(ctx, "create message", func(ctx context.Context) error {
		var err error
		msgID, err = c.svc.CreateMessage(ctx, threadID, text)
		return err
	})
	if err != nil {
		recordError(span, err)
		c.log.Error().Err(err).Str("thread_id", threadID).Msg("submission failed")
		return Receipt{}, cerrors.E(op, cerrors.KindSubmission, err)
	}

	c.log.Debug().Str("thread_id", threadID).Str("message_id", msgID).Msg("message submitted")
	return Receipt{ThreadID: threadID, MessageID: msgID}, nil
}
