package chat

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/sethvargo/go-retry"
)

const (
	maxRetries    = 3
	baseDelay     = 2 * time.Second
	maxDelay      = 30 * time.Second
	jitterPercent = 30 // ±30% jitter
)

// withRetry runs fn, retrying transient remote failures with capped
// exponential backoff and jitter.
func (c *Chat) withRetry(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	b := retry.NewExponential(c.retryBase)
	b = retry.WithCappedDuration(maxDelay, b)
	b = retry.WithJitterPercent(jitterPercent, b)
	b = retry.WithMaxRetries(maxRetries, b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && isRetryableError(err) {
			attempt++
			c.log.Warn().Err(err).Str("call", what).Int("attempt", attempt).Msg("retrying remote call")
			return retry.RetryableError(err)
		}
		return err
	})
}

// isRetryableError reports whether err is a rate limit, a server error
// or a transport failure. Only typed errors count; message text is never
// inspected, so an id or prompt that happens to contain "500" is not a
// reason to retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Context cancelled is NOT retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	// Network errors (dial, DNS, timeouts, *url.Error from the HTTP client)
	var netErr net.Error
	return errors.As(err, &netErr)
}

// sleepWithContext sleeps for d, but returns early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
