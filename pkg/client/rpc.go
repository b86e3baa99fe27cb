package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tostrovsky/tp-so-alternativo/pkg/rpc"
)

// callWithTimeout executes a single RPC call bounded by the configured timeout
func (c *Client) callWithTimeout(ctx context.Context, fn func(context.Context) error) error {
	if c.config.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return fn(callCtx)
}

// callWithRetry executes an RPC call with retry logic
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		err := c.callWithTimeout(ctx, fn)

		// If successful or not retryable, return the result
		if err == nil || !isRetryableError(err) {
			return err
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}

		delay := c.retryDelay(attempt)
		c.logger.Debug("retrying", "op", operation, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operation, c.config.MaxRetries+1, lastErr)
}

// retryDelay returns the wait after the given failed attempt, counting from
// zero: RetryDelay grown by BackoffFactor per attempt.
func (c *Client) retryDelay(attempt int) time.Duration {
	return time.Duration(float64(c.config.RetryDelay) * math.Pow(c.config.BackoffFactor, float64(attempt)))
}

// isRetryableError checks if an error is retryable. Failures the server
// attributed to the driver are final.
func isRetryableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	for _, detail := range s.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == rpc.ErrorDomain {
			return false
		}
	}

	switch s.Code() {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		// Server is unavailable, resource exhausted, or transaction aborted
		return true
	case codes.Internal, codes.Unknown:
		return true
	default:
		return false
	}
}
