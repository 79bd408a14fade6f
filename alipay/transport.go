package alipay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxResponseBytes = 8 << 20

type exchange struct {
	status int
	header http.Header
	body   []byte
}

// roundTrip sends the request built by newRequest, retrying transport errors
// and retryable statuses when idempotent is set. A fresh request is built for
// every attempt so bodies are never reused.
func (c *Client) roundTrip(
	ctx context.Context,
	protocol string,
	idempotent bool,
	newRequest func(ctx context.Context) (*http.Request, error),
) (exchange, error) {
	policy := c.retry
	policy.Idempotent = idempotent

	started := time.Now()
	result, err := RetryWithBackoff(ctx, func(ctx context.Context) (exchange, error) {
		req, err := newRequest(ctx)
		if err != nil {
			return exchange{}, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Debug("alipay request attempt failed", zap.String("url", req.URL.Redacted()), zap.Error(err))
			return exchange{}, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return exchange{}, err
		}
		return exchange{status: resp.StatusCode, header: resp.Header, body: body}, nil
	}, func(result exchange, err error) bool {
		if err != nil {
			return ctx.Err() == nil
		}
		return ShouldRetryHTTPStatus(result.status)
	}, policy)

	outcome := "success"
	switch {
	case err != nil:
		outcome = "transport_error"
	case result.status >= 400:
		outcome = fmt.Sprintf("http_%d", result.status)
	}
	c.metrics.ObserveGateway(protocol, outcome, time.Since(started))

	if err != nil {
		return exchange{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	return result, nil
}
