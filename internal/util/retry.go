package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// HTTPStatusError is returned by the HTTP clients for any non-200 response.
// 429 and 5xx are retried, other statuses are permanent.
type HTTPStatusError struct {
	Service    string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Transient reports whether the request may succeed if repeated
func (e *HTTPStatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryPolicy runs an external call under a per-attempt timeout with exponential backoff
type RetryPolicy struct {
	MaxRetries      int
	CallTimeout     time.Duration
	InitialInterval time.Duration // zero uses the backoff library default
}

// Do calls op until it succeeds, returns a permanent error, or retries are
// exhausted. Errors wrapped with backoff.Permanent and non-transient
// HTTPStatusErrors stop immediately.
func (p RetryPolicy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	eb.MaxElapsedTime = 0

	var bo backoff.BackOff = eb
	if p.MaxRetries >= 0 {
		bo = backoff.WithMaxRetries(eb, uint64(p.MaxRetries))
	}
	bo = backoff.WithContext(bo, ctx)

	attempt := func() error {
		callCtx := ctx
		if p.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
			defer cancel()
		}

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			if !statusErr.Transient() {
				return backoff.Permanent(err)
			}
			if statusErr.RetryAfter > 0 {
				if werr := sleepCtx(ctx, statusErr.RetryAfter); werr != nil {
					return backoff.Permanent(err)
				}
			}
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		log.WithFields(log.Fields{"call": name, "wait": wait}).Warnf("Retrying after error: %v", err)
	}
	return backoff.RetryNotify(attempt, bo, notify)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds. Dates and garbage yield zero.
func ParseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
