package retry

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Func observes a failed attempt before the controller waits for retry number attempt.
type Func func(attempt int, maxRetries int, err error)

// ExhaustedError is returned once every retry has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	if e == nil || e.Err == nil {
		return "retries exhausted"
	}
	return e.Err.Error()
}

func (e *ExhaustedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Controller runs an operation with bounded exponential backoff and no jitter.
type Controller struct {
	maxRetries int
	retryDelay time.Duration
	retryable  func(err error) bool
	sleep      func(ctx context.Context, d time.Duration) error
}

// New returns a controller that retries everything. A negative maxRetries
// selects DefaultMaxRetries; zero means a single attempt.
func New(maxRetries int, retryDelay time.Duration) *Controller {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	return &Controller{
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		retryable:  func(error) bool { return true },
		sleep:      sleepWithContext,
	}
}

// SetClassifier limits retries to errors the classifier accepts. Other
// errors are returned from Do immediately.
func (c *Controller) SetClassifier(retryable func(err error) bool) {
	if c == nil || retryable == nil {
		return
	}
	c.retryable = retryable
}

func (c *Controller) MaxRetries() int {
	return c.maxRetries
}

// Delay returns the wait before retry number attempt: retryDelay * 2^(attempt-1).
func (c *Controller) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := c.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// Do calls op until it succeeds, the retry budget is spent, or ctx ends.
func (c *Controller) Do(ctx context.Context, op func(ctx context.Context) error, onRetry Func) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !c.retryable(err) {
			return err
		}
		if attempt >= c.maxRetries {
			return &ExhaustedError{Attempts: attempt + 1, Err: err}
		}

		next := attempt + 1
		if onRetry != nil {
			onRetry(next, c.maxRetries, err)
		}
		if err := c.sleep(ctx, c.Delay(next)); err != nil {
			return err
		}
	}
}

// Message formats the progress text shown while a retry is pending.
func Message(attempt int, maxRetries int, err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return fmt.Sprintf("Retry %d/%d: %s", attempt, maxRetries, msg)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
