package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestController(maxRetries int, retryDelay time.Duration, waits *[]time.Duration) *Controller {
	c := New(maxRetries, retryDelay)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
	return c
}

func TestControllerBackoffSchedule(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	c := newTestController(3, 2*time.Second, &waits)

	calls := 0
	var messages []string
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 3 {
			return errors.New("upstream 503")
		}
		return nil
	}, func(attempt, maxRetries int, err error) {
		messages = append(messages, Message(attempt, maxRetries, err))
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}

	wantWaits := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(waits) != len(wantWaits) {
		t.Fatalf("waits = %v, want %v", waits, wantWaits)
	}
	for i := range wantWaits {
		if waits[i] != wantWaits[i] {
			t.Fatalf("waits[%d] = %v, want %v", i, waits[i], wantWaits[i])
		}
	}

	wantMessages := []string{
		"Retry 1/3: upstream 503",
		"Retry 2/3: upstream 503",
		"Retry 3/3: upstream 503",
	}
	for i := range wantMessages {
		if messages[i] != wantMessages[i] {
			t.Fatalf("messages[%d] = %q, want %q", i, messages[i], wantMessages[i])
		}
	}
}

func TestControllerExhaustsRetries(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	c := newTestController(3, time.Second, &waits)

	calls := 0
	retries := 0
	cause := errors.New("connection refused")
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	}, func(attempt, maxRetries int, err error) {
		retries++
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() error = %v, want ExhaustedError", err)
	}
	if exhausted.Attempts != 4 {
		t.Fatalf("Attempts = %d, want 4", exhausted.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Fatal("ExhaustedError should unwrap to the last cause")
	}
	if err.Error() != "connection refused" {
		t.Fatalf("Error() = %q, want cause message", err.Error())
	}
	if calls != 4 || retries != 3 || len(waits) != 3 {
		t.Fatalf("calls=%d retries=%d waits=%d, want 4/3/3", calls, retries, len(waits))
	}
}

func TestControllerClassifierStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	c := newTestController(3, time.Second, &waits)
	permanent := errors.New("400 bad request")
	c.SetClassifier(func(err error) bool { return !errors.Is(err, permanent) })

	calls := 0
	err := c.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	}, nil)
	if !errors.Is(err, permanent) {
		t.Fatalf("Do() error = %v, want permanent", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatal("permanent errors should not be reported as exhausted")
	}
	if calls != 1 || len(waits) != 0 {
		t.Fatalf("calls=%d waits=%d, want 1/0", calls, len(waits))
	}
}

func TestControllerContextCancelDuringWait(t *testing.T) {
	t.Parallel()

	c := New(3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	err := c.Do(ctx, func(ctx context.Context) error {
		return errors.New("fail")
	}, func(attempt, maxRetries int, err error) {
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
}

func TestControllerDefaults(t *testing.T) {
	t.Parallel()

	c := New(-1, 0)
	if c.MaxRetries() != DefaultMaxRetries {
		t.Fatalf("MaxRetries() = %d, want %d", c.MaxRetries(), DefaultMaxRetries)
	}
	if got := c.Delay(1); got != DefaultRetryDelay {
		t.Fatalf("Delay(1) = %v, want %v", got, DefaultRetryDelay)
	}
	if got := c.Delay(0); got != DefaultRetryDelay {
		t.Fatalf("Delay(0) = %v, want %v", got, DefaultRetryDelay)
	}
}

func TestControllerZeroRetries(t *testing.T) {
	t.Parallel()

	var waits []time.Duration
	c := newTestController(0, time.Second, &waits)
	if c.MaxRetries() != 0 {
		t.Fatalf("MaxRetries() = %d, want 0", c.MaxRetries())
	}

	boom := errors.New("boom")
	attempts := 0
	retries := 0
	err := c.Do(context.Background(), func(context.Context) error {
		attempts++
		return boom
	}, func(int, int, error) {
		retries++
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() error = %v, want *ExhaustedError", err)
	}
	if exhausted.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", exhausted.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want wrapped boom", err)
	}
	if attempts != 1 || retries != 0 || len(waits) != 0 {
		t.Fatalf("attempts/retries/waits = %d/%d/%d, want 1/0/0", attempts, retries, len(waits))
	}
}
