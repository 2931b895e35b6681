package telephony

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/acme/powerdialer/pkg/errors"
)

// Waiter blocks until a placed call reaches a terminal state. It subscribes
// to provider status events when the provider supports that, and otherwise
// falls back to bounded polling with exponential backoff. Either way the
// wait is cut off by a hard timeout, which callers map to a NoAnswer
// outcome.
type Waiter struct {
	provider     Provider
	pollInterval time.Duration
	timeout      time.Duration
}

// NewWaiter constructs a status waiter.
func NewWaiter(provider Provider, pollInterval, timeout time.Duration) *Waiter {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Waiter{provider: provider, pollInterval: pollInterval, timeout: timeout}
}

// Await returns the terminal status of the call, or ErrTimeout when the hard
// bound elapses first.
func (w *Waiter) Await(ctx context.Context, handle CallHandle) (CallStatus, error) {
	deadline := time.Now().Add(w.timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if sub, ok := w.provider.(StatusSubscriber); ok {
		return w.awaitEvents(ctx, sub.SubscribeStatus(handle.ID))
	}
	return w.awaitPolling(ctx, handle)
}

func (w *Waiter) awaitEvents(ctx context.Context, events <-chan CallStatus) (CallStatus, error) {
	for {
		select {
		case <-ctx.Done():
			return CallStatus{}, w.mapCtxErr(ctx.Err())
		case status, ok := <-events:
			if !ok {
				return CallStatus{}, fmt.Errorf("%w: status stream closed", apperrors.ErrProvider)
			}
			if status.Terminal() {
				return status, nil
			}
		}
	}
}

func (w *Waiter) awaitPolling(ctx context.Context, handle CallHandle) (CallStatus, error) {
	interval := w.pollInterval
	for {
		status, err := w.provider.GetCallStatus(ctx, handle.ID)
		if err != nil {
			if ctx.Err() != nil {
				return CallStatus{}, w.mapCtxErr(ctx.Err())
			}
			return CallStatus{}, fmt.Errorf("%w: get status: %v", apperrors.ErrProvider, err)
		}
		if status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return CallStatus{}, w.mapCtxErr(ctx.Err())
		case <-time.After(interval):
		}

		interval *= 2
		if interval > 4*w.pollInterval {
			interval = 4 * w.pollInterval
		}
	}
}

func (w *Waiter) mapCtxErr(err error) error {
	if err == context.DeadlineExceeded {
		return fmt.Errorf("%w: call status wait exceeded %s", apperrors.ErrTimeout, w.timeout)
	}
	return err
}
