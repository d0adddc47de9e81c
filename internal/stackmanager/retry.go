package stackmanager

import (
	"context"
	"time"

	"github.com/stackl-io/stackl-core/internal/stackerrors"
)

// transientRetryBudget bounds how many attempts an operation failing with
// KindTransient gets before the caller gives up and surfaces the last
// error (503). Delay doubles after each failed attempt, mirroring the exponential-backoff-on-retry idiom used
// elsewhere in the pack for rate-limited external calls.
const (
	transientRetryBudget = 4
	transientBaseDelay   = 50 * time.Millisecond
)

// withConflictRetry runs op, and retries it exactly once more if the first
// attempt fails with KindConflict: the serialized path gets one extra shot
// at winning the optimistic-CAS race before surfacing 409 to the caller.
func withConflictRetry(op func() error) error {
	err := op()
	if err != nil && stackerrors.Is(err, stackerrors.KindConflict) {
		err = op()
	}
	return err
}

// withTransientBackoff retries op with exponential backoff while it keeps
// failing with KindTransient, up to transientRetryBudget attempts. Any
// other error, or success, returns immediately.
func withTransientBackoff(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < transientRetryBudget; attempt++ {
		err = op()
		if err == nil || !stackerrors.Is(err, stackerrors.KindTransient) {
			return err
		}
		if attempt == transientRetryBudget-1 {
			break
		}
		delay := transientBaseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
