package stackmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stackl-io/stackl-core/internal/stackerrors"
)

func TestWithConflictRetry_SucceedsOnSecondAttempt(t *testing.T) {
	calls := 0
	err := withConflictRetry(func() error {
		calls++
		if calls == 1 {
			return stackerrors.Conflict("inst1")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", calls)
	}
}

func TestWithConflictRetry_ReturnsConflictAfterBothAttemptsFail(t *testing.T) {
	calls := 0
	err := withConflictRetry(func() error {
		calls++
		return stackerrors.Conflict("inst1")
	})
	if !stackerrors.Is(err, stackerrors.KindConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", calls)
	}
}

func TestWithConflictRetry_PassesThroughNonConflictError(t *testing.T) {
	calls := 0
	wantErr := stackerrors.NotFound("stack_instance", "inst1")
	err := withConflictRetry(func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) && err.Error() != wantErr.Error() {
		t.Errorf("expected error to pass through unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retry on a non-conflict error, got %d attempts", calls)
	}
}

func TestWithTransientBackoff_SucceedsWithinBudget(t *testing.T) {
	calls := 0
	err := withTransientBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return stackerrors.Transient(errors.New("store unavailable"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestWithTransientBackoff_ExhaustsBudgetAndReturnsLastError(t *testing.T) {
	calls := 0
	err := withTransientBackoff(context.Background(), func() error {
		calls++
		return stackerrors.Transient(errors.New("store unavailable"))
	})
	if !stackerrors.Is(err, stackerrors.KindTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != transientRetryBudget {
		t.Errorf("expected %d attempts, got %d", transientRetryBudget, calls)
	}
}

func TestWithTransientBackoff_PassesThroughNonTransientErrorImmediately(t *testing.T) {
	calls := 0
	wantErr := stackerrors.Conflict("inst1")
	err := withTransientBackoff(context.Background(), func() error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Errorf("expected error to pass through unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected no retry on a non-transient error, got %d attempts", calls)
	}
}

func TestWithTransientBackoff_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withTransientBackoff(ctx, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return stackerrors.Transient(errors.New("store unavailable"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled once the context is done, got %v", err)
	}
	if calls >= transientRetryBudget {
		t.Errorf("expected cancellation to cut the retries short, got %d attempts", calls)
	}
}

func TestWithTransientBackoff_DelayGrowsBetweenAttempts(t *testing.T) {
	start := time.Now()
	calls := 0
	_ = withTransientBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return stackerrors.Transient(errors.New("store unavailable"))
		}
		return nil
	})
	// Two failures wait base then 2*base; a constant delay would total 2*base.
	if elapsed := time.Since(start); elapsed < 3*transientBaseDelay {
		t.Errorf("expected backoff delays of %v then %v (at least %v in total), took %v", transientBaseDelay, 2*transientBaseDelay, 3*transientBaseDelay, elapsed)
	}
}
