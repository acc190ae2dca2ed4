package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kuuji/pulsewire/internal/enginerr"
)

func TestDoSucceedsEventually(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialInterval: time.Millisecond}, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoRespectsMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{InitialInterval: time.Millisecond, MaxAttempts: 2}, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("always fails")
	})
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if enginerr.Of(err) != enginerr.KindAborted {
		t.Fatalf("error kind = %v, want KindAborted", enginerr.Of(err))
	}
}

func TestDoRespectsContinuePredicate(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{
		InitialInterval: time.Millisecond,
		Continue: func(attempt int, err error) bool {
			return attempt < 2
		},
	}, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("always fails")
	})
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if enginerr.Of(err) != enginerr.KindAborted {
		t.Fatalf("error kind = %v, want KindAborted", enginerr.Of(err))
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Policy{InitialInterval: time.Millisecond}, func(ctx context.Context, attempt int) error {
		return errors.New("should not matter")
	})
	if enginerr.Of(err) != enginerr.KindCancelled {
		t.Fatalf("error kind = %v, want KindCancelled", enginerr.Of(err))
	}
}
