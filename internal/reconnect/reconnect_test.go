package reconnect

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDelayIsLinear(t *testing.T) {
	p := DefaultPolicy()
	for n := 1; n <= 5; n++ {
		if got, want := p.Delay(n), time.Duration(n)*3*time.Second; got != want {
			t.Errorf("Delay(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestRun_GivesUpAfterMaxAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, Step: time.Millisecond}
	var attempts []int
	err := Run(context.Background(), p, func(_ context.Context, n int) error {
		attempts = append(attempts, n)
		return fmt.Errorf("dial %d failed", n)
	})
	if err == nil {
		t.Fatal("Run succeeded")
	}
	if len(attempts) != 3 || attempts[2] != 3 {
		t.Errorf("attempts = %v, want [1 2 3]", attempts)
	}
}

func TestRun_StopsOnSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 5, Step: time.Millisecond}
	calls := 0
	err := Run(context.Background(), p, func(context.Context, int) error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("err = %v calls = %d", err, calls)
	}
}

func TestRun_ErrStop(t *testing.T) {
	p := Policy{MaxAttempts: 5, Step: time.Millisecond}
	calls := 0
	err := Run(context.Background(), p, func(context.Context, int) error {
		calls++
		return fmt.Errorf("subject removed: %w", ErrStop)
	})
	if !errors.Is(err, ErrStop) || calls != 1 {
		t.Errorf("err = %v calls = %d", err, calls)
	}
}

func TestRun_Disabled(t *testing.T) {
	err := Run(context.Background(), Policy{}, func(context.Context, int) error {
		t.Error("attempt ran with a disabled policy")
		return nil
	})
	if !errors.Is(err, ErrStop) {
		t.Errorf("err = %v, want ErrStop", err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, Policy{MaxAttempts: 5, Step: time.Hour}, func(context.Context, int) error {
		t.Error("attempt ran after cancel")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
