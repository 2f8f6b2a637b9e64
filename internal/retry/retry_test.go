package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicy_Do_SucceedsFirstAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPolicy_Do_RetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicy_Do_ExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}

	wantErr := errors.New("persistent")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return wantErr
	})

	if err == nil {
		t.Fatal("Do() should fail after exhausting attempts")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("error should wrap the last failure, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicy_Do_ZeroAttemptsRunsOnce(t *testing.T) {
	p := Policy{}

	calls := 0
	p.Do(context.Background(), func() error {
		calls++
		return errors.New("fail")
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPolicy_Do_ContextCancelsWait(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Minute, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Do(ctx, func() error { return errors.New("fail") })

	if err == nil {
		t.Fatal("Do() should return an error on cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error should wrap context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Do() did not abort the backoff wait")
	}
}
