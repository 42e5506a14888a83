package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/tutor/internal/apperr"
)

var fast = Policy{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

func TestDo_succeedsAfterTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return apperr.New(apperr.KindUnavailable, "embed", errors.New("503"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_stopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return apperr.New(apperr.KindRateLimited, "embed", errors.New("429"))
	})
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Errorf("expected last error to be returned, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_doesNotRetryNonTransient(t *testing.T) {
	for _, kind := range []apperr.Kind{apperr.KindAuth, apperr.KindValidation, apperr.KindConfiguration, apperr.KindProvider} {
		calls := 0
		err := Do(context.Background(), fast, func(context.Context) error {
			calls++
			return apperr.New(kind, "embed", errors.New("nope"))
		})
		if err == nil || calls != 1 {
			t.Errorf("kind %v: calls = %d, err = %v", kind, calls, err)
		}
	}
}

func TestDo_contextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 5, InitialWait: time.Hour, MaxWait: time.Hour}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, p, func(context.Context) error {
		calls++
		return apperr.New(apperr.KindUnavailable, "embed", errors.New("503"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_zeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, func(context.Context) error {
		calls++
		return nil
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPacer(t *testing.T) {
	var nilPacer *Pacer
	if err := nilPacer.Wait(context.Background()); err != nil {
		t.Errorf("nil pacer should not fail: %v", err)
	}
	if NewPacer(0, 1) != nil {
		t.Error("non-positive rate should disable pacing")
	}
	p := NewPacer(1000, 2)
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewPacer(0.001, 1)
	_ = slow.Wait(context.Background())
	if err := slow.Wait(ctx); err == nil {
		t.Error("expected error from cancelled context")
	}
}
