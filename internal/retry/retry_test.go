package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// recordSleep копит запрошенные задержки вместо реального ожидания.
func recordSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 10 * time.Second},
		{4, 10 * time.Second},
		{20, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDo_RetryTiming(t *testing.T) {
	var delays []time.Duration
	p := DefaultPolicy()
	p.Sleep = recordSleep(&delays)

	calls := 0
	transient := status.Error(codes.Unavailable, "robot unreachable")

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		return 0, transient
	})

	if calls != 4 {
		t.Errorf("expected 4 attempts, got %d", calls)
	}
	if err != transient {
		t.Errorf("expected the last error to propagate unchanged, got %v", err)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDo_CapsAtMaxDelay(t *testing.T) {
	var delays []time.Duration
	p := DefaultPolicy().WithMaxRetries(5)
	p.Sleep = recordSleep(&delays)

	Do(context.Background(), p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, status.Error(codes.DeadlineExceeded, "timeout")
	})

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	p := DefaultPolicy()
	p.Sleep = recordSleep(&delays)

	calls := 0
	got, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", status.Error(codes.ResourceExhausted, "busy")
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(delays) != 2 {
		t.Errorf("expected 2 sleeps, got %d", len(delays))
	}
}

func TestDo_NonRetryablePropagatesImmediately(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid argument", status.Error(codes.InvalidArgument, "bad shelf")},
		{"not found", status.Error(codes.NotFound, "unknown robot")},
		{"plain error", errors.New("value error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var delays []time.Duration
			p := DefaultPolicy()
			p.Sleep = recordSleep(&delays)

			calls := 0
			_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
				calls++
				return 0, tt.err
			})

			if calls != 1 {
				t.Errorf("expected 1 call, got %d", calls)
			}
			if err != tt.err {
				t.Errorf("expected original error, got %v", err)
			}
			if len(delays) != 0 {
				t.Errorf("expected no sleeps, got %v", delays)
			}
		})
	}
}

func TestDo_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return Sleep(ctx, d)
	}

	calls := 0
	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		calls++
		return 0, status.Error(codes.Unavailable, "down")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_OnRetryHook(t *testing.T) {
	var attempts []int
	p := DefaultPolicy().WithMaxRetries(2)
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
	}

	Do(context.Background(), p, func(ctx context.Context) (int, error) {
		return 0, status.Error(codes.Unavailable, "down")
	})

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("unexpected retry attempts: %v", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", status.Error(codes.Unavailable, ""), true},
		{"deadline", status.Error(codes.DeadlineExceeded, ""), true},
		{"exhausted", status.Error(codes.ResourceExhausted, ""), true},
		{"wrapped unavailable", fmt.Errorf("move shelf: %w", status.Error(codes.Unavailable, "")), true},
		{"invalid argument", status.Error(codes.InvalidArgument, ""), false},
		{"context canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
