package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Значения по умолчанию.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
	DefaultMaxDelay   = 10 * time.Second

	// MovementMaxRetries — урезанный лимит для команд перемещения.
	MovementMaxRetries = 2
)

// SleepFunc ожидает d или отмену ctx.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy — параметры повторов.
type Policy struct {
	MaxRetries int           // количество повторов после первой попытки
	BaseDelay  time.Duration // задержка перед первым повтором
	MaxDelay   time.Duration // верхняя граница задержки

	// Sleep подменяется в тестах. nil — ожидание через таймер.
	Sleep SleepFunc

	// OnRetry вызывается перед каждым ожиданием (для логов и метрик).
	OnRetry func(attempt int, delay time.Duration, err error)

	Logger *slog.Logger
}

// DefaultPolicy возвращает политику 3 / 2s / 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// WithMaxRetries возвращает копию политики с другим лимитом повторов.
func (p Policy) WithMaxRetries(n int) Policy {
	p.MaxRetries = n
	return p
}

// Delay вычисляет задержку перед повтором номер attempt (с нуля).
func (p Policy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

// Do выполняет op до MaxRetries+1 раз.
//
// Неретраибельная ошибка возвращается сразу. Ошибка последней попытки
// возвращается без обёрток, чтобы вызывающий видел исходный статус.
// Отмена ctx во время ожидания прерывает цикл с ошибкой контекста.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	maxRetries := max(p.MaxRetries, 0)

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if !IsRetryable(err) || attempt >= maxRetries {
			return result, err
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		if p.Logger != nil {
			p.Logger.Warn("transient device error, retrying",
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"delay", delay,
				"error", err,
			)
		}

		if serr := sleep(ctx, delay); serr != nil {
			var zero T
			return zero, serr
		}
	}
}

// IsRetryable возвращает true для временных сбоев транспорта.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// Sleep ждёт d с учётом контекста.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
