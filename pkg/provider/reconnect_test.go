package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arzzra/media_engine/pkg/media"
)

// TestReconnectDelaySchedule проверяет расписание экспоненциального
// backoff: 1s, 2s, 4s, 8s, 16s с потолком 30s
func TestReconnectDelaySchedule(t *testing.T) {
	cfg := DefaultReconnectConfig()

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // 32s обрезается потолком
		30 * time.Second,
	}
	for i, want := range expected {
		attempt := uint(i + 1)
		if got := cfg.Delay(attempt); got != want {
			t.Errorf("попытка %d: задержка %v, ожидалось %v", attempt, got, want)
		}
	}
}

// TestReconnectDelayMonotone проверяет монотонность задержек
func TestReconnectDelayMonotone(t *testing.T) {
	cfg := ReconnectConfig{
		Enabled:      true,
		MaxAttempts:  10,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   1.7,
	}
	prev := time.Duration(0)
	for attempt := uint(1); attempt <= 20; attempt++ {
		delay := cfg.Delay(attempt)
		if delay < prev {
			t.Fatalf("попытка %d: задержка %v меньше предыдущей %v", attempt, delay, prev)
		}
		if delay > cfg.MaxDelay {
			t.Fatalf("попытка %d: задержка %v превышает потолок %v", attempt, delay, cfg.MaxDelay)
		}
		prev = delay
	}
}

// TestRunWithReconnectExhaustsBudget проверяет ошибку после исчерпания
// бюджета попыток
func TestRunWithReconnectExhaustsBudget(t *testing.T) {
	cfg := ReconnectConfig{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := RunWithReconnect(context.Background(), "test", cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("сервер недоступен")
	})

	if attempts != 3 {
		t.Errorf("выполнено %d попыток, ожидалось 3", attempts)
	}
	if !media.IsCode(err, media.ErrorCodeMaxReconnectAttemptsExceeded) {
		t.Errorf("ожидался код MaxReconnectAttemptsExceeded, получено: %v", err)
	}
}

// TestRunWithReconnectSucceedsMidway проверяет остановку после успеха
func TestRunWithReconnectSucceedsMidway(t *testing.T) {
	cfg := ReconnectConfig{
		Enabled:      true,
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := RunWithReconnect(context.Background(), "test", cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("ещё нет")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if attempts != 3 {
		t.Errorf("выполнено %d попыток, ожидалось 3", attempts)
	}
}

// TestRunWithReconnectDisabled проверяет ровно одну попытку
// при выключенной политике
func TestRunWithReconnectDisabled(t *testing.T) {
	cfg := ReconnectConfig{Enabled: false}

	attempts := 0
	err := RunWithReconnect(context.Background(), "test", cfg, func(ctx context.Context) error {
		attempts++
		return errors.New("сервер недоступен")
	})
	if attempts != 1 {
		t.Errorf("выполнено %d попыток, ожидалась 1", attempts)
	}
	if err == nil {
		t.Error("ошибка единственной попытки должна возвращаться")
	}
}

// TestRunWithReconnectContextCancel проверяет прерывание по контексту
// во время задержки между попытками
func TestRunWithReconnectContextCancel(t *testing.T) {
	cfg := ReconnectConfig{
		Enabled:      true,
		MaxAttempts:  10,
		InitialDelay: time.Hour, // отмена наступит раньше задержки
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := RunWithReconnect(ctx, "test", cfg, func(ctx context.Context) error {
		return errors.New("сервер недоступен")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ожидалась ошибка отмены контекста, получено: %v", err)
	}
}
