package provider

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arzzra/media_engine/pkg/media"
)

var reconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "media_engine",
	Subsystem: "provider",
	Name:      "reconnect_attempts_total",
	Help:      "Попытки переподключения клиентов потоковых провайдеров",
}, []string{"provider"})

// ReconnectConfig политика переподключения с экспоненциальным backoff.
type ReconnectConfig struct {
	Enabled      bool          `json:"enabled"`
	MaxAttempts  uint          `json:"maxAttempts"`
	InitialDelay time.Duration `json:"initialDelay"`
	MaxDelay     time.Duration `json:"maxDelay"`
	Multiplier   float64       `json:"multiplier"`
}

// DefaultReconnectConfig возвращает политику по умолчанию:
// 5 попыток, 1s -> 2s -> 4s -> ... с потолком 30s.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:      true,
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay возвращает задержку перед попыткой attempt (нумерация с 1):
// min(InitialDelay * Multiplier^(attempt-1), MaxDelay).
// Монотонно неубывающая по attempt, ограничена MaxDelay.
func (c ReconnectConfig) Delay(attempt uint) time.Duration {
	if attempt <= 1 {
		return c.InitialDelay
	}
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if maxDelay := float64(c.MaxDelay); delay > maxDelay {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

// RunWithReconnect последовательно вызывает connect пока соединение не
// установится. Попытки никогда не перекрываются; между ними выдерживается
// задержка политики. После исчерпания MaxAttempts возвращается ошибка
// MaxReconnectAttemptsExceeded.
//
// При выключенной политике выполняется ровно одна попытка.
func RunWithReconnect(ctx context.Context, name string, cfg ReconnectConfig, connect func(context.Context) error) error {
	if !cfg.Enabled {
		reconnectAttempts.WithLabelValues(name).Inc()
		return connect(ctx)
	}

	var attempt uint
	for {
		attempt++
		reconnectAttempts.WithLabelValues(name).Inc()

		err := connect(ctx)
		if err == nil {
			return nil
		}

		if attempt >= cfg.MaxAttempts {
			return media.WrapError(media.ErrorCodeMaxReconnectAttemptsExceeded, "",
				"провайдер "+name+" недоступен после всех попыток", err)
		}

		delay := cfg.Delay(attempt)
		slog.Warn("provider: попытка соединения не удалась",
			"provider", name, "attempt", attempt, "max_attempts", cfg.MaxAttempts,
			"retry_in", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
