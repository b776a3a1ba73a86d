// Package bridge реализует интеграцию с внешним AI медиа сервером.
//
// Когда bridge включен и владеет AI обработкой (UseForAI), входящее аудио
// трека пересылается на сервер по WebSocket, а внутренние VAD/ASR/EOU
// процессоры не собираются. Синтезированный ответ сервера возвращается
// в исходящий путь трека единственным способом — событием
// event.BridgeAudio через шину и Pump.
package bridge

import (
	"time"

	"github.com/arzzra/media_engine/pkg/media"
	"github.com/arzzra/media_engine/pkg/provider"
)

// AudioConfig формат аудио, пересылаемого на bridge сервер
type AudioConfig struct {
	SampleRate uint32 `json:"sampleRate,omitempty"`
	Channels   uint16 `json:"channels,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
}

// Config конфигурация bridge интеграции
type Config struct {
	// Enabled включает интеграцию. Выключенный bridge при сборке
	// пайплайна пропускается без ошибки.
	Enabled bool `json:"enabled"`
	// ServerURL адрес WebSocket сервера, обязателен при Enabled
	ServerURL string `json:"serverUrl,omitempty"`
	// UseForAI передать AI обработку серверу вместо внутренних
	// VAD/ASR/EOU процессоров
	UseForAI bool `json:"useForAI,omitempty"`
	// FallbackToInternal при недоступности сервера собрать внутренний
	// пайплайн; иначе сборка завершается ошибкой BridgeUnavailable
	FallbackToInternal bool `json:"fallbackToInternal,omitempty"`
	// ConnectionTimeout таймаут установки соединения
	ConnectionTimeout time.Duration `json:"connectionTimeout,omitempty"`
	// Reconnect политика переподключения
	Reconnect provider.ReconnectConfig `json:"reconnect,omitempty"`
	// Audio формат пересылаемого аудио
	Audio AudioConfig `json:"audio,omitempty"`
	// DefaultSystemPrompt системный промпт AI диалога
	DefaultSystemPrompt string `json:"defaultSystemPrompt,omitempty"`
}

// DefaultConfig возвращает конфигурацию с разумными значениями:
// linear16 16кГц моно, переподключение с экспоненциальной задержкой.
func DefaultConfig() Config {
	return Config{
		Enabled:            false,
		UseForAI:           true,
		FallbackToInternal: true,
		ConnectionTimeout:  30 * time.Second,
		Reconnect:          provider.DefaultReconnectConfig(),
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			Encoding:   "linear16",
		},
	}
}

// Validate проверяет согласованность конфигурации.
// Выключенная конфигурация валидна безусловно.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServerURL == "" {
		return media.NewError(media.ErrorCodeBridgeUnavailable, "",
			"bridge: не задан адрес сервера")
	}
	if c.ConnectionTimeout <= 0 {
		return media.NewError(media.ErrorCodeBridgeUnavailable, "",
			"bridge: таймаут соединения должен быть положительным")
	}
	if c.Reconnect.Enabled && c.Reconnect.MaxAttempts == 0 {
		return media.NewError(media.ErrorCodeBridgeUnavailable, "",
			"bridge: число попыток переподключения должно быть больше нуля")
	}
	if c.Audio.SampleRate == 0 {
		return media.NewError(media.ErrorCodeBridgeUnavailable, "",
			"bridge: частота дискретизации должна быть больше нуля")
	}
	if c.Audio.Channels == 0 {
		return media.NewError(media.ErrorCodeBridgeUnavailable, "",
			"bridge: число каналов должно быть больше нуля")
	}
	return nil
}

// CalculateReconnectDelay возвращает задержку перед попыткой attempt
func (c *Config) CalculateReconnectDelay(attempt uint) time.Duration {
	return c.Reconnect.Delay(attempt)
}
