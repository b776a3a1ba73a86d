// Package synthesis реализует клиентов потокового синтеза речи (TTS).
//
// Клиент принимает текст и отдает PCM сэмплы чанками по мере их
// генерации провайдером, не дожидаясь завершения всего высказывания.
// Темп воспроизведения задает не клиент, а TTS трек: клиент отдает
// аудио так быстро, как его отдает провайдер.
package synthesis

import (
	"context"
	"os"
)

const (
	defaultDeepgramTTSEndpoint = "https://api.deepgram.com/v1/speak"
	defaultDeepgramTTSModel    = "aura-asteria-en"

	// DefaultSampleRate частота дискретизации синтезированного аудио
	DefaultSampleRate = 16000
)

// Client контракт клиента синтеза речи.
type Client interface {
	// Synthesize запускает синтез текста. Канал отдает PCM чанки по мере
	// поступления и закрывается по завершении высказывания или по ошибке.
	Synthesize(ctx context.Context, text string) (<-chan []int16, error)
	// Close освобождает ресурсы клиента
	Close() error
}

// Option параметры провайдера синтеза
type Option struct {
	Provider   string         `json:"provider,omitempty"`
	SecretKey  string         `json:"secretKey,omitempty"`
	ModelType  string         `json:"modelType,omitempty"`
	Speaker    string         `json:"speaker,omitempty"`
	SampleRate uint32         `json:"sampleRate,omitempty"`
	Endpoint   string         `json:"endpoint,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// CheckDefault заполняет пропущенные параметры значениями по умолчанию
// для известных провайдеров. Ключ добирается из окружения.
func (o *Option) CheckDefault() *Option {
	if o.Provider == "" {
		o.Provider = "deepgram"
	}
	if o.SampleRate == 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Provider == "deepgram" {
		if o.SecretKey == "" {
			o.SecretKey = os.Getenv("DEEPGRAM_API_KEY")
		}
		if o.Endpoint == "" {
			o.Endpoint = defaultDeepgramTTSEndpoint
		}
		if o.ModelType == "" {
			o.ModelType = defaultDeepgramTTSModel
		}
	}
	return o
}
