// Package transcription определяет контракт клиента потокового
// распознавания речи и его интеграции.
//
// Клиент не блокирует аудио путь: SendAudio ставит сэмплы в ограниченный
// канал, доставку по сети выполняют фоновые задачи клиента. Результаты
// распознавания публикуются на шину событий сессии.
package transcription

import (
	"context"
	"os"

	"github.com/arzzra/media_engine/pkg/event"
)

// Client контракт клиента потокового распознавания.
// Удовлетворяет media.AudioSink и используется AsrProcessor'ом.
type Client interface {
	// SendAudio ставит PCM сэмплы в очередь на отправку; не блокируется
	SendAudio(samples []int16) error
	// Close останавливает фоновые циклы и разрывает соединение
	Close() error
}

// Option декларативная конфигурация интеграции распознавания.
// Собирается слоем управления сессией один раз на звонок,
// для пайплайна read-only.
type Option struct {
	// Provider тег провайдера в реестре ("deepgram", ...)
	Provider string `json:"provider,omitempty"`
	// Language код языка распознавания (BCP-47)
	Language string `json:"language,omitempty"`
	// SecretKey API ключ провайдера
	SecretKey string `json:"secretKey,omitempty"`
	// ModelType модель распознавания провайдера
	ModelType string `json:"modelType,omitempty"`
	// SampleRate частота передаваемого аудио
	SampleRate uint32 `json:"samplerate,omitempty"`
	// Endpoint переопределение адреса провайдера
	Endpoint string `json:"endpoint,omitempty"`
	// StartWhenAnswer не передавать аудио до ответа на звонок
	StartWhenAnswer bool `json:"startWhenAnswer,omitempty"`
	// Extra произвольные параметры провайдера
	Extra map[string]string `json:"extra,omitempty"`
}

// CheckDefault заполняет отсутствующие креденшелы из окружения
func (o *Option) CheckDefault() *Option {
	switch o.Provider {
	case "deepgram":
		if o.SecretKey == "" {
			o.SecretKey = os.Getenv("DEEPGRAM_API_KEY")
		}
		if o.Endpoint == "" {
			o.Endpoint = "wss://api.deepgram.com/v1/listen"
		}
	}
	return o
}

// DrainUntilAnswer дренирует и отбрасывает входящее аудио до события
// Answer либо отмены контекста. Аудио в режиме ожидания ответа никогда
// не буферизуется.
func DrainUntilAnswer(ctx context.Context, sub *event.Subscription, audio <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-audio:
			// отбрасываем до ответа
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if _, answered := ev.(event.Answer); answered {
				return
			}
		}
	}
}
