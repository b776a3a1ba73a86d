// Package track реализует аудио трек: сторону звонка с согласованным
// кодеком, RTP/PCM транскодированием и фиксированным темпом фреймов.
//
// Входящий путь: транспорт -> декодер -> PCM фрейм -> цепочка
// процессоров -> приёмник фреймов. Исходящий путь: SendPacket ->
// пересэмплинг -> буфер переноса -> нарезка фиксированными фреймами ->
// кодер -> транспорт. Исходящим путём владеет сам трек; внешние
// источники аудио (TTS, bridge) входят в него только через SendPacket.
package track

import (
	"context"
	"time"

	"github.com/arzzra/media_engine/pkg/event"
	"github.com/arzzra/media_engine/pkg/media"
)

// DefaultHandshakeTimeout таймаут согласования кодека по умолчанию
const DefaultHandshakeTimeout = 15 * time.Second

// DefaultPtime длительность аудио фрейма
const DefaultPtime = 20 * time.Millisecond

// PacketSender приёмник обработанных входящих фреймов трека.
// Канал ограничен; при переполнении фрейм отбрасывается — свежее
// аудио ценнее застрявшего.
type PacketSender chan<- *media.AudioFrame

// TrackConfig параметры трека. Неизменяема после создания трека;
// кодек и частота фиксируются результатом согласования.
type TrackConfig struct {
	SampleRate uint32
	Codec      media.Codec
	Ptime      time.Duration
	StreamID   string
}

// DefaultTrackConfig возвращает конфигурацию телефонного трека:
// PCMU 8кГц, фреймы 20мс.
func DefaultTrackConfig() TrackConfig {
	return TrackConfig{
		SampleRate: 8000,
		Codec:      media.CodecPCMU,
		Ptime:      DefaultPtime,
	}
}

// Track аудио трек звонка.
type Track interface {
	// ID возвращает идентификатор трека
	ID() string
	// SSRC возвращает RTP source identifier трека
	SSRC() uint32
	// Config возвращает текущую конфигурацию
	Config() TrackConfig
	// Chain возвращает цепочку процессоров входящего аудио
	Chain() *media.ProcessorChain

	// Handshake согласует кодек по SDP offer и возвращает answer.
	// timeout <= 0 означает DefaultHandshakeTimeout. При несовместимых
	// кодеках возвращается синтаксически валидный отклонённый answer
	// вместе с ошибкой NegotiationError.
	Handshake(ctx context.Context, offer []byte, timeout time.Duration) ([]byte, error)

	// Start запускает цикл приёма. Повторный вызов — no-op.
	Start(ctx context.Context, bus *event.Bus, sender PacketSender) error

	// SendPacket передает PCM сэмплы в исходящий путь трека.
	// Сэмплы произвольной длины и частоты: трек пересэмплирует,
	// буферизует остаток и отправляет полные фреймы.
	SendPacket(ctx context.Context, samples []int16, sampleRate uint32) error

	// Stop останавливает трек. Безопасен для многократного вызова.
	Stop() error
}
