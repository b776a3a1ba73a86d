package bridge

import (
	"context"
	"log/slog"

	"github.com/arzzra/media_engine/pkg/event"
	"github.com/arzzra/media_engine/pkg/media"
)

// AudioWriter исходящий аудио путь трека. Реализуется Track.SendPacket.
type AudioWriter interface {
	SendPacket(ctx context.Context, samples []int16, sampleRate uint32) error
}

// Pump возвращает синтезированное сервером аудио в исходящий путь трека.
//
// Bridge аудио попадает в трек только этим маршрутом: клиент публикует
// event.BridgeAudio на шину, Pump подписывается и передает сэмплы в
// SendPacket, где они проходят обычный пересэмплинг, нарезку на фреймы
// и кодирование. Прямая запись клиента в трек исключена, чтобы у
// исходящего пути был один владелец.
type Pump struct {
	trackID string
	bus     *event.Bus
	writer  AudioWriter
}

// NewPump создает насос bridge аудио для трека
func NewPump(trackID string, bus *event.Bus, writer AudioWriter) *Pump {
	return &Pump{trackID: trackID, bus: bus, writer: writer}
}

// Run перекачивает события BridgeAudio своего трека в исходящий путь
// до отмены контекста или закрытия шины. Блокирует вызывающего;
// запускается отдельной горутиной.
func (p *Pump) Run(ctx context.Context) {
	sub := p.bus.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			audio, ok := ev.(event.BridgeAudio)
			if !ok || audio.TrackID != p.trackID {
				continue
			}
			if len(audio.Samples) == 0 {
				continue
			}
			if err := p.writer.SendPacket(ctx, audio.Samples, audio.SampleRate); err != nil {
				if media.IsCode(err, media.ErrorCodeNotConnected) {
					return
				}
				slog.Warn("bridge: аудио не доставлено в трек",
					"track_id", p.trackID, "error", err)
			}
		}
	}
}
