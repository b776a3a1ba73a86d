package track

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arzzra/media_engine/pkg/event"
	"github.com/arzzra/media_engine/pkg/media"
	"github.com/arzzra/media_engine/pkg/synthesis"
)

// Очередь реплик: тексты озвучиваются последовательно
const synthesisQueueSize = 16

// SynthesisHandle управляющий интерфейс TTS трека для сессионного слоя.
// Реплики ставятся в очередь; Interrupt реализует barge-in.
type SynthesisHandle struct {
	texts     chan string
	interrupt chan struct{}
}

// Say ставит текст в очередь озвучивания
func (h *SynthesisHandle) Say(text string) error {
	select {
	case h.texts <- text:
		return nil
	default:
		return media.NewError(media.ErrorCodeNotConnected, "",
			"очередь синтеза переполнена")
	}
}

// Interrupt прерывает текущее воспроизведение, очищает очередь и,
// если текст не пуст, озвучивает его. Пустой текст просто останавливает
// воспроизведение.
func (h *SynthesisHandle) Interrupt(text string) error {
	// Сигнал не накапливается: достаточно одного на прерывание
	select {
	case h.interrupt <- struct{}{}:
	default:
	}
	// Очередь очищается, прерванные реплики не возобновляются
	for {
		select {
		case <-h.texts:
		default:
			if text == "" {
				return nil
			}
			return h.Say(text)
		}
	}
}

// TTSTrack синтетический трек: озвучивает текст через клиент синтеза
// и выдает PCM фреймы в приёмник с реальным темпом 20мс.
//
// В SDP обмене не участвует: его выход обычно направляется в SendPacket
// RTP трека того же звонка.
type TTSTrack struct {
	id     string
	config TrackConfig
	client synthesis.Client
	chain  *media.ProcessorChain
	handle *SynthesisHandle

	started  atomic.Bool
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewTTSTrack создает TTS трек поверх клиента синтеза.
// Возвращает трек и хэндл управления озвучиванием.
func NewTTSTrack(config TrackConfig, client synthesis.Client) (*TTSTrack, *SynthesisHandle) {
	if config.Ptime <= 0 {
		config.Ptime = DefaultPtime
	}
	id := config.StreamID
	if id == "" {
		id = uuid.NewString()
	}
	handle := &SynthesisHandle{
		texts:     make(chan string, synthesisQueueSize),
		interrupt: make(chan struct{}, 1),
	}
	t := &TTSTrack{
		id:     id,
		config: config,
		client: client,
		chain:  media.NewProcessorChain(config.SampleRate),
		handle: handle,
	}
	return t, handle
}

func (t *TTSTrack) ID() string                   { return t.id }
func (t *TTSTrack) SSRC() uint32                 { return 0 }
func (t *TTSTrack) Config() TrackConfig          { return t.config }
func (t *TTSTrack) Chain() *media.ProcessorChain { return t.chain }

// Handshake не применим к синтетическому треку
func (t *TTSTrack) Handshake(ctx context.Context, offer []byte, timeout time.Duration) ([]byte, error) {
	return nil, media.NewError(media.ErrorCodeNegotiationError, t.id,
		"синтетический трек не участвует в SDP обмене")
}

// Start запускает цикл озвучивания. Повторный вызов — no-op.
func (t *TTSTrack) Start(ctx context.Context, bus *event.Bus, sender PacketSender) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.speakLoop(runCtx, bus, sender)
	return nil
}

// SendPacket не поддерживается: трек сам является источником аудио
func (t *TTSTrack) SendPacket(ctx context.Context, samples []int16, sampleRate uint32) error {
	return media.NewError(media.ErrorCodeInvalidFrame, t.id,
		"TTS трек не принимает внешнее аудио")
}

// Stop останавливает трек и закрывает клиент синтеза
func (t *TTSTrack) Stop() error {
	var err error
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		err = t.client.Close()
	})
	return err
}

// speakLoop последовательно озвучивает реплики из очереди
func (t *TTSTrack) speakLoop(ctx context.Context, bus *event.Bus, sender PacketSender) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-t.handle.texts:
			if text == "" {
				continue
			}
			if err := t.speak(ctx, text, sender); err != nil && ctx.Err() == nil {
				slog.Warn("tts track: озвучивание не удалось",
					"track_id", t.id, "error", err)
				if bus != nil {
					bus.Publish(event.Error{
						TrackID: t.id, Sender: "tts_track",
						Message:   err.Error(),
						Timestamp: event.Timestamp(),
					})
				}
			}
		}
	}
}

// speak озвучивает одну реплику: принимает PCM чанки от клиента и
// выдает фреймы фиксированного размера с реальным темпом.
// Сигнал прерывания бросает остаток буфера между фреймами.
func (t *TTSTrack) speak(ctx context.Context, text string, sender PacketSender) error {
	started := time.Now()

	// Сигнал от прошлой реплики не должен прерывать новую
	select {
	case <-t.handle.interrupt:
	default:
	}

	chunks, err := t.client.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	frameSize := int(t.config.SampleRate) * int(t.config.Ptime/time.Millisecond) / 1000
	ticker := time.NewTicker(t.config.Ptime)
	defer ticker.Stop()

	var buffer []int16
	draining := false
	for {
		// Добираем аудио до полного фрейма
		for !draining && len(buffer) < frameSize {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.handle.interrupt:
				return nil
			case chunk, ok := <-chunks:
				if !ok {
					draining = true
				} else {
					buffer = append(buffer, chunk...)
				}
			}
		}
		if len(buffer) == 0 {
			slog.Debug("tts track: реплика озвучена", "track_id", t.id,
				"elapsed", time.Since(started))
			return nil
		}

		n := frameSize
		if n > len(buffer) {
			n = len(buffer) // последний неполный фрейм
		}
		frame := &media.AudioFrame{
			TrackID:    t.id,
			Timestamp:  event.Timestamp(),
			SampleRate: t.config.SampleRate,
			Samples:    media.PCMSamples(buffer[:n:n]),
		}
		buffer = buffer[n:]

		if err := t.chain.ProcessFrame(frame); err != nil {
			slog.Debug("tts track: цепочка прервана для фрейма",
				"track_id", t.id, "error", err)
		} else if sender != nil {
			select {
			case sender <- frame:
			default:
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.handle.interrupt:
			return nil
		case <-ticker.C:
		}
	}
}
