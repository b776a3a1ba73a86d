package track

import (
	"context"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"

	"github.com/arzzra/media_engine/pkg/event"
	"github.com/arzzra/media_engine/pkg/media"
)

// RTPTrack трек поверх RTP транспорта. Реализует Track.
type RTPTrack struct {
	id        string
	ssrc      uint32
	config    TrackConfig
	transport Transport
	chain     *media.ProcessorChain

	// Исходящее состояние под общим мьютексом: буфер переноса,
	// транскодер, счётчики RTP. Мьютекс не держится через transport.Send.
	outMu       sync.Mutex
	carry       []int16
	transcoder  *media.Transcoder
	sequence    uint16
	rtpTime     uint32
	payloadType uint8

	started   atomic.Bool
	stopOnce  sync.Once
	cancel    context.CancelFunc
	startedAt time.Time
}

// NewRTPTrack создает трек поверх готового транспорта
func NewRTPTrack(config TrackConfig, transport Transport) *RTPTrack {
	if config.Ptime <= 0 {
		config.Ptime = DefaultPtime
	}
	id := config.StreamID
	if id == "" {
		id = uuid.NewString()
	}
	return &RTPTrack{
		id:          id,
		ssrc:        rand.Uint32(),
		config:      config,
		transport:   transport,
		chain:       media.NewProcessorChain(config.SampleRate),
		transcoder:  media.NewTranscoder(),
		sequence:    uint16(rand.Uint32()),
		payloadType: config.Codec.PayloadType(),
	}
}

func (t *RTPTrack) ID() string   { return t.id }
func (t *RTPTrack) SSRC() uint32 { return t.ssrc }

// Config возвращает конфигурацию трека
func (t *RTPTrack) Config() TrackConfig { return t.config }

// Chain возвращает цепочку процессоров входящего аудио
func (t *RTPTrack) Chain() *media.ProcessorChain { return t.chain }

// Handshake согласует кодек по SDP offer в пределах таймаута.
// Несовместимый offer даёт отклонённый answer (порт 0) вместе с ошибкой;
// превышение таймаута — NegotiationTimeout.
func (t *RTPTrack) Handshake(ctx context.Context, offer []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		answer []byte
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		answer, err := t.negotiate(offer)
		done <- outcome{answer: answer, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, media.WrapError(media.ErrorCodeNegotiationTimeout, t.id,
			"согласование не завершилось вовремя", ctx.Err())
	case result := <-done:
		return result.answer, result.err
	}
}

func (t *RTPTrack) negotiate(offer []byte) ([]byte, error) {
	result, err := negotiateOffer(t.id, offer, t.config.Codec)
	if err != nil {
		return buildDeclinedAnswer(t.transport.LocalAddr(), offer),
			media.WrapError(media.ErrorCodeNegotiationError, t.id, "offer отклонён", err)
	}

	t.config.Codec = result.codec
	t.config.Ptime = result.ptime
	t.payloadType = result.payloadType

	if setter, ok := t.transport.(interface{ SetRemoteAddr(string) error }); ok {
		if err := setter.SetRemoteAddr(result.remoteAddr); err != nil {
			return buildDeclinedAnswer(t.transport.LocalAddr(), offer),
				media.WrapError(media.ErrorCodeNegotiationError, t.id,
					"адрес удалённой стороны не разбирается", err)
		}
	}

	answer, err := buildAnswer(t.transport.LocalAddr(), result)
	if err != nil {
		return nil, media.WrapError(media.ErrorCodeNegotiationError, t.id,
			"answer не сериализуется", err)
	}
	slog.Info("track: кодек согласован", "track_id", t.id,
		"codec", result.codec.Name(), "payload_type", result.payloadType,
		"remote", result.remoteAddr, "ptime", result.ptime)
	return answer, nil
}

// Start запускает цикл приёма. Повторный вызов — no-op.
func (t *RTPTrack) Start(ctx context.Context, bus *event.Bus, sender PacketSender) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.startedAt = time.Now()

	go t.receiveLoop(runCtx, bus, sender)
	return nil
}

// receiveLoop принимает RTP пакеты, декодирует их в PCM и проводит
// через цепочку процессоров. Ошибки декодирования и процессоров
// действуют на один фрейм; цикл живет до отмены или закрытия транспорта.
func (t *RTPTrack) receiveLoop(ctx context.Context, bus *event.Bus, sender PacketSender) {
	defer func() {
		if bus != nil {
			bus.Publish(event.TrackEnd{
				TrackID:   t.id,
				Duration:  uint64(time.Since(t.startedAt) / time.Millisecond),
				SSRC:      t.ssrc,
				Timestamp: event.Timestamp(),
			})
		}
	}()

	for {
		packet, _, err := t.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || !t.transport.IsActive() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			slog.Debug("track: ошибка приёма", "track_id", t.id, "error", err)
			continue
		}

		frame := t.decodePacket(packet)
		if frame == nil {
			continue
		}

		if err := t.chain.ProcessFrame(frame); err != nil {
			slog.Debug("track: цепочка прервана для фрейма",
				"track_id", t.id, "error", err)
			continue
		}

		if sender != nil {
			select {
			case sender <- frame:
			default:
				// Приёмник не успевает, фрейм отбрасывается
			}
		}
	}
}

// decodePacket превращает RTP пакет в PCM фрейм.
// Неизвестный payload type или ошибка декодера — потеря одного фрейма.
func (t *RTPTrack) decodePacket(packet *rtp.Packet) *media.AudioFrame {
	t.outMu.Lock()
	samples, err := t.transcoder.Decode(packet.PayloadType, packet.Payload)
	t.outMu.Unlock()
	if err != nil {
		media.RecordDecodeError()
		slog.Debug("track: фрейм не декодирован", "track_id", t.id,
			"payload_type", packet.PayloadType, "error", err)
		return nil
	}
	if len(samples) == 0 {
		return nil
	}

	codec, _ := media.CodecFromPayloadType(packet.PayloadType)
	return &media.AudioFrame{
		TrackID:    t.id,
		Timestamp:  event.Timestamp(),
		SampleRate: codec.ClockRate(),
		Samples:    media.PCMSamples(samples),
	}
}

// SendPacket передает PCM сэмплы в исходящий путь.
//
// Сэмплы пересэмплируются к clock rate кодека, накапливаются в буфере
// переноса и отправляются полными фреймами; остаток ждёт следующего
// вызова. RTP timestamp растет на размер фрейма с переполнением по
// модулю 2^32. Пустой результат кодирования — нефатальный пропуск.
func (t *RTPTrack) SendPacket(ctx context.Context, samples []int16, sampleRate uint32) error {
	if len(samples) == 0 {
		return nil
	}
	if !t.transport.IsActive() {
		return media.NewError(media.ErrorCodeNotConnected, t.id, "транспорт закрыт")
	}

	codec := t.config.Codec
	payloadType := t.payloadType
	frameSize := codec.FrameSize()

	if sampleRate != codec.ClockRate() {
		samples = media.ResampleMono(samples, sampleRate, codec.ClockRate())
	}

	type outPacket struct {
		payload   []byte
		sequence  uint16
		timestamp uint32
	}
	var packets []outPacket

	t.outMu.Lock()
	t.carry = append(t.carry, samples...)
	for len(t.carry) >= frameSize {
		frame := t.carry[:frameSize]
		t.carry = t.carry[frameSize:]

		payload, err := t.transcoder.Encode(codec, frame)
		if err != nil {
			t.outMu.Unlock()
			return media.WrapError(media.ErrorCodeEncodingFailure, t.id,
				"фрейм не закодирован", err)
		}
		timestamp := t.rtpTime
		t.rtpTime += uint32(frameSize) // переполнение uint32 штатно

		if len(payload) == 0 {
			media.RecordEncodeSkip()
			continue
		}
		t.sequence++
		packets = append(packets, outPacket{
			payload:   payload,
			sequence:  t.sequence,
			timestamp: timestamp,
		})
	}
	t.outMu.Unlock()

	for _, p := range packets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    payloadType,
				SequenceNumber: p.sequence,
				Timestamp:      p.timestamp,
				SSRC:           t.ssrc,
			},
			Payload: p.payload,
		}
		if err := t.transport.Send(pkt); err != nil {
			return media.WrapError(media.ErrorCodeNotConnected, t.id,
				"пакет не отправлен", err)
		}
		media.RecordEncodedFrame(codec)
	}
	return nil
}

// Stop останавливает трек и закрывает транспорт.
// Безопасен для многократного вызова.
func (t *RTPTrack) Stop() error {
	var err error
	t.stopOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		err = t.transport.Close()
		slog.Info("track: остановлен", "track_id", t.id)
	})
	return err
}
