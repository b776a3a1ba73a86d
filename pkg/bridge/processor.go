package bridge

import (
	"github.com/arzzra/media_engine/pkg/media"
)

// Processor пересылает входящее аудио трека на bridge сервер.
// Встает в цепочку процессоров вместо внутренних VAD/ASR/EOU,
// когда сервер владеет AI обработкой.
type Processor struct {
	client     *Client
	transcoder *media.Transcoder
	sampleRate uint32
}

// NewProcessor создает процессор поверх подключенного клиента
func NewProcessor(client *Client) *Processor {
	return &Processor{
		client:     client,
		transcoder: media.NewTranscoder(),
		sampleRate: client.config.Audio.SampleRate,
	}
}

func (p *Processor) Name() string { return "bridge" }

// ProcessFrame приводит фрейм к формату сервера и отправляет его.
// RTP нагрузка декодируется на месте; аудио пересэмплируется к частоте
// из конфигурации bridge. Ошибка отправки прерывает цепочку для этого
// фрейма, ошибку доставки решает политика fallback клиента.
func (p *Processor) ProcessFrame(frame *media.AudioFrame) error {
	samples := frame.Samples.PCM
	sampleRate := frame.SampleRate

	if frame.Samples.IsRTP() {
		decoded, err := p.transcoder.Decode(frame.Samples.RTP.PayloadType, frame.Samples.RTP.Payload)
		if err != nil {
			return err
		}
		codec, _ := media.CodecFromPayloadType(frame.Samples.RTP.PayloadType)
		samples = decoded
		sampleRate = codec.ClockRate()
	}
	if len(samples) == 0 {
		return nil
	}

	if sampleRate != p.sampleRate {
		samples = media.ResampleMono(samples, sampleRate, p.sampleRate)
	}
	return p.client.SendAudio(media.SamplesToBytes(samples))
}
