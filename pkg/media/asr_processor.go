package media

// AudioSink приёмник PCM сэмплов. Реализуется клиентами потоковых
// провайдеров распознавания; метод обязан быть неблокирующим —
// доставка по сети выполняется фоновой задачей клиента.
type AudioSink interface {
	SendAudio(samples []int16) error
}

// AsrProcessor пересылает PCM фреймы клиенту распознавания речи.
//
// Фреймы с подтверждённой тишиной (VadSilence) не пересылаются —
// это оптимизация трафика и стоимости, а не требование корректности:
// при отсутствии VAD аннотации пересылается всё аудио.
type AsrProcessor struct {
	sink AudioSink
}

// NewAsrProcessor создает процессор поверх клиента распознавания
func NewAsrProcessor(sink AudioSink) *AsrProcessor {
	return &AsrProcessor{sink: sink}
}

func (a *AsrProcessor) Name() string { return "asr" }

// ProcessFrame пересылает PCM нагрузку, пропуская подтверждённую тишину
func (a *AsrProcessor) ProcessFrame(frame *AudioFrame) error {
	if !frame.Samples.IsPCM() {
		return nil
	}
	if frame.Speaking == VadSilence {
		return nil
	}
	return a.sink.SendAudio(frame.Samples.PCM)
}
