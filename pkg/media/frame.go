// Package media реализует ядро аудио пайплайна: модель фреймов и сэмплов,
// транскодирование кодеков (PCMU, PCMA, G.722, Opus), ресемплирование и
// синхронную цепочку процессоров, привязанную к треку.
//
// Единица данных пайплайна — AudioFrame. Фрейм создаётся треком на входе
// или процессором при трансформации, принадлежит несущему его стеку вызовов
// и клонируется при передаче в фоновую задачу, которая не должна
// блокировать пайплайн.
package media

import "fmt"

// EncodedPayload закодированная RTP полезная нагрузка.
type EncodedPayload struct {
	PayloadType    uint8
	Payload        []byte
	SequenceNumber uint16
}

// Samples полезная нагрузка фрейма: ровно один из вариантов.
//   - PCM: линейные 16-битные сэмплы
//   - RTP: закодированная нагрузка с тегом payload type
//   - пустой фрейм: оба поля nil
type Samples struct {
	PCM []int16
	RTP *EncodedPayload
}

// PCMSamples создает PCM вариант.
func PCMSamples(samples []int16) Samples {
	return Samples{PCM: samples}
}

// RTPSamples создает закодированный вариант.
func RTPSamples(payloadType uint8, payload []byte, sequenceNumber uint16) Samples {
	return Samples{RTP: &EncodedPayload{
		PayloadType:    payloadType,
		Payload:        payload,
		SequenceNumber: sequenceNumber,
	}}
}

// IsPCM сообщает что нагрузка содержит PCM сэмплы.
func (s Samples) IsPCM() bool { return s.PCM != nil }

// IsRTP сообщает что нагрузка содержит закодированные данные.
func (s Samples) IsRTP() bool { return s.RTP != nil }

// IsEmpty сообщает что фрейм пустой.
func (s Samples) IsEmpty() bool { return s.PCM == nil && s.RTP == nil }

// VadFlag аннотация речевой активности фрейма.
type VadFlag int

const (
	// VadUnknown VAD не запущен, фрейм не аннотирован
	VadUnknown VadFlag = iota
	// VadSpeaking подтверждена речь
	VadSpeaking
	// VadSilence подтверждена тишина
	VadSilence
)

func (v VadFlag) String() string {
	switch v {
	case VadSpeaking:
		return "speaking"
	case VadSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// AudioFrame единица данных пайплайна.
type AudioFrame struct {
	TrackID    string
	Timestamp  uint64 // Монотонная метка, мс
	SampleRate uint32
	Samples    Samples
	Speaking   VadFlag // Выставляется VAD процессором
}

// Validate проверяет инварианты фрейма: заполнен ровно один вариант
// нагрузки, PCM фрейм обязан нести частоту дискретизации.
func (f *AudioFrame) Validate() error {
	if f.Samples.IsPCM() && f.Samples.IsRTP() {
		return fmt.Errorf("фрейм трека %s: заполнены оба варианта нагрузки", f.TrackID)
	}
	if f.Samples.IsPCM() && f.SampleRate == 0 {
		return fmt.Errorf("фрейм трека %s: PCM нагрузка без частоты дискретизации", f.TrackID)
	}
	return nil
}

// Clone возвращает глубокую копию фрейма для передачи в фоновую задачу.
func (f *AudioFrame) Clone() AudioFrame {
	clone := *f
	if f.Samples.PCM != nil {
		clone.Samples.PCM = make([]int16, len(f.Samples.PCM))
		copy(clone.Samples.PCM, f.Samples.PCM)
	}
	if f.Samples.RTP != nil {
		payload := make([]byte, len(f.Samples.RTP.Payload))
		copy(payload, f.Samples.RTP.Payload)
		clone.Samples.RTP = &EncodedPayload{
			PayloadType:    f.Samples.RTP.PayloadType,
			Payload:        payload,
			SequenceNumber: f.Samples.RTP.SequenceNumber,
		}
	}
	return clone
}
