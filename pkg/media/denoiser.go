package media

import (
	"math"
)

// Частота среза шумоподавляющего фильтра. Телефонная речь ниже 100Hz
// практически не несёт информации, а гул сети/вентиляции — несёт.
const denoiseCutoffHz = 100.0

// NoiseReducer детерминированный однополюсный high-pass фильтр,
// убирающий постоянную составляющую и низкочастотный гул.
// Состояние фильтра привязано к частоте дискретизации трека;
// между фреймами сохраняется только оно.
type NoiseReducer struct {
	alpha   float64
	prevIn  float64
	prevOut float64
}

// NewNoiseReducer создает фильтр для данной частоты дискретизации
func NewNoiseReducer(sampleRate uint32) (*NoiseReducer, error) {
	if sampleRate == 0 {
		return nil, NewError(ErrorCodeInvalidFrame, "", "шумоподавитель требует частоту дискретизации")
	}
	rc := 1.0 / (2.0 * math.Pi * denoiseCutoffHz)
	dt := 1.0 / float64(sampleRate)
	return &NoiseReducer{alpha: rc / (rc + dt)}, nil
}

func (n *NoiseReducer) Name() string { return "denoise" }

// ProcessFrame фильтрует PCM сэмплы на месте. Закодированные и пустые
// фреймы проходят без изменений.
func (n *NoiseReducer) ProcessFrame(frame *AudioFrame) error {
	if !frame.Samples.IsPCM() {
		return nil
	}
	samples := frame.Samples.PCM
	for i, s := range samples {
		in := float64(s)
		out := n.alpha * (n.prevOut + in - n.prevIn)
		n.prevIn = in
		n.prevOut = out
		switch {
		case out > math.MaxInt16:
			samples[i] = math.MaxInt16
		case out < math.MinInt16:
			samples[i] = math.MinInt16
		default:
			samples[i] = int16(out)
		}
	}
	return nil
}
