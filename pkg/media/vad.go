package media

import (
	"time"

	"github.com/arzzra/media_engine/pkg/event"
)

// VADOption конфигурация детектора речевой активности.
type VADOption struct {
	// Type тег провайдера VAD в реестре ("energy" — встроенный)
	Type string `json:"type,omitempty"`
	// Threshold порог средней амплитуды, выше которого фрейм считается речью
	Threshold float64 `json:"threshold,omitempty"`
	// SilenceDuration длительность тишины после которой речь считается
	// оконченной (hangover)
	SilenceDuration time.Duration `json:"silenceDuration,omitempty"`
}

const (
	defaultVadThreshold = 500.0
	defaultVadHangover  = 300 * time.Millisecond
)

// VadProcessor энергетический VAD: аннотирует каждый PCM фрейм флагом
// речь/тишина и публикует события переходов на шину. Фреймы никогда
// не отбрасываются.
type VadProcessor struct {
	bus       *event.Bus
	threshold float64
	hangover  uint64 // мс

	speaking    bool
	speechStart uint64 // Начало текущего высказывания, мс
	lastActive  uint64 // Последний фрейм с энергией выше порога, мс
}

// NewVadProcessor создает энергетический VAD
func NewVadProcessor(bus *event.Bus, option VADOption) (*VadProcessor, error) {
	threshold := option.Threshold
	if threshold <= 0 {
		threshold = defaultVadThreshold
	}
	hangover := option.SilenceDuration
	if hangover <= 0 {
		hangover = defaultVadHangover
	}
	return &VadProcessor{
		bus:       bus,
		threshold: threshold,
		hangover:  uint64(hangover.Milliseconds()),
	}, nil
}

func (v *VadProcessor) Name() string { return "vad" }

// ProcessFrame аннотирует фрейм и отслеживает переходы речь/тишина
func (v *VadProcessor) ProcessFrame(frame *AudioFrame) error {
	if !frame.Samples.IsPCM() {
		return nil
	}

	active := meanAmplitude(frame.Samples.PCM) > v.threshold
	now := frame.Timestamp

	if active {
		if !v.speaking {
			v.speaking = true
			v.speechStart = now
			v.bus.Publish(event.Speaking{
				TrackID:   frame.TrackID,
				StartTime: now,
				Timestamp: event.Timestamp(),
			})
		}
		v.lastActive = now
	} else if v.speaking && now-v.lastActive >= v.hangover {
		v.speaking = false
		v.bus.Publish(event.Silence{
			TrackID:   frame.TrackID,
			StartTime: v.lastActive,
			Duration:  v.lastActive - v.speechStart,
			Timestamp: event.Timestamp(),
		})
	}

	if v.speaking {
		frame.Speaking = VadSpeaking
	} else {
		frame.Speaking = VadSilence
	}
	return nil
}

func meanAmplitude(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		if s < 0 {
			sum -= int64(s)
		} else {
			sum += int64(s)
		}
	}
	return float64(sum) / float64(len(samples))
}
