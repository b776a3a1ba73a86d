package media

import (
	"time"

	"github.com/arzzra/media_engine/pkg/event"
)

// EouOption конфигурация детектора конца высказывания.
type EouOption struct {
	// Type тег провайдера EOU в реестре ("silence" — встроенный)
	Type string `json:"type,omitempty"`
	// MaxSilence длительность тишины, означающая конец реплики
	MaxSilence time.Duration `json:"maxSilence,omitempty"`
}

const defaultEouMaxSilence = time.Second

// EouProcessor детектор конца высказывания по флагу VAD и времени фреймов.
// Аудио не мутирует; публикует EndOfUtterance когда за речью следует
// тишина длиной не менее MaxSilence. Следующая речь открывает новое
// высказывание.
type EouProcessor struct {
	bus        *event.Bus
	maxSilence uint64 // мс

	inUtterance  bool
	silenceSince uint64
}

// NewEouProcessor создает детектор конца высказывания
func NewEouProcessor(bus *event.Bus, option EouOption) (*EouProcessor, error) {
	maxSilence := option.MaxSilence
	if maxSilence <= 0 {
		maxSilence = defaultEouMaxSilence
	}
	return &EouProcessor{
		bus:        bus,
		maxSilence: uint64(maxSilence.Milliseconds()),
	}, nil
}

func (e *EouProcessor) Name() string { return "eou" }

// ProcessFrame наблюдает VAD аннотацию; требует VAD раньше в цепочке
func (e *EouProcessor) ProcessFrame(frame *AudioFrame) error {
	switch frame.Speaking {
	case VadSpeaking:
		e.inUtterance = true
		e.silenceSince = 0
	case VadSilence:
		if !e.inUtterance {
			return nil
		}
		if e.silenceSince == 0 {
			e.silenceSince = frame.Timestamp
			return nil
		}
		if frame.Timestamp-e.silenceSince >= e.maxSilence {
			e.inUtterance = false
			e.silenceSince = 0
			e.bus.Publish(event.EndOfUtterance{
				TrackID:   frame.TrackID,
				Timestamp: event.Timestamp(),
			})
		}
	}
	return nil
}
