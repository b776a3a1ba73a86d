// Package engine реализует реестр провайдеров и сборку аудио пайплайна
// звонка из CallOption.
//
// StreamEngine хранит фабрики VAD/EOU/ASR/TTS/bridge компонентов по
// тегам; сессионный слой регистрирует собственные реализации или
// пользуется встроенными. Сборка пайплайна — единственное место, где
// принимается решение о владельце AI обработки (bridge или внутренний
// стек): цепочка процессоров после сборки статична.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arzzra/media_engine/pkg/bridge"
	"github.com/arzzra/media_engine/pkg/event"
	"github.com/arzzra/media_engine/pkg/media"
	"github.com/arzzra/media_engine/pkg/synthesis"
	"github.com/arzzra/media_engine/pkg/track"
	"github.com/arzzra/media_engine/pkg/transcription"
)

// Встроенные теги провайдеров
const (
	VADTypeEnergy    = "energy"
	EOUTypeSilence   = "silence"
	ProviderDeepgram = "deepgram"
)

// Фабрики компонентов пайплайна. Каждый вызов создает экземпляр
// для одного трека.
type (
	// VADCreator фабрика детектора речевой активности
	VADCreator func(bus *event.Bus, option media.VADOption) (media.Processor, error)
	// EOUCreator фабрика детектора конца высказывания
	EOUCreator func(bus *event.Bus, option media.EouOption) (media.Processor, error)
	// ASRCreator фабрика клиента потокового распознавания
	ASRCreator func(ctx context.Context, trackID string, option transcription.Option, bus *event.Bus) (transcription.Client, error)
	// TTSCreator фабрика клиента синтеза речи
	TTSCreator func(option synthesis.Option) (synthesis.Client, error)
	// BridgeCreator фабрика процессора внешнего AI сервера;
	// фабрика отвечает за установку соединения
	BridgeCreator func(ctx context.Context, trackID string, config bridge.Config, bus *event.Bus) (media.Processor, error)

	// ProcessorsHook сборка цепочки процессоров; заменяема целиком
	ProcessorsHook func(ctx context.Context, engine *StreamEngine, trk track.Track, bus *event.Bus, option CallOption) ([]media.Processor, error)
)

// StreamEngine реестр провайдеров медиа пайплайна.
// Все методы потокобезопасны; повторная регистрация тега заменяет
// фабрику.
type StreamEngine struct {
	mu             sync.RWMutex
	vadCreators    map[string]VADCreator
	eouCreators    map[string]EOUCreator
	asrCreators    map[string]ASRCreator
	ttsCreators    map[string]TTSCreator
	bridgeCreator  BridgeCreator
	processorsHook ProcessorsHook
}

// NewStreamEngine создает пустой реестр
func NewStreamEngine() *StreamEngine {
	e := &StreamEngine{
		vadCreators: make(map[string]VADCreator),
		eouCreators: make(map[string]EOUCreator),
		asrCreators: make(map[string]ASRCreator),
		ttsCreators: make(map[string]TTSCreator),
	}
	e.processorsHook = defaultProcessorsHook
	return e
}

// DefaultStreamEngine создает реестр со встроенными провайдерами:
// энергетический VAD, EOU по тишине, Deepgram ASR/TTS, bridge процессор.
func DefaultStreamEngine() *StreamEngine {
	e := NewStreamEngine()
	e.RegisterVAD(VADTypeEnergy, func(bus *event.Bus, option media.VADOption) (media.Processor, error) {
		return media.NewVadProcessor(bus, option)
	})
	e.RegisterEOU(EOUTypeSilence, func(bus *event.Bus, option media.EouOption) (media.Processor, error) {
		return media.NewEouProcessor(bus, option)
	})
	e.RegisterASR(ProviderDeepgram, func(ctx context.Context, trackID string, option transcription.Option, bus *event.Bus) (transcription.Client, error) {
		return transcription.NewDeepgramClient(ctx, trackID, option, bus)
	})
	e.RegisterTTS(ProviderDeepgram, func(option synthesis.Option) (synthesis.Client, error) {
		return synthesis.NewDeepgramTTS(option)
	})
	e.RegisterBridge(defaultBridgeCreator)
	return e
}

// RegisterVAD регистрирует фабрику VAD под тегом
func (e *StreamEngine) RegisterVAD(tag string, creator VADCreator) *StreamEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vadCreators[tag] = creator
	return e
}

// RegisterEOU регистрирует фабрику EOU под тегом
func (e *StreamEngine) RegisterEOU(tag string, creator EOUCreator) *StreamEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eouCreators[tag] = creator
	return e
}

// RegisterASR регистрирует фабрику клиента распознавания под тегом
func (e *StreamEngine) RegisterASR(tag string, creator ASRCreator) *StreamEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.asrCreators[tag] = creator
	return e
}

// RegisterTTS регистрирует фабрику клиента синтеза под тегом
func (e *StreamEngine) RegisterTTS(tag string, creator TTSCreator) *StreamEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ttsCreators[tag] = creator
	return e
}

// RegisterBridge регистрирует фабрику bridge процессора
func (e *StreamEngine) RegisterBridge(creator BridgeCreator) *StreamEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bridgeCreator = creator
	return e
}

// WithProcessorsHook заменяет сборку цепочки процессоров целиком
func (e *StreamEngine) WithProcessorsHook(hook ProcessorsHook) *StreamEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processorsHook = hook
	return e
}

// CreateVADProcessor создает VAD по тегу option.Type
func (e *StreamEngine) CreateVADProcessor(bus *event.Bus, option media.VADOption) (media.Processor, error) {
	tag := option.Type
	if tag == "" {
		tag = VADTypeEnergy
	}
	e.mu.RLock()
	creator, ok := e.vadCreators[tag]
	e.mu.RUnlock()
	if !ok {
		return nil, media.NewError(media.ErrorCodeUnknownProviderTag, "",
			"VAD провайдер не зарегистрирован: "+tag)
	}
	return creator(bus, option)
}

// CreateEOUProcessor создает EOU детектор по тегу option.Type
func (e *StreamEngine) CreateEOUProcessor(bus *event.Bus, option media.EouOption) (media.Processor, error) {
	tag := option.Type
	if tag == "" {
		tag = EOUTypeSilence
	}
	e.mu.RLock()
	creator, ok := e.eouCreators[tag]
	e.mu.RUnlock()
	if !ok {
		return nil, media.NewError(media.ErrorCodeUnknownProviderTag, "",
			"EOU провайдер не зарегистрирован: "+tag)
	}
	return creator(bus, option)
}

// CreateASRProcessor создает клиент распознавания по тегу option.Provider
// и оборачивает его в процессор пересылки PCM
func (e *StreamEngine) CreateASRProcessor(ctx context.Context, trackID string, option transcription.Option, bus *event.Bus) (media.Processor, error) {
	option.CheckDefault()
	e.mu.RLock()
	creator, ok := e.asrCreators[option.Provider]
	e.mu.RUnlock()
	if !ok {
		return nil, media.NewError(media.ErrorCodeUnknownProviderTag, trackID,
			"ASR провайдер не зарегистрирован: "+option.Provider)
	}
	client, err := creator(ctx, trackID, option, bus)
	if err != nil {
		return nil, err
	}
	return media.NewAsrProcessor(client), nil
}

// CreateTTSClient создает клиент синтеза по тегу option.Provider
func (e *StreamEngine) CreateTTSClient(option synthesis.Option) (synthesis.Client, error) {
	option.CheckDefault()
	e.mu.RLock()
	creator, ok := e.ttsCreators[option.Provider]
	e.mu.RUnlock()
	if !ok {
		return nil, media.NewError(media.ErrorCodeUnknownProviderTag, "",
			"TTS провайдер не зарегистрирован: "+option.Provider)
	}
	return creator(option)
}

// CreateBridgeProcessor создает процессор внешнего AI сервера
func (e *StreamEngine) CreateBridgeProcessor(ctx context.Context, trackID string, config bridge.Config, bus *event.Bus) (media.Processor, error) {
	e.mu.RLock()
	creator := e.bridgeCreator
	e.mu.RUnlock()
	if creator == nil {
		return nil, media.NewError(media.ErrorCodeUnknownProviderTag, trackID,
			"bridge фабрика не зарегистрирована")
	}
	return creator(ctx, trackID, config, bus)
}

// CreateProcessors собирает цепочку процессоров трека по CallOption.
// Ошибка сборки означает, что звонок не должен стартовать.
func (e *StreamEngine) CreateProcessors(ctx context.Context, trk track.Track, bus *event.Bus, option CallOption) ([]media.Processor, error) {
	e.mu.RLock()
	hook := e.processorsHook
	e.mu.RUnlock()
	return hook(ctx, e, trk, bus, option)
}

// CreateTTSTrack создает синтетический TTS трек и хэндл озвучивания
func (e *StreamEngine) CreateTTSTrack(config track.TrackConfig, option synthesis.Option) (*track.SynthesisHandle, track.Track, error) {
	client, err := e.CreateTTSClient(option)
	if err != nil {
		return nil, nil, err
	}
	ttsTrack, handle := track.NewTTSTrack(config, client)
	return handle, ttsTrack, nil
}

// defaultProcessorsHook стандартный порядок сборки:
// denoise -> bridge -> VAD -> ASR -> EOU.
//
// Bridge, владеющий AI обработкой, исключает внутренние VAD/ASR/EOU;
// при его недоступности поведение определяет FallbackToInternal:
// с fallback собирается внутренний стек, без него сборка завершается
// ошибкой BridgeUnavailable и звонок не стартует.
func defaultProcessorsHook(ctx context.Context, e *StreamEngine, trk track.Track, bus *event.Bus, option CallOption) ([]media.Processor, error) {
	trackID := trk.ID()
	var processors []media.Processor

	if option.Denoise {
		denoiser, err := media.NewNoiseReducer(trk.Config().SampleRate)
		if err != nil {
			return nil, err
		}
		processors = append(processors, denoiser)
	}

	if option.Bridge != nil && option.Bridge.Enabled {
		processor, err := e.CreateBridgeProcessor(ctx, trackID, *option.Bridge, bus)
		switch {
		case err == nil:
			processors = append(processors, processor)
			if option.BridgeOwnsAI() {
				slog.Info("engine: AI обработку ведёт bridge, внутренние процессоры не собираются",
					"track_id", trackID)
				return processors, nil
			}
		case option.BridgeOwnsAI() && !option.Bridge.FallbackToInternal:
			return nil, media.WrapError(media.ErrorCodeBridgeUnavailable, trackID,
				"bridge недоступен и fallback выключен", err)
		default:
			slog.Warn("engine: bridge недоступен, собирается внутренний пайплайн",
				"track_id", trackID, "error", err)
		}
	}

	if option.VAD != nil {
		processor, err := e.CreateVADProcessor(bus, *option.VAD)
		if err != nil {
			return nil, err
		}
		processors = append(processors, processor)
	}

	if option.ASR != nil {
		processor, err := e.CreateASRProcessor(ctx, trackID, *option.ASR, bus)
		if err != nil {
			return nil, err
		}
		processors = append(processors, processor)
	}

	if option.EOU != nil {
		processor, err := e.CreateEOUProcessor(bus, *option.EOU)
		if err != nil {
			return nil, err
		}
		processors = append(processors, processor)
	}

	return processors, nil
}

// defaultBridgeCreator создает клиент bridge сервера, устанавливает
// соединение по политике переподключения и возвращает процессор
func defaultBridgeCreator(ctx context.Context, trackID string, config bridge.Config, bus *event.Bus) (media.Processor, error) {
	client, err := bridge.NewClient(trackID, config, bus)
	if err != nil {
		return nil, err
	}
	if err := client.StartWithReconnect(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return bridge.NewProcessor(client), nil
}
