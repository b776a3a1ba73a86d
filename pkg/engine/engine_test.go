package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/media_engine/pkg/bridge"
	"github.com/arzzra/media_engine/pkg/event"
	"github.com/arzzra/media_engine/pkg/media"
	"github.com/arzzra/media_engine/pkg/synthesis"
	"github.com/arzzra/media_engine/pkg/track"
	"github.com/arzzra/media_engine/pkg/transcription"
)

// stubProcessor процессор-заглушка с заданным именем
type stubProcessor struct{ name string }

func (p *stubProcessor) Name() string                               { return p.name }
func (p *stubProcessor) ProcessFrame(frame *media.AudioFrame) error { return nil }

// stubAsrClient клиент распознавания, принимающий аудио в никуда
type stubAsrClient struct{}

func (c *stubAsrClient) SendAudio(samples []int16) error { return nil }
func (c *stubAsrClient) Close() error                    { return nil }

// stubTTSClient клиент синтеза, сразу закрывающий поток
type stubTTSClient struct{}

func (c *stubTTSClient) Synthesize(ctx context.Context, text string) (<-chan []int16, error) {
	out := make(chan []int16)
	close(out)
	return out, nil
}
func (c *stubTTSClient) Close() error { return nil }

func newTestEngine() *StreamEngine {
	e := DefaultStreamEngine()
	// Сетевые фабрики подменяются заглушками
	e.RegisterASR(ProviderDeepgram, func(ctx context.Context, trackID string, option transcription.Option, bus *event.Bus) (transcription.Client, error) {
		return &stubAsrClient{}, nil
	})
	e.RegisterTTS(ProviderDeepgram, func(option synthesis.Option) (synthesis.Client, error) {
		return &stubTTSClient{}, nil
	})
	return e
}

func newEngineTrack(t *testing.T) track.Track {
	t.Helper()
	local, _ := track.NewMemoryTransportPair()
	trk := track.NewRTPTrack(track.TrackConfig{
		SampleRate: 16000,
		Codec:      media.CodecPCMU,
		Ptime:      20 * time.Millisecond,
		StreamID:   "engine-test",
	}, local)
	t.Cleanup(func() { _ = trk.Stop() })
	return trk
}

func processorNames(processors []media.Processor) []string {
	names := make([]string, 0, len(processors))
	for _, p := range processors {
		names = append(names, p.Name())
	}
	return names
}

func TestCreateProcessorsInternalStack(t *testing.T) {
	e := newTestEngine()
	trk := newEngineTrack(t)
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	t.Run("только ASR", func(t *testing.T) {
		processors, err := e.CreateProcessors(context.Background(), trk, bus, CallOption{
			ASR: &transcription.Option{Provider: ProviderDeepgram},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"asr"}, processorNames(processors))
	})

	t.Run("полный внутренний стек в фиксированном порядке", func(t *testing.T) {
		processors, err := e.CreateProcessors(context.Background(), trk, bus, CallOption{
			Denoise: true,
			VAD:     &media.VADOption{},
			ASR:     &transcription.Option{Provider: ProviderDeepgram},
			EOU:     &media.EouOption{},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"denoise", "vad", "asr", "eou"}, processorNames(processors))
	})

	t.Run("пустая опция даёт пустую цепочку", func(t *testing.T) {
		processors, err := e.CreateProcessors(context.Background(), trk, bus, CallOption{})
		require.NoError(t, err)
		assert.Empty(t, processors)
	})
}

func TestCreateProcessorsBridgeOwnsAI(t *testing.T) {
	e := newTestEngine()
	trk := newEngineTrack(t)
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	e.RegisterBridge(func(ctx context.Context, trackID string, config bridge.Config, bus *event.Bus) (media.Processor, error) {
		return &stubProcessor{name: "bridge"}, nil
	})

	bridgeCfg := bridge.DefaultConfig()
	bridgeCfg.Enabled = true
	bridgeCfg.ServerURL = "ws://localhost:8081"

	// Bridge владеет AI: внутренние VAD/ASR/EOU не собираются,
	// даже если запрошены
	processors, err := e.CreateProcessors(context.Background(), trk, bus, CallOption{
		Denoise: true,
		VAD:     &media.VADOption{},
		ASR:     &transcription.Option{Provider: ProviderDeepgram},
		EOU:     &media.EouOption{},
		Bridge:  &bridgeCfg,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"denoise", "bridge"}, processorNames(processors))
}

func TestCreateProcessorsBridgeWithoutAI(t *testing.T) {
	e := newTestEngine()
	trk := newEngineTrack(t)
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	e.RegisterBridge(func(ctx context.Context, trackID string, config bridge.Config, bus *event.Bus) (media.Processor, error) {
		return &stubProcessor{name: "bridge"}, nil
	})

	bridgeCfg := bridge.DefaultConfig()
	bridgeCfg.Enabled = true
	bridgeCfg.ServerURL = "ws://localhost:8081"
	bridgeCfg.UseForAI = false

	// Bridge без владения AI дополняет внутренний стек
	processors, err := e.CreateProcessors(context.Background(), trk, bus, CallOption{
		VAD:    &media.VADOption{},
		EOU:    &media.EouOption{},
		Bridge: &bridgeCfg,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bridge", "vad", "eou"}, processorNames(processors))
}

func TestCreateProcessorsBridgeUnavailable(t *testing.T) {
	bridgeCfg := bridge.DefaultConfig()
	bridgeCfg.Enabled = true
	bridgeCfg.ServerURL = "ws://localhost:8081"

	failingCreator := func(ctx context.Context, trackID string, config bridge.Config, bus *event.Bus) (media.Processor, error) {
		return nil, media.NewError(media.ErrorCodeBridgeUnavailable, trackID, "сервер недоступен")
	}

	t.Run("без fallback сборка завершается ошибкой", func(t *testing.T) {
		e := newTestEngine()
		e.RegisterBridge(failingCreator)
		trk := newEngineTrack(t)
		bus := event.NewBus()
		t.Cleanup(bus.Close)

		cfg := bridgeCfg
		cfg.FallbackToInternal = false

		processors, err := e.CreateProcessors(context.Background(), trk, bus, CallOption{
			ASR:    &transcription.Option{Provider: ProviderDeepgram},
			Bridge: &cfg,
		})
		require.Error(t, err)
		assert.True(t, media.IsCode(err, media.ErrorCodeBridgeUnavailable))
		assert.Nil(t, processors)
	})

	t.Run("с fallback собирается внутренний стек", func(t *testing.T) {
		e := newTestEngine()
		e.RegisterBridge(failingCreator)
		trk := newEngineTrack(t)
		bus := event.NewBus()
		t.Cleanup(bus.Close)

		cfg := bridgeCfg
		cfg.FallbackToInternal = true

		processors, err := e.CreateProcessors(context.Background(), trk, bus, CallOption{
			VAD:    &media.VADOption{},
			ASR:    &transcription.Option{Provider: ProviderDeepgram},
			EOU:    &media.EouOption{},
			Bridge: &cfg,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"vad", "asr", "eou"}, processorNames(processors))
	})
}

func TestUnknownProviderTags(t *testing.T) {
	e := newTestEngine()
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	t.Run("VAD", func(t *testing.T) {
		_, err := e.CreateVADProcessor(bus, media.VADOption{Type: "nonexistent"})
		assert.True(t, media.IsCode(err, media.ErrorCodeUnknownProviderTag))
	})

	t.Run("EOU", func(t *testing.T) {
		_, err := e.CreateEOUProcessor(bus, media.EouOption{Type: "nonexistent"})
		assert.True(t, media.IsCode(err, media.ErrorCodeUnknownProviderTag))
	})

	t.Run("ASR", func(t *testing.T) {
		_, err := e.CreateASRProcessor(context.Background(), "t1",
			transcription.Option{Provider: "nonexistent"}, bus)
		assert.True(t, media.IsCode(err, media.ErrorCodeUnknownProviderTag))
	})

	t.Run("TTS", func(t *testing.T) {
		_, err := e.CreateTTSClient(synthesis.Option{Provider: "nonexistent"})
		assert.True(t, media.IsCode(err, media.ErrorCodeUnknownProviderTag))
	})

	t.Run("пустой тег означает встроенный провайдер", func(t *testing.T) {
		vad, err := e.CreateVADProcessor(bus, media.VADOption{})
		require.NoError(t, err)
		assert.Equal(t, "vad", vad.Name())
	})
}

func TestRegisterReplacesCreator(t *testing.T) {
	e := newTestEngine()
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	e.RegisterVAD(VADTypeEnergy, func(bus *event.Bus, option media.VADOption) (media.Processor, error) {
		return &stubProcessor{name: "custom-vad"}, nil
	})

	vad, err := e.CreateVADProcessor(bus, media.VADOption{Type: VADTypeEnergy})
	require.NoError(t, err)
	assert.Equal(t, "custom-vad", vad.Name())
}

func TestWithProcessorsHook(t *testing.T) {
	e := newTestEngine()
	trk := newEngineTrack(t)
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	e.WithProcessorsHook(func(ctx context.Context, engine *StreamEngine, trk track.Track, bus *event.Bus, option CallOption) ([]media.Processor, error) {
		return []media.Processor{&stubProcessor{name: "custom"}}, nil
	})

	processors, err := e.CreateProcessors(context.Background(), trk, bus, CallOption{
		Denoise: true,
		VAD:     &media.VADOption{},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, processorNames(processors))
}

func TestCreateTTSTrack(t *testing.T) {
	e := newTestEngine()

	handle, trk, err := e.CreateTTSTrack(track.TrackConfig{
		SampleRate: 16000,
		StreamID:   "tts-engine-test",
	}, synthesis.Option{Provider: ProviderDeepgram})
	require.NoError(t, err)
	require.NotNil(t, handle)
	require.NotNil(t, trk)
	t.Cleanup(func() { _ = trk.Stop() })

	assert.Equal(t, "tts-engine-test", trk.ID())
	assert.NoError(t, handle.Say("проверка"))
}
