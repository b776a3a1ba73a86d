package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/media_engine/pkg/event"
	"github.com/arzzra/media_engine/pkg/media"
)

// recordingWriter запоминает переданные SendPacket сэмплы
type recordingWriter struct {
	mu    sync.Mutex
	calls [][]int16
	rates []uint32
	err   error
}

func (w *recordingWriter) SendPacket(ctx context.Context, samples []int16, sampleRate uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.calls = append(w.calls, samples)
	w.rates = append(w.rates, sampleRate)
	return nil
}

func (w *recordingWriter) snapshot() ([][]int16, []uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]int16(nil), w.calls...), append([]uint32(nil), w.rates...)
}

func TestPumpForwardsOwnTrackAudio(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	writer := &recordingWriter{}
	pump := NewPump("track-1", bus, writer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		pump.Run(ctx)
		close(done)
	}()

	// Подписка насоса должна успеть зарегистрироваться
	time.Sleep(20 * time.Millisecond)

	bus.Publish(event.BridgeAudio{TrackID: "track-1", Samples: []int16{1, 2, 3}, SampleRate: 16000})
	bus.Publish(event.BridgeAudio{TrackID: "другой", Samples: []int16{9, 9, 9}, SampleRate: 16000})
	bus.Publish(event.AsrFinal{TrackID: "track-1", Text: "не аудио"})
	bus.Publish(event.BridgeAudio{TrackID: "track-1", Samples: []int16{4, 5}, SampleRate: 8000})

	require.Eventually(t, func() bool {
		calls, _ := writer.snapshot()
		return len(calls) == 2
	}, time.Second, 10*time.Millisecond, "насос должен передать ровно два события своего трека")

	calls, rates := writer.snapshot()
	assert.Equal(t, []int16{1, 2, 3}, calls[0])
	assert.Equal(t, []int16{4, 5}, calls[1])
	assert.Equal(t, []uint32{16000, 8000}, rates)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("насос не остановился по отмене контекста")
	}
}

func TestPumpStopsOnClosedTrack(t *testing.T) {
	bus := event.NewBus()
	t.Cleanup(bus.Close)

	writer := &recordingWriter{
		err: media.NewError(media.ErrorCodeNotConnected, "track-1", "транспорт закрыт"),
	}
	pump := NewPump("track-1", bus, writer)

	done := make(chan struct{})
	go func() {
		pump.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Publish(event.BridgeAudio{TrackID: "track-1", Samples: []int16{1}, SampleRate: 8000})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("насос должен завершаться когда трек закрыт")
	}
}

func TestParseServerResponse(t *testing.T) {
	t.Run("audio с base64 полезной нагрузкой", func(t *testing.T) {
		// "AQACAA==" — сэмплы 1 и 2 little-endian
		resp, err := parseServerResponse([]byte(
			`{"type":"audio","audio_data":"AQACAA==","sample_rate":16000}`))
		require.NoError(t, err)
		assert.Equal(t, "audio", resp.Type)
		assert.Equal(t, []byte{0x01, 0x00, 0x02, 0x00}, resp.AudioData)
		assert.Equal(t, uint32(16000), resp.SampleRate)
	})

	t.Run("transcription", func(t *testing.T) {
		resp, err := parseServerResponse([]byte(
			`{"type":"transcription","text":"hello","is_final":true}`))
		require.NoError(t, err)
		assert.Equal(t, "hello", resp.Text)
		assert.True(t, resp.IsFinal)
	})

	t.Run("мусор", func(t *testing.T) {
		_, err := parseServerResponse([]byte("{not json"))
		assert.Error(t, err)
	})
}
