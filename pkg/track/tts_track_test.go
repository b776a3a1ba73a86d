package track

import (
	"context"
	"testing"
	"time"

	"github.com/arzzra/media_engine/pkg/media"
)

// fakeSynthesisClient выдает заранее заданный PCM для любого текста
type fakeSynthesisClient struct {
	samplesPerText int
	delayPerChunk  time.Duration
	closed         bool
}

func (f *fakeSynthesisClient) Synthesize(ctx context.Context, text string) (<-chan []int16, error) {
	out := make(chan []int16, 8)
	go func() {
		defer close(out)
		remaining := f.samplesPerText
		for remaining > 0 {
			if f.delayPerChunk > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(f.delayPerChunk):
				}
			}
			n := 100
			if n > remaining {
				n = remaining
			}
			chunk := make([]int16, n)
			for i := range chunk {
				chunk[i] = int16(i)
			}
			select {
			case <-ctx.Done():
				return
			case out <- chunk:
			}
			remaining -= n
		}
	}()
	return out, nil
}

func (f *fakeSynthesisClient) Close() error {
	f.closed = true
	return nil
}

func TestTTSTrackFraming(t *testing.T) {
	// 400 сэмплов при 8кГц/20мс — два полных фрейма по 160 и хвост 80
	client := &fakeSynthesisClient{samplesPerText: 400}
	track, handle := NewTTSTrack(TrackConfig{
		SampleRate: 8000,
		Ptime:      20 * time.Millisecond,
		StreamID:   "tts-test",
	}, client)
	defer track.Stop()

	sender := make(chan *media.AudioFrame, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := track.Start(ctx, nil, sender); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := handle.Say("привет"); err != nil {
		t.Fatalf("Say: %v", err)
	}

	var frames []*media.AudioFrame
	deadline := time.After(2 * time.Second)
	for len(frames) < 3 {
		select {
		case frame := <-sender:
			frames = append(frames, frame)
		case <-deadline:
			t.Fatalf("получено %d фреймов из 3", len(frames))
		}
	}

	for i, frame := range frames[:2] {
		if len(frame.Samples.PCM) != 160 {
			t.Errorf("фрейм %d: ожидалось 160 сэмплов, получено %d", i, len(frame.Samples.PCM))
		}
		if frame.SampleRate != 8000 {
			t.Errorf("фрейм %d: частота %d", i, frame.SampleRate)
		}
	}
	if len(frames[2].Samples.PCM) != 80 {
		t.Errorf("последний фрейм должен быть неполным (80 сэмплов), получено %d",
			len(frames[2].Samples.PCM))
	}
}

func TestTTSTrackPacing(t *testing.T) {
	// 800 сэмплов — 5 фреймов по 20мс, то есть не меньше ~80мс темпа
	client := &fakeSynthesisClient{samplesPerText: 800}
	track, handle := NewTTSTrack(TrackConfig{
		SampleRate: 8000,
		Ptime:      20 * time.Millisecond,
	}, client)
	defer track.Stop()

	sender := make(chan *media.AudioFrame, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := track.Start(ctx, nil, sender); err != nil {
		t.Fatalf("Start: %v", err)
	}

	started := time.Now()
	if err := handle.Say("тест темпа"); err != nil {
		t.Fatalf("Say: %v", err)
	}

	received := 0
	deadline := time.After(3 * time.Second)
	for received < 5 {
		select {
		case <-sender:
			received++
		case <-deadline:
			t.Fatalf("получено %d фреймов из 5", received)
		}
	}

	// Между пятью фреймами минимум четыре тика по 20мс
	if elapsed := time.Since(started); elapsed < 70*time.Millisecond {
		t.Errorf("фреймы выданы быстрее реального темпа: %s", elapsed)
	}
}

func TestTTSTrackInterrupt(t *testing.T) {
	// Медленный синтез: прерывание наступает до конца реплики
	client := &fakeSynthesisClient{samplesPerText: 16000, delayPerChunk: 5 * time.Millisecond}
	track, handle := NewTTSTrack(TrackConfig{
		SampleRate: 8000,
		Ptime:      20 * time.Millisecond,
	}, client)
	defer track.Stop()

	sender := make(chan *media.AudioFrame, 256)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := track.Start(ctx, nil, sender); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := handle.Say("длинная реплика"); err != nil {
		t.Fatalf("Say: %v", err)
	}

	// Дождаться начала воспроизведения
	select {
	case <-sender:
	case <-time.After(2 * time.Second):
		t.Fatal("воспроизведение не началось")
	}

	if err := handle.Interrupt(""); err != nil {
		t.Fatalf("Interrupt: %v", err)
	}

	// После прерывания поток фреймов иссякает
	drainUntilQuiet := func() int {
		count := 0
		for {
			select {
			case <-sender:
				count++
			case <-time.After(200 * time.Millisecond):
				return count
			}
		}
	}
	drainUntilQuiet()

	select {
	case frame := <-sender:
		t.Fatalf("фрейм после прерывания: %d сэмплов", len(frame.Samples.PCM))
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSynthesisHandleQueueOverflow(t *testing.T) {
	handle := &SynthesisHandle{
		texts:     make(chan string, 2),
		interrupt: make(chan struct{}, 1),
	}

	if err := handle.Say("раз"); err != nil {
		t.Fatalf("Say: %v", err)
	}
	if err := handle.Say("два"); err != nil {
		t.Fatalf("Say: %v", err)
	}
	err := handle.Say("три")
	if !media.IsCode(err, media.ErrorCodeNotConnected) {
		t.Errorf("ожидался код NotConnected при переполнении, получено: %v", err)
	}
}

func TestTTSTrackStopClosesClient(t *testing.T) {
	client := &fakeSynthesisClient{samplesPerText: 0}
	track, _ := NewTTSTrack(TrackConfig{SampleRate: 8000}, client)

	if err := track.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !client.closed {
		t.Error("Stop должен закрывать клиент синтеза")
	}

	err := track.SendPacket(context.Background(), make([]int16, 160), 8000)
	if !media.IsCode(err, media.ErrorCodeInvalidFrame) {
		t.Errorf("ожидался код InvalidFrame, получено: %v", err)
	}
}
