package event

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultSubscriberBuffer размер буфера канала подписчика по умолчанию.
const DefaultSubscriberBuffer = 128

var eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "media_engine",
	Subsystem: "events",
	Name:      "dropped_total",
	Help:      "События, отброшенные из-за переполнения буфера подписчика",
})

// Bus широковещательная шина событий сессии.
//
// Публикация не блокирует пайплайн: если буфер подписчика заполнен,
// событие для этого подписчика отбрасывается (события lossy-tolerant,
// см. инвариант пакета). Каждый подписчик получает события в порядке
// их публикации.
//
// Bus потокобезопасна.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan SessionEvent
	nextID uint64
	buffer int
	closed bool
}

// Subscription подписка на события шины. Канал C закрывается
// при Close подписки или всей шины.
type Subscription struct {
	C <-chan SessionEvent

	id  uint64
	bus *Bus
}

// NewBus создает шину с размером буфера подписчика по умолчанию.
func NewBus() *Bus {
	return NewBusWithBuffer(DefaultSubscriberBuffer)
}

// NewBusWithBuffer создает шину с указанным размером буфера подписчика.
func NewBusWithBuffer(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Bus{
		subs:   make(map[uint64]chan SessionEvent),
		buffer: buffer,
	}
}

// Subscribe регистрирует нового подписчика.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan SessionEvent, b.buffer)
	if b.closed {
		close(ch)
		return &Subscription{C: ch, id: ^uint64(0), bus: b}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return &Subscription{C: ch, id: id, bus: b}
}

// Publish рассылает событие всем подписчикам без блокировки.
// Переполненные подписчики пропускают событие.
func (b *Bus) Publish(ev SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			eventsDropped.Inc()
			slog.Debug("event.Bus: подписчик переполнен, событие отброшено",
				"type", eventName(ev))
		}
	}
}

// Close закрывает шину и каналы всех подписчиков.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Close отписывает подписчика и закрывает его канал.
// Безопасно вызывать многократно.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if ch, ok := s.bus.subs[s.id]; ok {
		close(ch)
		delete(s.bus.subs, s.id)
	}
}

func eventName(ev SessionEvent) string {
	switch ev.(type) {
	case AsrDelta:
		return "asr_delta"
	case AsrFinal:
		return "asr_final"
	case Error:
		return "error"
	case Metrics:
		return "metrics"
	case TrackEnd:
		return "track_end"
	case Answer:
		return "answer"
	case Speaking:
		return "speaking"
	case Silence:
		return "silence"
	case EndOfUtterance:
		return "end_of_utterance"
	case BridgeAudio:
		return "bridge_audio"
	default:
		return "unknown"
	}
}
