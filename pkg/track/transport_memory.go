package track

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// memoryAddr адрес in-memory транспорта
type memoryAddr struct{ name string }

func (a memoryAddr) Network() string { return "memory" }
func (a memoryAddr) String() string  { return a.name }

// timeoutError имитирует таймаут чтения сетевого транспорта
type timeoutError struct{}

func (timeoutError) Error() string   { return "таймаут чтения" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// MemoryTransport транспорт поверх каналов в памяти. Используется в
// тестах и для локальной стыковки треков без сети.
type MemoryTransport struct {
	name string
	out  chan<- *rtp.Packet
	in   <-chan *rtp.Packet

	active bool
	mutex  sync.RWMutex
}

// NewMemoryTransportPair создает два связанных транспорта: пакеты,
// отправленные одним, принимает другой.
func NewMemoryTransportPair() (*MemoryTransport, *MemoryTransport) {
	ab := make(chan *rtp.Packet, 256)
	ba := make(chan *rtp.Packet, 256)
	a := &MemoryTransport{name: "memory-a", out: ab, in: ba, active: true}
	b := &MemoryTransport{name: "memory-b", out: ba, in: ab, active: true}
	return a, b
}

// Send кладет пакет в канал пары. Переполненный канал — потеря пакета,
// как у UDP.
func (t *MemoryTransport) Send(packet *rtp.Packet) error {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if !t.active {
		return fmt.Errorf("транспорт не активен")
	}
	select {
	case t.out <- packet:
	default:
	}
	return nil
}

// Receive достает пакет из канала пары.
// Как и сетевые транспорты, возвращает таймаут при отсутствии данных.
func (t *MemoryTransport) Receive(ctx context.Context) (*rtp.Packet, net.Addr, error) {
	t.mutex.RLock()
	active := t.active
	t.mutex.RUnlock()
	if !active {
		return nil, nil, fmt.Errorf("транспорт не активен")
	}

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case packet, ok := <-t.in:
		if !ok {
			return nil, nil, fmt.Errorf("транспорт не активен")
		}
		return packet, memoryAddr{name: "memory-peer"}, nil
	case <-time.After(100 * time.Millisecond):
		return nil, nil, timeoutError{}
	}
}

// LocalAddr возвращает локальный адрес
func (t *MemoryTransport) LocalAddr() net.Addr { return memoryAddr{name: t.name} }

// RemoteAddr возвращает адрес пары
func (t *MemoryTransport) RemoteAddr() net.Addr { return memoryAddr{name: "memory-peer"} }

// Close закрывает транспорт
func (t *MemoryTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.active = false
	return nil
}

// IsActive проверяет активность транспорта
func (t *MemoryTransport) IsActive() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.active
}
