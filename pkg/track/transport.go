package track

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// Ограничения размера пакета согласно RFC 3550
const (
	minRTPPacketSize = 12 // минимальный RTP заголовок
	maxRTPPacketSize = 1500
)

// Transport транспорт RTP пакетов трека.
// Реализации: UDP, DTLS поверх UDP, in-memory для тестов.
type Transport interface {
	// Send отправляет RTP пакет
	Send(packet *rtp.Packet) error

	// Receive получает RTP пакет с указанием источника.
	// Возвращает net.Error с Timeout() == true при отсутствии данных:
	// цикл приёма использует таймауты для проверки отмены контекста.
	Receive(ctx context.Context) (*rtp.Packet, net.Addr, error)

	// LocalAddr возвращает локальный адрес транспорта
	LocalAddr() net.Addr

	// RemoteAddr возвращает удаленный адрес (nil до установки)
	RemoteAddr() net.Addr

	// Close закрывает транспорт
	Close() error

	// IsActive проверяет активность транспорта
	IsActive() bool
}

// TransportConfig конфигурация транспорта
type TransportConfig struct {
	LocalAddr  string // Локальный адрес для привязки
	RemoteAddr string // Удаленный адрес (опционально, latching при пустом)
	BufferSize int    // Размер буфера чтения
}

// DefaultTransportConfig возвращает конфигурацию по умолчанию
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		BufferSize: 1500, // Стандартный MTU
	}
}

// UDPTransport транспорт RTP по UDP, оптимизирован для телефонии.
// Удаленный адрес берётся из конфигурации или защёлкивается на
// источнике первого принятого пакета (symmetric RTP).
type UDPTransport struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	config     TransportConfig

	active bool
	mutex  sync.RWMutex
}

// NewUDPTransport создает UDP транспорт
func NewUDPTransport(config TransportConfig) (*UDPTransport, error) {
	if config.BufferSize == 0 {
		config.BufferSize = 1500
	}

	localAddr, err := net.ResolveUDPAddr("udp", config.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения локального адреса: %w", err)
	}

	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания UDP соединения: %w", err)
	}

	// Приоритезация сокета не критична, без неё транспорт работает
	if err := tuneVoiceSocket(conn); err != nil {
		slog.Debug("track: настройка голосового сокета не применена", "error", err)
	}

	transport := &UDPTransport{
		conn:   conn,
		config: config,
		active: true,
	}

	if config.RemoteAddr != "" {
		remoteAddr, err := net.ResolveUDPAddr("udp", config.RemoteAddr)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("ошибка разрешения удаленного адреса: %w", err)
		}
		transport.remoteAddr = remoteAddr
	}

	return transport, nil
}

// Send отправляет RTP пакет по UDP
func (t *UDPTransport) Send(packet *rtp.Packet) error {
	t.mutex.RLock()
	active := t.active
	conn := t.conn
	remoteAddr := t.remoteAddr
	t.mutex.RUnlock()

	if !active {
		return fmt.Errorf("транспорт не активен")
	}
	if remoteAddr == nil {
		return fmt.Errorf("удаленный адрес не установлен")
	}

	data, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("ошибка маршалинга RTP пакета: %w", err)
	}
	if len(data) > maxRTPPacketSize {
		return fmt.Errorf("RTP пакет превышает MTU: %d байт", len(data))
	}

	_, err = conn.WriteToUDP(data, remoteAddr)
	if err != nil {
		return fmt.Errorf("ошибка отправки UDP: %w", err)
	}
	return nil
}

// Receive получает RTP пакет по UDP
func (t *UDPTransport) Receive(ctx context.Context) (*rtp.Packet, net.Addr, error) {
	t.mutex.RLock()
	active := t.active
	conn := t.conn
	bufferSize := t.config.BufferSize
	t.mutex.RUnlock()

	if !active {
		return nil, nil, fmt.Errorf("транспорт не активен")
	}

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	buffer := make([]byte, bufferSize)

	// Таймаут чтения, чтобы цикл приёма регулярно проверял контекст
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	n, addr, err := conn.ReadFromUDP(buffer)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		return nil, nil, err
	}

	if n < minRTPPacketSize {
		return nil, nil, fmt.Errorf("пакет меньше минимального RTP заголовка: %d байт", n)
	}

	// Защёлкиваем удаленный адрес на первом пакете (symmetric RTP)
	t.mutex.Lock()
	if t.remoteAddr == nil {
		t.remoteAddr = addr
	}
	t.mutex.Unlock()

	packet := &rtp.Packet{}
	if err := packet.Unmarshal(buffer[:n]); err != nil {
		return nil, nil, fmt.Errorf("ошибка демаршалинга RTP пакета: %w", err)
	}
	return packet, addr, nil
}

// LocalAddr возвращает локальный адрес
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// RemoteAddr возвращает удаленный адрес
func (t *UDPTransport) RemoteAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.remoteAddr == nil {
		return nil
	}
	return t.remoteAddr
}

// SetRemoteAddr устанавливает удаленный адрес
func (t *UDPTransport) SetRemoteAddr(addr string) error {
	remoteAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("ошибка разрешения удаленного адреса: %w", err)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.remoteAddr = remoteAddr
	return nil
}

// Close закрывает транспорт
func (t *UDPTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.active {
		return nil
	}
	t.active = false

	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// IsActive проверяет активность транспорта
func (t *UDPTransport) IsActive() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.active
}
