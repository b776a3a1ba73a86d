package track

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"
	"github.com/pion/rtp"
)

// DTLSTransportConfig конфигурация шифрованного транспорта
type DTLSTransportConfig struct {
	TransportConfig

	Certificates       []tls.Certificate
	ServerName         string
	InsecureSkipVerify bool

	// Таймаут DTLS рукопожатия
	HandshakeTimeout time.Duration

	// MTU для фрагментации DTLS сообщений
	MTU int

	// Сторона рукопожатия: true — слушаем, false — инициируем
	Server bool
}

// DefaultDTLSTransportConfig возвращает конфигурацию DTLS по умолчанию
func DefaultDTLSTransportConfig() DTLSTransportConfig {
	return DTLSTransportConfig{
		TransportConfig:  DefaultTransportConfig(),
		HandshakeTimeout: 30 * time.Second,
		MTU:              1200, // Стандартный размер для DTLS
	}
}

// DTLSTransport шифрованный транспорт RTP поверх DTLS.
// Удаленный адрес фиксируется рукопожатием, latching не применяется.
type DTLSTransport struct {
	dtlsConn *dtls.Conn
	config   DTLSTransportConfig

	active bool
	mutex  sync.RWMutex
}

// NewDTLSTransport создает DTLS транспорт и выполняет рукопожатие.
func NewDTLSTransport(ctx context.Context, config DTLSTransportConfig) (*DTLSTransport, error) {
	if config.BufferSize == 0 {
		config.BufferSize = 1500
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 30 * time.Second
	}
	if config.MTU == 0 {
		config.MTU = 1200
	}

	localAddr, err := net.ResolveUDPAddr("udp", config.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения локального адреса: %w", err)
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", config.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения удаленного адреса: %w", err)
	}

	dtlsConfig := &dtls.Config{
		Certificates:       config.Certificates,
		ServerName:         config.ServerName,
		InsecureSkipVerify: config.InsecureSkipVerify,
		MTU:                config.MTU,
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithTimeout(ctx, config.HandshakeTimeout)
		},
	}

	var dtlsConn *dtls.Conn
	if config.Server {
		listener, err := dtls.Listen("udp", localAddr, dtlsConfig)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания DTLS listener: %w", err)
		}
		conn, err := listener.Accept()
		listener.Close()
		if err != nil {
			return nil, fmt.Errorf("ошибка DTLS рукопожатия: %w", err)
		}
		dtlsConn = conn.(*dtls.Conn)
	} else {
		udpConn, err := net.DialUDP("udp", localAddr, remoteAddr)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания UDP соединения: %w", err)
		}
		dtlsConn, err = dtls.ClientWithContext(ctx, udpConn, dtlsConfig)
		if err != nil {
			udpConn.Close()
			return nil, fmt.Errorf("ошибка DTLS рукопожатия: %w", err)
		}
	}

	return &DTLSTransport{
		dtlsConn: dtlsConn,
		config:   config,
		active:   true,
	}, nil
}

// Send отправляет RTP пакет через DTLS
func (t *DTLSTransport) Send(packet *rtp.Packet) error {
	t.mutex.RLock()
	active := t.active
	conn := t.dtlsConn
	t.mutex.RUnlock()

	if !active {
		return fmt.Errorf("транспорт не активен")
	}

	data, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("ошибка маршалинга RTP пакета: %w", err)
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("ошибка отправки DTLS: %w", err)
	}
	return nil
}

// Receive получает RTP пакет через DTLS
func (t *DTLSTransport) Receive(ctx context.Context) (*rtp.Packet, net.Addr, error) {
	t.mutex.RLock()
	active := t.active
	conn := t.dtlsConn
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
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	n, err := conn.Read(buffer)
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

	packet := &rtp.Packet{}
	if err := packet.Unmarshal(buffer[:n]); err != nil {
		return nil, nil, fmt.Errorf("ошибка демаршалинга RTP пакета: %w", err)
	}
	return packet, conn.RemoteAddr(), nil
}

// LocalAddr возвращает локальный адрес
func (t *DTLSTransport) LocalAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.dtlsConn == nil {
		return nil
	}
	return t.dtlsConn.LocalAddr()
}

// RemoteAddr возвращает удаленный адрес
func (t *DTLSTransport) RemoteAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.dtlsConn == nil {
		return nil
	}
	return t.dtlsConn.RemoteAddr()
}

// Close закрывает транспорт
func (t *DTLSTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.active {
		return nil
	}
	t.active = false

	if t.dtlsConn != nil {
		return t.dtlsConn.Close()
	}
	return nil
}

// IsActive проверяет активность транспорта
func (t *DTLSTransport) IsActive() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.active
}
