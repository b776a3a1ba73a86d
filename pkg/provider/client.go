package provider

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// StreamingClient контракт клиента потокового провайдера.
//
// Ingest: SendAudio при статусе != Connected либо молча успешен (когда
// включён fallback на внутренний стек), либо возвращает NotConnected.
// Аудио никогда не накапливается неограниченно при разорванном
// соединении.
//
// Egress: клиент владеет фоновым циклом приёма, который разбирает
// протокольные фреймы и публикует их как события; цикл завершается
// на закрытии транспорта, фатальной ошибке разбора или отмене, и всегда
// переводит статус в Disconnected/Error при выходе.
type StreamingClient interface {
	// Connect устанавливает соединение в пределах настроенного таймаута
	Connect(ctx context.Context) error
	// StartWithReconnect оборачивает Connect политикой переподключения
	StartWithReconnect(ctx context.Context) error
	// SendAudio передает бинарный аудио фрейм (raw linear PCM)
	SendAudio(data []byte) error
	// Status возвращает состояние соединения
	Status() Status
	// Close разрывает соединение и останавливает фоновые циклы
	Close() error
}

// DefaultConnectTimeout таймаут установки соединения по умолчанию
const DefaultConnectTimeout = 30 * time.Second

// DialWebSocket устанавливает WebSocket соединение с таймаутом.
func DialWebSocket(ctx context.Context, url string, header http.Header, timeout time.Duration) (*websocket.Conn, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}
	// Голосовые фреймы крупнее дефолтного лимита в 32KiB
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// KeepaliveLoop периодически вызывает send пока контекст жив.
// Ошибка отправки считается транспортной: вызывается onFail и цикл
// завершается.
func KeepaliveLoop(ctx context.Context, interval time.Duration, send func(context.Context) error, onFail func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := send(ctx); err != nil {
				slog.Warn("provider: keepalive не отправлен", "error", err)
				if onFail != nil {
					onFail(err)
				}
				return
			}
		}
	}
}
