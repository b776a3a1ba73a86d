package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arzzra/media_engine/pkg/event"
	"github.com/arzzra/media_engine/pkg/media"
	"github.com/arzzra/media_engine/pkg/provider"
)

const (
	// Сервер разрывает молчащие сессии; ping каждые 30 секунд
	pingInterval = 30 * time.Second
	// Очередь исходящего аудио: ~5 секунд 20мс фреймов
	audioQueueSize = 256
)

var audioDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "media_engine",
	Subsystem: "bridge",
	Name:      "audio_frames_dropped_total",
	Help:      "Аудио фреймы, отброшенные из-за переполнения очереди bridge",
})

// Client клиент AI медиа сервера. Реализует provider.StreamingClient:
// аудио уходит бинарными кадрами через ограниченную очередь, ответы
// сервера публикуются как события сессии.
type Client struct {
	config  Config
	trackID string
	roomID  string
	bus     *event.Bus
	state   *provider.ConnState

	mu   sync.Mutex
	conn *websocket.Conn

	audioCh   chan []byte
	loopStop  context.CancelFunc
	closeOnce sync.Once
}

// NewClient создает клиент bridge сервера. Соединение не устанавливается
// до вызова Connect или StartWithReconnect.
func NewClient(trackID string, config Config, bus *event.Bus) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config:  config,
		trackID: trackID,
		roomID:  "media_engine_" + uuid.NewString(),
		bus:     bus,
		state:   provider.NewConnState(),
		audioCh: make(chan []byte, audioQueueSize),
	}, nil
}

// Connect устанавливает соединение, отправляет конфигурацию сессии
// и запускает фоновые циклы приёма, отправки и ping.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.state.Connect(); err != nil {
		return err
	}

	conn, err := provider.DialWebSocket(ctx, c.config.ServerURL, nil, c.config.ConnectionTimeout)
	if err != nil {
		c.state.Fail(err.Error())
		return media.WrapError(media.ErrorCodeBridgeUnavailable, c.trackID,
			"bridge: сервер недоступен", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.sendConfiguration(ctx, conn); err != nil {
		conn.Close(websocket.StatusInternalError, "")
		c.state.Fail(err.Error())
		return media.WrapError(media.ErrorCodeBridgeUnavailable, c.trackID,
			"bridge: конфигурация не принята", err)
	}

	if err := c.state.Established(); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return err
	}
	slog.Info("bridge: соединение установлено",
		"track_id", c.trackID, "room_id", c.roomID, "server", c.config.ServerURL)

	// Циклы живут в пределах контекста звонка: отмена корневого
	// контекста разматывает их и закрывает соединение
	loopCtx, stop := context.WithCancel(ctx)
	c.loopStop = stop
	go c.sendLoop(loopCtx, conn)
	go c.receiveLoop(loopCtx, conn)
	go provider.KeepaliveLoop(loopCtx, pingInterval, func(ctx context.Context) error {
		return c.writeJSON(ctx, conn, pingMessage{Command: "ping", Timestamp: event.Timestamp()})
	}, func(err error) {
		c.state.Fail(err.Error())
	})
	return nil
}

// StartWithReconnect устанавливает соединение с переподключением
// по настроенной политике.
func (c *Client) StartWithReconnect(ctx context.Context) error {
	if c.state.IsConnected() {
		return nil
	}
	return provider.RunWithReconnect(ctx, "bridge", c.config.Reconnect, c.Connect)
}

// SendAudio ставит бинарный аудио фрейм в очередь отправки.
//
// При разорванном соединении поведение определяет FallbackToInternal:
// с fallback аудио молча принимается (его обработает внутренний стек),
// без fallback возвращается NotConnected. Переполненная очередь
// отбрасывает фрейм: свежее аудио ценнее застрявшего.
func (c *Client) SendAudio(data []byte) error {
	if !c.state.IsConnected() {
		if c.config.FallbackToInternal {
			return nil
		}
		return media.NewError(media.ErrorCodeNotConnected, c.trackID,
			"bridge: соединение не установлено")
	}
	if len(data) == 0 {
		return nil
	}

	select {
	case c.audioCh <- data:
	default:
		audioDropped.Inc()
	}
	return nil
}

// Status возвращает состояние соединения
func (c *Client) Status() provider.Status {
	return c.state.Status()
}

// Close отправляет disconnect и разрывает соединение.
// Безопасен для многократного вызова.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = c.writeJSON(ctx, conn, disconnectMessage{
				Command: "disconnect", Reason: "client disconnect",
			})
			cancel()
			conn.Close(websocket.StatusNormalClosure, "")
		}
		if c.loopStop != nil {
			c.loopStop()
		}
		if c.state.Status() != provider.StatusDisconnected {
			c.state.Close()
		}
	})
	return nil
}

func (c *Client) sendConfiguration(ctx context.Context, conn *websocket.Conn) error {
	msg := configureMessage{
		Command:      "configure",
		RoomID:       c.roomID,
		SystemPrompt: c.config.DefaultSystemPrompt,
		SttConfig: map[string]any{
			"sample_rate": c.config.Audio.SampleRate,
			"language":    "en",
			"model":       "nova-2",
		},
		TtsConfig: map[string]any{
			"sample_rate": c.config.Audio.SampleRate,
			"encoding":    c.config.Audio.Encoding,
		},
	}
	return c.writeJSON(ctx, conn, msg)
}

func (c *Client) writeJSON(ctx context.Context, conn *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// sendLoop передает поставленное в очередь аудио бинарными кадрами
func (c *Client) sendLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.audioCh:
			if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
				if ctx.Err() == nil {
					slog.Warn("bridge: отправка аудио не удалась",
						"track_id", c.trackID, "error", err)
					c.state.Fail(err.Error())
				}
				return
			}
		}
	}
}

// receiveLoop разбирает ответы сервера и публикует события сессии
func (c *Client) receiveLoop(ctx context.Context, conn *websocket.Conn) {
	utteranceIndex := 0
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Отмена контекста звонка — штатное завершение
				c.state.Close()
			} else {
				slog.Info("bridge: соединение закрыто", "track_id", c.trackID, "error", err)
				c.state.Fail(err.Error())
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		resp, err := parseServerResponse(data)
		if err != nil {
			slog.Warn("bridge: неразборчивый ответ сервера",
				"track_id", c.trackID, "error", err)
			continue
		}
		utteranceIndex = c.handleResponse(resp, utteranceIndex)
	}
}

func (c *Client) handleResponse(resp *serverResponse, index int) int {
	switch resp.Type {
	case "audio":
		if len(resp.AudioData) == 0 {
			return index
		}
		c.bus.Publish(event.BridgeAudio{
			TrackID:    c.trackID,
			Samples:    media.BytesToSamples(resp.AudioData),
			SampleRate: resp.SampleRate,
			Timestamp:  event.Timestamp(),
		})
	case "transcription":
		if resp.IsFinal {
			c.bus.Publish(event.AsrFinal{
				TrackID: c.trackID, Index: index, Text: resp.Text,
				Timestamp: event.Timestamp(),
			})
			return index + 1
		}
		c.bus.Publish(event.AsrDelta{
			TrackID: c.trackID, Index: index, Text: resp.Text,
			Timestamp: event.Timestamp(),
		})
	case "llm_response":
		slog.Debug("bridge: ответ LLM", "track_id", c.trackID,
			"complete", resp.IsComplete, "text", resp.Text)
	case "tts_started", "tts_completed":
		slog.Debug("bridge: синтез", "track_id", c.trackID, "stage", resp.Type)
	case "metrics":
		c.bus.Publish(event.Metrics{
			Key:       resp.Key,
			Duration:  time.Duration(resp.Duration) * time.Millisecond,
			Timestamp: event.Timestamp(),
		})
	case "error":
		slog.Error("bridge: ошибка сервера", "track_id", c.trackID,
			"message", resp.Message, "code", resp.Code)
		c.bus.Publish(event.Error{
			TrackID: c.trackID, Sender: "bridge",
			Message: resp.Message, Code: resp.Code,
			Timestamp: event.Timestamp(),
		})
	case "connected", "configured", "ping", "pong":
		slog.Debug("bridge: служебное сообщение", "type", resp.Type)
	}
	return index
}
