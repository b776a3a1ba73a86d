package transcription

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/arzzra/media_engine/pkg/event"
	"github.com/arzzra/media_engine/pkg/media"
	"github.com/arzzra/media_engine/pkg/provider"
)

const (
	deepgramDefaultModel      = "nova-2"
	deepgramDefaultLanguage   = "en"
	deepgramDefaultSampleRate = 16000
	// Deepgram разрывает сессию без трафика: KeepAlive каждые 5 секунд
	deepgramKeepalive = 5 * time.Second
	// Размер очереди исходящего аудио: ~5 секунд 20мс фреймов
	deepgramAudioBuffer = 256
)

// dgMessage входящее сообщение Deepgram Live API
type dgMessage struct {
	Type        string    `json:"type"`
	IsFinal     bool      `json:"is_final"`
	SpeechFinal bool      `json:"speech_final"`
	Start       float64   `json:"start"`
	Duration    float64   `json:"duration"`
	Channel     dgChannel `json:"channel"`
	Description string    `json:"description"`
	Message     string    `json:"message"`
}

type dgChannel struct {
	Alternatives []dgAlternative `json:"alternatives"`
}

type dgAlternative struct {
	Transcript string   `json:"transcript"`
	Confidence float64  `json:"confidence"`
	Words      []dgWord `json:"words"`
}

type dgWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// DeepgramClient клиент потокового распознавания Deepgram Live API.
// Референсная реализация контракта provider.StreamingClient для ASR:
// ingest через ограниченный канал, фоновые циклы отправки/приёма,
// KeepAlive, публикация AsrDelta/AsrFinal/Metrics/Error на шину.
type DeepgramClient struct {
	option  Option
	trackID string
	bus     *event.Bus
	state   *provider.ConnState

	audioCh   chan []byte
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDeepgramClient создает клиент и запускает его фоновые циклы.
// Отсутствие API ключа — восстановимая ошибка конструирования,
// возвращается до старта каких-либо задач.
func NewDeepgramClient(ctx context.Context, trackID string, option Option, bus *event.Bus) (*DeepgramClient, error) {
	option.CheckDefault()
	if option.SecretKey == "" {
		return nil, media.NewError(media.ErrorCodeNotConnected, trackID,
			"deepgram: не задан API ключ (DEEPGRAM_API_KEY)")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &DeepgramClient{
		option:  option,
		trackID: trackID,
		bus:     bus,
		state:   provider.NewConnState(),
		audioCh: make(chan []byte, deepgramAudioBuffer),
		cancel:  cancel,
	}

	slog.Info("deepgram: запуск ASR клиента", "track_id", trackID,
		"model", c.model(), "language", c.language())
	go c.run(runCtx)
	return c, nil
}

// SendAudio ставит PCM сэмплы в очередь на отправку.
//
// До установки соединения (ожидание ответа на звонок, фаза дозвона)
// аудио принимается в ограниченный буфер: в режиме start_when_answer
// его молча отбрасывает дренаж, иначе его заберёт цикл отправки после
// handshake. Переполнение буфера отбрасывает фрейм (drop-newest).
// NotConnected возвращается только после транспортной ошибки или
// закрытия клиента.
func (c *DeepgramClient) SendAudio(samples []int16) error {
	if c.closed.Load() || c.state.Status() == provider.StatusError {
		return media.NewError(media.ErrorCodeNotConnected, c.trackID,
			"deepgram: соединение не установлено")
	}

	select {
	case c.audioCh <- media.SamplesToBytes(samples):
	default:
		slog.Debug("deepgram: очередь аудио переполнена, фрейм отброшен",
			"track_id", c.trackID)
	}
	return nil
}

// Status возвращает состояние соединения
func (c *DeepgramClient) Status() provider.Status {
	return c.state.Status()
}

// Close останавливает клиент. Безопасен для многократного вызова.
func (c *DeepgramClient) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
	})
	return nil
}

// run владеет жизненным циклом соединения: ожидание ответа на звонок,
// установка WebSocket, циклы отправки и приёма.
func (c *DeepgramClient) run(ctx context.Context) {
	if c.option.StartWhenAnswer {
		sub := c.bus.Subscribe()
		DrainUntilAnswer(ctx, sub, c.audioCh)
		sub.Close()
		if ctx.Err() != nil {
			return
		}
	}

	if err := c.state.Connect(); err != nil {
		slog.Error("deepgram: недопустимый переход состояния", "error", err)
		return
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+c.option.SecretKey)
	conn, err := provider.DialWebSocket(ctx, c.buildURL(), header, provider.DefaultConnectTimeout)
	if err != nil {
		c.state.Fail(err.Error())
		c.publishError("не удалось установить соединение: "+err.Error(), 500)
		return
	}
	if err := c.state.Established(); err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	slog.Info("deepgram: соединение установлено", "track_id", c.trackID)

	sendCtx, stopSender := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sendLoop(sendCtx, conn)
	}()

	c.receiveLoop(ctx, conn)

	stopSender()
	wg.Wait()
	conn.Close(websocket.StatusNormalClosure, "")
	if c.state.Status() == provider.StatusConnected {
		c.state.Close()
	}
}

// sendLoop передает аудио и KeepAlive; ошибка отправки — транспортная
func (c *DeepgramClient) sendLoop(ctx context.Context, conn *websocket.Conn) {
	keepalive := time.NewTicker(deepgramKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			// Просим Deepgram финализировать незавершённое высказывание
			_ = conn.Write(context.Background(), websocket.MessageText,
				[]byte(`{"type":"Finalize"}`))
			return
		case data := <-c.audioCh:
			if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
				slog.Warn("deepgram: отправка аудио не удалась",
					"track_id", c.trackID, "error", err)
				c.state.Fail(err.Error())
				return
			}
		case <-keepalive.C:
			if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
				slog.Warn("deepgram: keepalive не отправлен",
					"track_id", c.trackID, "error", err)
				c.state.Fail(err.Error())
				return
			}
		}
	}
}

// receiveLoop разбирает входящие сообщения и публикует события.
// Завершается на закрытии транспорта, фатальной ошибке или отмене.
func (c *DeepgramClient) receiveLoop(ctx context.Context, conn *websocket.Conn) {
	beginTime := event.Timestamp()
	utteranceIndex := 0

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("deepgram: соединение закрыто", "track_id", c.trackID, "error", err)
				c.state.Fail(err.Error())
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg dgMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("deepgram: неразборчивое сообщение",
				"track_id", c.trackID, "error", err)
			continue
		}

		switch msg.Type {
		case "Results":
			utteranceIndex = c.handleResults(&msg, beginTime, utteranceIndex)
		case "UtteranceEnd", "SpeechStarted", "Metadata":
			slog.Debug("deepgram: служебное сообщение", "type", msg.Type)
		case "Error":
			slog.Error("deepgram: ошибка провайдера",
				"track_id", c.trackID, "description", msg.Description)
			c.publishError("deepgram: "+msg.Description, 400)
			c.state.Fail(msg.Description)
			return
		}
	}
}

func (c *DeepgramClient) handleResults(msg *dgMessage, beginTime uint64, index int) int {
	if len(msg.Channel.Alternatives) == 0 {
		return index
	}
	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return index
	}

	startTime := beginTime + uint64(msg.Start*1000)
	endTime := startTime + uint64(msg.Duration*1000)
	isFinal := msg.IsFinal || msg.SpeechFinal

	if isFinal {
		c.bus.Publish(event.AsrFinal{
			TrackID:   c.trackID,
			Index:     index,
			Text:      alt.Transcript,
			Timestamp: event.Timestamp(),
			StartTime: startTime,
			EndTime:   endTime,
		})
		index++
	} else {
		c.bus.Publish(event.AsrDelta{
			TrackID:   c.trackID,
			Index:     index,
			Text:      alt.Transcript,
			Timestamp: event.Timestamp(),
			StartTime: startTime,
			EndTime:   endTime,
		})
	}

	metricKey := "ttfb.asr.deepgram"
	if isFinal {
		metricKey = "completed.asr.deepgram"
	}
	c.bus.Publish(event.Metrics{
		Key:      metricKey,
		Duration: time.Duration(event.Timestamp()-beginTime) * time.Millisecond,
		Data: map[string]any{
			"confidence":  alt.Confidence,
			"words_count": len(alt.Words),
		},
		Timestamp: event.Timestamp(),
	})
	return index
}

func (c *DeepgramClient) publishError(message string, code int) {
	c.bus.Publish(event.Error{
		TrackID:   c.trackID,
		Sender:    "deepgram_asr",
		Message:   message,
		Code:      code,
		Timestamp: event.Timestamp(),
	})
}

func (c *DeepgramClient) model() string {
	if c.option.ModelType != "" {
		return c.option.ModelType
	}
	return deepgramDefaultModel
}

func (c *DeepgramClient) language() string {
	if c.option.Language != "" {
		return c.option.Language
	}
	return deepgramDefaultLanguage
}

func (c *DeepgramClient) buildURL() string {
	sampleRate := c.option.SampleRate
	if sampleRate == 0 {
		sampleRate = deepgramDefaultSampleRate
	}

	q := url.Values{}
	q.Set("model", c.model())
	q.Set("language", c.language())
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.FormatUint(uint64(sampleRate), 10))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("endpointing", "1000")
	q.Set("vad_events", "true")
	return c.option.Endpoint + "?" + q.Encode()
}
