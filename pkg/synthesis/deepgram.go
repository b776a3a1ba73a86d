package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/arzzra/media_engine/pkg/media"
)

// Размер чанка чтения HTTP стрима: 4096 байт = 2048 сэмплов linear16,
// 128мс при 16кГц — достаточно мелко для низкой задержки первого фрейма
const deepgramTTSChunkSize = 4096

const deepgramTTSTimeout = 60 * time.Second

// DeepgramTTS клиент синтеза речи Deepgram Speak API.
// Каждый вызов Synthesize — отдельный HTTP POST; ответ читается
// потоково, чанки декодируются в PCM и отдаются в канал.
type DeepgramTTS struct {
	option Option
	client *http.Client
}

// NewDeepgramTTS создает TTS клиент Deepgram
func NewDeepgramTTS(option Option) (*DeepgramTTS, error) {
	option.CheckDefault()
	if option.SecretKey == "" {
		return nil, media.NewError(media.ErrorCodeNotConnected, "",
			"deepgram tts: не задан API ключ (DEEPGRAM_API_KEY)")
	}
	return &DeepgramTTS{
		option: option,
		client: &http.Client{Timeout: deepgramTTSTimeout},
	}, nil
}

// Synthesize запускает синтез и возвращает канал PCM чанков.
// Ошибка установки запроса возвращается сразу; ошибка посреди стрима
// логируется, канал закрывается с уже отданным аудио.
func (d *DeepgramTTS) Synthesize(ctx context.Context, text string) (<-chan []int16, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.buildURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+d.option.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, media.WrapError(media.ErrorCodeNotConnected, "",
			"deepgram tts: запрос не выполнен", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, media.NewError(media.ErrorCodeNotConnected, "",
			fmt.Sprintf("deepgram tts: статус %d: %s", resp.StatusCode, msg))
	}

	out := make(chan []int16, 8)
	go d.streamBody(ctx, resp.Body, out)
	return out, nil
}

// Close освобождает ресурсы. HTTP клиент не держит постоянных
// соединений сверх пула транспорта, закрывать нечего.
func (d *DeepgramTTS) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

func (d *DeepgramTTS) streamBody(ctx context.Context, body io.ReadCloser, out chan<- []int16) {
	defer close(out)
	defer body.Close()

	buf := make([]byte, deepgramTTSChunkSize)
	// Нечётный прочитанный байт переносится в следующий чанк
	var carry []byte

	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			even := len(chunk) &^ 1
			samples := media.BytesToSamples(chunk[:even])
			carry = append(carry[:0], chunk[even:]...)

			select {
			case out <- samples:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				slog.Warn("deepgram tts: стрим прерван", "error", err)
			}
			return
		}
	}
}

func (d *DeepgramTTS) buildURL() string {
	q := url.Values{}
	q.Set("model", d.option.ModelType)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.FormatUint(uint64(d.option.SampleRate), 10))
	return d.option.Endpoint + "?" + q.Encode()
}
