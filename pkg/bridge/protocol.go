package bridge

import "encoding/json"

// Исходящие команды помечаются полем "command", входящие ответы
// сервера — полем "type". Аудио к серверу идёт бинарными кадрами
// WebSocket без JSON обёртки.

// configureMessage начальная конфигурация сессии на сервере
type configureMessage struct {
	Command      string         `json:"command"` // "configure"
	RoomID       string         `json:"room_id"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	SttConfig    map[string]any `json:"stt_config,omitempty"`
	LlmConfig    map[string]any `json:"llm_config,omitempty"`
	TtsConfig    map[string]any `json:"tts_config,omitempty"`
}

// pingMessage периодическая проверка живости соединения
type pingMessage struct {
	Command   string `json:"command"` // "ping"
	Timestamp uint64 `json:"timestamp"`
}

// disconnectMessage вежливое завершение сессии
type disconnectMessage struct {
	Command string `json:"command"` // "disconnect"
	Reason  string `json:"reason"`
}

// serverResponse входящее сообщение сервера. Поля заполняются
// в зависимости от Type; неиспользуемые остаются нулевыми.
type serverResponse struct {
	Type string `json:"type"`

	// audio: синтезированный ответ, AudioData — base64 в JSON
	AudioData  []byte `json:"audio_data,omitempty"`
	SampleRate uint32 `json:"sample_rate,omitempty"`
	Channels   uint32 `json:"channels,omitempty"`
	FrameID    string `json:"frame_id,omitempty"`

	// transcription, llm_response, tts_started, tts_completed
	Text       string `json:"text,omitempty"`
	IsFinal    bool   `json:"is_final,omitempty"`
	IsComplete bool   `json:"is_complete,omitempty"`
	Language   string `json:"language,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`

	// metrics
	Key      string `json:"key,omitempty"`
	Duration uint64 `json:"duration,omitempty"`

	// connected, configured
	Server  string `json:"server,omitempty"`
	Version string `json:"version,omitempty"`
	CallID  string `json:"call_id,omitempty"`
	Status  string `json:"status,omitempty"`

	Timestamp uint64 `json:"timestamp,omitempty"`
}

func parseServerResponse(data []byte) (*serverResponse, error) {
	var resp serverResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
