package engine

import (
	"github.com/arzzra/media_engine/pkg/bridge"
	"github.com/arzzra/media_engine/pkg/media"
	"github.com/arzzra/media_engine/pkg/synthesis"
	"github.com/arzzra/media_engine/pkg/transcription"
)

// CallOption описывает пайплайн обработки аудио одного звонка.
// nil для под-опции означает "компонент не собирать".
type CallOption struct {
	// Denoise включает шумоподавление
	Denoise bool `json:"denoise,omitempty"`
	// VAD детектор речевой активности
	VAD *media.VADOption `json:"vad,omitempty"`
	// ASR потоковое распознавание речи
	ASR *transcription.Option `json:"asr,omitempty"`
	// EOU детектор конца высказывания
	EOU *media.EouOption `json:"eou,omitempty"`
	// TTS синтез речи
	TTS *synthesis.Option `json:"tts,omitempty"`
	// Bridge внешний AI медиа сервер
	Bridge *bridge.Config `json:"bridge,omitempty"`
}

// BridgeOwnsAI возвращает true когда bridge включён и владеет AI
// обработкой: внутренние VAD/ASR/EOU в этом случае не собираются.
// Решение принимается один раз при сборке пайплайна.
func (o *CallOption) BridgeOwnsAI() bool {
	return o.Bridge != nil && o.Bridge.Enabled && o.Bridge.UseForAI
}
