// Package event определяет типизированные события медиа сессии и шину
// их доставки (Bus).
//
// События информационные и допускают потерю: пропущенное событие не может
// повредить состояние пайплайна, только наблюдаемость. Подписчики получают
// события в порядке публикации; события разных треков между собой не
// упорядочены.
package event

import (
	"time"
)

// SessionEvent общий интерфейс всех событий сессии.
// Реализации перечислены в этом пакете; тип закрыт маркерным методом.
type SessionEvent interface {
	sessionEvent()
}

// Timestamp возвращает текущее время в миллисекундах unix epoch.
// Используется всеми компонентами пайплайна для временных меток событий
// и аудио фреймов.
func Timestamp() uint64 {
	return uint64(time.Now().UnixMilli())
}

// AsrDelta промежуточный (неокончательный) результат распознавания речи.
type AsrDelta struct {
	TrackID   string
	Index     int // Порядковый номер высказывания в рамках трека
	Text      string
	Timestamp uint64
	StartTime uint64 // Начало фрагмента речи, мс
	EndTime   uint64 // Конец фрагмента речи, мс
}

// AsrFinal окончательный результат распознавания одного высказывания.
type AsrFinal struct {
	TrackID   string
	Index     int
	Text      string
	Timestamp uint64
	StartTime uint64
	EndTime   uint64
}

// Error ошибка компонента пайплайна. Не фатальна для сессии:
// публикуется для наблюдаемости, звонок продолжается best-effort.
type Error struct {
	TrackID   string
	Sender    string // Компонент-источник, например "deepgram_asr"
	Message   string
	Code      int // Опциональный код провайдера, 0 если нет
	Timestamp uint64
}

// Metrics метрика производительности (TTFB распознавания и т.п.).
type Metrics struct {
	Key       string
	Duration  time.Duration
	Data      map[string]any
	Timestamp uint64
}

// TrackEnd завершение трека.
type TrackEnd struct {
	TrackID   string
	Duration  uint64 // Длительность жизни трека, мс
	SSRC      uint32
	Timestamp uint64
}

// Answer сигнал "звонок отвечен". Провайдеры в режиме start_when_answer
// не передают аудио до получения этого события.
type Answer struct {
	TrackID   string
	Timestamp uint64
}

// Speaking начало речи по данным VAD.
type Speaking struct {
	TrackID   string
	StartTime uint64
	Timestamp uint64
}

// Silence окончание речи (тишина) по данным VAD.
type Silence struct {
	TrackID   string
	StartTime uint64 // Начало периода тишины, мс
	Duration  uint64 // Длительность предшествующей речи, мс
	Timestamp uint64
}

// EndOfUtterance граница высказывания по данным EOU детектора.
type EndOfUtterance struct {
	TrackID   string
	Timestamp uint64
}

// BridgeAudio синтезированное аудио от AI-bridge сервера.
// Единственный канал возврата bridge-аудио в исходящий путь:
// bridge.Pump подписывается на шину и передаёт сэмплы в Track.SendPacket.
type BridgeAudio struct {
	TrackID    string
	Samples    []int16
	SampleRate uint32
	Timestamp  uint64
}

func (AsrDelta) sessionEvent()       {}
func (AsrFinal) sessionEvent()       {}
func (Error) sessionEvent()          {}
func (Metrics) sessionEvent()        {}
func (TrackEnd) sessionEvent()       {}
func (Answer) sessionEvent()         {}
func (Speaking) sessionEvent()       {}
func (Silence) sessionEvent()        {}
func (EndOfUtterance) sessionEvent() {}
func (BridgeAudio) sessionEvent()    {}
