// Package provider определяет контракт клиента потокового провайдера —
// единый конечный автомат вокруг stateful сетевого соединения с речевым
// или AI бэкендом.
//
// Контракт реализуют все интеграции ASR/TTS/bridge:
//   - connect переводит Disconnected/Error -> Connecting и обязан
//     завершиться или упасть за настроенный таймаут
//   - успешный handshake переводит Connecting -> Connected
//   - любая транспортная ошибка переводит в Error
//   - фоновый цикл приёма всегда оставляет статус Disconnected/Error
//     при выходе
package provider

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// Status состояние соединения клиента потокового провайдера.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnState конечный автомат статуса соединения.
//
// Переходы монотонны в рамках одной попытки соединения: только Connect
// выводит из Disconnected/Error, только успешный handshake (Established)
// приводит в Connected, транспортная ошибка (Fail) — в Error.
// Недопустимый переход возвращает ошибку и не меняет состояние.
//
// ConnState потокобезопасен; блокировка не удерживается через точки
// приостановки.
type ConnState struct {
	mu      sync.Mutex
	machine *fsm.FSM
	reason  string
}

// NewConnState создает автомат в состоянии Disconnected
func NewConnState() *ConnState {
	return &ConnState{
		machine: fsm.NewFSM(
			"disconnected",
			fsm.Events{
				// Начало попытки соединения
				{Name: "connect", Src: []string{"disconnected", "error"}, Dst: "connecting"},
				// Успешный handshake
				{Name: "established", Src: []string{"connecting"}, Dst: "connected"},
				// Транспортная ошибка
				{Name: "fail", Src: []string{"connecting", "connected"}, Dst: "error"},
				// Штатное закрытие
				{Name: "close", Src: []string{"connecting", "connected", "error"}, Dst: "disconnected"},
			},
			fsm.Callbacks{},
		),
	}
}

// Connect начинает попытку соединения
func (c *ConnState) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reason = ""
	return c.machine.Event(context.Background(), "connect")
}

// Established фиксирует успешный handshake
func (c *ConnState) Established() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Event(context.Background(), "established")
}

// Fail фиксирует транспортную ошибку с причиной
func (c *ConnState) Fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.machine.Event(context.Background(), "fail"); err == nil {
		c.reason = reason
	}
}

// Close фиксирует штатное закрытие соединения
func (c *ConnState) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Переход из disconnected невозможен и не нужен
	_ = c.machine.Event(context.Background(), "close")
	c.reason = ""
}

// Status возвращает текущее состояние
func (c *ConnState) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.machine.Current() {
	case "connecting":
		return StatusConnecting
	case "connected":
		return StatusConnected
	case "error":
		return StatusError
	default:
		return StatusDisconnected
	}
}

// Reason возвращает причину последней ошибки (пусто если её нет)
func (c *ConnState) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// IsConnected сообщает что соединение установлено
func (c *ConnState) IsConnected() bool {
	return c.Status() == StatusConnected
}
