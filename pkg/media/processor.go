package media

import (
	"sync"
)

// Processor покадровая трансформация аудио, привязанная к одному треку.
//
// ProcessFrame вызывается синхронно для каждого входящего фрейма в порядке
// цепочки. Процессор может мутировать фрейм на месте, читать его без
// мутации или вернуть ошибку — она прерывает оставшуюся часть цепочки
// только для этого фрейма, трек продолжает работу.
//
// Процессор не должен блокироваться на I/O: любой сетевой вызов
// выносится в независимую фоновую задачу, результат которой приходит
// асинхронно через шину событий.
type Processor interface {
	// Name возвращает имя процессора для логов и метрик
	Name() string
	// ProcessFrame обрабатывает один фрейм
	ProcessFrame(frame *AudioFrame) error
}

// ProcessorChain упорядоченная цепочка процессоров одного трека.
//
// Инвариант: процессоры выполняются в порядке вставки; каждый фрейм
// проходит всю цепочку, если только процессор не вернул ошибку.
// Цепочка переживает трек и разбирается вместе с ним.
//
// ProcessorChain потокобезопасна.
type ProcessorChain struct {
	mu         sync.RWMutex
	sampleRate uint32
	processors []Processor
}

// NewProcessorChain создает пустую цепочку для данной частоты дискретизации
func NewProcessorChain(sampleRate uint32) *ProcessorChain {
	return &ProcessorChain{sampleRate: sampleRate}
}

// SampleRate возвращает частоту дискретизации трека цепочки
func (c *ProcessorChain) SampleRate() uint32 {
	return c.sampleRate
}

// Append добавляет процессор в конец цепочки
func (c *ProcessorChain) Append(p Processor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processors = append(c.processors, p)
}

// SetProcessors заменяет цепочку целиком (используется при сборке пайплайна)
func (c *ProcessorChain) SetProcessors(processors []Processor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processors = processors
}

// Processors возвращает копию списка процессоров
func (c *ProcessorChain) Processors() []Processor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Processor, len(c.processors))
	copy(out, c.processors)
	return out
}

// Len возвращает число процессоров в цепочке
func (c *ProcessorChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.processors)
}

// ProcessFrame прогоняет фрейм через всю цепочку.
// Первая ошибка прерывает обработку фрейма и возвращается вызывающему;
// трек логирует её и продолжает принимать следующие фреймы.
func (c *ProcessorChain) ProcessFrame(frame *AudioFrame) error {
	c.mu.RLock()
	processors := c.processors
	c.mu.RUnlock()

	for _, p := range processors {
		if err := p.ProcessFrame(frame); err != nil {
			frameErrors.WithLabelValues(p.Name()).Inc()
			return err
		}
	}
	framesProcessed.Inc()
	return nil
}
