/*
Package audit реализует аудит-пайплайн automation-service: ограниченная очередь
в памяти + единственный фоновый воркер + подключаемый sink (stdout/Loki/Postgres).

Ключевые решения:
  - Non-blocking Logging: продьюсеры никогда не ждут ни места в очереди, ни
    записи в хранилище. Задержки sink-а не влияют на Response Time запроса.
  - Load Shedding: при переполнении очереди запись выбрасывается (считаем,
    логируем), а не тормозит Hot Path. Контракт — at-most-once, best-effort.
  - Strict FIFO: один воркер, одна запись за итерацию, без батчинга и
    переупорядочивания.
  - Drain Pattern: остановка через закрытие канала + sync.WaitGroup. Воркер
    гарантированно дочитывает все буферизованные записи до выхода (Final Flush).
*/
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultBufferSize — емкость очереди по умолчанию.
const DefaultBufferSize = 1000

type Pipeline struct {
	ch     chan Record
	sink   Sink
	logger *zap.Logger
	wg     sync.WaitGroup

	// Атомарные флаги: 0/1. Защита от Enqueue после Stop и от двойного Start.
	isClosed int32
	started  int32

	dropped atomic.Int64
}

func NewPipeline(sink Sink, bufferSize int, logger *zap.Logger) *Pipeline {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Pipeline{
		ch:     make(chan Record, bufferSize),
		sink:   sink,
		logger: logger.With(zap.String("mod", "audit")),
	}
}

// Start запускает единственный фоновый воркер.
// Повторный вызов — no-op с предупреждением: два воркера сломали бы FIFO.
func (p *Pipeline) Start() {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		p.logger.Warn("audit worker already running, ignoring duplicate start")
		return
	}
	p.wg.Add(1)
	go p.worker()
}

// Enqueue кладет запись в очередь не блокируясь.
// true — запись принята (не факт, что записана). false — очередь полна или
// пайплайн останавливается; запись потеряна, это принятый режим отказа.
func (p *Pipeline) Enqueue(rec Record) (accepted bool) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if atomic.LoadInt32(&p.isClosed) == 1 {
		p.logger.Warn("audit record dropped: pipeline is stopping", zap.String("trace_id", rec.TraceID))
		return false
	}

	// Гонка со Stop: проверку флага прошли, а канал уже закрыт — send паникует.
	// Гасим панику и считаем запись отброшенной: Enqueue не паникует никогда.
	defer func() {
		if recover() != nil {
			p.dropped.Add(1)
			accepted = false
		}
	}()

	select {
	case p.ch <- rec:
		return true
	default:
		// Backpressure: очередь полна — сбрасываем нагрузку, не вызывающего
		n := p.dropped.Add(1)
		p.logger.Error("audit_buffer_overflow",
			zap.String("trace_id", rec.TraceID),
			zap.String("user_id", rec.UserID),
			zap.Int64("dropped_total", n),
		)
		return false
	}
}

// Stop «запирает» вход, дожидается полного дренажа очереди и закрывает sink.
// Запись, которую sink обрабатывает в момент остановки, завершается штатно —
// жесткого kill-пути нет.
func (p *Pipeline) Stop() {
	if !atomic.CompareAndSwapInt32(&p.isClosed, 0, 1) {
		return
	}

	// Пауза дает конкурентным Enqueue, прошедшим проверку флага, проскочить
	// до закрытия канала; опоздавших страхует recover в Enqueue
	time.Sleep(10 * time.Millisecond)

	p.logger.Info("stopping audit pipeline: closing queue and flushing buffer...")
	close(p.ch)

	if atomic.LoadInt32(&p.started) == 1 {
		p.wg.Wait() // воркер вычитает остатки и выйдет
	} else {
		// Воркер не стартовал — дренируем очередь сами, иначе записи пропадут
		for rec := range p.ch {
			p.write(rec)
		}
	}

	if err := p.sink.Close(); err != nil {
		p.logger.Warn("audit sink close failed", zap.Error(err))
	}
	p.logger.Info("audit pipeline stopped gracefully")
}

// Dropped возвращает количество потерянных записей (для метрик).
func (p *Pipeline) Dropped() int64 { return p.dropped.Load() }

// QueueLen возвращает текущую заполненность очереди (для метрик).
func (p *Pipeline) QueueLen() int { return len(p.ch) }

func (p *Pipeline) worker() {
	defer p.wg.Done()

	// Закрытие канала в Stop() — самодостаточный сигнал завершения:
	// range сначала вычитает всё буферизованное и только потом выйдет.
	for rec := range p.ch {
		p.write(rec)
	}
	p.logger.Info("audit worker finished")
}

func (p *Pipeline) write(rec Record) {
	// Background: контекст запроса-продьюсера давно завершен
	if err := p.sink.Write(context.Background(), rec); err != nil {
		// Одна плохая запись не убивает воркер
		p.logger.Error("audit sink write failed",
			zap.String("trace_id", rec.TraceID),
			zap.Error(err),
		)
	}
}
