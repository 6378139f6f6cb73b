package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/shopzones/internal/logging"
)

// ErrStopped возвращается при постановке задачи в остановленный планировщик
var ErrStopped = errors.New("планировщик остановлен")

// Scheduler два контекста выполнения: эксклюзивный (одна горутина, все изменения
// живого мира) и фоновый (пул воркеров для чтения и кодирования).
type Scheduler struct {
	exclusive  chan func()
	background chan func()
	shutdown   chan struct{}
	stopped    atomic.Bool
	stopOnce   sync.Once
	wg         sync.WaitGroup

	pending atomic.Int64
	logger  *logging.Logger
}

// New запускает планировщик с workers фоновыми воркерами
func New(workers int, logger *logging.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	s := &Scheduler{
		exclusive:  make(chan func(), 256),
		background: make(chan func(), workers*16),
		shutdown:   make(chan struct{}),
		logger:     logging.OrDefault(logger).With("scheduler"),
	}

	s.wg.Add(1)
	go s.loop(s.exclusive)
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.loop(s.background)
	}
	return s
}

// loop выполняет задачи из очереди до остановки
func (s *Scheduler) loop(queue chan func()) {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdown:
			return
		case task := <-queue:
			task()
			s.pending.Add(-1)
		}
	}
}

func (s *Scheduler) submit(queue chan func(), task func()) error {
	if s.stopped.Load() {
		return ErrStopped
	}
	s.pending.Add(1)
	select {
	case queue <- task:
		return nil
	case <-s.shutdown:
		s.pending.Add(-1)
		return ErrStopped
	}
}

// RunExclusive ставит fn в эксклюзивный контекст
func (s *Scheduler) RunExclusive(fn func()) error {
	return s.submit(s.exclusive, s.guard("exclusive", fn))
}

// RunBackground ставит fn в фоновый пул
func (s *Scheduler) RunBackground(fn func()) error {
	return s.submit(s.background, s.guard("background", fn))
}

// RunLaterExclusive ставит fn в эксклюзивный контекст через delay
func (s *Scheduler) RunLaterExclusive(delay time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(delay, func() {
		if err := s.RunExclusive(fn); err != nil {
			s.logger.Warn("Отложенная задача отброшена: %v", err)
		}
	})
}

// guard перехватывает панику задачи, чтобы она не остановила контекст
func (s *Scheduler) guard(ctxName string, fn func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Паника в %s задаче: %v", ctxName, r)
			}
		}()
		fn()
	}
}

// Pending возвращает число поставленных, но не завершенных задач
func (s *Scheduler) Pending() int64 {
	return s.pending.Load()
}

// Stop останавливает воркеры; задачи, не начатые до остановки, не выполняются
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.shutdown)
		s.wg.Wait()
		s.logger.Info("Планировщик остановлен")
	})
}

// Exclusive выполняет fn в эксклюзивном контексте и возвращает Future результата
func Exclusive[T any](s *Scheduler, fn func() (T, error)) *Future[T] {
	return run(s, s.exclusive, fn)
}

// Background выполняет fn в фоновом пуле и возвращает Future результата
func Background[T any](s *Scheduler, fn func() (T, error)) *Future[T] {
	return run(s, s.background, fn)
}

func run[T any](s *Scheduler, queue chan func(), fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	err := s.submit(queue, func() {
		v, err := call(fn)
		f.Resolve(v, err)
	})
	if err != nil {
		var zero T
		f.Resolve(zero, err)
		return f
	}

	// задача, выброшенная при остановке, не должна оставлять Future висящим
	go func() {
		select {
		case <-f.Done():
		case <-s.shutdown:
			var zero T
			f.Resolve(zero, ErrStopped)
		}
	}()
	return f
}
