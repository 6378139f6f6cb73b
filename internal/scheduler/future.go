package scheduler

import (
	"context"
	"fmt"
	"sync"
)

// Future результат асинхронной операции
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// NewFuture создает незавершенный Future
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed возвращает уже завершенный Future со значением v
func Completed[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v, nil)
	return f
}

// Failed возвращает уже завершенный Future с ошибкой
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	var zero T
	f.Resolve(zero, err)
	return f
}

// Resolve завершает Future. Повторные вызовы игнорируются.
func (f *Future[T]) Resolve(v T, err error) {
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
	})
}

// Done закрывается при завершении
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await ждет завершения или отмены ctx
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get возвращает результат без ожидания; ok=false, пока Future не завершен
func (f *Future[T]) Get() (T, error, bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		var zero T
		return zero, nil, false
	}
}

// Then вызывает fn после завершения в отдельной горутине
func (f *Future[T]) Then(fn func(T, error)) {
	go func() {
		<-f.done
		fn(f.val, f.err)
	}()
}

// Async выполняет fn в новой горутине; паника превращается в ошибку Future
func Async[T any](fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		v, err := call(fn)
		f.Resolve(v, err)
	}()
	return f
}

// PanicError паника, перехваченная в задаче
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("паника в задаче: %v", e.Value)
}

func call[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, &PanicError{Value: r}
		}
	}()
	return fn()
}
