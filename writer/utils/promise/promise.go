package promise

import "sync/atomic"

// Promise is a one-shot future. Done may be called from any goroutine, the
// first call wins.
type Promise[T any] struct {
	lock    chan struct{}
	res     T
	err     error
	pending int32
}

func New[T any]() *Promise[T] {
	return &Promise[T]{lock: make(chan struct{})}
}

// Fulfilled returns an already resolved promise.
func Fulfilled[T any](err error, res T) *Promise[T] {
	p := New[T]()
	p.Done(res, err)
	return p
}

// Get blocks until the promise resolves.
func (p *Promise[T]) Get() (T, error) {
	<-p.lock
	return p.res, p.err
}

func (p *Promise[T]) Done(res T, err error) {
	if !atomic.CompareAndSwapInt32(&p.pending, 0, 1) {
		return
	}
	p.res = res
	p.err = err
	close(p.lock)
}
