package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/phon/vm"
)

// request is a unit of work to be executed on the runtime goroutine.
type request struct {
	fn   func(*vm.Runtime) any
	done chan result
}

type result struct {
	value any
	err   error
}

// Worker serializes all runtime access through a single goroutine.
// The interpreter is single-threaded; LSP handlers run concurrently and
// must go through the worker.
type Worker struct {
	rt       *vm.Runtime
	requests chan request
	quit     chan struct{}
	stop     sync.Once
}

var errStopped = errors.New("server: worker stopped")

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(rt *vm.Runtime) *Worker {
	w := &Worker{
		rt:       rt,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn on the runtime, turning panics into errors.
func (w *Worker) execute(fn func(*vm.Runtime) any) (res result) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*vm.Error); ok {
				res.err = e
				return
			}
			res.err = fmt.Errorf("%v", r)
		}
	}()
	res.value = fn(w.rt)
	return res
}

// Do submits fn for execution on the runtime goroutine and blocks until
// it completes.
func (w *Worker) Do(fn func(*vm.Runtime) any) (any, error) {
	select {
	case <-w.quit:
		return nil, errStopped
	default:
	}
	req := request{fn: fn, done: make(chan result, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errStopped
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.quit:
		return nil, errStopped
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stop.Do(func() { close(w.quit) })
}
