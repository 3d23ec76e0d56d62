// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "code.hybscloud.com/iox"

// Executor is the injected capability a fiber runs on. Execute must
// accept a submission from any goroutine and run it eventually, with
// release-before-submit / acquire-after-receive semantics: writes made
// before Execute is called must be visible to action when it runs.
//
// A rejection (the pool has shut down) must be swallowed silently by the
// implementation — the caller's fiber simply stops making progress. The
// core never observes or reacts to rejection itself.
type Executor interface {
	Execute(action func())
}

// nonBlockingSubmitter is implemented by Executors that can report
// backpressure instead of blocking the submitting goroutine. asyncContinue
// prefers this path when available, retrying on iox.ErrWouldBlock with
// adaptive backoff rather than stalling the delivering goroutine outright.
type nonBlockingSubmitter interface {
	TrySubmit(action func()) error
}

// GoExecutor is a goroutine-pool Executor backed by a bounded Go
// channel task queue (capacity 1024). Channels are the idiomatic Go primitive for this:
// submission is inherently multi-producer (any fiber on any worker may
// submit), which rules out code.hybscloud.com/lfq's SPSC queue — see
// DESIGN.md for why lfq is used elsewhere in this module but not here.
type GoExecutor struct {
	tasks  chan func()
	done   chan struct{}
	closed atomixBool
}

// NewGoExecutor starts n worker goroutines pulling from a shared task
// channel.
func NewGoExecutor(n int) *GoExecutor {
	if n < 1 {
		n = 1
	}
	ex := &GoExecutor{
		tasks: make(chan func(), 1024),
		done:  make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		go ex.worker()
	}
	return ex
}

func (ex *GoExecutor) worker() {
	for {
		select {
		case action, ok := <-ex.tasks:
			if !ok {
				return
			}
			action()
		case <-ex.done:
			for {
				select {
				case action := <-ex.tasks:
					action()
				default:
					return
				}
			}
		}
	}
}

// Execute submits action to the worker pool. Silently dropped if the
// pool has been shut down, per the Executor contract.
func (ex *GoExecutor) Execute(action func()) {
	if ex.closed.Load() {
		return
	}
	select {
	case ex.tasks <- action:
	case <-ex.done:
	}
}

// TrySubmit submits action without waiting for queue capacity, returning
// iox.ErrWouldBlock if the task channel is full rather than blocking the
// caller — the non-blocking counterpart to Execute, for callers that
// need to observe backpressure instead of stalling on it, matching
// sess's non-blocking dispatch convention. A closed pool swallows the
// submission silently, same as Execute.
func (ex *GoExecutor) TrySubmit(action func()) error {
	if ex.closed.Load() {
		return nil
	}
	select {
	case ex.tasks <- action:
		return nil
	default:
		return iox.ErrWouldBlock
	}
}

// Shutdown stops accepting new work. In-flight and already-queued tasks
// still run; submissions racing with Shutdown are swallowed per the
// Executor contract rather than panicking on a closed channel.
func (ex *GoExecutor) Shutdown() {
	if ex.closed.CompareAndSwap(false, true) {
		close(ex.done)
	}
}

// InlineExecutor runs every submitted action synchronously on the
// submitting goroutine. Useful for tests and for embedding a single
// fiber tree without its own worker pool; note this collapses the
// cross-worker migration EvalOn/Start/RacePair otherwise rely on —
// everything just recurses on the calling goroutine instead.
type InlineExecutor struct{}

// Execute runs action immediately.
func (InlineExecutor) Execute(action func()) { action() }
