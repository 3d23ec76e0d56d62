// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// AsyncState is the four-state cell coordinating registration (the
// fiber's own thread) with delivery (any thread). Transitions move
// forward (Initial → Registered* → Complete, or Initial → Complete)
// until the result is consumed, after which the cell is reset to Initial.
type AsyncState uint32

const (
	asyncInitial AsyncState = iota
	asyncRegisteredNoFinalizer
	asyncRegisteredWithFinalizer
	asyncComplete
)

type asyncResult struct {
	value any
	err   error
}

// asyncCell is the pair of atomics backing one Async node's suspension:
// done guards at-most-once delivery, state records registration progress.
// done is a raw atomix.Uint32 CAS flag rather than a kont.Affine guard —
// Affine bakes in one fixed resume closure, but done has two independent
// claimants (the callback, and the registrar's own failure path), which
// a single baked-in closure cannot serve.
type asyncCell struct {
	done   atomixBool
	state  atomix.Uint32
	result atomic.Pointer[asyncResult]
}

// deliver is the delivery side of the handshake: invoked by whatever
// external callback resolves the Async, from any goroutine.
func (c *asyncCell) deliver(f *Fiber, value any, err error) {
	if !c.done.CompareAndSwap(false, true) {
		return
	}
	c.result.Store(&asyncResult{value: value, err: err})
	old := AsyncState(c.state.Swap(uint32(asyncComplete)))

	switch old {
	case asyncInitial:
		// The registrar has not yet completed; it will observe Complete
		// on its own CAS and continue inline with the delivered result.
		return
	case asyncRegisteredNoFinalizer, asyncRegisteredWithFinalizer:
		var bo iox.Backoff
		for {
			if f.suspended.CompareAndSwap(true, false) {
				if f.loadOutcome() == nil {
					if old == asyncRegisteredWithFinalizer {
						f.st.popFinalizer()
					}
					c.state.Store(uint32(asyncInitial))
					f.asyncContinue(value, err)
				}
				return
			}
			if f.loadOutcome() != nil {
				// Canceled; another party owns finalization.
				return
			}
			bo.Wait()
		}
	}
}

// asyncContinue submits a resumption task to the fiber's current
// executor that feeds (value, err) back into the continuation stack.
// Callers reset the async cell's state before calling it. Always goes through the
// executor rather than resuming inline on the delivering goroutine.
//
// Prefers the executor's non-blocking submit path when it has one,
// retrying on iox.ErrWouldBlock with adaptive backoff: the delivering
// goroutine is usually a callback fired from outside the fiber runtime
// entirely (a timer, an I/O completion), and stalling it on a full task
// channel is worse than spinning with backoff while the pool drains.
func (f *Fiber) asyncContinue(value any, err error) {
	ec := f.st.currentCtx
	task := func() { resumeLoop(f, value, err, 0) }

	if ns, ok := ec.(nonBlockingSubmitter); ok {
		var bo iox.Backoff
		for {
			if submitErr := ns.TrySubmit(task); submitErr == nil {
				return
			}
			bo.Wait()
		}
	}
	ec.Execute(task)
}

// dispatchAsync implements the Async node's interpreter-side half: it
// allocates the cell, pushes it for AsyncK, and invokes the registrar.
func (f *Fiber) dispatchAsync(node *Node) *Node {
	cell := &asyncCell{}
	f.st.pushObj(cell)
	f.st.pushCont(AsyncK)
	return node.Registrar(func(value any, err error) {
		cell.deliver(f, value, err)
	})
}

// handleAsyncK runs when the effect returned by the registrar (producing
// an optional cancel effect) has itself completed. It implements the
// registrar-side half of the async handshake, returning the node to
// continue dispatching and whether the loop should stop (suspend or
// hand off).
func (f *Fiber) handleAsyncK(regValue any, regErr error) (*Node, bool) {
	cell := f.st.popObj().(*asyncCell)

	if regErr != nil {
		if cell.done.CompareAndSwap(false, true) {
			return asyncResultNode(nil, regErr), false
		}
		// The callback already fired; the registrar's own failure wins
		// over whatever value it delivered.
		cell.state.Store(uint32(asyncInitial))
		f.asyncContinue(nil, regErr)
		return nil, true
	}

	cancelEffect, _ := regValue.(*Node)
	hasCancel := cancelEffect != nil && f.unmasked()

	var target AsyncState
	if hasCancel {
		f.st.pushFinalizer(asyncCancelFinalizer(cancelEffect))
		target = asyncRegisteredWithFinalizer
	} else {
		target = asyncRegisteredNoFinalizer
	}

	if (!f.canceled.Load() || !f.unmasked()) && cell.state.CompareAndSwap(uint32(asyncInitial), uint32(target)) {
		f.suspended.Store(true)
		return nil, true
	}

	// Either the fiber is already canceled and unmasked, or the callback beat us to
	// Complete; either way this registration never suspends.
	res := cell.result.Load()
	if res != nil {
		// The callback already delivered a result; it wins, and the
		// cancel finalizer just pushed (if any) is no longer needed.
		if hasCancel {
			f.st.popFinalizer()
		}
		return asyncResultNode(res.value, res.err), false
	}

	// Canceled before any delivery: drive cancellation finalization now,
	// rather than returning with nothing scheduled to resume the fiber.
	// The cancel finalizer just pushed (if any) stays on the stack so
	// enterCancellationGate runs it — it is the only way to unregister
	// the still-pending operation.
	return f.enterCancellationGate()
}

// asyncCancelFinalizer builds the finalizer an Async with a cancel
// effect pushes on successful registration: it runs cancelEffect when
// the outcome is Canceled, and is a no-op otherwise.
func asyncCancelFinalizer(cancelEffect *Node) finalizer {
	return func(o Outcome) *Node {
		if o.IsCanceled() {
			return cancelEffect
		}
		return Pure(struct{}{})
	}
}

// asyncResultNode adapts a raw (value, err) pair back into a [Node] so
// the interpreter's ordinary dispatch loop can deliver it.
func asyncResultNode(value any, err error) *Node {
	if err != nil {
		return ErrorNode(err)
	}
	return Pure(value)
}
