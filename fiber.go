// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"sync/atomic"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

// childMaskStride partitions the mask-ID space across derived fibers: a
// child's initMask is its parent's initMask + childMaskStride, so an
// Unmask(id) only ever matches the Uncancelable that produced id. At
// this stride a 32-bit int represents about 2^23 derived generations
// before collision, and a 64-bit int about 2^55.
const childMaskStride = 255

// fiberSerial is the process-wide monotonic counter supplying unique
// fiber names, grounded on sess/serial.go's nextSerial — same pattern
// (atomix.Uint32.Add), same process lifetime, generalized from naming
// sessions to naming fibers.
var fiberSerial atomix.Uint32

func nextFiberSerial() uint32 { return fiberSerial.Add(1) }

// Fiber is the unit of concurrent execution: a user-space thread running
// an effect-node program on an injected [Executor]. Construct a root
// fiber with [NewFiber]; children are created by [Start] and [RacePair].
type Fiber struct {
	id uint32

	timer    Timer
	onDone   func(Outcome)
	st       *stacks
	initMask int
	masks    int

	canceled    atomixBool
	cancelClaim atomixBool
	suspended   atomixBool
	started     atomixBool
	outcome     atomic.Pointer[Outcome]
	cb          callbackBox
}

// NewFiber constructs a root fiber bound to timer. onDone, if non-nil, is
// invoked exactly once with the terminal [Outcome] — the fiber's
// terminal callback. initMask seeds the fiber's mask counter; pass 0
// for a root fiber.
func NewFiber(timer Timer, onDone func(Outcome), initMask int) *Fiber {
	return &Fiber{
		id:       nextFiberSerial(),
		timer:    timer,
		onDone:   onDone,
		initMask: initMask,
		masks:    initMask,
	}
}

// ID returns the fiber's process-wide unique serial number.
func (f *Fiber) ID() uint32 { return f.id }

// Run seeds the fiber with program on executor and enters the
// interpreter. Call exactly once; a second call panics.
func (f *Fiber) Run(program *Node, executor Executor) {
	if !f.started.CompareAndSwap(false, true) {
		panic("fiber: Run called more than once")
	}
	f.st = acquireStacks(executor)
	f.st.pushCont(RunTerminusK)
	executor.Execute(func() {
		runLoop(f, program, 0)
	})
}

// unmasked reports whether the fiber is at its initial mask level —
// the only level at which cancellation is observed.
func (f *Fiber) unmasked() bool { return f.masks == f.initMask }

// outcomeSet reports whether the terminal outcome has already been
// published, without racing the publish itself.
func (f *Fiber) outcomeSet() bool { return f.outcome.Load() != nil }

// publish CAS-installs o as the fiber's terminal outcome. Returns
// whether this call won the race — at most one call ever does, which
// is what makes fiber completion at-most-once.
func (f *Fiber) publish(o Outcome) bool {
	return f.outcome.CompareAndSwap(nil, &o)
}

// loadOutcome returns the published outcome, or nil if not yet set.
func (f *Fiber) loadOutcome() *Outcome { return f.outcome.Load() }

// invalidate releases the fiber's owned stacks once it has terminated
// and every listener has been notified, enabling reclamation.
func (f *Fiber) invalidate() {
	if f.st != nil {
		f.st.release()
		f.st = nil
	}
}

// finishAndNotify publishes o if no outcome is set yet, notifies every
// registered joiner, and invokes the completion callback. Safe to call
// from whichever party — the fiber itself at RunTerminusK, or a
// canceller that stole finalizer execution — wins the CAS in publish.
func (f *Fiber) finishAndNotify(o Outcome) {
	if !f.publish(o) {
		return
	}
	f.cb.notifyAll(o)
	if f.onDone != nil {
		f.onDone(o)
	}
}

// Cancel returns an effect-unit node that cancels the fiber. Idempotent:
// the side-effecting cancellation logic only runs once even if the
// returned node is evaluated more than once or concurrently.
func (f *Fiber) Cancel() *Node {
	return Delay(func() (any, error) {
		f.cancel()
		return struct{}{}, nil
	})
}

// cancel performs the cancellation protocol synchronously. It is safe
// to call from any goroutine, including from inside another fiber's
// Delay thunk (which is how [Fiber.Cancel] invokes it).
func (f *Fiber) cancel() {
	if !f.cancelClaim.CompareAndSwap(false, true) {
		return
	}
	f.canceled.Store(true)

	if !f.suspended.CompareAndSwap(true, false) {
		// Target is running (or already finished); it will hit its own
		// cancellation gate, or has already published an outcome. Leave
		// finalization to it instead of stealing it; this call returns
		// without waiting for that finalization to finish.
		return
	}
	// We stole the suspension: drive finalization on this goroutine.
	if !f.publish(CanceledOutcome) {
		return
	}
	f.cb.notifyAll(CanceledOutcome)
	if f.onDone != nil {
		f.onDone(CanceledOutcome)
	}
	if f.st == nil || !f.st.hasFinalizers() {
		f.invalidate()
		return
	}
	f.st.resetConts()
	f.st.pushCont(CancellationLoopK)
	f.masks++
	fz := f.st.popFinalizer()
	runLoop(f, fz(CanceledOutcome), 0)
}

// Join returns an effect node that completes with the fiber's terminal
// [Outcome]. Implemented as an Async registration over the callback
// registry: if the outcome is already published the registrar delivers
// it synchronously (via a Pure'd cancel-less registration), otherwise
// it installs a listener.
func (f *Fiber) Join() *Node {
	return Async(func(deliver func(value any, err error)) *Node {
		f.cb.register(func(o Outcome) { deliver(o, nil) }, f)
		return Pure(nil)
	})
}

// Await blocks the calling goroutine until f terminates, spin-waiting
// with adaptive backoff — grounded on sess/session.go's dispatchWait,
// which does the same "poll an atomic cell, back off on no progress"
// wait for a non-blocking dispatch to settle.
func Await(f *Fiber) Outcome {
	var bo iox.Backoff
	for {
		if o := f.loadOutcome(); o != nil {
			return *o
		}
		bo.Wait()
	}
}
