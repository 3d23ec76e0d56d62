// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"sync/atomic"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/lfq"
)

// racePairState holds the two atomics that mediate a RacePair: the
// first error seen from either child, and whether either child has
// canceled. deliver is the outer Async's result callback; cancelParent
// cancels the fiber that evaluated the RacePair node.
type racePairState struct {
	deliver       func(value any, err error)
	cancelParent  func()
	firstError    atomic.Pointer[error]
	firstCanceled atomixBool
}

// buildRacePairAsync reifies a RacePair node as an Async node:
// registration spawns two child fibers sharing the calling fiber's
// executor, with mask spaces derived from the calling fiber's current
// mask level, and returns a cancel effect that cancels both in sequence.
//
// Each child's completion hands off to a dedicated coordinator goroutine
// through a code.hybscloud.com/lfq.SPSC queue of capacity 2 (the queue's
// minimum) that only ever carries one outcome — one queue per
// child, genuinely single-producer (that child's own terminal callback,
// fired at most once) / single-consumer (the coordinator). The
// coordinator itself never blocks a fiber worker; it is the one
// dedicated thread draining both queues with adaptive backoff.
func (f *Fiber) buildRacePairAsync(left, right *Node) *Node {
	return Async(func(deliver func(value any, err error)) *Node {
		st := &racePairState{deliver: deliver, cancelParent: f.cancel}

		var qa, qb lfq.SPSC[Outcome]
		qa.Init(2)
		qb.Init(2)

		// f.masks, not f.initMask: by the time this registrar runs, any
		// enclosing Uncancelable's poll has already unwound TagUnmask and
		// left f.masks at the level poll forwards, so a RacePair reached
		// through poll(RacePair(...)) partitions its children from that
		// forwarded level rather than from the mask level RacePair was
		// originally constructed under.
		childInit := f.masks + childMaskStride
		a := NewFiber(f.timer, func(o Outcome) { _ = qa.Enqueue(&o) }, childInit)
		b := NewFiber(f.timer, func(o Outcome) { _ = qb.Enqueue(&o) }, childInit)

		ec := f.st.currentCtx
		a.Run(left, ec)
		b.Run(right, ec)

		go raceCoordinate(st, &qa, &qb, a, b)

		cancelBoth := Delay(func() (any, error) {
			Await0(a.Cancel())
			Await0(b.Cancel())
			return struct{}{}, nil
		})
		return Pure(cancelBoth)
	})
}

// raceCoordinate drains both children's completion queues and applies
// each outcome to the shared race state exactly once.
func raceCoordinate(st *racePairState, qa, qb *lfq.SPSC[Outcome], a, b *Fiber) {
	var bo iox.Backoff
	doneA, doneB := false, false
	for !doneA || !doneB {
		if !doneA {
			if o, err := qa.Dequeue(); err == nil {
				doneA = true
				st.onChild(o, true, a, b)
			}
		}
		if !doneB {
			if o, err := qb.Dequeue(); err == nil {
				doneB = true
				st.onChild(o, false, a, b)
			}
		}
		if !doneA || !doneB {
			bo.Wait()
		}
	}
}

// onChild applies one child's terminal outcome to the shared race
// state: the first completion wins outright, an error outranks a later
// cancellation, and only once both children are canceled does the race
// itself cancel its parent.
func (st *racePairState) onChild(o Outcome, isLeft bool, left, right *Fiber) {
	switch o.Kind {
	case OutcomeCompleted:
		if isLeft {
			st.deliver(kont.Left[racedLeft, racedRight](racedLeft{Value: o.Value, Loser: right}), nil)
		} else {
			st.deliver(kont.Right[racedLeft, racedRight](racedRight{Loser: left, Value: o.Value}), nil)
		}

	case OutcomeErrored:
		err := o.Err
		if st.firstError.CompareAndSwap(nil, &err) {
			if st.firstCanceled.Load() {
				st.deliver(nil, err)
			}
			return
		}
		st.deliver(nil, err)

	case OutcomeCanceled:
		if st.firstCanceled.CompareAndSwap(false, true) {
			if fe := st.firstError.Load(); fe != nil {
				st.deliver(nil, *fe)
			}
			return
		}
		// Both children canceled: the race itself is canceled.
		st.cancelParent()
	}
}

// Await0 runs an effect-unit node to completion synchronously, used by
// RacePair's combined cancel effect to sequence two child cancellations.
// Both children's Cancel() nodes are plain Delay thunks (see Fiber.Cancel),
// so running them inline never suspends.
func Await0(unit *Node) {
	if unit.Tag != TagDelay {
		panic("fiber: Await0 given a non-Delay effect")
	}
	if _, err := unit.Thunk(); err != nil {
		panic(err)
	}
}
