// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "runtime"

// yieldFuel is the dispatch-count interval at which the loop takes a
// read-barrier fence (whenever its counter reaches a multiple of it). There is no preemption at this
// point — only a fence; actual yielding requires [Cede].
const yieldFuel = 512

// runLoop is the single entry point that dispatches a freshly-produced
// node: fresh entry from [Fiber.Run], a child's Start, or a submission
// that re-enters on a node rather than a pending result (EvalOn).
// The cancellation gate is checked exactly once here, at the entry —
// not on every continuation pop inside loopBody, since an in-flight
// Canceled marker observed while still masked must not retroactively
// cancel a program that finishes normally after unmasking.
func runLoop(f *Fiber, node *Node, iteration int) {
	if f.canceled.Load() && f.unmasked() {
		next, stop := f.enterCancellationGate()
		if stop {
			return
		}
		node = next
	}
	loopBody(f, node, nil, nil, false, iteration)
}

// resumeLoop re-enters with a pending result (value, err) rather than a
// node to dispatch: the counterpart to runLoop for async continuations
// and Cede resumptions.
func resumeLoop(f *Fiber, value any, err error, iteration int) {
	if f.canceled.Load() && f.unmasked() {
		next, stop := f.enterCancellationGate()
		if stop {
			return
		}
		loopBody(f, next, nil, nil, false, iteration)
		return
	}
	loopBody(f, nil, value, err, true, iteration)
}

// enterCancellationGate performs the cancellation-finalization protocol:
// publish Canceled, notify joiners, then either hand off to the first
// finalizer or invalidate the fiber outright. Returns the node to
// continue dispatching and whether the caller should stop instead.
func (f *Fiber) enterCancellationGate() (*Node, bool) {
	if !f.publish(CanceledOutcome) {
		return nil, true
	}
	f.cb.notifyAll(CanceledOutcome)
	if f.onDone != nil {
		f.onDone(CanceledOutcome)
	}
	if !f.st.hasFinalizers() {
		f.invalidate()
		return nil, true
	}
	f.st.resetConts()
	f.st.pushCont(CancellationLoopK)
	f.masks++
	fz := f.st.popFinalizer()
	return fz(CanceledOutcome), false
}

// loopBody is the merged dispatch/continuation-pop trampoline. It never
// recurses natively: every compound node pushes state onto the fiber's
// own stacks and loops, so the interpreter never grows the Go call stack
// per Map/FlatMap application — the native-stack-depth budget the
// original design guards against with explicit reification does not
// apply to this architecture.
func loopBody(f *Fiber, node *Node, value any, resErr error, hasResult bool, iteration int) {
	for {
		iteration++
		if iteration%yieldFuel == 0 {
			f.suspended.Load()
		}

		if hasResult {
			k, ok := f.st.popCont()
			if !ok {
				panic("fiber: continuation stack exhausted")
			}
			switch k {
			case RunTerminusK:
				var o Outcome
				switch {
				case resErr != nil:
					o = Errored(resErr)
				default:
					o = Completed(value)
				}
				f.finishAndNotify(o)
				f.invalidate()
				return

			case CancellationLoopK:
				fz := f.st.popFinalizer()
				if fz == nil {
					f.invalidate()
					return
				}
				f.st.pushCont(CancellationLoopK)
				node, hasResult = fz(CanceledOutcome), false
				continue

			case AsyncK:
				next, stop := f.handleAsyncK(value, resErr)
				if stop {
					return
				}
				node, hasResult = next, false
				continue

			case EvalOnK:
				f.st.popExecutor()
				if f.canceled.Load() && f.unmasked() {
					next, stop := f.enterCancellationGate()
					if stop {
						return
					}
					node, hasResult = next, false
					continue
				}
				ec := f.st.currentCtx
				v, e := value, resErr
				ec.Execute(func() { resumeLoop(f, v, e, 0) })
				return

			case MapK:
				fn := f.st.popObj().(func(any) any)
				if resErr != nil {
					continue
				}
				value, resErr = runMapFn(fn, value)
				continue

			case FlatMapK:
				fn := f.st.popObj().(func(any) *Node)
				if resErr != nil {
					continue
				}
				var n *Node
				n, resErr = runFlatMapFn(fn, value)
				if resErr != nil {
					value = nil
					continue
				}
				node, hasResult = n, false
				continue

			case HandleErrorWithK:
				fn := f.st.popObj().(func(error) *Node)
				if resErr == nil {
					continue
				}
				var n *Node
				n, resErr = runErrFn(fn, resErr)
				if resErr != nil {
					value = nil
					continue
				}
				node, hasResult = n, false
				continue

			case OnCaseK:
				fz := f.st.popFinalizer()
				var oc Outcome
				if resErr != nil {
					oc = Errored(resErr)
				} else {
					oc = Completed(value)
				}
				f.st.pushObj(value)
				f.st.pushObj(resErr)
				f.st.pushCont(OnCaseForwarderK)
				f.masks++
				f.st.pushCont(UncancelableK)
				node, hasResult = fz(oc), false
				continue

			case OnCaseForwarderK:
				savedErr, _ := f.st.popObj().(error)
				savedValue := f.st.popObj()
				value, resErr = savedValue, savedErr
				continue

			case UncancelableK:
				f.masks--
				continue

			case UnmaskK:
				f.masks++
				continue

			default:
				panic("fiber: unknown continuation kind")
			}
		}

		switch node.Tag {
		case TagPure:
			value, resErr, hasResult = node.Value, nil, true

		case TagDelay:
			value, resErr = runThunk(node.Thunk)
			hasResult = true

		case TagError:
			value, resErr, hasResult = nil, node.Err, true

		case TagAsync:
			node = f.dispatchAsync(node)

		case TagReadExecutor:
			value, resErr, hasResult = f.st.currentCtx, nil, true

		case TagEvalOn:
			f.st.pushExecutor(node.Executor)
			f.st.pushCont(EvalOnK)
			inner, ec := node.Inner, node.Executor
			ec.Execute(func() { runLoop(f, inner, 0) })
			return

		case TagMap:
			f.st.pushObj(node.Fn)
			f.st.pushCont(MapK)
			node = node.Inner

		case TagFlatMap:
			f.st.pushObj(node.Fn)
			f.st.pushCont(FlatMapK)
			node = node.Inner

		case TagHandleErrorWith:
			f.st.pushObj(node.Fn)
			f.st.pushCont(HandleErrorWithK)
			node = node.Inner

		case TagOnCase:
			fn := node.Fn.(func(Outcome) *Node)
			f.st.pushFinalizer(onCaseFinalizer(fn))
			f.st.pushCont(OnCaseK)
			node = node.Inner

		case TagUncancelable:
			f.masks++
			id := f.masks
			body := node.Fn.(func(PollFn) *Node)
			poll := PollFn(func(ioa *Node) *Node { return Unmask(ioa, id) })
			f.st.pushCont(UncancelableK)
			node = body(poll)

		case TagCanceled:
			f.canceled.Store(true)
			if !f.unmasked() {
				value, resErr, hasResult = struct{}{}, nil, true
				continue
			}
			next, stop := f.enterCancellationGate()
			if stop {
				return
			}
			node, hasResult = next, false

		case TagStart:
			value, resErr, hasResult = f.spawnChild(node.Inner), nil, true

		case TagRacePair:
			node = f.buildRacePairAsync(node.Left, node.Right)

		case TagSleep:
			node = f.buildSleepAsync(node.Duration)

		case TagRealTime:
			value, resErr, hasResult = f.timer.NowMillis(), nil, true

		case TagMonotonic:
			value, resErr, hasResult = f.timer.MonotonicNanos(), nil, true

		case TagCede:
			f.dispatchCede()
			return

		case TagUnmask:
			if f.masks == node.MaskID {
				f.masks--
				f.st.pushCont(UnmaskK)
			}
			node = node.Inner

		default:
			panic("fiber: unknown node tag")
		}
	}
}

// spawnChild starts inner as a new child fiber sharing ec and a mask
// space partitioned from f's own.
func (f *Fiber) spawnChild(inner *Node) *Fiber {
	child := NewFiber(f.timer, nil, f.initMask+childMaskStride)
	child.Run(inner, f.st.currentCtx)
	return child
}

// dispatchCede submits a resumption task to the current executor and
// returns control; the task re-enters with unit, a fresh gate-checked
// entry via resumeLoop.
func (f *Fiber) dispatchCede() {
	ec := f.st.currentCtx
	ec.Execute(func() { resumeLoop(f, struct{}{}, nil, 0) })
}

// onCaseFinalizer builds the finalizer pushed by OnCase(inner, fn): it
// invokes fn with the fiber's terminal outcome and swallows any
// non-fatal error fn itself raises, reducing it to unit.
func onCaseFinalizer(fn func(Outcome) *Node) finalizer {
	return func(o Outcome) *Node {
		body := FlatMap(Pure(o), func(any) *Node { return fn(o) })
		return HandleErrorWith(body, func(error) *Node { return Pure(struct{}{}) })
	}
}

func recoverNonFatal(r any) error {
	if e, ok := r.(error); ok {
		if _, isRuntimeErr := e.(runtime.Error); !isRuntimeErr {
			return e
		}
	}
	panic(r)
}

func runThunk(thunk func() (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverNonFatal(r)
		}
	}()
	return thunk()
}

func runMapFn(fn func(any) any, v any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverNonFatal(r)
		}
	}()
	return fn(v), nil
}

func runFlatMapFn(fn func(any) *Node, v any) (node *Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverNonFatal(r)
		}
	}()
	return fn(v), nil
}

func runErrFn(fn func(error) *Node, e error) (node *Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverNonFatal(r)
		}
	}()
	return fn(e), nil
}
