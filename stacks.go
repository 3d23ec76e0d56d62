// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "sync"

// finalizer is an effect-unit producer observing the fiber's terminal
// Outcome, pushed by OnCase and by Async registrations that supply a
// cancel effect.
type finalizer func(Outcome) *Node

// stacks holds everything the interpreter loop needs that isn't the
// current node: the continuation tag stack, the object stack for
// captured closures/refs, the executor stack (with a fast-path head),
// and the finalizer stack.
//
// A fiber exclusively owns its stacks; grown via append like any Go
// slice, and pooled via sync.Pool on release to keep the hot dispatch
// loop allocation-free.
type stacks struct {
	conts      []ContKind
	objs       []any
	execs      []Executor
	finalizers []finalizer

	currentCtx Executor
}

var stacksPool = sync.Pool{New: func() any { return new(stacks) }}

func acquireStacks(root Executor) *stacks {
	s := stacksPool.Get().(*stacks)
	s.currentCtx = root
	return s
}

// release returns s to the pool after zeroing slice contents so pooled
// backing arrays don't keep object graphs alive.
func (s *stacks) release() {
	for i := range s.objs {
		s.objs[i] = nil
	}
	for i := range s.execs {
		s.execs[i] = nil
	}
	for i := range s.finalizers {
		s.finalizers[i] = nil
	}
	s.conts = s.conts[:0]
	s.objs = s.objs[:0]
	s.execs = s.execs[:0]
	s.finalizers = s.finalizers[:0]
	s.currentCtx = nil
	stacksPool.Put(s)
}

func (s *stacks) pushCont(k ContKind) { s.conts = append(s.conts, k) }

func (s *stacks) popCont() (ContKind, bool) {
	n := len(s.conts)
	if n == 0 {
		return 0, false
	}
	k := s.conts[n-1]
	s.conts = s.conts[:n-1]
	return k, true
}

func (s *stacks) pushObj(v any) { s.objs = append(s.objs, v) }

func (s *stacks) popObj() any {
	n := len(s.objs)
	v := s.objs[n-1]
	s.objs[n-1] = nil
	s.objs = s.objs[:n-1]
	return v
}

// pushExecutor makes ec the current executor, remembering the prior one
// on the executor stack so EvalOnK can restore it.
func (s *stacks) pushExecutor(ec Executor) {
	s.execs = append(s.execs, s.currentCtx)
	s.currentCtx = ec
}

// popExecutor restores the executor saved by the matching pushExecutor.
func (s *stacks) popExecutor() {
	n := len(s.execs)
	s.currentCtx = s.execs[n-1]
	s.execs[n-1] = nil
	s.execs = s.execs[:n-1]
}

func (s *stacks) pushFinalizer(f finalizer) { s.finalizers = append(s.finalizers, f) }

func (s *stacks) popFinalizer() finalizer {
	n := len(s.finalizers)
	if n == 0 {
		return nil
	}
	f := s.finalizers[n-1]
	s.finalizers[n-1] = nil
	s.finalizers = s.finalizers[:n-1]
	return f
}

func (s *stacks) hasFinalizers() bool { return len(s.finalizers) > 0 }

// resetConts clears the continuation stack, used when cancellation
// finalization takes over. The object stack is left alone — finalizers
// don't consume pending Map/FlatMap frame state, only their own
// captured closures.
func (s *stacks) resetConts() { s.conts = s.conts[:0] }
