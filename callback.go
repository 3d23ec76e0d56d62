// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"sync/atomic"

	"code.hybscloud.com/spin"
)

// callbackBox is the fiber's joiner registry: {Empty, Single(fn),
// Many(collection)} modeled as an atomic pointer to a listener slice,
// with a closed set of transitions rather than a dynamic type test per
// call. Empty→Single installs lock-free via CAS; growing past one
// listener is the rare path and is serialized with spin.Lock.
type callbackBox struct {
	listeners atomic.Pointer[[]func(Outcome)]
	mu        spin.Lock
}

// register installs fn as a listener for f's terminal outcome, or
// delivers immediately if the outcome is already published.
func (cb *callbackBox) register(fn func(Outcome), f *Fiber) {
	if o := f.loadOutcome(); o != nil {
		fn(*o)
		return
	}

	single := []func(Outcome){fn}
	if cb.listeners.CompareAndSwap(nil, &single) {
		if o := f.loadOutcome(); o != nil {
			fn(*o)
		}
		return
	}

	cb.mu.Lock()
	cur := cb.listeners.Load()
	next := make([]func(Outcome), len(*cur)+1)
	copy(next, *cur)
	next[len(*cur)] = fn
	cb.listeners.Store(&next)
	cb.mu.Unlock()

	if o := f.loadOutcome(); o != nil {
		fn(*o)
	}
}

// notifyAll invokes every registered listener with the terminal outcome.
// Called exactly once, by whichever party wins the outcome-publish CAS.
// A listener registered concurrently with notifyAll may be invoked twice
// (once here, once by register's post-install recheck); every listener
// installed by [Fiber.Join] is itself an Async callback guarded by that
// Async's own at-most-once done flag, so the duplicate call is harmless.
func (cb *callbackBox) notifyAll(o Outcome) {
	p := cb.listeners.Load()
	if p == nil {
		return
	}
	for _, fn := range *p {
		fn(o)
	}
}
