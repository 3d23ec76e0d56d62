// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "code.hybscloud.com/atomix"

// atomixBool is a boolean flag backed by code.hybscloud.com/atomix.Uint32,
// the typed atomic wrapper code.hybscloud.com/sess uses for its own
// cross-goroutine flags and counters (serial.go's counter, session.go's
// closed). Every cross-fiber shared mutable flag in this package —
// canceled, suspended, the per-Async done guard, executor shutdown —
// uses this instead of a bare sync/atomic.Bool, keeping the whole module
// on one atomic-wrapper convention.
type atomixBool struct {
	v atomix.Uint32
}

// Load reads the current value.
func (b *atomixBool) Load() bool { return b.v.Load() != 0 }

// Store sets the value unconditionally.
func (b *atomixBool) Store(val bool) {
	if val {
		b.v.Store(1)
	} else {
		b.v.Store(0)
	}
}

// CompareAndSwap atomically sets the value to newVal if it currently
// equals oldVal, reporting whether the swap happened.
func (b *atomixBool) CompareAndSwap(oldVal, newVal bool) bool {
	var o, n uint32
	if oldVal {
		o = 1
	}
	if newVal {
		n = 1
	}
	return b.v.CompareAndSwap(o, n)
}
