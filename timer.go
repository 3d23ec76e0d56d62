// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"time"

	"code.hybscloud.com/kont"
)

// CancelHandle cancels a pending timer delivery. Run must be safe to
// call more than once and concurrently with the timer firing; the
// thunk passed to Sleep is invoked at most once regardless of how that
// race resolves.
type CancelHandle interface {
	Run()
}

// Timer is the injected capability providing wall-clock time, a
// monotonic clock, and delayed callback scheduling.
type Timer interface {
	NowMillis() int64
	MonotonicNanos() int64
	Sleep(d time.Duration, thunk func()) CancelHandle
}

// WallTimer is the default Timer, backed by the Go runtime's clock.
type WallTimer struct{}

// NowMillis returns the current wall-clock time in milliseconds.
func (WallTimer) NowMillis() int64 { return time.Now().UnixMilli() }

// monotonicBase anchors WallTimer's monotonic readings.
var monotonicBase = time.Now()

// MonotonicNanos returns a monotonic reading in nanoseconds. It has no
// relation to wall-clock time; only differences between two readings
// are meaningful.
func (WallTimer) MonotonicNanos() int64 { return int64(time.Since(monotonicBase)) }

// Sleep schedules thunk to run after d. The returned handle's Run
// cancels the pending delivery; thunk fires at most once whether or not
// cancellation raced with expiry — enforced with a
// code.hybscloud.com/kont.Affine one-shot guard around thunk itself.
func (WallTimer) Sleep(d time.Duration, thunk func()) CancelHandle {
	guard := kont.Once(func(struct{}) struct{} {
		thunk()
		return struct{}{}
	})
	t := time.AfterFunc(d, func() {
		guard.TryResume(struct{}{})
	})
	return wallCancelHandle{timer: t, guard: guard}
}

// buildSleepAsync reifies a Sleep(d) node as an Async node: the
// registrar schedules the timer callback and hands back the timer's
// cancel handle, wrapped as a Delay effect, as the async's cancel
// effect.
func (f *Fiber) buildSleepAsync(d time.Duration) *Node {
	return Async(func(deliver func(value any, err error)) *Node {
		handle := f.timer.Sleep(d, func() { deliver(struct{}{}, nil) })
		cancelEffect := Delay(func() (any, error) {
			handle.Run()
			return struct{}{}, nil
		})
		return Pure(cancelEffect)
	})
}

type wallCancelHandle struct {
	timer *time.Timer
	guard *kont.Affine[struct{}, struct{}]
}

// Run stops the underlying timer and discards the guard if the thunk
// has not fired yet; if it already fired (or is in the process of
// firing), Discard on an already-used Affine is a harmless no-op check,
// and Stop on an already-fired timer is documented as safe by the
// standard library.
func (h wallCancelHandle) Run() {
	h.timer.Stop()
	h.guard.Discard()
}
