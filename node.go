// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "time"

// Tag identifies the variant of a [Node]. The interpreter dispatches on
// Tag with a plain switch — a small, branch-predictable jump, not a type
// switch — a tight bytecode-style dispatcher.
type Tag uint8

const (
	TagPure Tag = iota
	TagDelay
	TagError
	TagAsync
	TagReadExecutor
	TagEvalOn
	TagMap
	TagFlatMap
	TagHandleErrorWith
	TagOnCase
	TagUncancelable
	TagCanceled
	TagStart
	TagRacePair
	TagSleep
	TagRealTime
	TagMonotonic
	TagCede
	TagUnmask
)

// Registrar is the function an [Async] node's registration runs. It
// receives a result callback and returns the effect that produces an
// optional cancellation effect (nil if there is none). The interpreter
// evaluates that returned effect before deciding how to suspend; see
// [AsyncK] in the interpreter for the full handshake.
type Registrar func(cb func(value any, err error)) *Node

// PollFn unmasks an effect to the mask level an enclosing [Uncancelable]
// was entered at. Only [Uncancelable] constructs one; it is handed to the
// body function as the sole way to reveal a pending cancellation inside a
// masked region.
type PollFn func(*Node) *Node

// Node is an immutable effect-tree node: one step of a program. Payload
// fields are only meaningful for the variant named by Tag — this is a
// single struct rather than 19 Go types so that dispatch stays a flat
// field-access switch instead of 19 concrete pointer types behind an
// interface. See DESIGN.md for the rationale against a
// continuation-class-per-frame-kind design.
type Node struct {
	Tag Tag

	// Pure, Error
	Value any
	Err   error

	// Delay: the side-effecting thunk. A non-fatal error it returns
	// becomes an Errored outcome; a panic that doesn't unwrap to an
	// error is fatal and is not recovered.
	Thunk func() (any, error)

	// Async
	Registrar Registrar

	// Map, FlatMap, HandleErrorWith, OnCase, EvalOn, Uncancelable's
	// poll wrapper, Start, Unmask: the inner effect being transformed.
	Inner *Node

	// Map: func(any) any
	// FlatMap: func(any) *Node
	// HandleErrorWith: func(error) *Node
	// OnCase: func(Outcome) *Node
	// Uncancelable: func(PollFn) *Node
	Fn any

	// EvalOn
	Executor Executor

	// RacePair
	Left, Right *Node

	// Sleep
	Duration time.Duration

	// Unmask
	MaskID int
}

// Pure lifts a value into an effect that completes immediately with it.
func Pure(v any) *Node { return &Node{Tag: TagPure, Value: v} }

// Delay wraps a side-effecting thunk. The thunk runs synchronously when
// the interpreter reaches this node.
func Delay(thunk func() (any, error)) *Node { return &Node{Tag: TagDelay, Thunk: thunk} }

// ErrorNode builds an effect that fails immediately with err.
func ErrorNode(err error) *Node { return &Node{Tag: TagError, Err: err} }

// Async suspends on registrar, resuming when its callback fires or the
// registrar's own effect completes synchronously.
func Async(registrar Registrar) *Node { return &Node{Tag: TagAsync, Registrar: registrar} }

// ReadExecutor continues with the fiber's current [Executor] as its value.
func ReadExecutor() *Node { return &Node{Tag: TagReadExecutor} }

// EvalOn runs inner on ec, restoring the prior executor on completion.
func EvalOn(inner *Node, ec Executor) *Node {
	return &Node{Tag: TagEvalOn, Inner: inner, Executor: ec}
}

// Map transforms inner's successful result with fn.
func Map(inner *Node, fn func(any) any) *Node {
	return &Node{Tag: TagMap, Inner: inner, Fn: fn}
}

// FlatMap sequences inner into a new effect produced by fn.
func FlatMap(inner *Node, fn func(any) *Node) *Node {
	return &Node{Tag: TagFlatMap, Inner: inner, Fn: fn}
}

// HandleErrorWith recovers a failed inner via fn.
func HandleErrorWith(inner *Node, fn func(error) *Node) *Node {
	return &Node{Tag: TagHandleErrorWith, Inner: inner, Fn: fn}
}

// OnCase registers fn as a finalizer observing inner's terminal [Outcome].
func OnCase(inner *Node, fn func(Outcome) *Node) *Node {
	return &Node{Tag: TagOnCase, Inner: inner, Fn: fn}
}

// Uncancelable raises the fiber's mask and runs body(poll), where poll
// reveals cancellation points inside the otherwise-masked region.
func Uncancelable(body func(poll PollFn) *Node) *Node {
	return &Node{Tag: TagUncancelable, Fn: body}
}

// Canceled marks the fiber canceled. Inside a masked region this is
// deferred until a matching [Unmask] reveals it.
func Canceled() *Node { return &Node{Tag: TagCanceled} }

// Start spawns inner as a child fiber on the current executor, continuing
// with the child [*Fiber] as its value.
func Start(inner *Node) *Node { return &Node{Tag: TagStart, Inner: inner} }

// RacePair runs left and right concurrently as child fibers, completing
// with whichever finishes first; the other keeps running and is returned
// alongside the winner so the caller can join or cancel it.
func RacePair(left, right *Node) *Node {
	return &Node{Tag: TagRacePair, Left: left, Right: right}
}

// Sleep suspends for d, then continues with struct{}{}.
func Sleep(d time.Duration) *Node { return &Node{Tag: TagSleep, Duration: d} }

// RealTime continues with the timer's wall-clock reading in milliseconds.
func RealTime() *Node { return &Node{Tag: TagRealTime} }

// Monotonic continues with the timer's monotonic reading in nanoseconds.
func Monotonic() *Node { return &Node{Tag: TagMonotonic} }

// Cede voluntarily yields, rescheduling the continuation on the executor.
func Cede() *Node { return &Node{Tag: TagCede} }

// Unmask lowers the mask by one (from id to the level below it) for the
// duration of inner, if the fiber's current mask equals id; otherwise it is a transparent no-op (a poll
// from an inactive [Uncancelable]).
func Unmask(inner *Node, id int) *Node {
	return &Node{Tag: TagUnmask, Inner: inner, MaskID: id}
}
