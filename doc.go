// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package fiber is the interpreter core of a cooperative effect-system
// runtime: per-fiber evaluation of a tree of effect [Node]s on a pool of
// worker threads, with structured cancellation, masking, asynchronous
// suspension, and composable finalizers.
//
// # Effect nodes
//
// A program is a tree of immutable [Node] values, one per combinator:
// [Pure], [Delay], [ErrorNode], [Async], [ReadExecutor], [EvalOn], [Map],
// [FlatMap], [HandleErrorWith], [OnCase], [Uncancelable], [Canceled],
// [Start], [RacePair], [Sleep], [RealTime], [Monotonic], [Cede], and
// [Unmask]. Constructors return a *Node; the interpreter dispatches on
// its Tag.
//
// # Fibers
//
// [Fiber] is the unit of concurrent execution. [NewFiber] constructs a
// root fiber bound to a [Timer] and a completion callback; [Fiber.Run]
// seeds it with a program and an [Executor] and enters the interpreter
// loop. [Fiber.Cancel] and [Fiber.Join] return effect nodes usable from
// within another program, matching the external interface; use [Await]
// for a blocking wait on a fiber's [Outcome] from ordinary Go code.
//
// # Cancellation and masking
//
// Cancellation is cooperative: [Fiber.Cancel] sets a flag observed at the
// next cancellation gate (loop entry) unless the fiber is inside an
// [Uncancelable] region. [Uncancelable] raises a mask counter; the poll
// function it hands to its body is the only way to lower the mask back to
// the level where cancellation becomes observable again, via [Unmask].
//
// # Suspension
//
// [Async] is the only primitive suspension point; [EvalOn], [Cede],
// [Sleep], and [RacePair] are all expressed in terms of it or of executor
// submission. A suspended fiber hands control back to its [Executor] and
// resumes, possibly on a different worker, when its registered callback
// fires.
//
// # Finalizers
//
// [OnCase] and any [Async] registration that supplies a cancel effect push
// a finalizer onto the fiber's finalizer stack. Finalizers run in reverse
// registration order on every exit path (success, error, cancellation),
// with masks raised so a finalizer cannot itself be interrupted.
//
// # Injected capabilities
//
// [Executor] and [Timer] are the two capabilities the runtime needs from
// its host. [GoExecutor], [InlineExecutor], and [WallTimer] are the
// concrete implementations this package ships; callers may supply their
// own.
package fiber
