// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

// ContKind is the closed set of continuation frame tags the interpreter
// pushes onto [stacks.conts] as it descends into compound nodes. Frame
// state itself lives in the object/executor/finalizer side stacks, not
// in per-frame allocations — see DESIGN.md for the rationale against a
// per-frame polymorphic interface.
type ContKind uint8

const (
	// RunTerminusK is the bottom-of-stack frame: publish the outcome
	// and return from the loop.
	RunTerminusK ContKind = iota
	// CancellationLoopK drains the finalizer stack during cancellation
	// finalization, then invalidates the fiber.
	CancellationLoopK
	// AsyncK resumes after an Async node's registrar effect completes.
	AsyncK
	// EvalOnK restores the prior executor after an EvalOn body finishes.
	EvalOnK
	// MapK applies a pure transform to a successful result.
	MapK
	// FlatMapK applies a function producing the next effect.
	FlatMapK
	// HandleErrorWithK recovers a failed result via a handler.
	HandleErrorWithK
	// OnCaseK invokes a finalizer with the now-known Outcome.
	OnCaseK
	// OnCaseForwarderK restores the result OnCaseK saved aside while
	// its finalizer effect ran.
	OnCaseForwarderK
	// UncancelableK lowers the mask raised by the matching Uncancelable.
	UncancelableK
	// UnmaskK raises the mask back up after a poll'd region completes.
	UnmaskK
)

func (k ContKind) String() string {
	switch k {
	case RunTerminusK:
		return "RunTerminusK"
	case CancellationLoopK:
		return "CancellationLoopK"
	case AsyncK:
		return "AsyncK"
	case EvalOnK:
		return "EvalOnK"
	case MapK:
		return "MapK"
	case FlatMapK:
		return "FlatMapK"
	case HandleErrorWithK:
		return "HandleErrorWithK"
	case OnCaseK:
		return "OnCaseK"
	case OnCaseForwarderK:
		return "OnCaseForwarderK"
	case UncancelableK:
		return "UncancelableK"
	case UnmaskK:
		return "UnmaskK"
	default:
		return "ContKind(?)"
	}
}
