// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "code.hybscloud.com/kont"

// OutcomeKind tags the terminal state of a fiber.
type OutcomeKind uint8

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeErrored
	OutcomeCanceled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "Completed"
	case OutcomeErrored:
		return "Errored"
	case OutcomeCanceled:
		return "Canceled"
	default:
		return "Outcome(?)"
	}
}

// Outcome is the terminal state of a fiber: Completed(value), Errored(err),
// or Canceled. Terminal and immutable once published; see [Fiber.Join].
type Outcome struct {
	Kind  OutcomeKind
	Value any
	Err   error
}

// Completed builds a Completed outcome carrying v.
func Completed(v any) Outcome { return Outcome{Kind: OutcomeCompleted, Value: v} }

// Errored builds an Errored outcome carrying err.
func Errored(err error) Outcome { return Outcome{Kind: OutcomeErrored, Err: err} }

// CanceledOutcome is the Canceled outcome. There is exactly one shape of it.
var CanceledOutcome = Outcome{Kind: OutcomeCanceled}

// IsCompleted reports whether o is a Completed outcome.
func (o Outcome) IsCompleted() bool { return o.Kind == OutcomeCompleted }

// IsErrored reports whether o is an Errored outcome.
func (o Outcome) IsErrored() bool { return o.Kind == OutcomeErrored }

// IsCanceled reports whether o is the Canceled outcome.
func (o Outcome) IsCanceled() bool { return o.Kind == OutcomeCanceled }

// racedLeft is the payload when the left effect of a [RacePair] wins:
// its value, and the still-running right fiber.
type racedLeft struct {
	Value any
	Loser *Fiber
}

// racedRight is the payload when the right effect of a [RacePair] wins:
// the still-running left fiber, and the winning value.
type racedRight struct {
	Loser *Fiber
	Value any
}

// RaceResult is the result envelope for [RacePair]: Left if the left
// effect won, Right if the right effect won. Reused directly from the
// teacher's code.hybscloud.com/kont.Either rather than re-declared —
// same two-armed shape, no dependency on the typeclass machinery this
// module otherwise leaves out of scope.
type RaceResult = kont.Either[racedLeft, racedRight]
