// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"code.hybscloud.com/fiber"
)

func runSync(program *fiber.Node) fiber.Outcome {
	f := fiber.NewFiber(fiber.WallTimer{}, nil, 0)
	f.Run(program, fiber.InlineExecutor{})
	return fiber.Await(f)
}

func runOn(program *fiber.Node, ex fiber.Executor) fiber.Outcome {
	f := fiber.NewFiber(fiber.WallTimer{}, nil, 0)
	f.Run(program, ex)
	return fiber.Await(f)
}

func asInt(t *testing.T, v any) int {
	t.Helper()
	n, ok := v.(int)
	if !ok {
		t.Fatalf("expected int, got %T (%v)", v, v)
	}
	return n
}

// A Pure/Map/FlatMap chain runs straight through to its final value.
func TestPurePath(t *testing.T) {
	prog := fiber.FlatMap(
		fiber.Map(fiber.Pure(1), func(v any) any { return v.(int) + 1 }),
		func(v any) *fiber.Node { return fiber.Pure(v.(int) * 10) },
	)
	o := runSync(prog)
	if !o.IsCompleted() || asInt(t, o.Value) != 20 {
		t.Fatalf("got %+v, want Completed(20)", o)
	}
}

// HandleErrorWith recovers a failed effect; without it the error
// propagates as the outcome.
func TestErrorRecovery(t *testing.T) {
	boom := errors.New("boom")

	recovered := fiber.HandleErrorWith(fiber.ErrorNode(boom), func(error) *fiber.Node {
		return fiber.Pure(42)
	})
	o := runSync(recovered)
	if !o.IsCompleted() || asInt(t, o.Value) != 42 {
		t.Fatalf("got %+v, want Completed(42)", o)
	}

	bare := runSync(fiber.ErrorNode(boom))
	if !bare.IsErrored() || !errors.Is(bare.Err, boom) {
		t.Fatalf("got %+v, want Errored(boom)", bare)
	}
}

// Inside Uncancelable, a bare Canceled() is deferred and the body runs
// to completion; poll(Canceled()) reveals it immediately.
func TestCancellationThroughMask(t *testing.T) {
	masked := fiber.Uncancelable(func(fiber.PollFn) *fiber.Node {
		return fiber.FlatMap(fiber.Canceled(), func(any) *fiber.Node { return fiber.Pure(1) })
	})
	o := runSync(masked)
	if !o.IsCompleted() || asInt(t, o.Value) != 1 {
		t.Fatalf("got %+v, want Completed(1)", o)
	}

	polled := fiber.Uncancelable(func(poll fiber.PollFn) *fiber.Node {
		return fiber.FlatMap(poll(fiber.Canceled()), func(any) *fiber.Node { return fiber.Pure(1) })
	})
	o = runSync(polled)
	if !o.IsCanceled() {
		t.Fatalf("got %+v, want Canceled", o)
	}
}

// An OnCase finalizer around a suspended Async runs exactly once when
// the fiber is canceled externally, observing the Canceled outcome.
func TestFinalizerOnCancel(t *testing.T) {
	skipRace(t)

	var recordCount int32
	var lastKind fiber.OutcomeKind

	never := fiber.Async(func(func(value any, err error)) *fiber.Node {
		return fiber.Pure(nil) // no cancel effect; only an external cancel resolves this
	})
	program := fiber.OnCase(never, func(o fiber.Outcome) *fiber.Node {
		atomic.AddInt32(&recordCount, 1)
		lastKind = o.Kind
		return fiber.Pure(struct{}{})
	})

	target := fiber.NewFiber(fiber.WallTimer{}, nil, 0)
	ex := fiber.NewGoExecutor(2)
	target.Run(program, ex)

	time.Sleep(20 * time.Millisecond) // let the fiber reach its suspension point

	cancelEffect := target.Cancel()
	if _, err := cancelEffect.Thunk(); err != nil {
		t.Fatalf("cancel effect failed: %v", err)
	}

	o := fiber.Await(target)
	if !o.IsCanceled() {
		t.Fatalf("got %+v, want Canceled", o)
	}
	if atomic.LoadInt32(&recordCount) != 1 {
		t.Fatalf("finalizer ran %d times, want exactly once", recordCount)
	}
	if lastKind != fiber.OutcomeCanceled {
		t.Fatalf("finalizer observed %v, want Canceled", lastKind)
	}
}

// RacePair completes with whichever side finishes first; the loser
// keeps running and can still be canceled.
func TestRaceLeftWins(t *testing.T) {
	skipRace(t)

	left := fiber.FlatMap(fiber.Sleep(10*time.Millisecond), func(any) *fiber.Node { return fiber.Pure("A") })
	right := fiber.FlatMap(fiber.Sleep(150*time.Millisecond), func(any) *fiber.Node { return fiber.Pure("B") })

	ex := fiber.NewGoExecutor(4)
	o := runOn(fiber.RacePair(left, right), ex)
	if !o.IsCompleted() {
		t.Fatalf("got %+v, want Completed", o)
	}
	result, ok := o.Value.(fiber.RaceResult)
	if !ok {
		t.Fatalf("value is %T, want fiber.RaceResult", o.Value)
	}
	if !result.IsLeft() {
		t.Fatalf("want the left (faster) effect to win")
	}
	won, _ := result.GetLeft()
	if won.Value.(string) != "A" {
		t.Fatalf("got winner value %v, want A", won.Value)
	}

	loser := won.Loser
	if _, err := loser.Cancel().Thunk(); err != nil {
		t.Fatalf("cancel loser: %v", err)
	}
	lo := fiber.Await(loser)
	if !lo.IsCanceled() {
		t.Fatalf("loser outcome %+v, want Canceled", lo)
	}
}

// When an Async registrar delivers a value and then itself fails, the
// registrar's error wins over the delivered value, with no double
// resumption.
func TestAsyncQueueSemantics(t *testing.T) {
	regErr := errors.New("registrar failed after delivery")

	program := fiber.Async(func(deliver func(value any, err error)) *fiber.Node {
		deliver(99, nil)
		return fiber.ErrorNode(regErr)
	})

	ex := fiber.NewGoExecutor(2)
	o := runOn(program, ex)
	if !o.IsErrored() || !errors.Is(o.Err, regErr) {
		t.Fatalf("got %+v, want Errored(regErr)", o)
	}
}

// The completion callback fires exactly once.
func TestAtMostOnceCompletion(t *testing.T) {
	var calls int32
	f := fiber.NewFiber(fiber.WallTimer{}, func(fiber.Outcome) { atomic.AddInt32(&calls, 1) }, 0)
	f.Run(fiber.Pure(1), fiber.InlineExecutor{})
	fiber.Await(f)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("completion callback fired %d times, want 1", calls)
	}
}

// Every joiner, registered concurrently while the fiber is still
// running, observes the same terminal outcome.
func TestJoinConsistencyManyListeners(t *testing.T) {
	skipRace(t)

	ex := fiber.NewGoExecutor(8)
	target := fiber.NewFiber(fiber.WallTimer{}, nil, 0)
	target.Run(fiber.Delay(func() (any, error) {
		time.Sleep(15 * time.Millisecond)
		return 7, nil
	}), ex)

	const n = 24
	var wg sync.WaitGroup
	results := make([]fiber.Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			joiner := fiber.NewFiber(fiber.WallTimer{}, nil, 0)
			joiner.Run(target.Join(), ex)
			results[i] = fiber.Await(joiner)
		}(i)
	}
	wg.Wait()

	for i, o := range results {
		joined, ok := o.Value.(fiber.Outcome)
		if !o.IsCompleted() || !ok || !joined.IsCompleted() || asInt(t, joined.Value) != 7 {
			t.Fatalf("joiner %d got %+v, want Completed(Completed(7))", i, o)
		}
	}
}

// EvalOn migrates execution to the given executor and restores the prior
// one afterward.
func TestEvalOnMigratesExecutor(t *testing.T) {
	primary := fiber.NewGoExecutor(2)
	secondary := fiber.NewGoExecutor(2)

	prog := fiber.FlatMap(fiber.EvalOn(fiber.ReadExecutor(), secondary), func(during any) *fiber.Node {
		return fiber.Map(fiber.ReadExecutor(), func(after any) any {
			return [2]fiber.Executor{during.(fiber.Executor), after.(fiber.Executor)}
		})
	})

	o := runOn(prog, primary)
	if !o.IsCompleted() {
		t.Fatalf("got %+v", o)
	}
	pair := o.Value.([2]fiber.Executor)
	if pair[0] != fiber.Executor(secondary) {
		t.Fatalf("during EvalOn, executor was %v, want secondary", pair[0])
	}
	if pair[1] != fiber.Executor(primary) {
		t.Fatalf("after EvalOn, executor was %v, want primary restored", pair[1])
	}
}

// Cede reschedules the continuation without changing its outcome.
func TestCedeYields(t *testing.T) {
	prog := fiber.FlatMap(fiber.Cede(), func(any) *fiber.Node { return fiber.Pure(5) })
	o := runOn(prog, fiber.NewGoExecutor(2))
	if !o.IsCompleted() || asInt(t, o.Value) != 5 {
		t.Fatalf("got %+v, want Completed(5)", o)
	}
}

// map(id) is observationally equivalent to the inner program, and
// flatMap(pure) is the identity.
func TestMapFlatMapMonomorphism(t *testing.T) {
	inner := fiber.Pure(9)
	mapped := fiber.Map(inner, func(v any) any { return v })
	if o := runSync(mapped); !o.IsCompleted() || asInt(t, o.Value) != 9 {
		t.Fatalf("map(id) got %+v", o)
	}

	flat := fiber.FlatMap(inner, func(v any) *fiber.Node { return fiber.Pure(v) })
	if o := runSync(flat); !o.IsCompleted() || asInt(t, o.Value) != 9 {
		t.Fatalf("flatMap(pure) got %+v", o)
	}
}

// Start spawns a child that can itself be joined for its own outcome.
func TestStartAndJoin(t *testing.T) {
	ex := fiber.NewGoExecutor(2)
	prog := fiber.FlatMap(fiber.Start(fiber.Pure(11)), func(v any) *fiber.Node {
		child := v.(*fiber.Fiber)
		return child.Join()
	})
	o := runOn(prog, ex)
	joined, ok := o.Value.(fiber.Outcome)
	if !o.IsCompleted() || !ok || !joined.IsCompleted() || asInt(t, joined.Value) != 11 {
		t.Fatalf("got %+v, want Completed(Completed(11))", o)
	}
}

// Sleep suspends for at least the requested duration.
func TestSleep(t *testing.T) {
	start := time.Now()
	o := runOn(fiber.FlatMap(fiber.Sleep(20*time.Millisecond), func(any) *fiber.Node { return fiber.Pure(struct{}{}) }),
		fiber.NewGoExecutor(2))
	if !o.IsCompleted() {
		t.Fatalf("got %+v", o)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("returned before the sleep duration elapsed")
	}
}

// RealTime and Monotonic report readings from the injected timer.
func TestTimeReadings(t *testing.T) {
	o := runSync(fiber.RealTime())
	if !o.IsCompleted() || o.Value.(int64) <= 0 {
		t.Fatalf("got %+v", o)
	}
	o = runSync(fiber.Monotonic())
	if !o.IsCompleted() {
		t.Fatalf("got %+v", o)
	}
}

// Every fiber gets a distinct, monotonically increasing ID.
func TestFiberIDUnique(t *testing.T) {
	f1 := fiber.NewFiber(fiber.WallTimer{}, nil, 0)
	f2 := fiber.NewFiber(fiber.WallTimer{}, nil, 0)
	f3 := fiber.NewFiber(fiber.WallTimer{}, nil, 0)

	if f1.ID() >= f2.ID() {
		t.Fatalf("IDs not increasing: %d >= %d", f1.ID(), f2.ID())
	}
	if f2.ID() >= f3.ID() {
		t.Fatalf("IDs not increasing: %d >= %d", f2.ID(), f3.ID())
	}
}
