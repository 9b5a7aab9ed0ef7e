package race

import (
	"fmt"
	"time"
)

// The error taxonomy of a race. Every process-level failure is caught
// and classified inside the controller; raw OS errors never reach the
// caller.

// SimulatorCrashError aborts the race: there is no substitution target
// for the simulator itself.
type SimulatorCrashError struct {
	Attempt int
	Cause   error
}

func (e *SimulatorCrashError) Error() string {
	return fmt.Sprintf("simulator crashed on attempt %d: %v", e.Attempt, e.Cause)
}

func (e *SimulatorCrashError) Unwrap() error { return e.Cause }

// BudgetExhaustedError reports that competitor crashes outlasted the
// attempt budget.
type BudgetExhaustedError struct {
	Attempt int
	Crashed []string
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("attempt budget exhausted after attempt %d, crashed: %v",
		e.Attempt, e.Crashed)
}

// NoSubstituteError reports a competitor crash with an empty
// substitute pool.
type NoSubstituteError struct {
	Attempt int
	Crashed []string
}

func (e *NoSubstituteError) Error() string {
	return fmt.Sprintf("no substitutes left for crashed competitors %v on attempt %d",
		e.Crashed, e.Attempt)
}

// ImplausibleDurationError flags a race that finished faster than any
// genuine race could, which almost always means a setup error rather
// than a result. It aborts the race only in strict mode.
type ImplausibleDurationError struct {
	Elapsed time.Duration
	Min     time.Duration
}

func (e *ImplausibleDurationError) Error() string {
	return fmt.Sprintf("race finished in %s, below the plausible minimum of %s",
		e.Elapsed.Round(time.Millisecond), e.Min)
}

// ResultError reports that the simulator exited normally but its
// results could not be turned into a placement order.
type ResultError struct {
	Attempt int
	Cause   error
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("failed to collect results of attempt %d: %v", e.Attempt, e.Cause)
}

func (e *ResultError) Unwrap() error { return e.Cause }
