// Package dispatch provides the execution contexts that post-commit
// completions and change notifications are delivered on.
//
// A Context accepts tasks and runs them later, never on the submitting
// goroutine's stack. Serial runs tasks one at a time in submission order and
// plays the role of the UI/main context. Pool fans tasks out over an ants
// worker pool for completions that do not care about ordering.
package dispatch
