// Package runtime holds the council state machine.
//
// Step is a pure function: given a snapshot, an event and the current time it
// returns the next snapshot and the side-effects the host must perform. It never
// blocks, never starts goroutines and never touches adapters, which keeps every
// lifecycle rule testable without timers or fakes.
package runtime
