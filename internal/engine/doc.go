// Package engine walks flow definitions. It dispatches each action to the
// handler for its type, records step outputs through the step store, and
// reduces everything that happens during a run to a single verdict on an
// immutable flow context
package engine
