// Package piece is the connector SDK. A piece is a versioned bundle of
// actions and triggers with typed properties. The engine invokes actions
// with an ActionContext that exposes run-scoped services and the stop,
// pause and respond hooks
package piece
