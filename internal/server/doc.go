// Package server implements the worker's HTTP API
//
// Besides the health check, it allows operations to be invoked directly
// over HTTP, which is how the CLI and local tooling drive a worker that is
// not attached to a controller
package server
