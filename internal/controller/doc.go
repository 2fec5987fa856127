// Package controller connects the worker to the controller that owns flow
// runs. Operations arrive over a websocket channel, are decoded and
// validated, then dispatched to the engine
package controller
