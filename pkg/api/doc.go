// Package api defines the core data types shared by the flow run worker
//
// This package contains the flow action tree, step outputs, the immutable
// execution context with its verdict and step references, the nested loop
// addressing path, and the operation messages exchanged with the controller
package api
