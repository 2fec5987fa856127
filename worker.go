// Package worker is the flow run execution worker of the Argyll platform
package worker

const (
	Name    = "argyll-worker"
	Version = "0.1.0"
)
