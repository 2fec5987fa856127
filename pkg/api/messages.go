package api

type (
	// HealthStatus is the coarse health of a service
	HealthStatus string

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string       `json:"service"`
		Version string       `json:"version"`
		Status  HealthStatus `json:"status"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)
