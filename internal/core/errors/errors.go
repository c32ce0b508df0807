package errors

const (
	HttpInternalError       = "internal_error"
	HttpInvalidJsonError    = "invalid_json"
	HttpInvalidEventError   = "invalid_event"
	HttpStreamNotFoundError = "stream_not_consumed"
	HttpNotFoundError       = "aggregation_not_found"
	HttpInvalidQueryError   = "invalid_query"
	HttpUnavailableError    = "storage_unavailable"
	HttpShuttingDownError   = "shutting_down"
)

// ErrorResponse is the error response body of every HTTP endpoint.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
