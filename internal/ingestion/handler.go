package ingestion

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	v1 "github.com/aevon-lab/rollupd/internal/api/v1"
	httperr "github.com/aevon-lab/rollupd/internal/core/errors"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgBodyTooLarge   = "Request body exceeds maximum allowed size"
	msgIngestFailed   = "Failed to ingest event"
	msgShuttingDown   = "Aggregation engines are shutting down"
	msgEmptyBatch     = "Batch contains no events"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// batchRequest is the body of POST /v1/events/batch.
type batchRequest struct {
	Events []*v1.Event `json:"events"`
}

// eventResult reports the outcome of one event of a batch.
type eventResult struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// IngestHandler handles HTTP POST requests for event ingestion.
func (s *Service) IngestHandler(c *gin.Context) {
	body, ierr := s.readBody(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	var evt v1.Event
	if ierr := decodeJSON(body, &evt); ierr != nil {
		writeError(c, ierr)
		return
	}
	if err := evt.Validate(); err != nil {
		slog.Warn("Envelope validation failed", "error", err, "event_id", evt.ID)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidEventError,
			message:    err.Error(),
		})
		return
	}
	Stamp(&evt, s.nowFn())

	slog.Debug("Received Event",
		"event_id", evt.ID,
		"stream", evt.Stream,
		"payload_size", len(body))

	err := s.ingester.Ingest(c.Request.Context(), &evt)
	outcome := Classify(err)
	if outcome.Admitted() {
		if outcome == Deferred {
			slog.Warn("Event admitted with deferred cascade", "event_id", evt.ID, "error", err)
		}
		c.JSON(http.StatusAccepted, gin.H{"status": outcome.String(), "id": evt.ID})
		return
	}
	writeError(c, outcomeError(outcome, evt.ID, err))
}

// IngestBatchHandler ingests a batch of events and reports each outcome by index.
// Malformed envelopes fail only their own entry.
func (s *Service) IngestBatchHandler(c *gin.Context) {
	body, ierr := s.readBody(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	var req batchRequest
	if ierr := decodeJSON(body, &req); ierr != nil {
		writeError(c, ierr)
		return
	}
	if len(req.Events) == 0 {
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidEventError,
			message:    msgEmptyBatch,
		})
		return
	}

	results := make([]eventResult, len(req.Events))
	valid := make([]*v1.Event, 0, len(req.Events))
	validIdx := make([]int, 0, len(req.Events))
	now := s.nowFn()
	for i, evt := range req.Events {
		results[i].Index = i
		if evt == nil {
			results[i].Status = Rejected.String()
			results[i].Error = "event is null"
			continue
		}
		if err := evt.Validate(); err != nil {
			results[i].ID = evt.ID
			results[i].Status = Rejected.String()
			results[i].Error = err.Error()
			continue
		}
		Stamp(evt, now)
		valid = append(valid, evt)
		validIdx = append(validIdx, i)
	}

	counts := make(map[string]int)
	for j, err := range s.ingester.IngestBatch(c.Request.Context(), valid) {
		i := validIdx[j]
		results[i].ID = valid[j].ID
		results[i].Status = Classify(err).String()
		if err != nil {
			results[i].Error = err.Error()
		}
	}
	for _, r := range results {
		counts[r.Status]++
	}

	slog.Info("Received Event batch",
		"events", len(req.Events),
		"accepted", counts[Accepted.String()],
		"deferred", counts[Deferred.String()],
		"payload_size", len(body))

	c.JSON(http.StatusAccepted, gin.H{"results": results, "counts": counts})
}

// readBody reads the request body up to the configured limit.
func (s *Service) readBody(c *gin.Context) ([]byte, *ingestionError) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgBodyTooLarge,
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}
	return bodyBytes, nil
}

// decodeJSON decodes body into v keeping numbers as json.Number, so event
// values reach the aggregators without float rounding.
func decodeJSON(body []byte, v interface{}) *ingestionError {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(body))
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	return nil
}

// outcomeError maps a failed ingest to its HTTP error.
func outcomeError(o Outcome, eventID string, err error) *ingestionError {
	details := map[string]interface{}{"event_id": eventID}
	switch o {
	case Rejected:
		slog.Warn("Event rejected", "event_id", eventID, "error", err)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidEventError,
			message:    err.Error(),
			details:    details,
		}
	case Unrouted:
		slog.Warn("Event stream not consumed by any aggregation", "event_id", eventID, "error", err)
		return &ingestionError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpStreamNotFoundError,
			message:    err.Error(),
			details:    details,
		}
	case ShuttingDown:
		return &ingestionError{
			statusCode: http.StatusServiceUnavailable,
			errorType:  httperr.HttpShuttingDownError,
			message:    msgShuttingDown,
			details:    details,
		}
	}
	slog.Error("Failed to ingest event", "event_id", eventID, "error", err)
	return &ingestionError{
		statusCode: http.StatusInternalServerError,
		errorType:  httperr.HttpInternalError,
		message:    msgIngestFailed,
		details:    details,
	}
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
