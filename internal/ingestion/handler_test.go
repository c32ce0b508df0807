package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/rollupd/internal/aggregation"
	v1 "github.com/aevon-lab/rollupd/internal/api/v1"
	coreagg "github.com/aevon-lab/rollupd/internal/core/aggregation"
	httperr "github.com/aevon-lab/rollupd/internal/core/errors"
	"github.com/aevon-lab/rollupd/internal/core/query"
	"github.com/aevon-lab/rollupd/internal/core/storage/memory"
	"github.com/aevon-lab/rollupd/internal/engine"
	ingestionmocks "github.com/aevon-lab/rollupd/internal/mocks/ingestion"
)

const tradeBody = `{"stream":"stockStream","data":{"symbol":"IBM","price":100.25,"quantity":2,"timestamp":1496289950000}}`

func newRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestIngestHandler_Success(t *testing.T) {
	ingester := ingestionmocks.NewIngester(t)
	received := time.Date(2017, 6, 1, 4, 6, 0, 0, time.UTC)

	ingester.EXPECT().
		Ingest(mock.Anything, mock.MatchedBy(func(e *v1.Event) bool {
			return e.Stream == "stockStream" && e.ID != "" && e.IngestedAt.Equal(received)
		})).
		Run(func(_ context.Context, e *v1.Event) {
			// numbers stay exact until an aggregator converts them
			require.Equal(t, json.Number("100.25"), e.Data["price"])
		}).
		Return(nil).
		Once()

	svc := NewService(ingester, 1)
	svc.nowFn = func() time.Time { return received }

	resp := post(newRouter(svc), "/v1/events", tradeBody)

	require.Equal(t, http.StatusAccepted, resp.Code)
	var result map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "accepted", result["status"])
	require.NotEmpty(t, result["id"])
}

func TestIngestHandler_KeepsClientID(t *testing.T) {
	ingester := ingestionmocks.NewIngester(t)
	ingester.EXPECT().
		Ingest(mock.Anything, mock.MatchedBy(func(e *v1.Event) bool { return e.ID == "evt-001" })).
		Return(nil).
		Once()

	resp := post(newRouter(NewService(ingester, 1)), "/v1/events",
		`{"id":"evt-001","stream":"stockStream","data":{"symbol":"IBM"}}`)
	require.Equal(t, http.StatusAccepted, resp.Code)
}

func TestIngestHandler_IngestOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantBody   string
	}{
		{
			name:       "deferred cascade",
			err:        fmt.Errorf("engine stock: %w", coreagg.ErrStorageUnavailable),
			wantStatus: http.StatusAccepted,
			wantBody:   "deferred",
		},
		{
			name:       "invalid timestamp",
			err:        fmt.Errorf("engine stock: %w", coreagg.ErrInvalidTimestamp),
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpInvalidEventError,
		},
		{
			name:       "invalid data",
			err:        fmt.Errorf("engine stock: %w", coreagg.ErrInvalidEvent),
			wantStatus: http.StatusBadRequest,
			wantType:   httperr.HttpInvalidEventError,
		},
		{
			name:       "unknown stream",
			err:        fmt.Errorf("%w: stockStream", aggregation.ErrUnknownStream),
			wantStatus: http.StatusNotFound,
			wantType:   httperr.HttpStreamNotFoundError,
		},
		{
			name:       "closed",
			err:        fmt.Errorf("engine stock: %w", coreagg.ErrClosed),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   httperr.HttpShuttingDownError,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   httperr.HttpInternalError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ingester := ingestionmocks.NewIngester(t)
			ingester.EXPECT().Ingest(mock.Anything, mock.Anything).Return(tt.err).Once()

			resp := post(newRouter(NewService(ingester, 1)), "/v1/events", tradeBody)
			require.Equal(t, tt.wantStatus, resp.Code)

			if tt.wantType != "" {
				var result httperr.ErrorResponse
				require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
				require.Equal(t, tt.wantType, result.ErrorType)
			}
			if tt.wantBody != "" {
				require.Contains(t, resp.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestIngestHandler_InvalidJSON(t *testing.T) {
	ingester := ingestionmocks.NewIngester(t)

	resp := post(newRouter(NewService(ingester, 1)), "/v1/events", `{"stream": "stockStream", "data": `)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	var result httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, httperr.HttpInvalidJsonError, result.ErrorType)
	ingester.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestIngestHandler_ValidationFailure(t *testing.T) {
	ingester := ingestionmocks.NewIngester(t)

	resp := post(newRouter(NewService(ingester, 1)), "/v1/events", `{"data":{"price":1}}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	var result httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, httperr.HttpInvalidEventError, result.ErrorType)
}

func TestIngestHandler_BodySizeLimit(t *testing.T) {
	ingester := ingestionmocks.NewIngester(t)
	svc := NewService(ingester, 1)

	big := `{"stream":"s","data":{"blob":"` + strings.Repeat("x", 1024*1024) + `"}}`
	resp := post(newRouter(svc), "/v1/events", big)

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestIngestBatchHandler_ReportsEachEvent(t *testing.T) {
	ingester := ingestionmocks.NewIngester(t)
	ingester.EXPECT().
		IngestBatch(mock.Anything, mock.MatchedBy(func(events []*v1.Event) bool {
			return len(events) == 2 && events[0].ID == "a" && events[1].ID == "c"
		})).
		Return([]error{nil, fmt.Errorf("engine stock: %w", coreagg.ErrStorageUnavailable)}).
		Once()

	resp := post(newRouter(NewService(ingester, 1)), "/v1/events/batch", `{"events":[
		{"id":"a","stream":"stockStream","data":{"symbol":"IBM"}},
		{"id":"b","data":{"symbol":"IBM"}},
		{"id":"c","stream":"stockStream","data":{"symbol":"WSO2"}}
	]}`)

	require.Equal(t, http.StatusAccepted, resp.Code)
	var result struct {
		Results []eventResult  `json:"results"`
		Counts  map[string]int `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Len(t, result.Results, 3)
	require.Equal(t, "accepted", result.Results[0].Status)
	require.Equal(t, "rejected", result.Results[1].Status)
	require.Equal(t, "b", result.Results[1].ID)
	require.Equal(t, "deferred", result.Results[2].Status)
	require.Equal(t, map[string]int{"accepted": 1, "rejected": 1, "deferred": 1}, result.Counts)
}

func TestIngestBatchHandler_EmptyBatch(t *testing.T) {
	ingester := ingestionmocks.NewIngester(t)

	resp := post(newRouter(NewService(ingester, 1)), "/v1/events/batch", `{"events":[]}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIngestHandler_WithManager(t *testing.T) {
	def, err := coreagg.ParseDefinition([]byte(`
name: stockAggregation
source_stream: stockStream
group_by: [symbol]
timestamp_field: timestamp
select:
  - {as: totalPrice, function: sum, expr: price}
`))
	require.NoError(t, err)

	ctx := context.Background()
	m, err := aggregation.NewManager(ctx, aggregation.NewInMemoryDefinitionRepository(*def), memory.New(), engine.DefaultOptions())
	require.NoError(t, err)
	defer m.Close(ctx)

	r := newRouter(NewService(m, 1))
	for _, body := range []string{
		tradeBody,
		`{"stream":"stockStream","data":{"symbol":"IBM","price":"0.75","quantity":1,"timestamp":"2017-06-01 04:05:51"}}`,
	} {
		require.Equal(t, http.StatusAccepted, post(r, "/v1/events", body).Code)
	}
	require.Equal(t, http.StatusNotFound, post(r, "/v1/events", `{"stream":"other","data":{}}`).Code)

	e, _ := m.Engine("stockAggregation")
	rows, err := e.Query(ctx, query.Request{Granularity: "minutes"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.InDelta(t, 101.0, rows[0].Values["totalPrice"], 1e-9)
}

