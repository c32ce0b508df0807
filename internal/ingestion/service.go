package ingestion

import (
	"context"
	"time"

	v1 "github.com/aevon-lab/rollupd/internal/api/v1"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Ingester admits events into the aggregation engines.
type Ingester interface {
	Ingest(ctx context.Context, evt *v1.Event) error
	IngestBatch(ctx context.Context, events []*v1.Event) []error
}

type Service struct {
	ingester         Ingester
	maxBodySizeBytes int
	nowFn            func() time.Time
}

func NewService(ingester Ingester, maxBodySizeMB int) *Service {
	if ingester == nil {
		panic("ingestion: ingester must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		ingester:         ingester,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		nowFn:            time.Now,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.IngestHandler)
	r.POST("/v1/events/batch", s.IngestBatchHandler)
}

// Stamp assigns an ID when the producer sent none and records the arrival time.
func Stamp(evt *v1.Event, now time.Time) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.IngestedAt = now.UTC()
}
