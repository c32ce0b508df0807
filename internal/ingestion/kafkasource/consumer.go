// Package kafkasource feeds events read from a Kafka topic into the
// aggregation engines.
package kafkasource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	v1 "github.com/aevon-lab/rollupd/internal/api/v1"
	"github.com/aevon-lab/rollupd/internal/ingestion"
	"github.com/aevon-lab/rollupd/internal/metrics"
)

const (
	sourceLabel        = "kafka"
	defaultPollTimeout = 5 * time.Second
)

// Config captures the reader settings.
type Config struct {
	Brokers     []string
	Topic       string
	GroupID     string
	MinBytes    int
	MaxBytes    int
	PollTimeout time.Duration
}

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads JSON events from a topic and ingests them. A message is
// committed once its event has been admitted, or once it is known it never
// will be (malformed, unrouted). Messages are left uncommitted when the
// engines are shutting down, so they are redelivered after restart.
type Consumer struct {
	cfg      Config
	reader   messageReader
	ingester ingestion.Ingester
	nowFn    func() time.Time
}

// New builds a consumer-group reader for cfg.
func New(cfg Config, ingester ingestion.Ingester) (*Consumer, error) {
	if ingester == nil {
		return nil, errors.New("kafkasource: ingester must not be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafkasource: at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafkasource: topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafkasource: consumer group must not be empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10e6
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
	})
	return newConsumer(cfg, reader, ingester), nil
}

func newConsumer(cfg Config, reader messageReader, ingester ingestion.Ingester) *Consumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Consumer{cfg: cfg, reader: reader, ingester: ingester, nowFn: time.Now}
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("[Kafka] Consumer started",
		"topic", c.cfg.Topic,
		"group", c.cfg.GroupID,
		"brokers", strings.Join(c.cfg.Brokers, ","),
	)
	defer slog.Info("[Kafka] Consumer stopped", "topic", c.cfg.Topic)

	for {
		if ctx.Err() != nil {
			return nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return nil
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			slog.Error("[Kafka] Fetch failed", "topic", c.cfg.Topic, "error", err)
			metrics.SourceMessages.WithLabelValues(sourceLabel, "fetch_error").Inc()
			continue
		}

		if !c.handle(ctx, msg) {
			return nil
		}
	}
}

// handle ingests one message and commits it when appropriate. It returns
// false when consumption must stop.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	evt, err := decodeEvent(msg.Value)
	outcome := ingestion.Rejected
	if err == nil {
		ingestion.Stamp(evt, c.nowFn())
		err = c.ingester.Ingest(ctx, evt)
		outcome = ingestion.Classify(err)
	}
	metrics.SourceMessages.WithLabelValues(sourceLabel, outcome.String()).Inc()

	switch outcome {
	case ingestion.Accepted:
	case ingestion.ShuttingDown:
		slog.Info("[Kafka] Engines closed, leaving message uncommitted", "offset", msg.Offset)
		return false
	case ingestion.Deferred:
		slog.Warn("[Kafka] Event admitted with deferred cascade", "offset", msg.Offset, "error", err)
	default:
		slog.Warn("[Kafka] Skipping message",
			"offset", msg.Offset,
			"partition", msg.Partition,
			"outcome", outcome.String(),
			"error", err,
		)
	}

	commitCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()
	if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
		if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
			slog.Error("[Kafka] Commit failed", "offset", msg.Offset, "error", err)
		}
	}
	return true
}

// decodeEvent decodes a message value as an event envelope, keeping numbers
// as json.Number.
func decodeEvent(raw []byte) (*v1.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var evt v1.Event
	if err := dec.Decode(&evt); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return &evt, nil
}
