package kafkasource

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	v1 "github.com/aevon-lab/rollupd/internal/api/v1"
	coreagg "github.com/aevon-lab/rollupd/internal/core/aggregation"
	ingestionmocks "github.com/aevon-lab/rollupd/internal/mocks/ingestion"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeReader replays a fixed list of messages, then reports EOF.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "trades", Offset: offset, Value: []byte(value)}
}

func TestConsumer_IngestsAndCommits(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		message(1, `{"stream":"stockStream","data":{"symbol":"IBM","price":100}}`),
		message(2, `not json`),
		message(3, `{"stream":"stockStream","data":{"symbol":"HPQ","price":"x"}}`),
		message(4, `{"stream":"stockStream","data":{"symbol":"WSO2","price":50}}`),
	}}

	ingester := ingestionmocks.NewIngester(t)
	ingester.EXPECT().
		Ingest(mock.Anything, mock.MatchedBy(func(e *v1.Event) bool { return e.Data["symbol"] == "IBM" })).
		Return(nil).Once()
	ingester.EXPECT().
		Ingest(mock.Anything, mock.MatchedBy(func(e *v1.Event) bool { return e.Data["price"] == "x" })).
		Return(fmt.Errorf("engine stock: %w", coreagg.ErrInvalidEvent)).Once()
	ingester.EXPECT().
		Ingest(mock.Anything, mock.MatchedBy(func(e *v1.Event) bool {
			return e.Data["symbol"] == "WSO2" && e.ID != "" && !e.IngestedAt.IsZero()
		})).
		Return(fmt.Errorf("engine stock: %w", coreagg.ErrStorageUnavailable)).Once()

	c := newConsumer(Config{Topic: "trades", PollTimeout: time.Second}, reader, ingester)
	require.NoError(t, c.Run(context.Background()))

	require.Equal(t, []int64{1, 2, 3, 4}, reader.committed)
}

func TestConsumer_StopsWithoutCommitWhenClosed(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		message(7, `{"stream":"stockStream","data":{"symbol":"IBM"}}`),
		message(8, `{"stream":"stockStream","data":{"symbol":"IBM"}}`),
	}}

	ingester := ingestionmocks.NewIngester(t)
	ingester.EXPECT().Ingest(mock.Anything, mock.Anything).
		Return(fmt.Errorf("engine stock: %w", coreagg.ErrClosed)).Once()

	c := newConsumer(Config{Topic: "trades"}, reader, ingester)
	require.NoError(t, c.Run(context.Background()))

	require.Empty(t, reader.committed)
	require.Len(t, reader.messages, 1)
}

// blockingReader blocks on fetch until its context ends.
type blockingReader struct{ fakeReader }

func (r *blockingReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	ingester := ingestionmocks.NewIngester(t)
	c := newConsumer(Config{Topic: "trades", PollTimeout: 20 * time.Millisecond}, &blockingReader{}, ingester)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestNew_Validation(t *testing.T) {
	ingester := ingestionmocks.NewIngester(t)

	_, err := New(Config{Topic: "t", GroupID: "g"}, ingester)
	require.Error(t, err)
	_, err = New(Config{Brokers: []string{"b:9092"}, GroupID: "g"}, ingester)
	require.Error(t, err)
	_, err = New(Config{Brokers: []string{"b:9092"}, Topic: "t"}, ingester)
	require.Error(t, err)
	_, err = New(Config{Brokers: []string{"b:9092"}, Topic: "t", GroupID: "g"}, nil)
	require.Error(t, err)
}

func TestDecodeEvent(t *testing.T) {
	evt, err := decodeEvent([]byte(`{"id":"e1","stream":"s","timestamp":"2017-06-01 04:05:50","data":{"v":1.5}}`))
	require.NoError(t, err)
	require.Equal(t, "e1", evt.ID)
	require.Equal(t, "2017-06-01 04:05:50", evt.Timestamp)

	_, err = decodeEvent([]byte(`{"data":{}}`))
	require.Error(t, err)
	_, err = decodeEvent([]byte(`{`))
	require.Error(t, err)
}
