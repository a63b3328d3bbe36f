package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "trustmesh/pkg/platform/audit"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	failN   int
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make(kgo.ProduceResults, 0, len(rs))
	if p.failN > 0 {
		p.failN--
		for _, r := range rs {
			results = append(results, kgo.ProduceResult{Record: r, Err: errors.New("broker unavailable")})
		}
		return results
	}
	p.records = append(p.records, rs...)
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r})
	}
	return results
}

func TestSink_FlushDeliversInBatches(t *testing.T) {
	producer := &fakeProducer{}
	sink := New(producer, "audit", WithBatchSize(2))

	for _, subject := range []string{"a", "b", "c"} {
		require.NoError(t, sink.Append(context.Background(), audit.Event{Subject: subject, Action: "connection_established"}))
	}
	require.NoError(t, sink.Flush(context.Background()))

	require.Len(t, producer.records, 3)
	assert.Equal(t, 0, sink.Pending())
	assert.Equal(t, "audit", producer.records[0].Topic)
	assert.Equal(t, []byte("a"), producer.records[0].Key)

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(producer.records[2].Value, &decoded))
	assert.Equal(t, "c", decoded.Subject)
}

func TestSink_FailedBatchIsRequeuedInOrder(t *testing.T) {
	producer := &fakeProducer{failN: 1}
	sink := New(producer, "audit", WithBatchSize(10))

	require.NoError(t, sink.Append(context.Background(), audit.Event{Subject: "first"}))
	require.NoError(t, sink.Append(context.Background(), audit.Event{Subject: "second"}))

	require.Error(t, sink.Flush(context.Background()))
	assert.Equal(t, 2, sink.Pending())

	require.NoError(t, sink.Flush(context.Background()))
	require.Len(t, producer.records, 2)
	assert.Equal(t, []byte("first"), producer.records[0].Key)
	assert.Equal(t, []byte("second"), producer.records[1].Key)
}

func TestRingBuffer_DropsOldestWhenFull(t *testing.T) {
	b := NewRingBuffer(2)
	b.Enqueue(audit.Event{Subject: "1"})
	b.Enqueue(audit.Event{Subject: "2"})
	b.Enqueue(audit.Event{Subject: "3"})

	assert.Equal(t, int64(1), b.Dropped())
	batch := b.DequeueBatch(5)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].Subject)
	assert.Equal(t, "3", batch[1].Subject)
}

func TestRingBuffer_RequeueOverflowCountsDrops(t *testing.T) {
	b := NewRingBuffer(2)
	b.Enqueue(audit.Event{Subject: "new"})
	b.Requeue([]audit.Event{{Subject: "old-1"}, {Subject: "old-2"}})

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, int64(1), b.Dropped())
	batch := b.DequeueBatch(2)
	assert.Equal(t, "old-2", batch[0].Subject)
	assert.Equal(t, "new", batch[1].Subject)
}
