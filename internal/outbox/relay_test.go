package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/spotledger/pkg/eventbus"
	"github.com/wyfcoding/spotledger/pkg/mq"
)

type fakeStore struct {
	toClaim   []*Record
	published []uint
	failed    []failedMark
	dead      []deadMark
}

type failedMark struct {
	id            uint
	attemptCount  int
	lastError     string
	nextAttemptAt time.Time
}

type deadMark struct {
	id           uint
	attemptCount int
	lastError    string
}

func (f *fakeStore) Append(ctx context.Context, record *Record) error {
	return nil
}

func (f *fakeStore) ClaimBatch(ctx context.Context, batchSize int, staleAfter time.Duration) ([]*Record, error) {
	records := f.toClaim
	f.toClaim = nil
	return records, nil
}

func (f *fakeStore) MarkPublished(ctx context.Context, id uint) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, id uint, attemptCount int, lastError string, nextAttemptAt time.Time) error {
	f.failed = append(f.failed, failedMark{id, attemptCount, lastError, nextAttemptAt})
	return nil
}

func (f *fakeStore) MarkDead(ctx context.Context, id uint, attemptCount int, lastError string) error {
	f.dead = append(f.dead, deadMark{id, attemptCount, lastError})
	return nil
}

type publishedMessage struct {
	topic   string
	key     string
	value   []byte
	headers []kafka.Header
}

type fakeProducer struct {
	failures int
	messages []publishedMessage
}

func (f *fakeProducer) Publish(ctx context.Context, topic, key string, value []byte, headers ...kafka.Header) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.messages = append(f.messages, publishedMessage{topic: topic, key: key, value: value, headers: headers})
	return nil
}

func relayConfig(maxAttempts int) RelayConfig {
	return RelayConfig{
		BatchSize:    10,
		PollInterval: 10 * time.Millisecond,
		MaxAttempts:  maxAttempts,
		Backoff:      mq.Backoff{Base: time.Second, Cap: time.Minute},
		StaleAfter:   time.Minute,
		Producer:     "wallet",
	}
}

func testRecord(t *testing.T, id uint) *Record {
	t.Helper()
	rec, err := NewRecord("wallet", "acct-1", "balances.updated", 1,
		eventbus.TopicBalancesUpdated, "acct-1", "corr-1",
		map[string]string{"account_id": "acct-1"})
	require.NoError(t, err)
	rec.ID = id
	rec.CreatedAt = time.Now().UTC()
	return rec
}

func TestRunOncePublishesClaimedRecords(t *testing.T) {
	store := &fakeStore{toClaim: []*Record{testRecord(t, 1), testRecord(t, 2)}}
	producer := &fakeProducer{}
	relay := NewRelay(store, producer, relayConfig(25), nil)

	require.NoError(t, relay.RunOnce(context.Background()))

	assert.Equal(t, []uint{1, 2}, store.published)
	assert.Empty(t, store.failed)
	require.Len(t, producer.messages, 2)

	msg := producer.messages[0]
	assert.Equal(t, eventbus.TopicBalancesUpdated, msg.topic)
	assert.Equal(t, "acct-1", msg.key)

	headers := make(map[string]string)
	for _, h := range msg.headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "balances.updated", headers[eventbus.HeaderEventType])
	assert.Equal(t, "1", headers[eventbus.HeaderEventVersion])
	assert.Equal(t, "corr-1", headers[eventbus.HeaderCorrelationID])
	assert.Equal(t, eventbus.ContentTypeJSON, headers[eventbus.HeaderContentType])

	env, err := eventbus.Decode[json.RawMessage](msg.value)
	require.NoError(t, err)
	assert.Equal(t, "balances.updated", env.EventType)
	assert.Equal(t, "wallet", env.Producer)
	assert.JSONEq(t, `{"account_id":"acct-1"}`, string(env.Payload))
}

func TestRunOnceSchedulesRetryOnPublishFailure(t *testing.T) {
	rec := testRecord(t, 7)
	rec.AttemptCount = 2
	store := &fakeStore{toClaim: []*Record{rec}}
	producer := &fakeProducer{failures: 1}
	relay := NewRelay(store, producer, relayConfig(25), nil)

	before := time.Now().UTC()
	require.NoError(t, relay.RunOnce(context.Background()))

	assert.Empty(t, store.published)
	assert.Empty(t, store.dead)
	require.Len(t, store.failed, 1)
	mark := store.failed[0]
	assert.Equal(t, uint(7), mark.id)
	assert.Equal(t, 3, mark.attemptCount)
	assert.Contains(t, mark.lastError, "broker unavailable")
	assert.True(t, mark.nextAttemptAt.After(before), "next attempt must be in the future")
}

func TestRunOnceMarksDeadAfterExhaustingAttempts(t *testing.T) {
	rec := testRecord(t, 9)
	rec.AttemptCount = 24
	store := &fakeStore{toClaim: []*Record{rec}}
	producer := &fakeProducer{failures: 1}
	relay := NewRelay(store, producer, relayConfig(24), nil)

	require.NoError(t, relay.RunOnce(context.Background()))

	assert.Empty(t, store.failed)
	require.Len(t, store.dead, 1)
	assert.Equal(t, uint(9), store.dead[0].id)
	assert.Equal(t, 25, store.dead[0].attemptCount)
}

func TestRunOnceRejectsCorruptPayload(t *testing.T) {
	rec := testRecord(t, 3)
	rec.EventPayload = "{not-json"
	store := &fakeStore{toClaim: []*Record{rec}}
	producer := &fakeProducer{}
	relay := NewRelay(store, producer, relayConfig(25), nil)

	require.NoError(t, relay.RunOnce(context.Background()))

	assert.Empty(t, producer.messages, "corrupt payload must never reach the bus")
	assert.Empty(t, store.published)
	require.Len(t, store.failed, 1)
}

func TestRunOnceContinuesPastFailingRecord(t *testing.T) {
	store := &fakeStore{toClaim: []*Record{testRecord(t, 1), testRecord(t, 2)}}
	producer := &fakeProducer{failures: 1}
	relay := NewRelay(store, producer, relayConfig(25), nil)

	require.NoError(t, relay.RunOnce(context.Background()))

	assert.Equal(t, []uint{2}, store.published, "one failure must not block the batch")
	require.Len(t, store.failed, 1)
	assert.Equal(t, uint(1), store.failed[0].id)
}

func TestNewRecordValidation(t *testing.T) {
	_, err := NewRecord("wallet", "a", "balances.updated", 1, "Bad.Topic", "a", "c", nil)
	assert.Error(t, err, "invalid topic must be rejected before any I/O")

	_, err = NewRecord("wallet", "a", "balances.updated", 0, eventbus.TopicBalancesUpdated, "a", "c", nil)
	assert.Error(t, err)

	_, err = NewRecord("wallet", "a", "balances.updated", 1, eventbus.TopicBalancesUpdated, "", "c", nil)
	assert.Error(t, err)

	rec, err := NewRecord("wallet", "a", "balances.updated", 1, eventbus.TopicBalancesUpdated, "a", "c", map[string]int{"v": 1})
	require.NoError(t, err)
	assert.Equal(t, StatusNew, rec.Status)
	assert.NotEmpty(t, rec.EventID)
	assert.JSONEq(t, `{"v":1}`, rec.EventPayload)
}
