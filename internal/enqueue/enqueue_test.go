package enqueue

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suredone/qdone/internal/backoff"
	"github.com/suredone/qdone/internal/config"
	"github.com/suredone/qdone/internal/dedup"
	"github.com/suredone/qdone/internal/qerrors"
	"github.com/suredone/qdone/internal/resolver"
	"github.com/suredone/qdone/internal/sqsapi"
	"github.com/suredone/qdone/internal/sqsapi/sqsapitest"
	"github.com/suredone/qdone/internal/urlcache"
)

func newPipeline(fake *sqsapitest.Fake) *Pipeline {
	res := resolver.New(fake, urlcache.New())
	bc := backoff.New(backoff.WithBase(1), backoff.WithJitterFraction(0.1))
	return New(fake, res, bc, nil)
}

func countCallsWithPrefix(fake *sqsapitest.Fake, prefix string) int {
	n := 0
	for _, c := range fake.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestEnqueueOne_RoundTrip(t *testing.T) {
	fake := sqsapitest.New()
	p := newPipeline(fake)

	_, err := p.EnqueueOne(context.Background(), "testqueue", "true", config.Default())
	require.NoError(t, err)

	url, err := fake.GetQueueURL(context.Background(), "qdone_testqueue")
	require.NoError(t, err)

	got, err := fake.ReceiveMessage(context.Background(), url, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "true", got[0].Body)
}

func TestEnqueueOne_ExternalDedupSuppressesDuplicate(t *testing.T) {
	fake := sqsapitest.New()
	res := resolver.New(fake, urlcache.New())
	bc := backoff.New(backoff.WithBase(1), backoff.WithJitterFraction(0.1))
	store := dedup.NewMemoryStore()
	p := New(fake, res, bc, store)

	o := config.Default()
	o.ExternalDedup = true

	_, err := p.EnqueueOne(context.Background(), "testqueue", "true", o)
	require.NoError(t, err)

	sendsBefore := countCallsWithPrefix(fake, "SendMessage:")

	_, err = p.EnqueueOne(context.Background(), "testqueue", "true", o)
	require.NoError(t, err)

	assert.Equal(t, sendsBefore, countCallsWithPrefix(fake, "SendMessage:"),
		"second identical send must be suppressed")
}

func TestEnqueueOne_RollsBackSuppressionOnNonRetryableFailure(t *testing.T) {
	fake := sqsapitest.New()
	url := fake.SeedQueue("qdone_testqueue", nil)
	res := resolver.New(fake, urlcache.New())
	bc := backoff.New(backoff.WithBase(1), backoff.WithJitterFraction(0.1))
	store := dedup.NewMemoryStore()
	p := New(fake, res, bc, store)

	denied := qerrors.AccessDenied(assert.AnError)
	fake.SendMessageFunc = func(ctx context.Context, in sqsapi.SendMessageInput) (sqsapi.SendMessageOutput, error) {
		return sqsapi.SendMessageOutput{}, denied
	}

	o := config.Default()
	o.ExternalDedup = true

	_, err := p.EnqueueOne(context.Background(), "testqueue", "true", o)
	assert.ErrorIs(t, err, denied)

	msg := dedup.Message{QueueName: url, Body: "true"}
	assert.True(t, store.ShouldEnqueue(msg), "a rolled-back suppression must not still be marked processed")
}

func TestEnqueueOne_RetryableFailureKeepsSuppression(t *testing.T) {
	fake := sqsapitest.New()
	url := fake.SeedQueue("qdone_testqueue", nil)
	res := resolver.New(fake, urlcache.New())
	bc := backoff.New(backoff.WithBase(1), backoff.WithJitterFraction(0.1), backoff.WithMaxRetries(0))
	store := dedup.NewMemoryStore()
	p := New(fake, res, bc, store)

	throttled := qerrors.Throttled(assert.AnError)
	fake.SendMessageFunc = func(ctx context.Context, in sqsapi.SendMessageInput) (sqsapi.SendMessageOutput, error) {
		return sqsapi.SendMessageOutput{}, throttled
	}

	o := config.Default()
	o.ExternalDedup = true

	_, err := p.EnqueueOne(context.Background(), "testqueue", "true", o)
	assert.Error(t, err)

	msg := dedup.Message{QueueName: url, Body: "true"}
	assert.False(t, store.ShouldEnqueue(msg), "a retryable failure must not roll back the suppression")
}

func TestFormatMessage_NonFifoHasNoFifoAttributes(t *testing.T) {
	o := config.Default()
	entry := formatMessage("true", 1, o)

	assert.Equal(t, "1", entry.ID)
	assert.Empty(t, entry.GroupID)
	assert.Empty(t, entry.DeduplicationID)
}

func TestFormatMessage_FifoHasBothAttributesOnEveryEntry(t *testing.T) {
	o := config.Default()
	o.FIFO = true
	o.GroupID = "mygroup"

	e1 := formatMessage("true", 1, o)
	e2 := formatMessage("true", 2, o)

	assert.Equal(t, "mygroup", e1.GroupID)
	assert.Equal(t, "mygroup", e2.GroupID)
	assert.NotEmpty(t, e1.DeduplicationID)
	assert.NotEmpty(t, e2.DeduplicationID)
	assert.NotEqual(t, e1.DeduplicationID, e2.DeduplicationID, "each entry gets a fresh dedup id")
}

func TestFormatMessage_GroupIDPerMessage(t *testing.T) {
	o := config.Default()
	o.FIFO = true
	o.GroupIDPerMessage = true

	e1 := formatMessage("true", 1, o)
	e2 := formatMessage("true", 2, o)

	assert.NotEqual(t, e1.GroupID, e2.GroupID)
}

func TestFormatMessage_EmptyGroupIDDefaultsToFreshUIDPerEntry(t *testing.T) {
	o := config.Default()
	o.FIFO = true

	e1 := formatMessage("true", 1, o)
	e2 := formatMessage("true", 2, o)

	assert.NotEmpty(t, e1.GroupID, "an unset group id must never reach SQS empty on a FIFO queue")
	assert.NotEmpty(t, e2.GroupID)
	assert.NotEqual(t, e1.GroupID, e2.GroupID)
}

func TestEnqueueBatch_24MessagesProduceThreeBatchCalls(t *testing.T) {
	fake := sqsapitest.New()
	p := newPipeline(fake)

	pairs := make([]Pair, 24)
	for i := range pairs {
		pairs[i] = Pair{Queue: "test", Command: "true"}
	}

	sent, err := p.EnqueueBatch(context.Background(), pairs, config.Default())

	require.NoError(t, err)
	assert.Equal(t, 24, sent)
	assert.Equal(t, 3, countCallsWithPrefix(fake, "SendMessageBatch:"))
}

func TestEnqueueBatch_NonFifoCarriesNoFifoAttributes(t *testing.T) {
	fake := sqsapitest.New()
	var mu sync.Mutex
	var seen []sqsapi.BatchEntry
	fake.SendMessageBatchFunc = func(ctx context.Context, url string, entries []sqsapi.BatchEntry) (sqsapi.BatchResult, error) {
		mu.Lock()
		seen = append(seen, entries...)
		mu.Unlock()
		result := sqsapi.BatchResult{}
		for _, e := range entries {
			result.Successful = append(result.Successful, "msg-"+e.ID)
		}
		return result, nil
	}
	fake.SeedQueue("qdone_test", nil)

	p := newPipeline(fake)
	pairs := []Pair{{Queue: "test", Command: "true"}, {Queue: "test", Command: "false"}}

	_, err := p.EnqueueBatch(context.Background(), pairs, config.Default())
	require.NoError(t, err)

	require.Len(t, seen, 2)
	for _, e := range seen {
		assert.Empty(t, e.GroupID)
		assert.Empty(t, e.DeduplicationID)
	}
}

func TestEnqueueBatch_FifoCarriesGroupAndDedupOnEveryEntry(t *testing.T) {
	fake := sqsapitest.New()
	var mu sync.Mutex
	var seen []sqsapi.BatchEntry
	fake.SendMessageBatchFunc = func(ctx context.Context, url string, entries []sqsapi.BatchEntry) (sqsapi.BatchResult, error) {
		mu.Lock()
		seen = append(seen, entries...)
		mu.Unlock()
		result := sqsapi.BatchResult{}
		for _, e := range entries {
			result.Successful = append(result.Successful, "msg-"+e.ID)
		}
		return result, nil
	}

	p := newPipeline(fake)
	o := config.Default()
	o.FIFO = true
	o.GroupID = "mygroup"

	pairs := make([]Pair, 24)
	for i := range pairs {
		pairs[i] = Pair{Queue: "test", Command: "true"}
	}

	_, err := p.EnqueueBatch(context.Background(), pairs, o)
	require.NoError(t, err)

	require.Len(t, seen, 24)
	ids := make(map[string]struct{})
	for _, e := range seen {
		assert.Equal(t, "mygroup", e.GroupID)
		assert.NotEmpty(t, e.DeduplicationID)
		ids[e.ID] = struct{}{}
	}
	assert.Len(t, ids, 24, "every entry id must be unique")
}

func TestEnqueueBatch_EachEntryIDIsUniqueWithinABatchCall(t *testing.T) {
	fake := sqsapitest.New()
	var mu sync.Mutex
	var callSizes []int
	fake.SendMessageBatchFunc = func(ctx context.Context, url string, entries []sqsapi.BatchEntry) (sqsapi.BatchResult, error) {
		seenIDs := make(map[string]struct{})
		for _, e := range entries {
			_, dup := seenIDs[e.ID]
			assert.False(t, dup, "duplicate id within one batch call")
			seenIDs[e.ID] = struct{}{}
		}
		mu.Lock()
		callSizes = append(callSizes, len(entries))
		mu.Unlock()
		result := sqsapi.BatchResult{}
		for _, e := range entries {
			result.Successful = append(result.Successful, "msg-"+e.ID)
		}
		return result, nil
	}

	p := newPipeline(fake)
	pairs := make([]Pair, 24)
	for i := range pairs {
		pairs[i] = Pair{Queue: "test", Command: "true"}
	}

	_, err := p.EnqueueBatch(context.Background(), pairs, config.Default())
	require.NoError(t, err)

	total := 0
	for _, n := range callSizes {
		total += n
		assert.LessOrEqual(t, n, maxBatchEntries)
	}
	assert.Equal(t, 24, total)
	assert.Len(t, callSizes, 3)
}

func TestEnqueueBatch_ConcurrentCallsOwnIndependentBuffers(t *testing.T) {
	fake := sqsapitest.New()
	p := newPipeline(fake)

	nonFifoPairs := make([]Pair, 15)
	for i := range nonFifoPairs {
		nonFifoPairs[i] = Pair{Queue: "plain", Command: "true"}
	}
	fifoPairs := make([]Pair, 15)
	for i := range fifoPairs {
		fifoPairs[i] = Pair{Queue: "fifoq", Command: "true"}
	}

	fifoOpts := config.Default()
	fifoOpts.FIFO = true
	fifoOpts.GroupID = "g"

	var wg sync.WaitGroup
	var nonFifoSent, fifoSent int
	var nonFifoErr, fifoErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		nonFifoSent, nonFifoErr = p.EnqueueBatch(context.Background(), nonFifoPairs, config.Default())
	}()
	go func() {
		defer wg.Done()
		fifoSent, fifoErr = p.EnqueueBatch(context.Background(), fifoPairs, fifoOpts)
	}()
	wg.Wait()

	require.NoError(t, nonFifoErr)
	require.NoError(t, fifoErr)
	assert.Equal(t, 15, nonFifoSent)
	assert.Equal(t, 15, fifoSent)
}

func TestEnqueueBatch_Empty(t *testing.T) {
	fake := sqsapitest.New()
	p := newPipeline(fake)

	sent, err := p.EnqueueBatch(context.Background(), nil, config.Default())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestEnqueueBatch_PartialFailureSurfacesError(t *testing.T) {
	fake := sqsapitest.New()
	fake.SendMessageBatchFunc = func(ctx context.Context, url string, entries []sqsapi.BatchEntry) (sqsapi.BatchResult, error) {
		return sqsapi.BatchResult{
			Failed: []qerrors.BatchEntryFailure{{ID: "2", Code: "InternalError", Message: "boom"}},
		}, nil
	}

	p := newPipeline(fake)
	pairs := []Pair{{Queue: "test", Command: "true"}, {Queue: "test", Command: "false"}}

	_, err := p.EnqueueBatch(context.Background(), pairs, config.Default())
	assert.Error(t, err)
	assert.True(t, qerrors.Is(err, qerrors.KindBatchPartial))
}

func TestEnqueueBatch_ExternalDedupSuppressesDuplicateEntries(t *testing.T) {
	fake := sqsapitest.New()
	fake.SeedQueue("qdone_test", nil)
	res := resolver.New(fake, urlcache.New())
	bc := backoff.New(backoff.WithBase(1), backoff.WithJitterFraction(0.1))
	store := dedup.NewMemoryStore()
	p := New(fake, res, bc, store)

	o := config.Default()
	o.ExternalDedup = true

	pairs := []Pair{
		{Queue: "test", Command: "true"},
		{Queue: "test", Command: "false"},
	}

	sent, err := p.EnqueueBatch(context.Background(), pairs, o)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sendCallsBefore := countCallsWithPrefix(fake, "SendMessageBatch:")
	assert.Equal(t, 1, sendCallsBefore, "both fresh entries go out in a single batch call")

	sent, err = p.EnqueueBatch(context.Background(), pairs, o)
	require.NoError(t, err)
	assert.Equal(t, 2, sent, "suppressed duplicates still count as sent from the caller's perspective")
	assert.Equal(t, sendCallsBefore, countCallsWithPrefix(fake, "SendMessageBatch:"),
		"a batch of entirely-duplicate entries must not call SendMessageBatch again")
}

func TestEnqueueBatch_ExternalDedupSuppressesOnlyTheDuplicateSubset(t *testing.T) {
	fake := sqsapitest.New()
	fake.SeedQueue("qdone_test", nil)
	res := resolver.New(fake, urlcache.New())
	bc := backoff.New(backoff.WithBase(1), backoff.WithJitterFraction(0.1))
	store := dedup.NewMemoryStore()
	p := New(fake, res, bc, store)

	o := config.Default()
	o.ExternalDedup = true

	_, err := p.EnqueueBatch(context.Background(), []Pair{{Queue: "test", Command: "true"}}, o)
	require.NoError(t, err)

	var seen []sqsapi.BatchEntry
	fake.SendMessageBatchFunc = func(ctx context.Context, url string, entries []sqsapi.BatchEntry) (sqsapi.BatchResult, error) {
		seen = append(seen, entries...)
		result := sqsapi.BatchResult{}
		for _, e := range entries {
			result.Successful = append(result.Successful, "msg-"+e.ID)
		}
		return result, nil
	}

	sent, err := p.EnqueueBatch(context.Background(), []Pair{
		{Queue: "test", Command: "true"},
		{Queue: "test", Command: "false"},
	}, o)
	require.NoError(t, err)

	assert.Equal(t, 2, sent)
	require.Len(t, seen, 1, "only the fresh entry should reach SendMessageBatch")
	assert.Equal(t, "false", seen[0].Body)
}

func TestTakeBoundedPrefix_AlwaysTakesAtLeastOne(t *testing.T) {
	huge := sqsapi.BatchEntry{ID: "1", Body: strings.Repeat("x", maxBatchBytes+1)}
	batch, rest := takeBoundedPrefix([]sqsapi.BatchEntry{huge})
	assert.Len(t, batch, 1)
	assert.Empty(t, rest)
}

func TestTakeBoundedPrefix_CapsAtMaxEntries(t *testing.T) {
	entries := make([]sqsapi.BatchEntry, maxBatchEntries+3)
	for i := range entries {
		entries[i] = sqsapi.BatchEntry{ID: strconv.Itoa(i), Body: "x"}
	}
	batch, rest := takeBoundedPrefix(entries)
	assert.Len(t, batch, maxBatchEntries)
	assert.Len(t, rest, 3)
}
