// Package enqueue implements the single-send and batched-send enqueue
// pipeline (spec §4.E): message construction, FIFO attribute attachment,
// per-URL batch buffering bounded by the service's batch limits, and
// retrying throttled sends through the backoff controller.
package enqueue

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/samber/lo"

	"github.com/suredone/qdone/internal/backoff"
	"github.com/suredone/qdone/internal/config"
	"github.com/suredone/qdone/internal/dedup"
	"github.com/suredone/qdone/internal/names"
	"github.com/suredone/qdone/internal/qerrors"
	"github.com/suredone/qdone/internal/resolver"
	"github.com/suredone/qdone/internal/sqsapi"
)

// maxBatchEntries and maxBatchBytes are the hosted service's own
// SendMessageBatch limits (spec §3).
const (
	maxBatchEntries = 10
	maxBatchBytes   = 262144
)

// Pair is one (queue, command) entry of a batch submission.
type Pair struct {
	Queue   string
	Command string
}

// Pipeline is the enqueue pipeline, built over a Resolver (for queue
// discovery/provisioning), a backoff Controller (for retried sends), and
// an optional deduplication Store.
type Pipeline struct {
	api      sqsapi.API
	resolver *resolver.Resolver
	backoff  *backoff.Controller
	dedup    dedup.Store
}

// New builds a Pipeline. store may be nil when Options.ExternalDedup is unset.
func New(api sqsapi.API, res *resolver.Resolver, bc *backoff.Controller, store dedup.Store) *Pipeline {
	return &Pipeline{api: api, resolver: res, backoff: bc, dedup: store}
}

// EnqueueOne resolves (creating if necessary) the named queue, constructs a
// single message with FIFO/dedup/delay attributes as configured, optionally
// consults the deduplication store, and sends the message via the backoff
// controller.
func (p *Pipeline) EnqueueOne(ctx context.Context, queue, command string, o config.Options) (sqsapi.SendMessageOutput, error) {
	url, err := p.resolver.Resolve(ctx, queue, resolver.CreateIfMissing, o)
	if err != nil {
		return sqsapi.SendMessageOutput{}, err
	}

	in := sqsapi.SendMessageInput{QueueURL: url, Body: command}
	if o.Delay > 0 {
		in.DelaySeconds = int32(o.Delay.Seconds())
	}
	if o.FIFO {
		in.GroupID = o.GroupID
		if in.GroupID == "" {
			in.GroupID = freshUID()
		}
		in.DeduplicationID = o.DeduplicationID
		if in.DeduplicationID == "" {
			in.DeduplicationID = freshUID()
		}
	}

	dedupMsg := dedup.Message{QueueName: url, Body: command}
	marked := false
	if o.ExternalDedup && p.dedup != nil {
		if !p.dedup.ShouldEnqueue(dedupMsg) {
			return sqsapi.SendMessageOutput{MessageID: freshUID()}, nil
		}
		p.dedup.SuccessfullyProcessed(dedupMsg)
		marked = true
	}

	out, err := backoff.Run(ctx, p.backoff,
		func(attempt int) (sqsapi.SendMessageOutput, error) {
			return p.api.SendMessage(ctx, in)
		},
		func(result sqsapi.SendMessageOutput, err error) bool {
			return err != nil && qerrors.Retryable(err)
		},
	)
	if err != nil && marked && !qerrors.Retryable(err) {
		p.dedup.Rollback(dedupMsg)
	}
	return out, err
}

// EnqueueBatch resolves/creates every distinct queue named in pairs in
// parallel, then - after consulting the deduplication store, if one is
// wired - walks the surviving pairs in input order appending formatted
// messages to a fresh, call-local per-URL buffer, flushing a queue's
// buffer whenever it reaches the batch entry limit, and finally flushing
// every remaining non-empty buffer in parallel. It returns the total
// number of messages successfully sent, counting suppressed duplicates as
// sent since the caller already got what it asked for.
func (p *Pipeline) EnqueueBatch(ctx context.Context, pairs []Pair, o config.Options) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}

	normalisedNames := make([]string, len(pairs))
	for i, pr := range pairs {
		normalisedNames[i] = names.Normalise(pr.Queue, o)
	}

	urlByName, err := p.resolveAll(ctx, lo.Uniq(normalisedNames), o)
	if err != nil {
		return 0, err
	}

	suppressed := 0
	if o.ExternalDedup && p.dedup != nil {
		pairs, normalisedNames, suppressed = p.suppressDuplicates(pairs, normalisedNames, urlByName)
	}

	buffers := make(map[string][]sqsapi.BatchEntry)
	sent := 0
	nextID := 0

	for i, pr := range pairs {
		url := urlByName[normalisedNames[i]]
		nextID++
		buffers[url] = append(buffers[url], formatMessage(pr.Command, nextID, o))

		if len(buffers[url]) >= maxBatchEntries {
			n, err := p.flush(ctx, url, buffers[url])
			sent += n
			if err != nil {
				return suppressed + sent, err
			}
			buffers[url] = nil
		}
	}

	n, err := p.flushRemaining(ctx, buffers)
	return suppressed + sent + n, err
}

// suppressDuplicates runs pairs through the dedup store's batch filter,
// dropping already-processed (queue, body) pairs and marking every
// surviving one processed up front. There is no per-entry rollback on a
// later send failure here, unlike EnqueueOne: entries whose send fails stay
// marked processed, so a later EnqueueBatch through the same store
// suppresses them as duplicates.
func (p *Pipeline) suppressDuplicates(pairs []Pair, normalisedNames []string, urlByName map[string]string) ([]Pair, []string, int) {
	msgs := make([]dedup.Message, len(pairs))
	for i, pr := range pairs {
		msgs[i] = dedup.Message{QueueName: urlByName[normalisedNames[i]], Body: pr.Command}
	}

	kept := p.dedup.ShouldEnqueueMulti(msgs)
	keptSet := make(map[int]struct{}, len(kept))
	ki := 0
	for i, m := range msgs {
		if ki < len(kept) && m == kept[ki] {
			keptSet[i] = struct{}{}
			ki++
		}
	}

	filteredPairs := make([]Pair, 0, len(kept))
	filteredNames := make([]string, 0, len(kept))
	for i, pr := range pairs {
		if _, ok := keptSet[i]; !ok {
			continue
		}
		p.dedup.SuccessfullyProcessed(msgs[i])
		filteredPairs = append(filteredPairs, pr)
		filteredNames = append(filteredNames, normalisedNames[i])
	}

	return filteredPairs, filteredNames, len(pairs) - len(filteredPairs)
}

// resolveAll resolves every distinct queue name in parallel and waits for
// all of them, returning a name->URL map. Any single resolution failure
// aborts the whole batch.
func (p *Pipeline) resolveAll(ctx context.Context, uniqueNames []string, o config.Options) (map[string]string, error) {
	urlByName := make(map[string]string, len(uniqueNames))
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make([]error, len(uniqueNames))

	for i, name := range uniqueNames {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			url, err := p.resolver.Resolve(ctx, name, resolver.CreateIfMissing, o)
			if err != nil {
				errs[i] = err
				return
			}
			mu.Lock()
			urlByName[name] = url
			mu.Unlock()
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return urlByName, nil
}

// flushRemaining flushes every non-empty buffer in parallel and sums the
// counts, surfacing the first error encountered (if any, after every
// flush has completed).
func (p *Pipeline) flushRemaining(ctx context.Context, buffers map[string][]sqsapi.BatchEntry) (int, error) {
	type outcome struct {
		n   int
		err error
	}
	var wg sync.WaitGroup
	outcomes := make([]outcome, 0, len(buffers))
	var mu sync.Mutex

	for url, buf := range buffers {
		if len(buf) == 0 {
			continue
		}
		wg.Add(1)
		go func(url string, buf []sqsapi.BatchEntry) {
			defer wg.Done()
			n, err := p.flush(ctx, url, buf)
			mu.Lock()
			outcomes = append(outcomes, outcome{n, err})
			mu.Unlock()
		}(url, buf)
	}
	wg.Wait()

	total := 0
	var firstErr error
	for _, o := range outcomes {
		total += o.n
		if o.err != nil && firstErr == nil {
			firstErr = o.err
		}
	}
	return total, firstErr
}

// flush drains buffer by repeatedly taking the longest prefix under both
// the entry-count and byte-size caps, sending each slice via the backoff
// controller, until the buffer is empty or a send fails.
func (p *Pipeline) flush(ctx context.Context, url string, buffer []sqsapi.BatchEntry) (int, error) {
	sent := 0
	for len(buffer) > 0 {
		batch, rest := takeBoundedPrefix(buffer)

		result, err := backoff.Run(ctx, p.backoff,
			func(attempt int) (sqsapi.BatchResult, error) {
				return p.api.SendMessageBatch(ctx, url, batch)
			},
			func(result sqsapi.BatchResult, err error) bool {
				return err != nil && qerrors.Retryable(err)
			},
		)
		if err != nil {
			return sent, err
		}
		if len(result.Failed) > 0 {
			return sent, qerrors.BatchPartial(result.Failed)
		}

		sent += len(result.Successful)
		buffer = rest
	}
	return sent, nil
}

// takeBoundedPrefix splits buffer into a batch of at most maxBatchEntries
// entries whose accumulated serialised size stays strictly under
// maxBatchBytes, and the remainder. At least one entry is always taken, so
// an oversized single entry still makes progress.
func takeBoundedPrefix(buffer []sqsapi.BatchEntry) (batch, rest []sqsapi.BatchEntry) {
	size := 0
	i := 0
	for i < len(buffer) && i < maxBatchEntries {
		entrySize := estimateSize(buffer[i])
		if i > 0 && size+entrySize >= maxBatchBytes {
			break
		}
		size += entrySize
		i++
	}
	if i == 0 {
		i = 1
	}
	return buffer[:i], buffer[i:]
}

func estimateSize(entry sqsapi.BatchEntry) int {
	body, err := json.Marshal(entry)
	if err != nil {
		return len(entry.Body)
	}
	return len(body)
}

// formatMessage builds the batch entry for one (command, id) pair. DelaySeconds
// is attached regardless of FIFO-ness; MessageGroupId and
// MessageDeduplicationId are attached only for FIFO queues, since the
// service rejects an entire batch when a non-FIFO entry carries them.
func formatMessage(command string, id int, o config.Options) sqsapi.BatchEntry {
	entry := sqsapi.BatchEntry{ID: strconv.Itoa(id), Body: command}

	if o.Delay > 0 {
		entry.DelaySeconds = int32(o.Delay.Seconds())
	}

	if o.FIFO {
		switch {
		case o.GroupIDPerMessage:
			entry.GroupID = freshUID()
		case o.GroupID != "":
			entry.GroupID = o.GroupID
		default:
			entry.GroupID = freshUID()
		}
		if o.DeduplicationID != "" {
			entry.DeduplicationID = o.DeduplicationID
		} else {
			entry.DeduplicationID = freshUID()
		}
	}

	return entry
}
