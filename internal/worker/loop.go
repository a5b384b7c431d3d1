package worker

import (
	"context"
	"errors"
	"strconv"

	"github.com/suredone/qdone/internal/config"
	"github.com/suredone/qdone/internal/names"
	"github.com/suredone/qdone/internal/qerrors"
	"github.com/suredone/qdone/internal/resolver"
	"github.com/suredone/qdone/internal/sqsapi"
)

// ErrNoQueues is returned by Run when the working set resolves to nothing
// to poll - spec §4.G's "noQueues" sentinel.
var ErrNoQueues = errors.New("worker: no queues in working set")

// Tally aggregates one or more rounds' outcomes.
type Tally struct {
	NoJobs        int
	JobsSucceeded int
	JobsFailed    int
}

func (t *Tally) add(o Outcome) {
	if o.Succeeded == 0 && o.Failed == 0 {
		t.NoJobs++
		return
	}
	t.JobsSucceeded += o.Succeeded
	t.JobsFailed += o.Failed
}

func (t *Tally) merge(other Tally) {
	t.NoJobs += other.NoJobs
	t.JobsSucceeded += other.JobsSucceeded
	t.JobsFailed += other.JobsFailed
}

// jobsThisRound reports whether a round did any work, for the drain state
// machine's "continues as long as any queue returned a job" rule.
func (t Tally) jobsThisRound() bool {
	return t.JobsSucceeded+t.JobsFailed > 0
}

// Loop is the worker's sequential multi-queue polling loop (component G).
type Loop struct {
	api      sqsapi.API
	resolver *resolver.Resolver
	executor *Executor
	shutdown *Shutdown
}

// NewLoop builds a Loop over a resolved working set.
func NewLoop(api sqsapi.API, res *resolver.Resolver, executor *Executor, sd *Shutdown) *Loop {
	return &Loop{api: api, resolver: res, executor: executor, shutdown: sd}
}

// WorkingSet expands wildcard bases and resolves concrete ones (resolve-only
// - the worker never provisions queues), excludes fail-tier queues unless
// IncludeFailed is set, and optionally drops idle queues when ActiveOnly is
// set. The result preserves bases' input order, which is the poll priority
// order.
func (l *Loop) WorkingSet(ctx context.Context, bases []string, o config.Options) ([]resolver.QueueRef, error) {
	var refs []resolver.QueueRef
	for _, base := range bases {
		if names.IsWildcard(base) {
			expanded, err := l.resolver.Expand(ctx, base, o)
			if err != nil {
				return nil, err
			}
			refs = append(refs, expanded...)
			continue
		}

		name := names.Normalise(base, o)
		url, err := l.resolver.Resolve(ctx, base, resolver.ResolveOnly, o)
		if err != nil {
			return nil, err
		}
		refs = append(refs, resolver.QueueRef{Name: name, URL: url})
	}

	refs = excludeFailQueues(refs, o)

	if o.ActiveOnly {
		var err error
		refs, err = l.filterActive(ctx, refs)
		if err != nil {
			return nil, err
		}
	}

	return refs, nil
}

func excludeFailQueues(refs []resolver.QueueRef, o config.Options) []resolver.QueueRef {
	if o.IncludeFailed {
		return refs
	}
	kept := make([]resolver.QueueRef, 0, len(refs))
	for _, ref := range refs {
		if names.IsFailQueue(ref.Name, o) {
			continue
		}
		kept = append(kept, ref)
	}
	return kept
}

func (l *Loop) filterActive(ctx context.Context, refs []resolver.QueueRef) ([]resolver.QueueRef, error) {
	kept := make([]resolver.QueueRef, 0, len(refs))
	for _, ref := range refs {
		attrs, err := l.api.GetQueueAttributes(ctx, ref.URL)
		if err != nil {
			return nil, err
		}
		depth := atoiOr0(attrs[sqsapi.AttrApproximateNumberOfMessages]) +
			atoiOr0(attrs[sqsapi.AttrApproximateNumberOfMessagesNotVisible]) +
			atoiOr0(attrs[sqsapi.AttrApproximateNumberOfMessagesDelayed])
		if depth > 0 {
			kept = append(kept, ref)
		}
	}
	return kept, nil
}

func atoiOr0(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// OneRound polls every queue in workingSet strictly sequentially, at most
// one message each, driving the executor on receipt. The shutdown flag is
// checked before each poll and before each dispatch; once set, the partial
// tally is returned immediately without starting new work.
//
// A ReceiveMessage failure that qerrors.Retryable reports transient (e.g.
// throttling) is folded into the tally as "no message" and polling
// continues with the next queue, per spec §7's retry policy. Any other
// failure - most importantly access-denied - surfaces immediately so the
// caller can report it instead of spinning silently on a broken queue.
func (l *Loop) OneRound(ctx context.Context, workingSet []resolver.QueueRef, o config.Options) (Tally, error) {
	var tally Tally
	for _, ref := range workingSet {
		if l.shutdown.Requested() {
			return tally, nil
		}

		messages, err := l.api.ReceiveMessage(ctx, ref.URL, int32(o.WaitTime.Seconds()))
		if err != nil {
			if qerrors.Retryable(err) {
				tally.add(Outcome{})
				continue
			}
			return tally, err
		}
		if len(messages) == 0 {
			tally.add(Outcome{})
			continue
		}

		if l.shutdown.Requested() {
			return tally, nil
		}

		msg := messages[0]
		outcome := l.executor.Execute(ctx, Job{
			QueueURL:      ref.URL,
			MessageID:     msg.MessageID,
			ReceiptHandle: msg.ReceiptHandle,
			Body:          msg.Body,
		}, o.KillAfter)
		tally.add(outcome)
	}
	return tally, nil
}

// Run drives the outer state machine (spec §4.G): build the working set,
// run rounds until the set is empty, the shutdown flag is observed, or - in
// drain mode - a round does no work. A continuous (non-drain) run keeps
// polling indefinitely until shutdown; callers that want a single round
// regardless of mode should call WorkingSet and OneRound directly instead.
func (l *Loop) Run(ctx context.Context, bases []string, o config.Options) (Tally, error) {
	var grand Tally
	for {
		workingSet, err := l.WorkingSet(ctx, bases, o)
		if err != nil {
			return grand, err
		}
		if len(workingSet) == 0 {
			return grand, ErrNoQueues
		}

		round, err := l.OneRound(ctx, workingSet, o)
		grand.merge(round)
		if err != nil {
			return grand, err
		}

		if l.shutdown.Requested() {
			return grand, nil
		}
		if o.Drain && !round.jobsThisRound() {
			return grand, nil
		}
	}
}
