// Package resolver implements queue resolution and the three-tier queue
// chain provisioner (spec §4.D), plus the wildcard expander (§4.F). Both
// share one URL cache instance, owned by the Resolver value rather than a
// package global.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/suredone/qdone/internal/config"
	"github.com/suredone/qdone/internal/names"
	"github.com/suredone/qdone/internal/qerrors"
	"github.com/suredone/qdone/internal/sqsapi"
	"github.com/suredone/qdone/internal/urlcache"
)

// Mode selects whether Resolve is allowed to create a missing queue chain.
type Mode int

const (
	// CreateIfMissing provisions the primary/fail/dlq chain on a
	// does-not-exist response. Used by the enqueue pipeline.
	CreateIfMissing Mode = iota
	// ResolveOnly never creates a queue; a does-not-exist response is
	// surfaced unchanged. Used by the worker's working-set construction.
	ResolveOnly
)

// QueueRef names one queue discovered by Expand.
type QueueRef struct {
	Name string
	URL  string
}

// Resolver resolves queue base names to URLs, creating the redrive chain
// on demand, and expands wildcard bases into concrete queue lists. It is
// the explicit value the source system's module-global cache and
// create-chain logic were folded into.
type Resolver struct {
	api   sqsapi.API
	cache *urlcache.Cache
}

// New constructs a Resolver over api, owning cache.
func New(api sqsapi.API, cache *urlcache.Cache) *Resolver {
	return &Resolver{api: api, cache: cache}
}

// Cache exposes the resolver's URL cache, e.g. for test setup/teardown.
func (r *Resolver) Cache() *urlcache.Cache { return r.cache }

// Resolve resolves base to a queue URL under o, creating the queue chain
// when mode is CreateIfMissing and the queue does not yet exist.
func (r *Resolver) Resolve(ctx context.Context, base string, mode Mode, o config.Options) (string, error) {
	name := names.Normalise(base, o)
	return r.resolveName(ctx, name, mode, o)
}

func (r *Resolver) resolveName(ctx context.Context, name string, mode Mode, o config.Options) (string, error) {
	if url, ok := r.cache.Get(name); ok {
		return url, nil
	}

	url, err := r.api.GetQueueURL(ctx, name)
	if err == nil {
		r.cache.Set(name, url)
		return url, nil
	}
	if !qerrors.Is(err, qerrors.KindNotExist) {
		return "", err
	}
	if mode == ResolveOnly {
		return "", err
	}

	return r.createPrimary(ctx, name, o)
}

// createPrimary implements the create-chain steps 3-5 of spec §4.D for the
// primary queue: resolve (recursively creating) the fail queue first, fetch
// its ARN, then create the primary with a 1-receive redrive to the fail
// queue.
func (r *Resolver) createPrimary(ctx context.Context, primaryName string, o config.Options) (string, error) {
	failURL, failArn, err := r.resolveOrCreateFail(ctx, primaryName, o)
	if err != nil {
		return "", err
	}

	attrs := baseAttributes(o)
	attrs[sqsapi.AttrRedrivePolicy] = redrivePolicyJSON(failArn, 1)

	url, err := r.api.CreateQueue(ctx, primaryName, attrs, o.Tags)
	if err != nil {
		return "", err
	}
	r.cache.Set(primaryName, url)
	return url, nil
}

// resolveOrCreateFail resolves (or creates) the fail queue derived from
// primaryName, returning its URL and ARN. Creating the fail queue requires
// the dead-letter queue's ARN first when DLQ mode is on (spec invariant).
func (r *Resolver) resolveOrCreateFail(ctx context.Context, primaryName string, o config.Options) (url, arn string, err error) {
	failName := failNameFromNormalised(primaryName, o)

	if u, ok := r.cache.Get(failName); ok {
		a, err := r.arnOf(ctx, u)
		return u, a, err
	}

	u, err := r.api.GetQueueURL(ctx, failName)
	if err == nil {
		r.cache.Set(failName, u)
		a, err := r.arnOf(ctx, u)
		return u, a, err
	}
	if !qerrors.Is(err, qerrors.KindNotExist) {
		return "", "", err
	}

	var dlqArn string
	if o.DLQ {
		dlqArn, err = r.resolveOrCreateDlq(ctx, primaryName, o)
		if err != nil {
			return "", "", err
		}
	}

	attrs := baseAttributes(o)
	if o.DLQ {
		attrs[sqsapi.AttrRedrivePolicy] = redrivePolicyJSON(dlqArn, o.DlqAfter)
	}

	u, err = r.api.CreateQueue(ctx, failName, attrs, o.Tags)
	if err != nil {
		return "", "", err
	}
	r.cache.Set(failName, u)

	a, err := r.arnOf(ctx, u)
	return u, a, err
}

// resolveOrCreateDlq resolves (or creates, with no redrive policy) the
// dead-letter queue derived from primaryName.
func (r *Resolver) resolveOrCreateDlq(ctx context.Context, primaryName string, o config.Options) (arn string, err error) {
	dlqName := dlqNameFromNormalised(primaryName, o)

	if u, ok := r.cache.Get(dlqName); ok {
		return r.arnOf(ctx, u)
	}

	u, err := r.api.GetQueueURL(ctx, dlqName)
	if err == nil {
		r.cache.Set(dlqName, u)
		return r.arnOf(ctx, u)
	}
	if !qerrors.Is(err, qerrors.KindNotExist) {
		return "", err
	}

	u, err = r.api.CreateQueue(ctx, dlqName, baseAttributes(o), o.Tags)
	if err != nil {
		return "", err
	}
	r.cache.Set(dlqName, u)
	return r.arnOf(ctx, u)
}

func (r *Resolver) arnOf(ctx context.Context, url string) (string, error) {
	attrs, err := r.api.GetQueueAttributes(ctx, url)
	if err != nil {
		return "", err
	}
	return attrs[sqsapi.AttrQueueArn], nil
}

func baseAttributes(o config.Options) map[string]string {
	attrs := map[string]string{
		sqsapi.AttrMessageRetentionPeriod: strconv.Itoa(int(o.MessageRetentionPeriod.Seconds())),
	}
	if o.FIFO {
		attrs[sqsapi.AttrFifoQueue] = "true"
	}
	return attrs
}

func redrivePolicyJSON(targetArn string, maxReceiveCount int) string {
	body, err := json.Marshal(sqsapi.RedrivePolicy{
		DeadLetterTargetArn: targetArn,
		MaxReceiveCount:     strconv.Itoa(maxReceiveCount),
	})
	if err != nil {
		// RedrivePolicy has only string fields; Marshal cannot fail.
		panic(fmt.Sprintf("resolver: marshal redrive policy: %v", err))
	}
	return string(body)
}

// failNameFromNormalised derives the fail-queue name given an already
// prefix-and-FIFO-normalised primary name, using the same suffix rule as
// names.FailName without re-running the base normaliser.
func failNameFromNormalised(primaryName string, o config.Options) string {
	return names.FailName(primaryName, o)
}

func dlqNameFromNormalised(primaryName string, o config.Options) string {
	return names.DlqName(primaryName, o)
}

// Expand lists every queue matching base (which must end in "*"), filters
// by FIFO-ness, ingests the listing into the cache, and returns
// {name, url} pairs. A non-wildcard base should be resolved through
// Resolve instead.
func (r *Resolver) Expand(ctx context.Context, base string, o config.Options) ([]QueueRef, error) {
	stem := strings.TrimSuffix(base, "*")
	prefix := o.Prefix + stem

	urls, err := r.api.ListQueues(ctx, prefix)
	if err != nil {
		return nil, err
	}
	r.cache.Ingest(urls)

	refs := lo.FilterMap(urls, func(url string, _ int) (QueueRef, bool) {
		name := lastSegment(url)
		if name == "" {
			return QueueRef{}, false
		}
		isFifo := strings.HasSuffix(name, ".fifo")
		if o.FIFO != isFifo {
			return QueueRef{}, false
		}
		return QueueRef{Name: name, URL: url}, true
	})

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func lastSegment(url string) string {
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return ""
	}
	return url[idx+1:]
}
