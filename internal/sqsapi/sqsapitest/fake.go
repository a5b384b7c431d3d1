// Package sqsapitest provides an in-memory fake of sqsapi.API for tests,
// in the teacher's mockable-struct style (see internal/terraform's
// Executor in the retrieval pack): every operation can be overridden with
// a hook, and calls are recorded so tests can assert call order and
// arguments without a network dependent double.
package sqsapitest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/suredone/qdone/internal/qerrors"
	"github.com/suredone/qdone/internal/sqsapi"
)

type queue struct {
	url   string
	attrs map[string]string
	body  []sqsapi.Message
}

// Fake is a realistic, in-process stand-in for the hosted queue service.
// Construct it with New; the zero value has no queue maps. Behavior can be overridden per-operation
// via the exported hook fields; a hook, when set, runs instead of (not in
// addition to) the built-in behavior.
type Fake struct {
	mu      sync.Mutex
	queues  map[string]*queue // name -> queue
	byURL   map[string]*queue // url -> queue
	nextID  int
	Calls   []string

	GetQueueURLFunc           func(ctx context.Context, name string) (string, error)
	CreateQueueFunc           func(ctx context.Context, name string, attrs, tags map[string]string) (string, error)
	GetQueueAttributesFunc    func(ctx context.Context, url string) (map[string]string, error)
	ListQueuesFunc            func(ctx context.Context, prefix string) ([]string, error)
	SendMessageFunc           func(ctx context.Context, in sqsapi.SendMessageInput) (sqsapi.SendMessageOutput, error)
	SendMessageBatchFunc      func(ctx context.Context, url string, entries []sqsapi.BatchEntry) (sqsapi.BatchResult, error)
	ReceiveMessageFunc        func(ctx context.Context, url string, waitTimeSeconds int32) ([]sqsapi.Message, error)
	ChangeMessageVisibilityFunc func(ctx context.Context, url, receiptHandle string, visibilityTimeout int32) error
	DeleteMessageFunc         func(ctx context.Context, url, receiptHandle string) error
}

// New returns a ready-to-use Fake with no queues.
func New() *Fake {
	return &Fake{
		queues: make(map[string]*queue),
		byURL:  make(map[string]*queue),
	}
}

func (f *Fake) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *Fake) urlFor(name string) string {
	return fmt.Sprintf("https://sqs.test.local/000000000000/%s", name)
}

var _ sqsapi.API = (*Fake)(nil)

func (f *Fake) GetQueueURL(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	f.record("GetQueueUrl:" + name)
	hook := f.GetQueueURLFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.queues[name]
	if !ok {
		return "", qerrors.NotExist(name, fmt.Errorf("queue %s does not exist", name))
	}
	return q.url, nil
}

func (f *Fake) CreateQueue(ctx context.Context, name string, attrs, tags map[string]string) (string, error) {
	f.mu.Lock()
	f.record("CreateQueue:" + name)
	hook := f.CreateQueueFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, name, attrs, tags)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if q, ok := f.queues[name]; ok {
		return q.url, nil
	}
	q := &queue{url: f.urlFor(name), attrs: map[string]string{}}
	for k, v := range attrs {
		q.attrs[k] = v
	}
	q.attrs["QueueArn"] = fmt.Sprintf("arn:aws:sqs:us-east-1:000000000000:%s", name)
	f.queues[name] = q
	f.byURL[q.url] = q
	return q.url, nil
}

func (f *Fake) GetQueueAttributes(ctx context.Context, url string) (map[string]string, error) {
	f.mu.Lock()
	f.record("GetQueueAttributes:" + url)
	hook := f.GetQueueAttributesFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, url)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.byURL[url]
	if !ok {
		return nil, qerrors.NotExist(url, fmt.Errorf("queue %s does not exist", url))
	}
	out := map[string]string{
		"ApproximateNumberOfMessages":           fmt.Sprintf("%d", len(q.body)),
		"ApproximateNumberOfMessagesNotVisible": "0",
		"ApproximateNumberOfMessagesDelayed":     "0",
	}
	for k, v := range q.attrs {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) ListQueues(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	f.record("ListQueues:" + prefix)
	hook := f.ListQueuesFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, prefix)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var urls []string
	for name, q := range f.queues {
		if strings.HasPrefix(name, prefix) {
			urls = append(urls, q.url)
		}
	}
	sort.Strings(urls)
	return urls, nil
}

func (f *Fake) SendMessage(ctx context.Context, in sqsapi.SendMessageInput) (sqsapi.SendMessageOutput, error) {
	f.mu.Lock()
	f.record("SendMessage:" + in.QueueURL)
	hook := f.SendMessageFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, in)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.byURL[in.QueueURL]
	if !ok {
		return sqsapi.SendMessageOutput{}, qerrors.NotExist(in.QueueURL, fmt.Errorf("queue %s does not exist", in.QueueURL))
	}
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	q.body = append(q.body, sqsapi.Message{
		MessageID:     id,
		Body:          in.Body,
		ReceiptHandle: fmt.Sprintf("receipt-%d", f.nextID),
	})
	return sqsapi.SendMessageOutput{MessageID: id}, nil
}

func (f *Fake) SendMessageBatch(ctx context.Context, url string, entries []sqsapi.BatchEntry) (sqsapi.BatchResult, error) {
	f.mu.Lock()
	f.record(fmt.Sprintf("SendMessageBatch:%s:%d", url, len(entries)))
	hook := f.SendMessageBatchFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, url, entries)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.byURL[url]
	if !ok {
		return sqsapi.BatchResult{}, qerrors.NotExist(url, fmt.Errorf("queue %s does not exist", url))
	}
	result := sqsapi.BatchResult{Successful: make([]string, 0, len(entries))}
	for _, e := range entries {
		f.nextID++
		id := fmt.Sprintf("msg-%d", f.nextID)
		q.body = append(q.body, sqsapi.Message{
			MessageID:     id,
			Body:          e.Body,
			ReceiptHandle: fmt.Sprintf("receipt-%d", f.nextID),
		})
		result.Successful = append(result.Successful, id)
	}
	return result, nil
}

func (f *Fake) ReceiveMessage(ctx context.Context, url string, waitTimeSeconds int32) ([]sqsapi.Message, error) {
	f.mu.Lock()
	f.record("ReceiveMessage:" + url)
	hook := f.ReceiveMessageFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, url, waitTimeSeconds)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.byURL[url]
	if !ok {
		return nil, qerrors.NotExist(url, fmt.Errorf("queue %s does not exist", url))
	}
	if len(q.body) == 0 {
		return nil, nil
	}
	msg := q.body[0]
	q.body = q.body[1:]
	return []sqsapi.Message{msg}, nil
}

func (f *Fake) ChangeMessageVisibility(ctx context.Context, url, receiptHandle string, visibilityTimeout int32) error {
	f.mu.Lock()
	f.record("ChangeMessageVisibility:" + url)
	hook := f.ChangeMessageVisibilityFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, url, receiptHandle, visibilityTimeout)
	}
	return nil
}

func (f *Fake) DeleteMessage(ctx context.Context, url, receiptHandle string) error {
	f.mu.Lock()
	f.record("DeleteMessage:" + url)
	hook := f.DeleteMessageFunc
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, url, receiptHandle)
	}
	return nil
}

// QueueCount returns how many queues currently exist, for assertions.
func (f *Fake) QueueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queues)
}

// QueueNames returns the sorted list of currently-existing queue names.
func (f *Fake) QueueNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.queues))
	for name := range f.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SeedQueue registers name/url directly, bypassing CreateQueue - useful for
// priming "already exists" scenarios.
func (f *Fake) SeedQueue(name string, attrs map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	url := f.urlFor(name)
	q := &queue{url: url, attrs: map[string]string{}}
	for k, v := range attrs {
		q.attrs[k] = v
	}
	if _, ok := q.attrs["QueueArn"]; !ok {
		q.attrs["QueueArn"] = fmt.Sprintf("arn:aws:sqs:us-east-1:000000000000:%s", name)
	}
	f.queues[name] = q
	f.byURL[url] = q
	return url
}
