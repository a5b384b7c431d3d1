// Package sqsapi is the boundary to the hosted queue service (spec §6). It
// is the one package in this module that talks to AWS: everything above it
// (resolver, enqueue, worker) depends only on the API interface, which is
// satisfied both by *Client (aws-sdk-go-v2) and by hand-written fakes in
// tests, following the mockable-struct pattern the teacher uses for its
// Terraform executor.
package sqsapi

import (
	"context"

	"github.com/suredone/qdone/internal/qerrors"
)

// BatchEntry is one outbound entry of a SendMessageBatch call.
type BatchEntry struct {
	ID              string
	Body            string
	GroupID         string
	DeduplicationID string
	DelaySeconds    int32
}

// BatchResult is the outcome of a SendMessageBatch call.
type BatchResult struct {
	Successful []string // MessageIds of entries that were accepted
	Failed     []qerrors.BatchEntryFailure
}

// Message is a message returned by ReceiveMessage.
type Message struct {
	MessageID     string
	Body          string
	ReceiptHandle string
}

// SendMessageInput is the input to a single-message send.
type SendMessageInput struct {
	QueueURL        string
	Body            string
	GroupID         string
	DeduplicationID string
	DelaySeconds    int32
}

// SendMessageOutput is the result of a single-message send.
type SendMessageOutput struct {
	MessageID string
}

// API is the subset of the hosted queue service's operations this module
// consumes (spec §6). Argument parsing, telemetry shipping, and the
// service's own implementation are out of scope - this interface is the
// seam.
type API interface {
	GetQueueURL(ctx context.Context, queueName string) (string, error)
	CreateQueue(ctx context.Context, queueName string, attributes map[string]string, tags map[string]string) (string, error)
	GetQueueAttributes(ctx context.Context, queueURL string) (map[string]string, error)
	ListQueues(ctx context.Context, prefix string) ([]string, error)
	SendMessage(ctx context.Context, in SendMessageInput) (SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, queueURL string, entries []BatchEntry) (BatchResult, error)
	ReceiveMessage(ctx context.Context, queueURL string, waitTimeSeconds int32) ([]Message, error)
	ChangeMessageVisibility(ctx context.Context, queueURL, receiptHandle string, visibilityTimeout int32) error
	DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error
}

// Attribute keys used when creating queues - kept as named constants so the
// wire-compatibility requirement in spec §4.D (exact key names) can't drift
// from a typo.
const (
	AttrFifoQueue                             = "FifoQueue"
	AttrMessageRetentionPeriod                = "MessageRetentionPeriod"
	AttrRedrivePolicy                         = "RedrivePolicy"
	AttrDelaySeconds                          = "DelaySeconds"
	AttrQueueArn                              = "QueueArn"
	AttrApproximateNumberOfMessages           = "ApproximateNumberOfMessages"
	AttrApproximateNumberOfMessagesNotVisible = "ApproximateNumberOfMessagesNotVisible"
	AttrApproximateNumberOfMessagesDelayed    = "ApproximateNumberOfMessagesDelayed"
)

// RedrivePolicy is marshalled to JSON for the RedrivePolicy attribute. Field
// names follow the service's documented wire format exactly - see the Open
// Questions resolution in SPEC_FULL.md §3.1 about the malformed-JSON bug
// this type exists to prevent.
type RedrivePolicy struct {
	DeadLetterTargetArn string `json:"deadLetterTargetArn"`
	MaxReceiveCount     string `json:"maxReceiveCount"`
}
