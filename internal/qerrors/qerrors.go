// Package qerrors classifies the error kinds the queue core distinguishes:
// usage errors, queue-does-not-exist, throttling, access-denied, and
// batch-partial failures. Component operations are total - they return
// either a success value or one of these typed errors. The resolver swallows
// NotExist internally to drive queue creation, and the worker loop folds a
// retryable ReceiveMessage failure into its tally as "no message".
package qerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and exit-code decisions.
type Kind int

const (
	// KindUnknown is the zero value - an error with no special handling.
	KindUnknown Kind = iota
	// KindUsage marks an invalid CLI invocation; exit code 1, no retry.
	KindUsage
	// KindNotExist marks "queue does not exist"; the resolver handles it
	// locally by creating the queue chain.
	KindNotExist
	// KindThrottled marks a request-throttled or KMS-throttled response;
	// retried by the backoff controller.
	KindThrottled
	// KindAccessDenied marks an authentication/permission failure;
	// surfaced immediately, never retried.
	KindAccessDenied
	// KindBatchPartial marks a sendMessageBatch response whose Failed
	// array was non-empty.
	KindBatchPartial
)

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a qerrors.Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind == kind
	}
	return false
}

// Usagef builds a KindUsage error from a format string.
func Usagef(format string, args ...any) error {
	return &Error{Kind: KindUsage, Message: fmt.Sprintf(format, args...)}
}

// NotExist wraps err as a KindNotExist error naming the queue.
func NotExist(queueName string, err error) error {
	return New(KindNotExist, fmt.Sprintf("queue does not exist: %s", queueName), err)
}

// Throttled wraps err as a KindThrottled error.
func Throttled(err error) error {
	return New(KindThrottled, "request throttled", err)
}

// AccessDenied wraps err as a KindAccessDenied error with a credential hint.
func AccessDenied(err error) error {
	return New(KindAccessDenied, "access denied - check AWS credentials and IAM permissions", err)
}

// BatchEntryFailure describes one failed entry in a SendMessageBatch response.
type BatchEntryFailure struct {
	ID          string
	Code        string
	Message     string
	SenderFault bool
}

// BatchPartial builds a KindBatchPartial error carrying the failed entries.
func BatchPartial(failed []BatchEntryFailure) error {
	return &Error{
		Kind:    KindBatchPartial,
		Message: fmt.Sprintf("sendMessageBatch: %d entries failed", len(failed)),
		Err:     &batchFailures{entries: failed},
	}
}

type batchFailures struct{ entries []BatchEntryFailure }

func (b *batchFailures) Error() string {
	return fmt.Sprintf("%d batch entries failed", len(b.entries))
}

// FailedEntries extracts the failed entries from a KindBatchPartial error,
// if err is (or wraps) one.
func FailedEntries(err error) ([]BatchEntryFailure, bool) {
	var bf *batchFailures
	if errors.As(err, &bf) {
		return bf.entries, true
	}
	return nil, false
}

// Retryable reports whether err is a kind the backoff controller should
// retry: throttling, or a not-exist seen shortly after creation (eventual
// consistency).
func Retryable(err error) bool {
	return Is(err, KindThrottled) || Is(err, KindNotExist)
}
