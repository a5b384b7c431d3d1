// Package config holds the single canonical options struct shared by the
// queue-resolution, enqueue, and worker subsystems. The CLI layer is the
// only translator from flags into this struct; every other package accepts
// an Options value and never reads flags or the environment directly.
package config

import (
	"errors"
	"time"
)

// Options is the configuration object threaded through resolver, enqueue,
// and worker operations. It replaces the loose kebab/camel-case option
// records the source system passed around with one canonical struct.
type Options struct {
	// Queue naming.
	Prefix     string
	FailSuffix string
	DlqSuffix  string
	FIFO       bool

	// FIFO message attributes.
	GroupID           string
	GroupIDPerMessage bool
	DeduplicationID   string
	Delay             time.Duration

	// Dead-letter tier.
	DLQ      bool
	DlqAfter int

	// Queue provisioning.
	MessageRetentionPeriod time.Duration
	Tags                   map[string]string

	// Enqueue retry policy.
	SendRetries int

	// Worker behavior.
	KillAfter     time.Duration
	WaitTime      time.Duration
	IncludeFailed bool
	ActiveOnly    bool
	Drain         bool

	// Output verbosity.
	Verbose bool
	Quiet   bool

	// Deduplication store.
	ExternalDedup bool

	// AWS.
	Region string
}

const (
	// DefaultPrefix is prepended to every queue's base name.
	DefaultPrefix = "qdone_"
	// DefaultFailSuffix names the secondary (fail) queue in the chain.
	DefaultFailSuffix = "_failed"
	// DefaultDlqSuffix names the tertiary (dead-letter) queue in the chain.
	DefaultDlqSuffix = "_dlq"
	// DefaultDlqAfter is the fail-to-dlq maxReceiveCount when DLQ mode is on.
	DefaultDlqAfter = 3
	// DefaultMessageRetentionPeriod is 14 days, SQS's own default.
	DefaultMessageRetentionPeriod = 14 * 24 * time.Hour
	// DefaultSendRetries is the backoff controller's maxRetries for sends.
	DefaultSendRetries = 3
	// DefaultKillAfter is the worker's subprocess time budget.
	DefaultKillAfter = 30 * time.Second
	// DefaultWaitTime is the long-poll duration for ReceiveMessage.
	DefaultWaitTime = 20 * time.Second
	// MaxKillAfter bounds --kill-after (12 hours).
	MaxKillAfter = 12 * time.Hour
	// MaxWaitTime bounds --wait-time (SQS's own long-poll ceiling).
	MaxWaitTime = 20 * time.Second
)

// Default returns an Options populated with every documented default.
func Default() Options {
	return Options{
		Prefix:                 DefaultPrefix,
		FailSuffix:             DefaultFailSuffix,
		DlqSuffix:              DefaultDlqSuffix,
		DlqAfter:               DefaultDlqAfter,
		MessageRetentionPeriod: DefaultMessageRetentionPeriod,
		SendRetries:            DefaultSendRetries,
		KillAfter:              DefaultKillAfter,
		WaitTime:               DefaultWaitTime,
	}
}

// Validate checks the boundary rules spec'd for the worker subcommand.
// Pure function - no mutation, takes Options by value.
func Validate(o Options) error {
	if o.WaitTime < 0 || o.WaitTime > MaxWaitTime {
		return errors.New("wait-time must be between 0 and 20 seconds")
	}
	if o.Drain && o.WaitTime == 0 {
		return errors.New("--drain cannot be combined with --wait-time 0")
	}
	if o.KillAfter < 0 || o.KillAfter > MaxKillAfter {
		return errors.New("kill-after must be between 0 and 43200 seconds")
	}
	return nil
}
