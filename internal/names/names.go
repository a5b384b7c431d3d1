// Package names implements the pure queue-naming rules: prefix, fail-suffix,
// dlq-suffix, and FIFO-suffix normalisation. Every function here is a pure
// function of (base, options) - no I/O, no caching, no global state.
package names

import (
	"strings"

	"github.com/suredone/qdone/internal/config"
)

const fifoSuffix = ".fifo"

// Normalise applies the prefix and, for FIFO queues, the .fifo suffix to a
// base queue name. It is idempotent: normalising an already-normalised name
// returns the same string.
//
// Wildcards (a trailing "*") never receive the FIFO suffix - a caller
// listing "myqueue*" wants to match both FIFO and non-FIFO names before
// Expand filters the result.
func Normalise(base string, o config.Options) string {
	stem := stripPrefix(base, o.Prefix)
	stem = strings.TrimSuffix(stem, fifoSuffix)

	name := o.Prefix + stem
	if o.FIFO && !strings.HasSuffix(stem, "*") {
		name += fifoSuffix
	}
	return name
}

// FailName derives the fail-queue name for base: normalise with FIFO
// stripped, trim any existing fail-suffix, append the fail-suffix, then
// reapply the FIFO suffix iff FIFO mode is on. failName and dlqName share
// this shape so that FIFO-ness stays uniform across the three-tier chain.
func FailName(base string, o config.Options) string {
	return derive(base, o.FailSuffix, o)
}

// DlqName derives the dead-letter-queue name for base, analogous to
// FailName but using the dlq-suffix.
func DlqName(base string, o config.Options) string {
	return derive(base, o.DlqSuffix, o)
}

func derive(base, suffix string, o config.Options) string {
	stem := stripPrefix(base, o.Prefix)
	stem = strings.TrimSuffix(stem, fifoSuffix)
	stem = strings.TrimSuffix(stem, suffix)
	stem += suffix

	name := o.Prefix + stem
	if o.FIFO {
		name += fifoSuffix
	}
	return name
}

func stripPrefix(base, prefix string) string {
	if prefix != "" && strings.HasPrefix(base, prefix) {
		return strings.TrimPrefix(base, prefix)
	}
	return base
}

// IsWildcard reports whether base ends in the wildcard marker "*".
func IsWildcard(base string) bool {
	return strings.HasSuffix(base, "*")
}

// IsFailQueue reports whether name (already normalised, prefix included)
// is the fail tier of its chain - used by the worker loop to exclude fail
// queues from a polled working set unless --include-failed is set.
func IsFailQueue(name string, o config.Options) bool {
	stem := strings.TrimSuffix(name, fifoSuffix)
	return strings.HasSuffix(stem, o.FailSuffix)
}
