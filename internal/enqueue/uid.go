package enqueue

import "github.com/google/uuid"

// freshUID mints a time-ordered unique id for group/deduplication ids and
// for acknowledgements synthesised when a send is suppressed by the
// deduplication store. Spec calls for "a fresh v1-style time-ordered
// unique id"; uuid.NewUUID implements RFC 4122 version 1 directly. A
// version-4 fallback covers the (practically unreachable on any real host)
// case where the node's MAC-derived clock sequence can't be read.
func freshUID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
