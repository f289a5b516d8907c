package checkout

import (
	"fmt"
	"sync/atomic"
	"time"
)

// BatchIDs generates transaction batch ids of the form TX<last 6 digits of
// unix millis>-<sequence>. The sequence keeps ids unique within a process
// even when two payments land in the same millisecond.
type BatchIDs struct {
	seq atomic.Uint64
}

// Next returns a fresh batch id for the payment time t.
func (b *BatchIDs) Next(t time.Time) string {
	n := b.seq.Add(1)
	return fmt.Sprintf("TX%06d-%d", t.UnixMilli()%1_000_000, n)
}
