package wire

import "sync/atomic"

// processIDCounter backs every IDGenerator in the process.
var processIDCounter uint64

// IDGenerator hands out the process-wide monotonically increasing request
// ids used to correlate a Reply back to its Request. Every IDGenerator
// value draws from the same counter. Wrap-around of the 64-bit counter is
// treated as unreachable in practice and is not guarded against here.
type IDGenerator struct{}

// Next returns the next id. Safe for concurrent use.
func (g *IDGenerator) Next() uint64 {
	return atomic.AddUint64(&processIDCounter, 1)
}
