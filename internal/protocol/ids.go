package protocol

import "sync/atomic"

// IDGenerator assigns monotonic, session-local message ids (spec §9, open
// question: the id counter is treated as session-local so that independent
// sessions in one process never collide or need coordination).
type IDGenerator struct {
	next atomic.Uint32
}

// Next returns the next id, starting at 1 so 0 stays reserved/sentinel.
func (g *IDGenerator) Next() uint32 {
	return g.next.Add(1)
}
