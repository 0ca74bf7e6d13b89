package redis

import "fmt"

// Key prefixes for primary entity storage.
const (
	prefixEvent = "beacon:evt:"
	keyEventSeq = "beacon:evt:seq"
)

// Key prefixes for sorted set indexes. Scores are creation times.
const (
	zEventAll  = "beacon:z:evt:all"
	zEventType = "beacon:z:evt:type:" // + event type
)

// member renders an event ID as a sorted set member. IDs are zero-padded
// so members with equal scores sort numerically.
func member(id int64) string {
	return fmt.Sprintf("%020d", id)
}

// entityKey returns the primary key for an event member.
func entityKey(m string) string {
	return prefixEvent + m
}
