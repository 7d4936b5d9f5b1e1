package storage

import "fmt"

// Key schema: events are keyed "evt:{seq}" with the sequence number
// zero-padded to 20 digits so lexicographic order matches append order.
const prefixEvent = "evt:"

func eventKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixEvent, seq))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
