package stage

import (
	"bytes"

	"github.com/bridgeval/engine/pkg/party"
)

// Majority returns the value held by more than half of total parties in reports,
// which maps each reporting party to the value it claims to have received.
//
// dissenters are the reporters of any other value, in increasing order.
// A party missing from reports neither votes nor dissents.
// ok is false when no value reaches the majority.
func Majority(reports map[party.Index][]byte, total int) (value []byte, dissenters party.IndexSlice, ok bool) {
	votes := make(map[string]int, len(reports))
	for _, r := range reports {
		votes[string(r)]++
	}
	for v, count := range votes {
		if 2*count > total {
			value, ok = []byte(v), true
			break
		}
	}
	if !ok {
		return nil, nil, false
	}
	for idx, r := range reports {
		if !bytes.Equal(r, value) {
			dissenters = append(dissenters, idx)
		}
	}
	return value, party.NewIndexSlice(dissenters), true
}
