package core

// leader_election.go – deterministic leader selection, a hash-sort over
// candidate ids.

import (
	"bytes"
	"sort"
)

// GenesisSeed is used as the election seed before any transaction has
// finalized.
const GenesisSeed = "xmbl-genesis"

// DefaultLeaderCount is the default number of elected leaders.
const DefaultLeaderCount = 3

// ElectLeaders deterministically selects count candidates: sort by
// sha256(seed||candidateID), take the first count, breaking ties by
// candidateID byte order.
func ElectLeaders(candidates []string, count int, seed string) []string {
	if count > len(candidates) {
		count = len(candidates)
	}
	if count <= 0 {
		return nil
	}

	type scored struct {
		id    string
		score Hash
	}
	scoredCandidates := make([]scored, len(candidates))
	for i, c := range candidates {
		scoredCandidates[i] = scored{id: c, score: sha256Sum([]byte(seed), []byte(c))}
	}
	sort.Slice(scoredCandidates, func(i, j int) bool {
		cmp := bytes.Compare(scoredCandidates[i].score[:], scoredCandidates[j].score[:])
		if cmp != 0 {
			return cmp < 0
		}
		return scoredCandidates[i].id < scoredCandidates[j].id
	})

	out := make([]string, count)
	for i := 0; i < count; i++ {
		out[i] = scoredCandidates[i].id
	}
	return out
}
