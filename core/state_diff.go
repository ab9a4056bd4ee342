package core

import "sort"

// ChangeValue is one key's new value in a StateDiff; Deleted distinguishes a
// null (deletion) entry from a present-but-empty value.
type ChangeValue struct {
	Value   []byte
	Deleted bool
}

// StateDiff is the set of key->value changes attributable to one finalized
// transaction.
type StateDiff struct {
	TxID      Hash
	Changes   map[string]ChangeValue
	Timestamp int64
}

// NewStateDiff constructs an empty StateDiff for txID at timestamp ts.
func NewStateDiff(txID Hash, ts int64) StateDiff {
	return StateDiff{TxID: txID, Changes: make(map[string]ChangeValue), Timestamp: ts}
}

// Set records a key->value change.
func (d *StateDiff) Set(key string, value []byte) {
	d.Changes[key] = ChangeValue{Value: append([]byte(nil), value...)}
}

// Delete records a key deletion.
func (d *StateDiff) Delete(key string) {
	d.Changes[key] = ChangeValue{Deleted: true}
}

// MergeStateDiffs merges a sequence of StateDiffs: for each key, the
// latest-timestamp value wins; ties are broken by txId lexicographic order.
// The result applies identically whether diffs are merged first or applied
// sequentially in (timestamp, txId) order.
func MergeStateDiffs(diffs []StateDiff) map[string]ChangeValue {
	type winner struct {
		ts  int64
		tx  string
		val ChangeValue
		set bool
	}
	best := make(map[string]winner)

	for _, d := range diffs {
		for key, cv := range d.Changes {
			cur, ok := best[key]
			txHex := d.TxID.Hex()
			if !ok || d.Timestamp > cur.ts || (d.Timestamp == cur.ts && txHex > cur.tx) {
				best[key] = winner{ts: d.Timestamp, tx: txHex, val: cv, set: true}
			}
		}
	}

	out := make(map[string]ChangeValue, len(best))
	for key, w := range best {
		if w.set {
			out[key] = w.val
		}
	}
	return out
}

// ApplyStateDiff writes a single StateDiff's changes into tree.
func ApplyStateDiff(tree *VerkleStateTree, d StateDiff) {
	applyChanges(tree, d.Changes)
}

// ApplyMerged writes a pre-merged change set (as returned by
// MergeStateDiffs) into tree.
func ApplyMerged(tree *VerkleStateTree, changes map[string]ChangeValue) {
	applyChanges(tree, changes)
}

func applyChanges(tree *VerkleStateTree, changes map[string]ChangeValue) {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic application order for a single diff
	for _, k := range keys {
		cv := changes[k]
		if cv.Deleted {
			tree.Delete([]byte(k))
		} else {
			tree.Insert([]byte(k), cv.Value)
		}
	}
}
