package core

// shard_coder.go – (k, m) XOR erasure coding for off-chain payloads.
//
// encode splits data into k equal, zero-padded data shards and produces m
// parity shards, each the XOR of one data-shard group. decode reconstructs
// the original bytes from any subset where every missing data shard's parity
// group is otherwise intact. This is deliberately XOR-only, not
// Reed-Solomon: with m=1 it tolerates any single data-shard loss; with m=k it
// tolerates one loss per group, not k arbitrary losses overall.

import (
	"encoding/binary"
	"fmt"
)

// Shard is one fragment produced by ShardCoder.Encode, data or parity.
type Shard struct {
	Index          int    `json:"index"`
	ChunkSize      int    `json:"chunkSize"`
	IsParity       bool   `json:"isParity"`
	OriginalLength int    `json:"originalLength"`
	Data           []byte `json:"data"`
}

// ShardCoder implements the erasure coder described above. It is stateless;
// a single instance may be shared across goroutines.
type ShardCoder struct{}

// NewShardCoder constructs a ShardCoder.
func NewShardCoder() *ShardCoder { return &ShardCoder{} }

// groupSizeFor returns how many data shards share one parity group: the k
// data indices are partitioned into m contiguous groups of this size (the
// last possibly partial), so recovery only ever needs to solve one missing
// shard per group rather than requiring losses to be spread across groups
// some other way.
func groupSizeFor(k, m int) int {
	if m <= 0 {
		return k
	}
	return (k + m - 1) / m
}

// groupOf returns the parity-group index covering data index i.
func groupOf(i, k, m int) int {
	gs := groupSizeFor(k, m)
	g := i / gs
	if g >= m {
		g = m - 1
	}
	return g
}

// Encode splits data into k data shards of size ceil(len(data)/k), zero
// padded, and produces m parity shards. Data indices are partitioned into m
// contiguous groups (group i holds indices [i*groupSize, (i+1)*groupSize));
// parity shard P_i is the XOR of its group's data shards.
func (ShardCoder) Encode(data []byte, k, m int) (dataShards, parityShards []Shard, err error) {
	if k <= 0 || m < 0 {
		return nil, nil, fmt.Errorf("shard: invalid parameters k=%d m=%d", k, m)
	}
	originalLength := len(data)
	chunkSize := (originalLength + k - 1) / k
	if chunkSize == 0 {
		chunkSize = 1
	}

	dataShards = make([]Shard, k)
	for i := 0; i < k; i++ {
		buf := make([]byte, chunkSize)
		start := i * chunkSize
		if start < originalLength {
			end := start + chunkSize
			if end > originalLength {
				end = originalLength
			}
			copy(buf, data[start:end])
		}
		dataShards[i] = Shard{
			Index:          i,
			ChunkSize:      chunkSize,
			IsParity:       false,
			OriginalLength: originalLength,
			Data:           buf,
		}
	}

	parityShards = make([]Shard, m)
	for i := 0; i < m; i++ {
		parity := make([]byte, chunkSize)
		for idx := 0; idx < k; idx++ {
			if groupOf(idx, k, m) == i {
				xorInto(parity, dataShards[idx].Data)
			}
		}
		parityShards[i] = Shard{
			Index:          k + i,
			ChunkSize:      chunkSize,
			IsParity:       true,
			OriginalLength: originalLength,
			Data:           parity,
		}
	}
	return dataShards, parityShards, nil
}

// Decode reconstructs the original bytes from any subset of shards produced
// by Encode for some (k, m), provided every missing data index's parity
// group (the parity shard plus the group's other data shards) is present.
// It returns ErrInsufficientShards otherwise.
func (ShardCoder) Decode(shards []Shard, k, m int) ([]byte, error) {
	if len(shards) == 0 {
		return nil, ErrInsufficientShards
	}
	chunkSize := shards[0].ChunkSize
	originalLength := shards[0].OriginalLength

	dataByIdx := make(map[int]Shard, k)
	parityByIdx := make(map[int]Shard, m)
	for _, s := range shards {
		if s.IsParity {
			parityByIdx[s.Index-k] = s
		} else {
			dataByIdx[s.Index] = s
		}
	}

	if len(dataByIdx) == k {
		return reconstructFromData(dataByIdx, k, originalLength), nil
	}

	recovered := make(map[int][]byte, k)
	for i := 0; i < k; i++ {
		if s, ok := dataByIdx[i]; ok {
			recovered[i] = s.Data
			continue
		}
		group := groupOf(i, k, m)
		parity, ok := parityByIdx[group]
		if !ok {
			return nil, ErrInsufficientShards
		}
		acc := make([]byte, chunkSize)
		xorInto(acc, parity.Data)
		missingCount := 0
		for idx := 0; idx < k; idx++ {
			if groupOf(idx, k, m) != group {
				continue
			}
			if idx == i {
				missingCount++
				continue
			}
			s, ok := dataByIdx[idx]
			if !ok {
				missingCount++
				continue
			}
			xorInto(acc, s.Data)
		}
		if missingCount != 1 {
			return nil, ErrInsufficientShards
		}
		recovered[i] = acc
	}

	out := make([]byte, 0, k*chunkSize)
	for i := 0; i < k; i++ {
		out = append(out, recovered[i]...)
	}
	if originalLength < len(out) {
		out = out[:originalLength]
	}
	return out, nil
}

// reconstructFromData is the fast path used internally when every data shard is
// present: a plain concatenate-and-truncate, distinct from the XOR recovery
// decode performs when shards are missing. It is not exported; external
// callers always go through Decode.
func reconstructFromData(dataByIdx map[int]Shard, k, originalLength int) []byte {
	out := make([]byte, 0, k*dataByIdx[0].ChunkSize)
	for i := 0; i < k; i++ {
		out = append(out, dataByIdx[i].Data...)
	}
	if originalLength < len(out) {
		out = out[:originalLength]
	}
	return out
}

func xorInto(dst, src []byte) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}

// ShardID is the content-addressed identifier of a shard, used as the
// storage key across StorageNodes.
func (s Shard) ShardID() Hash {
	idx := make([]byte, 8)
	binary.BigEndian.PutUint64(idx, uint64(s.Index))
	parity := byte(0)
	if s.IsParity {
		parity = 1
	}
	return sha256Sum(s.Data, idx, []byte{parity})
}
