package core

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestShardCoderRoundTrip(t *testing.T) {
	coder := NewShardCoder()
	data := make([]byte, 1024)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	dataShards, parityShards, err := coder.Encode(data, 4, 2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(dataShards) != 4 || len(parityShards) != 2 {
		t.Fatalf("got %d data / %d parity shards, want 4/2", len(dataShards), len(parityShards))
	}

	all := append(append([]Shard{}, dataShards...), parityShards...)
	out, err := coder.Decode(all, 4, 2)
	if err != nil {
		t.Fatalf("Decode (all shards): %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestShardCoderRecoversFromSingleLossPerGroup(t *testing.T) {
	coder := NewShardCoder()
	data := make([]byte, 1<<20) // 1MB payload exercising the erasure-recovery path
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	dataShards, parityShards, err := coder.Encode(data, 4, 2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Drop data shards 1 and 3. With k=4, m=2 the data indices split into two
	// contiguous groups {0,1} and {2,3}, so each group has exactly one loss
	// and recovers from its parity shard plus its surviving member.
	var remaining []Shard
	for _, s := range dataShards {
		if s.Index == 1 || s.Index == 3 {
			continue
		}
		remaining = append(remaining, s)
	}
	remaining = append(remaining, parityShards...)

	out, err := coder.Decode(remaining, 4, 2)
	if err != nil {
		t.Fatalf("Decode (missing 1,3): %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("recovered payload mismatch")
	}
}

func TestShardCoderInsufficientShards(t *testing.T) {
	coder := NewShardCoder()
	data := []byte("xmbl erasure coding test payload")
	dataShards, parityShards, err := coder.Encode(data, 4, 1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Drop two data shards with only one parity shard (m=1): the shared
	// parity group can recover at most one loss.
	var remaining []Shard
	for _, s := range dataShards {
		if s.Index == 0 || s.Index == 1 {
			continue
		}
		remaining = append(remaining, s)
	}
	remaining = append(remaining, parityShards...)

	if _, err := coder.Decode(remaining, 4, 1); err != ErrInsufficientShards {
		t.Fatalf("Decode: got err=%v, want ErrInsufficientShards", err)
	}
}

func TestShardCoderEmptyPayload(t *testing.T) {
	coder := NewShardCoder()
	dataShards, parityShards, err := coder.Encode(nil, 3, 1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	all := append(append([]Shard{}, dataShards...), parityShards...)
	out, err := coder.Decode(all, 3, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d bytes, want 0", len(out))
	}
}
