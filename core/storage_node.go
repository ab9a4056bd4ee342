package core

// storage_node.go – capacity-bounded, content-addressed shard container.
// Guarded by a plain sync.Mutex, the same field-locking idiom used
// throughout core/; every operation, reads included, holds it exclusively,
// so readers do not run concurrently with each other.

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StorageNode holds shards up to a fixed byte capacity.
type StorageNode struct {
	mu       sync.Mutex
	logger   *logrus.Logger
	id       string
	capacity uint64
	used     uint64
	shards   map[Hash]Shard
}

// NewStorageNode constructs a StorageNode with the given byte capacity. A
// nil logger gets a default logrus.Logger, the same lg == nil ->
// logrus.New() fallback used throughout core/. Its id is a randomly
// generated UUID, since storage nodes (unlike shards) are not themselves
// content-addressed.
func NewStorageNode(capacity uint64, logger *logrus.Logger) *StorageNode {
	if logger == nil {
		logger = logrus.New()
	}
	return &StorageNode{
		id:       uuid.NewString(),
		capacity: capacity,
		logger:   logger,
		shards:   make(map[Hash]Shard),
	}
}

// ID returns the storage node's randomly generated identifier.
func (n *StorageNode) ID() string { return n.id }

// StoreShard inserts s, keyed by its content address. It rejects the write
// with ErrCapacityExceeded if it would push used bytes past capacity.
func (n *StorageNode) StoreShard(s Shard) (Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := s.ShardID()
	if existing, ok := n.shards[id]; ok {
		_ = existing
		return id, nil // identical content already stored; idempotent
	}
	if n.used+uint64(len(s.Data)) > n.capacity {
		return Hash{}, ErrCapacityExceeded
	}
	n.shards[id] = s
	n.used += uint64(len(s.Data))
	n.logger.Debugf("storage: stored shard %s (%d bytes, used %d/%d)", id.Hex(), len(s.Data), n.used, n.capacity)
	return id, nil
}

// GetShard returns the shard stored under id, or ErrNotFound.
func (n *StorageNode) GetShard(id Hash) (Shard, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.shards[id]
	if !ok {
		return Shard{}, ErrNotFound
	}
	return s, nil
}

// DeleteShard removes the shard stored under id and reclaims its bytes. It
// is a no-op (not an error) if the shard is already absent.
func (n *StorageNode) DeleteShard(id Hash) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.shards[id]
	if !ok {
		return nil
	}
	delete(n.shards, id)
	if n.used >= uint64(len(s.Data)) {
		n.used -= uint64(len(s.Data))
	} else {
		n.used = 0
	}
	return nil
}

// Used returns the number of bytes currently occupied.
func (n *StorageNode) Used() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.used
}

// Capacity returns the node's configured byte capacity.
func (n *StorageNode) Capacity() uint64 { return n.capacity }

// ArchiveShard returns s's gzip-compressed data, for callers that want to
// hand cold shards off to external archival storage without holding them at
// full size in a StorageNode's capacity budget.
func ArchiveShard(s Shard) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(s.Data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RestoreShard reverses ArchiveShard, reconstituting shard metadata around
// the decompressed payload.
func RestoreShard(archived []byte, index, chunkSize, originalLength int, isParity bool) (Shard, error) {
	zr, err := gzip.NewReader(bytes.NewReader(archived))
	if err != nil {
		return Shard{}, err
	}
	defer zr.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, zr); err != nil {
		return Shard{}, err
	}
	return Shard{
		Index:          index,
		ChunkSize:      chunkSize,
		IsParity:       isParity,
		OriginalLength: originalLength,
		Data:           out.Bytes(),
	}, nil
}
