package core

// runtime.go – the core facade: constructs and wires every
// collaborator with no package-level globals. Follows the top-level
// constructor pattern that threads explicit dependencies through a single
// struct, the way a node's main wiring assembles its TxPool, Broadcaster and
// Ledger.

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RuntimeConfig collects the tunables a Runtime needs at construction time.
// Field names mirror pkg/config.Config so callers typically build one from
// the other.
type RuntimeConfig struct {
	Leaders             []string
	LeaderCount         int
	RequiredValidations uint32
	RawTTL              time.Duration
	ProcessingTTL       time.Duration
	StorageNodeCount    int
	StorageCapacity     uint64
	ShardK              int
	ShardM              int
}

// Runtime wires every XMBL component into a single, explicitly constructed
// facade. There are no package-level globals: every dependent component
// receives its collaborators through this struct or through the
// constructors it calls.
type Runtime struct {
	cfg RuntimeConfig

	logger   *logrus.Logger
	Sigs     SignatureProvider
	KV       KVStore
	Bus      Broadcaster
	Shard    *ShardCoder
	Storage  []*StorageNode
	State    *VerkleStateTree
	Mempool  *Mempool
	Ledger   *CubicLedger
	Workflow *ConsensusWorkflow

	mu      sync.Mutex
	tip     Hash // rawTxId of the most recently finalized tx; election seed
	leaders []string
}

// NewRuntime constructs a fully wired Runtime. sigs, kv and bus are external
// collaborators (production deployments supply a post-quantum
// SignatureProvider, an on-disk KVStore and a networked Broadcaster); nil
// arguments fall back to this module's in-process defaults so the system is
// runnable standalone.
func NewRuntime(cfg RuntimeConfig, sigs SignatureProvider, kv KVStore, bus Broadcaster, logger *logrus.Logger) *Runtime {
	if logger == nil {
		logger = logrus.New()
	}
	if sigs == nil {
		sigs = NewECDSAProvider()
	}
	if kv == nil {
		kv = NewMemoryKVStore()
	}
	if bus == nil {
		bus = NewInProcessBroadcaster()
	}

	state := NewVerkleStateTree()
	ledger := NewCubicLedger(bus, state, logger)
	mempool := NewMempool(cfg.RequiredValidations, logger)

	storageCapacity := cfg.StorageCapacity
	nodeCount := cfg.StorageNodeCount
	if nodeCount <= 0 {
		nodeCount = 1
	}
	storage := make([]*StorageNode, nodeCount)
	for i := range storage {
		storage[i] = NewStorageNode(storageCapacity, logger)
	}

	leaderCount := cfg.LeaderCount
	if leaderCount <= 0 {
		leaderCount = DefaultLeaderCount
	}
	leaders := ElectLeaders(cfg.Leaders, leaderCount, GenesisSeed)

	workflow := NewConsensusWorkflow(ConsensusWorkflowConfig{
		RequiredValidations: cfg.RequiredValidations,
		RawTTL:              cfg.RawTTL,
		ProcessingTTL:       cfg.ProcessingTTL,
	}, sigs, mempool, state, ledger, kv, bus, logger)

	rt := &Runtime{
		cfg:      cfg,
		logger:   logger,
		Sigs:     sigs,
		KV:       kv,
		Bus:      bus,
		Shard:    NewShardCoder(),
		Storage:  storage,
		State:    state,
		Mempool:  mempool,
		Ledger:   ledger,
		Workflow: workflow,
		leaders:  leaders,
	}

	// The election seed is the finalized tip's rawTxId; each finalization
	// advances the tip and re-elects from the configured candidate set.
	bus.Subscribe(TopicTxFinalized, func(payload []byte) {
		if len(payload) != len(Hash{}) {
			return
		}
		var tip Hash
		copy(tip[:], payload)
		rt.advanceTip(tip)
	})
	return rt
}

func (r *Runtime) advanceTip(tip Hash) {
	leaderCount := r.cfg.LeaderCount
	if leaderCount <= 0 {
		leaderCount = DefaultLeaderCount
	}
	elected := ElectLeaders(r.cfg.Leaders, leaderCount, tip.Hex())
	r.mu.Lock()
	r.tip = tip
	r.leaders = elected
	r.mu.Unlock()
	r.logger.Debugf("runtime: tip=%s leaders=%v", tip.Hex(), elected)
}

// Leaders returns the currently elected leader set.
func (r *Runtime) Leaders() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.leaders))
	copy(out, r.leaders)
	return out
}

// Tip returns the rawTxId of the most recently finalized transaction, or the
// zero hash before any finalization.
func (r *Runtime) Tip() Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tip
}

// SubmitTransaction is the Runtime's single external entry point for
// transaction intake: it picks the submitting leader (the first elected
// leader, if any candidates were configured) and delegates to
// ConsensusWorkflow.SubmitTransaction.
func (r *Runtime) SubmitTransaction(ctx context.Context, tx *Transaction) (Hash, error) {
	leader := ""
	r.mu.Lock()
	if len(r.leaders) > 0 {
		leader = r.leaders[0]
	}
	r.mu.Unlock()
	return r.Workflow.SubmitTransaction(ctx, leader, tx)
}

// StoreShards encodes payload into (k, m) shards and distributes them
// round-robin across the Runtime's storage nodes.
func (r *Runtime) StoreShards(payload []byte) ([]Hash, error) {
	k, m := r.cfg.ShardK, r.cfg.ShardM
	if k <= 0 {
		k = 1
	}
	dataShards, parityShards, err := r.Shard.Encode(payload, k, m)
	if err != nil {
		return nil, err
	}
	all := append(append([]Shard{}, dataShards...), parityShards...)

	ids := make([]Hash, len(all))
	for i, s := range all {
		node := r.Storage[i%len(r.Storage)]
		id, err := node.StoreShard(s)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
