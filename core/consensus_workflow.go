package core

// consensus_workflow.go – orchestrates submission, validation and
// finalization, driving Mempool's transitions and owning rawTTL /
// processingTTL eviction via per-transaction time.AfterFunc timers, since
// XMBL's TTLs are per-entry rather than a single periodic sweep.

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// retryBackoff is the IO-error retry schedule: 5 retries after the first
// call, doubling from 100ms.
var retryBackoff = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
	1600 * time.Millisecond,
}

// withRetry calls fn up to len(retryBackoff)+1 times, sleeping the schedule
// between attempts, as long as fn's error is ErrIO. Any other error (or
// success) returns immediately.
func withRetry(ctx context.Context, logger *logrus.Logger, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isIOError(err) || attempt >= len(retryBackoff) {
			return err
		}
		logger.Warnf("consensus: %s failed (attempt %d), retrying: %v", op, attempt+1, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryBackoff[attempt]):
		}
	}
}

func isIOError(err error) bool {
	return errors.Is(err, ErrIO)
}

// ConsensusWorkflowConfig fixes the validation threshold and stage TTLs.
type ConsensusWorkflowConfig struct {
	RequiredValidations uint32
	RawTTL              time.Duration
	ProcessingTTL       time.Duration
}

// ConsensusWorkflow is the orchestration layer: it is the
// only component that calls Mempool's stage-transition methods in response
// to external events (submission, validator endorsement, TTL expiry) and is
// responsible for computing and applying StateDiffs on finalization.
type ConsensusWorkflow struct {
	cfg     ConsensusWorkflowConfig
	logger  *logrus.Logger
	sigs    SignatureProvider
	mempool *Mempool
	state   *VerkleStateTree
	ledger  *CubicLedger
	kv      KVStore
	bus     Broadcaster

	timers timerSet
}

// timerSet tracks outstanding TTL timers so they can be canceled once a
// transaction leaves the stage they were scheduled for. AfterFunc callbacks
// run on their own goroutines, so access is guarded by mu.
type timerSet struct {
	mu         sync.Mutex
	raw        map[Hash]*time.Timer
	processing map[Hash]*time.Timer
}

// NewConsensusWorkflow wires a ConsensusWorkflow over the given collaborators.
func NewConsensusWorkflow(cfg ConsensusWorkflowConfig, sigs SignatureProvider, mempool *Mempool, state *VerkleStateTree, ledger *CubicLedger, kv KVStore, bus Broadcaster, logger *logrus.Logger) *ConsensusWorkflow {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConsensusWorkflow{
		cfg:     cfg,
		logger:  logger,
		sigs:    sigs,
		mempool: mempool,
		state:   state,
		ledger:  ledger,
		kv:      kv,
		bus:     bus,
		timers: timerSet{
			raw:        make(map[Hash]*time.Timer),
			processing: make(map[Hash]*time.Timer),
		},
	}
}

// SubmitTransaction verifies tx's authenticity, stores it under leader's raw
// stage, schedules its rawTTL eviction timer, and broadcasts raw_tx:added.
// It returns the computed rawTxId.
func (w *ConsensusWorkflow) SubmitTransaction(ctx context.Context, leader string, tx *Transaction) (Hash, error) {
	// Cancelable up to the signature check; once SubmitRaw succeeds the
	// submission is committed and cancellation is a no-op.
	if err := ctx.Err(); err != nil {
		return Hash{}, err
	}
	if err := tx.VerifyAuthenticity(w.sigs); err != nil {
		return Hash{}, err
	}

	rawTxID, err := w.mempool.SubmitRaw(leader, tx)
	if err != nil {
		return Hash{}, err
	}

	w.scheduleRawTTL(leader, rawTxID)

	if err := withRetry(ctx, w.logger, "publish raw_tx:added", func() error {
		return w.bus.Publish(ctx, TopicRawTxAdded, rawTxID[:])
	}); err != nil {
		w.logger.Warnf("consensus: raw_tx:added publish ultimately failed for %s: %v", rawTxID.Hex(), err)
	}
	return rawTxID, nil
}

// BeginProcessing advances rawTxId into the processing stage, cancels its
// rawTTL timer, schedules its processingTTL timer, and broadcasts
// tx:processing.
func (w *ConsensusWorkflow) BeginProcessing(ctx context.Context, leader string, rawTxID Hash) error {
	if err := w.mempool.BeginProcessing(leader, rawTxID); err != nil {
		return err
	}
	w.cancelRawTTL(rawTxID)
	w.scheduleProcessingTTL(leader, rawTxID)

	if err := withRetry(ctx, w.logger, "publish tx:processing", func() error {
		return w.bus.Publish(ctx, TopicTxProcessing, rawTxID[:])
	}); err != nil {
		w.logger.Warnf("consensus: tx:processing publish ultimately failed for %s: %v", rawTxID.Hex(), err)
	}
	return nil
}

// Validate policy is "always validate": any caller presenting a validatorID
// endorses rawTxId unconditionally. Byzantine validator behavior is out of
// scope.
func (w *ConsensusWorkflow) Validate(leader string, rawTxID Hash, validatorID string) error {
	return w.mempool.Validate(leader, rawTxID, validatorID)
}

// Finalize attempts to finalize rawTxId. On success it cancels the
// processingTTL timer, computes and applies tx's StateDiff, appends the
// transaction to the CubicLedger, and broadcasts tx:finalized. Concurrent
// finalizers racing the same rawTxId observe ErrAlreadyFinalized on every
// call after the first, per Mempool.Finalize's idempotence contract.
func (w *ConsensusWorkflow) Finalize(ctx context.Context, leader string, rawTxID Hash, timestamp int64) (*Transaction, error) {
	tx, err := w.mempool.Finalize(leader, rawTxID)
	if err != nil {
		return nil, err
	}
	w.cancelProcessingTTL(rawTxID)

	diff := stateDiffFor(tx, rawTxID, timestamp)
	ApplyStateDiff(w.state, diff)

	if _, err := w.ledger.Append(ctx, tx, timestamp); err != nil {
		return nil, err
	}

	if err := withRetry(ctx, w.logger, "put finalized tx", func() error {
		blob, merr := tx.SignedJSON()
		if merr != nil {
			return merr
		}
		return w.kv.Put(ctx, append([]byte("tx/"), rawTxID[:]...), blob)
	}); err != nil {
		w.logger.Warnf("consensus: persisting finalized tx %s ultimately failed: %v", rawTxID.Hex(), err)
	}

	if err := withRetry(ctx, w.logger, "publish tx:finalized", func() error {
		return w.bus.Publish(ctx, TopicTxFinalized, rawTxID[:])
	}); err != nil {
		w.logger.Warnf("consensus: tx:finalized publish ultimately failed for %s: %v", rawTxID.Hex(), err)
	}

	w.logger.Infof("consensus: finalized %s for leader=%s", rawTxID.Hex(), leader)
	return tx, nil
}

// stateDiffFor derives the StateDiff a finalized transaction produces: for
// utxo transactions, each output becomes a key/value entry addressed by its
// UTXORef; for state/storage/compute transactions, the transaction's payload
// is written under a key addressed by rawTxId, since application-level key
// derivation is outside this module's scope.
func stateDiffFor(tx *Transaction, rawTxID Hash, timestamp int64) StateDiff {
	diff := NewStateDiff(rawTxID, timestamp)
	switch tx.Type {
	case TxUTXO:
		for i, out := range tx.Outputs {
			ref := UTXORef{TxID: rawTxID, OutputIndex: uint32(i)}
			key := utxoStateKey(ref)
			diff.Set(key, []byte(out.Address))
		}
	default:
		if len(tx.Payload) > 0 {
			diff.Set("payload/"+rawTxID.Hex(), tx.Payload)
		}
	}
	return diff
}

func utxoStateKey(ref UTXORef) string {
	return "utxo/" + ref.TxID.Hex() + "/" + strconv.FormatUint(uint64(ref.OutputIndex), 10)
}

func (w *ConsensusWorkflow) scheduleRawTTL(leader string, rawTxID Hash) {
	if w.cfg.RawTTL <= 0 {
		return
	}
	timer := time.AfterFunc(w.cfg.RawTTL, func() {
		if w.mempool.EvictRaw(leader, rawTxID) {
			w.timers.mu.Lock()
			delete(w.timers.raw, rawTxID)
			w.timers.mu.Unlock()
			ctx := context.Background()
			if err := w.bus.Publish(ctx, TopicRawTxExpired, rawTxID[:]); err != nil {
				w.logger.Warnf("consensus: raw_tx:expired publish failed for %s: %v", rawTxID.Hex(), err)
			}
		}
	})
	w.timers.mu.Lock()
	w.timers.raw[rawTxID] = timer
	w.timers.mu.Unlock()
}

func (w *ConsensusWorkflow) cancelRawTTL(rawTxID Hash) {
	w.timers.mu.Lock()
	defer w.timers.mu.Unlock()
	if t, ok := w.timers.raw[rawTxID]; ok {
		t.Stop()
		delete(w.timers.raw, rawTxID)
	}
}

func (w *ConsensusWorkflow) scheduleProcessingTTL(leader string, rawTxID Hash) {
	if w.cfg.ProcessingTTL <= 0 {
		return
	}
	timer := time.AfterFunc(w.cfg.ProcessingTTL, func() {
		if w.mempool.ResetProcessing(leader, rawTxID) {
			w.timers.mu.Lock()
			delete(w.timers.processing, rawTxID)
			w.timers.mu.Unlock()
			ctx := context.Background()
			if err := w.bus.Publish(ctx, TopicTxReset, rawTxID[:]); err != nil {
				w.logger.Warnf("consensus: tx:reset publish failed for %s: %v", rawTxID.Hex(), err)
			}
			w.scheduleRawTTL(leader, rawTxID)
		}
	})
	w.timers.mu.Lock()
	w.timers.processing[rawTxID] = timer
	w.timers.mu.Unlock()
}

func (w *ConsensusWorkflow) cancelProcessingTTL(rawTxID Hash) {
	w.timers.mu.Lock()
	defer w.timers.mu.Unlock()
	if t, ok := w.timers.processing[rawTxID]; ok {
		t.Stop()
		delete(w.timers.processing, rawTxID)
	}
}
