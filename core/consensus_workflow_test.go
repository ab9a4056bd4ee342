package core

import (
	"context"
	"math/big"
	"testing"
	"time"
)

func newTestWorkflow(t *testing.T, cfg ConsensusWorkflowConfig) (*ConsensusWorkflow, *Mempool, *CubicLedger, *VerkleStateTree, *InProcessBroadcaster) {
	t.Helper()
	mempool := NewMempool(cfg.RequiredValidations, nil)
	state := NewVerkleStateTree()
	bus := NewInProcessBroadcaster()
	ledger := NewCubicLedger(bus, state, nil)
	kv := NewMemoryKVStore()
	workflow := NewConsensusWorkflow(cfg, NewECDSAProvider(), mempool, state, ledger, kv, bus, nil)
	return workflow, mempool, ledger, state, bus
}

func TestConsensusWorkflowHappyPathFinalize(t *testing.T) {
	workflow, _, ledger, state, bus := newTestWorkflow(t, ConsensusWorkflowConfig{RequiredValidations: 3})

	var finalizedCount, blockAddedCount int
	bus.Subscribe(TopicTxFinalized, func([]byte) { finalizedCount++ })
	bus.Subscribe(TopicBlockAdded, func([]byte) { blockAddedCount++ })

	tx := newSignedUTXOTx(t, "xmb-to", 100, nil)
	ctx := context.Background()

	rootBefore := state.Root()
	rawTxID, err := workflow.SubmitTransaction(ctx, "leader-a", tx)
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if err := workflow.BeginProcessing(ctx, "leader-a", rawTxID); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	for _, v := range []string{"v1", "v2", "v3"} {
		if err := workflow.Validate("leader-a", rawTxID, v); err != nil {
			t.Fatalf("Validate(%s): %v", v, err)
		}
	}
	if _, err := workflow.Finalize(ctx, "leader-a", rawTxID, 2000); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if finalizedCount != 1 {
		t.Fatalf("tx:finalized fired %d times, want 1", finalizedCount)
	}
	if blockAddedCount != 1 {
		t.Fatalf("block:added fired %d times, want 1", blockAddedCount)
	}
	if len(ledger.blocksByID) != 1 {
		t.Fatalf("ledger has %d blocks, want 1", len(ledger.blocksByID))
	}
	if state.Root() == rootBefore {
		t.Fatalf("state root unchanged after finalize")
	}
}

func TestConsensusWorkflowAuthErrorOnBadSignature(t *testing.T) {
	workflow, _, _, _, _ := newTestWorkflow(t, ConsensusWorkflowConfig{RequiredValidations: 1})
	tx := &Transaction{
		Type:      TxUTXO,
		From:      "xmb-not-the-signer",
		To:        "xmb-to",
		Amount:    big.NewInt(1),
		Fee:       big.NewInt(0),
		Stake:     big.NewInt(0),
		Timestamp: 1,
		Outputs:   []Output{{Address: "xmb-to", Amount: big.NewInt(1)}},
	}
	if _, err := workflow.SubmitTransaction(context.Background(), "leader-a", tx); err != ErrAuth {
		t.Fatalf("SubmitTransaction: got %v, want ErrAuth", err)
	}
}

func TestConsensusWorkflowConcurrentFinalizeExactlyOneWins(t *testing.T) {
	workflow, _, _, _, _ := newTestWorkflow(t, ConsensusWorkflowConfig{RequiredValidations: 1})
	ctx := context.Background()
	tx := newSignedUTXOTx(t, "xmb-to", 1, nil)

	rawTxID, err := workflow.SubmitTransaction(ctx, "leader-a", tx)
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if err := workflow.BeginProcessing(ctx, "leader-a", rawTxID); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if err := workflow.Validate("leader-a", rawTxID, "v1"); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := workflow.Finalize(ctx, "leader-a", rawTxID, 10)
			results <- err
		}()
	}
	successes, alreadyFinalized := 0, 0
	for i := 0; i < 8; i++ {
		switch err := <-results; err {
		case nil:
			successes++
		case ErrAlreadyFinalized:
			alreadyFinalized++
		default:
			t.Fatalf("unexpected Finalize error: %v", err)
		}
	}
	if successes != 1 || alreadyFinalized != 7 {
		t.Fatalf("successes=%d alreadyFinalized=%d, want 1/7", successes, alreadyFinalized)
	}
}

func TestWithRetryRetriesIOErrorsOnly(t *testing.T) {
	logger := logrusDiscard()
	attempts := 0
	err := withRetry(context.Background(), logger, "flaky op", func() error {
		attempts++
		if attempts < 3 {
			return ErrIO
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}

	attempts = 0
	if err := withRetry(context.Background(), logger, "auth op", func() error {
		attempts++
		return ErrAuth
	}); err != ErrAuth {
		t.Fatalf("withRetry: got %v, want ErrAuth", err)
	}
	if attempts != 1 {
		t.Fatalf("non-IO error retried: attempts = %d, want 1", attempts)
	}
}

func TestConsensusWorkflowProcessingTTLReset(t *testing.T) {
	workflow, mempool, _, _, bus := newTestWorkflow(t, ConsensusWorkflowConfig{
		RequiredValidations: 3,
		RawTTL:              time.Hour,
		ProcessingTTL:       20 * time.Millisecond,
	})
	ctx := context.Background()
	tx := newSignedUTXOTx(t, "xmb-to", 1, nil)

	reset := make(chan struct{}, 1)
	bus.Subscribe(TopicTxReset, func([]byte) { reset <- struct{}{} })

	rawTxID, err := workflow.SubmitTransaction(ctx, "leader-a", tx)
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if err := workflow.BeginProcessing(ctx, "leader-a", rawTxID); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}

	select {
	case <-reset:
	case <-time.After(2 * time.Second):
		t.Fatalf("tx:reset did not fire before timeout")
	}

	stats := mempool.Stats("leader-a")
	if stats.Raw != 1 || stats.Processing != 0 {
		t.Fatalf("unexpected stats after processingTTL reset: %+v", stats)
	}
}
