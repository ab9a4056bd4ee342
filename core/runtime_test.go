package core

import (
	"context"
	"testing"
)

func TestRuntimeSubmitTransactionEndToEnd(t *testing.T) {
	rt := NewRuntime(RuntimeConfig{
		Leaders:             []string{"leader-a"},
		LeaderCount:         1,
		RequiredValidations: 1,
		StorageNodeCount:    1,
		StorageCapacity:     1 << 20,
		ShardK:              2,
		ShardM:              1,
	}, nil, nil, nil, nil)

	tx := newSignedUTXOTx(t, "xmb-to", 50, nil)
	ctx := context.Background()

	rawTxID, err := rt.SubmitTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if err := rt.Workflow.BeginProcessing(ctx, rt.Leaders()[0], rawTxID); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if err := rt.Workflow.Validate(rt.Leaders()[0], rawTxID, "v1"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := rt.Workflow.Finalize(ctx, rt.Leaders()[0], rawTxID, 1); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if len(rt.Ledger.GetCubes()) != 0 {
		t.Fatalf("expected no completed cubes yet, got %d", len(rt.Ledger.GetCubes()))
	}
	if rt.Mempool.Stats(rt.Leaders()[0]).Tx != 1 {
		t.Fatalf("mempool tx count = %d, want 1", rt.Mempool.Stats(rt.Leaders()[0]).Tx)
	}
}

func TestRuntimeTipAdvancesAndReElectsOnFinalize(t *testing.T) {
	rt := NewRuntime(RuntimeConfig{
		Leaders:             []string{"leader-a", "leader-b", "leader-c", "leader-d"},
		LeaderCount:         2,
		RequiredValidations: 1,
		StorageNodeCount:    1,
		StorageCapacity:     1 << 20,
	}, nil, nil, nil, nil)

	if !rt.Tip().IsZero() {
		t.Fatalf("tip before any finalization = %s, want zero", rt.Tip().Hex())
	}

	tx := newSignedUTXOTx(t, "xmb-to", 5, nil)
	ctx := context.Background()
	leader := rt.Leaders()[0]

	rawTxID, err := rt.Workflow.SubmitTransaction(ctx, leader, tx)
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
	if err := rt.Workflow.BeginProcessing(ctx, leader, rawTxID); err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if err := rt.Workflow.Validate(leader, rawTxID, "v1"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := rt.Workflow.Finalize(ctx, leader, rawTxID, 1); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if rt.Tip() != rawTxID {
		t.Fatalf("tip = %s after finalize, want %s", rt.Tip().Hex(), rawTxID.Hex())
	}
	want := ElectLeaders([]string{"leader-a", "leader-b", "leader-c", "leader-d"}, 2, rawTxID.Hex())
	got := rt.Leaders()
	if len(got) != len(want) {
		t.Fatalf("leaders = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("leaders = %v, want %v (seeded by finalized tip)", got, want)
		}
	}
}

func TestRuntimeStoreShardsRoundTrips(t *testing.T) {
	rt := NewRuntime(RuntimeConfig{
		StorageNodeCount: 3,
		StorageCapacity:  1 << 20,
		ShardK:           2,
		ShardM:           1,
	}, nil, nil, nil, nil)

	ids, err := rt.StoreShards([]byte("payload spread across storage nodes"))
	if err != nil {
		t.Fatalf("StoreShards: %v", err)
	}
	if len(ids) != 3 { // k=2 data + m=1 parity
		t.Fatalf("len(ids) = %d, want 3", len(ids))
	}

	found := 0
	for _, node := range rt.Storage {
		for _, id := range ids {
			if _, err := node.GetShard(id); err == nil {
				found++
			}
		}
	}
	if found != len(ids) {
		t.Fatalf("found %d shards across storage nodes, want %d", found, len(ids))
	}
}
