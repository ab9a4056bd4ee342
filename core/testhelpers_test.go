package core

// testhelpers_test.go – small fixtures shared by the core package's tests:
// a signed utxo transaction builder backed by the default ECDSAProvider, so
// state-machine tests never need to hand-roll signature bytes.

import (
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/sirupsen/logrus"
)

// logrusDiscard returns a logger that swallows output, for tests exercising
// warn-logging retry paths.
func logrusDiscard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newSignedUTXOTx builds and signs a utxo transaction from a freshly
// generated keypair, optionally spending the given inputs.
func newSignedUTXOTx(t *testing.T, to string, amount int64, inputs []UTXORef) *Transaction {
	sigs := NewECDSAProvider()
	pub, sec, err := sigs.Keygen()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	tx := &Transaction{
		Type:      TxUTXO,
		From:      sigs.DeriveAddress(pub),
		To:        to,
		Amount:    big.NewInt(amount),
		Fee:       big.NewInt(1),
		Stake:     big.NewInt(0),
		Timestamp: 1000,
		Inputs:    inputs,
		Outputs:   []Output{{Address: to, Amount: big.NewInt(amount)}},
	}
	if err := tx.Sign(context.Background(), sigs, pub, sec); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}
