package core

import (
	"encoding/base64"
	"encoding/json"
	"math/big"
)

// TxType enumerates the four transaction kinds the ledger understands.
type TxType string

const (
	TxUTXO    TxType = "utxo"
	TxState   TxType = "state"
	TxStorage TxType = "storage"
	TxCompute TxType = "compute"
)

// UTXORef globally identifies a single unspent transaction output.
type UTXORef struct {
	TxID        Hash   `json:"txId"`
	OutputIndex uint32 `json:"outputIndex"`
}

// Output is a single {address, amount} pair produced by a transaction.
type Output struct {
	Address string   `json:"address"`
	Amount  *big.Int `json:"amount"`
}

// Transaction is the in-memory representation of an XMBL transaction. Amount,
// Fee and Stake are minor-unit integer quantities. Sig is populated once the
// transaction has been signed; the unsigned and signed forms share the same
// canonical serialization since Sig is never part of it.
type Transaction struct {
	Type      TxType    `json:"type"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    *big.Int  `json:"amount"`
	Fee       *big.Int  `json:"fee"`
	Stake     *big.Int  `json:"stake"`
	Timestamp int64     `json:"timestamp"`
	Inputs    []UTXORef `json:"inputs"`
	Outputs   []Output  `json:"outputs"`
	Payload   []byte    `json:"payload,omitempty"`

	// Sig and PubKey accompany a signed transaction but are never part of
	// the canonical signing payload: the signed payload is always the
	// canonical form with sig removed. PubKey lets Verify recover the
	// claimed signer without requiring a separate address→key registry.
	Sig    []byte `json:"sig,omitempty"`
	PubKey []byte `json:"pubKey,omitempty"`
}

// zeroOrBig returns "0" for a nil *big.Int, matching the encode-as-string
// persisted layout used for every numeric amount.
func zeroOrBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Canonical returns the canonical JSON serialization of tx with Sig removed
// and keys sorted lexicographically at every level. It is the exact byte
// sequence that is hashed to produce a rawTxId and that
// SignatureProvider.Sign/Verify operate over.
func (tx *Transaction) Canonical() ([]byte, error) {
	inputs := make([]map[string]interface{}, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = map[string]interface{}{
			"txId":        in.TxID.Hex(),
			"outputIndex": in.OutputIndex,
		}
	}
	outputs := make([]map[string]interface{}, len(tx.Outputs))
	for i, out := range tx.Outputs {
		outputs[i] = map[string]interface{}{
			"address": out.Address,
			"amount":  zeroOrBig(out.Amount),
		}
	}

	m := map[string]interface{}{
		"type":      string(tx.Type),
		"from":      tx.From,
		"to":        tx.To,
		"amount":    zeroOrBig(tx.Amount),
		"fee":       zeroOrBig(tx.Fee),
		"stake":     zeroOrBig(tx.Stake),
		"timestamp": tx.Timestamp,
		"inputs":    inputs,
		"outputs":   outputs,
	}
	if len(tx.Payload) > 0 {
		m["payload"] = base64.StdEncoding.EncodeToString(tx.Payload)
	}
	// encoding/json sorts map[string]X keys lexicographically, giving us the
	// canonical ordering at every nesting level for free.
	return json.Marshal(m)
}

// SignedJSON returns the persisted wire form of a signed transaction: the
// canonical serialization plus sig and pubKey as base64 fields. Unlike
// Canonical it is never hashed or signed over.
func (tx *Transaction) SignedJSON() ([]byte, error) {
	blob, err := tx.Canonical()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, err
	}
	if len(tx.Sig) > 0 {
		m["sig"] = base64.StdEncoding.EncodeToString(tx.Sig)
	}
	if len(tx.PubKey) > 0 {
		m["pubKey"] = base64.StdEncoding.EncodeToString(tx.PubKey)
	}
	return json.Marshal(m)
}

// RawTxID computes the rawTxId: hash(canonical(signed tx)).
func (tx *Transaction) RawTxID() (Hash, error) {
	blob, err := tx.Canonical()
	if err != nil {
		return Hash{}, err
	}
	return sha256Sum(blob), nil
}
