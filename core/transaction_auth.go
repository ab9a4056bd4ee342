package core

import "context"

// Sign computes tx's canonical payload, signs it with sp and secKey, and
// populates Sig and PubKey on tx. From must already equal
// sp.DeriveAddress(pubKey) for the resulting transaction to verify.
func (tx *Transaction) Sign(ctx context.Context, sp SignatureProvider, pubKey, secKey []byte) error {
	payload, err := tx.Canonical()
	if err != nil {
		return err
	}
	sig, err := sp.Sign(ctx, payload, secKey)
	if err != nil {
		return err
	}
	tx.Sig = sig
	tx.PubKey = pubKey
	return nil
}

// VerifyAuthenticity checks the authenticity contract: the signature
// over tx's canonical payload is valid for tx.PubKey, and the address
// derived from tx.PubKey equals tx.From. It returns ErrAuth on any failure.
func (tx *Transaction) VerifyAuthenticity(sp SignatureProvider) error {
	if len(tx.Sig) == 0 || len(tx.PubKey) == 0 {
		return ErrAuth
	}
	payload, err := tx.Canonical()
	if err != nil {
		return ErrAuth
	}
	if !sp.Verify(payload, tx.Sig, tx.PubKey) {
		return ErrAuth
	}
	if sp.DeriveAddress(tx.PubKey) != tx.From {
		return ErrAuth
	}
	return nil
}
