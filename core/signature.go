package core

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureProvider is the external collaborator that signs and verifies
// transaction payloads and derives addresses from public keys. Production
// deployments back this interface with a post-quantum signature scheme; the
// consensus and mempool logic in this module never assumes a particular
// algorithm. Sign may perform expensive work and therefore takes a context.
type SignatureProvider interface {
	Keygen() (pubKey, secKey []byte, err error)
	Sign(ctx context.Context, msg []byte, secKey []byte) (sig []byte, err error)
	Verify(msg []byte, sig []byte, pubKey []byte) bool
	DeriveAddress(pubKey []byte) string
}

// ECDSAProvider is the default SignatureProvider, backed by secp256k1 ECDSA
// via go-ethereum/crypto. Verify and DeriveAddress are deterministic. It
// exists so the module is runnable standalone; swapping in a post-quantum
// provider requires no changes to Mempool, ConsensusWorkflow, or
// CubicLedger.
type ECDSAProvider struct{}

// NewECDSAProvider returns the default SignatureProvider implementation.
func NewECDSAProvider() *ECDSAProvider { return &ECDSAProvider{} }

func (p *ECDSAProvider) Keygen() (pubKey, secKey []byte, err error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	return crypto.FromECDSAPub(&priv.PublicKey), crypto.FromECDSA(priv), nil
}

func (p *ECDSAProvider) Sign(ctx context.Context, msg []byte, secKey []byte) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	priv, err := crypto.ToECDSA(secKey)
	if err != nil {
		return nil, err
	}
	digest := hashForSig(msg)
	return crypto.Sign(digest[:], priv)
}

func (p *ECDSAProvider) Verify(msg []byte, sig []byte, pubKey []byte) bool {
	if len(sig) != 65 {
		return false
	}
	digest := hashForSig(msg)
	return crypto.VerifySignature(pubKey, digest[:], sig[:64])
}

func (p *ECDSAProvider) DeriveAddress(pubKey []byte) string {
	return DeriveAddress(pubKey)
}

// PublicKeyFromSig recovers the signer's public key from msg and sig.
// VerifyAuthenticity does not call it: a transaction without PubKey is
// rejected with ErrAuth.
func PublicKeyFromSig(msg, sig []byte) ([]byte, error) {
	if len(sig) != 65 {
		return nil, errors.New("malformed signature")
	}
	digest := hashForSig(msg)
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return nil, err
	}
	return crypto.FromECDSAPub(pub), nil
}

// hashForSig reduces an arbitrary-length message to the 32-byte digest that
// the underlying ECDSA primitive signs.
func hashForSig(msg []byte) Hash {
	return sha256Sum(msg)
}
