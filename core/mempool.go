package core

// mempool.go – the three-stage, per-leader transaction pipeline.
// State is kept in plain maps behind a single mutex: one lock guarding
// lookup and queue maps, generalized here to per-leader staging plus a
// shared UTXO lock set.

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ProcessingEntry is a transaction currently being validated: the set of
// distinct validators that have endorsed it, and the UTXOs it holds locked.
type ProcessingEntry struct {
	Tx          *Transaction
	Validations map[string]struct{}
	LockedUtxos map[UTXORef]struct{}
}

type leaderMempool struct {
	rawOrder   []Hash
	raw        map[Hash]*Transaction
	processing map[Hash]*ProcessingEntry
	tx         map[Hash]*Transaction
}

func newLeaderMempool() *leaderMempool {
	return &leaderMempool{
		raw:        make(map[Hash]*Transaction),
		processing: make(map[Hash]*ProcessingEntry),
		tx:         make(map[Hash]*Transaction),
	}
}

// MempoolStats reports the size of each stage for one leader.
type MempoolStats struct {
	Raw        int
	Processing int
	Tx         int
}

// Mempool implements the per-leader raw/processing/tx pipeline and the
// global lockedUtxo set. A single mutex serializes all mutating operations:
// in-memory work never suspends, so holding it for the duration of a
// transition is cheap and keeps every rawTxId in exactly one stage.
type Mempool struct {
	mu                  sync.Mutex
	logger              *logrus.Logger
	requiredValidations uint32
	leaders             map[string]*leaderMempool
	lockedUtxo          map[UTXORef]struct{}
}

// NewMempool constructs an empty Mempool requiring requiredValidations
// distinct validators before a transaction can finalize.
func NewMempool(requiredValidations uint32, logger *logrus.Logger) *Mempool {
	if logger == nil {
		logger = logrus.New()
	}
	return &Mempool{
		logger:              logger,
		requiredValidations: requiredValidations,
		leaders:             make(map[string]*leaderMempool),
		lockedUtxo:          make(map[UTXORef]struct{}),
	}
}

func (m *Mempool) leaderFor(leader string) *leaderMempool {
	lm, ok := m.leaders[leader]
	if !ok {
		lm = newLeaderMempool()
		m.leaders[leader] = lm
	}
	return lm
}

// SubmitRaw stores tx under leader's raw stage and returns its rawTxId. A
// duplicate submission of the same rawTxId (already in raw, processing, or
// tx for this leader) is an idempotent no-op that returns the existing id.
// SubmitRaw does not verify signatures: ConsensusWorkflow is responsible for
// the AuthError check before calling it.
func (m *Mempool) SubmitRaw(leader string, tx *Transaction) (Hash, error) {
	rawTxID, err := tx.RawTxID()
	if err != nil {
		return Hash{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	lm := m.leaderFor(leader)
	if _, ok := lm.raw[rawTxID]; ok {
		return rawTxID, nil
	}
	if _, ok := lm.processing[rawTxID]; ok {
		return rawTxID, nil
	}
	if _, ok := lm.tx[rawTxID]; ok {
		return rawTxID, nil
	}

	lm.raw[rawTxID] = tx
	lm.rawOrder = append(lm.rawOrder, rawTxID)
	m.logger.Debugf("mempool: leader=%s raw+=%s", leader, rawTxID.Hex())
	return rawTxID, nil
}

// BeginProcessing advances rawTxId from raw to processing, locking its
// referenced UTXOs. It fails with ErrInputsLocked if any input is already
// held by another processing transaction, and ErrInvalidState if rawTxId is
// not currently in raw.
func (m *Mempool) BeginProcessing(leader string, rawTxID Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lm := m.leaderFor(leader)
	tx, ok := lm.raw[rawTxID]
	if !ok {
		return ErrInvalidState
	}

	for _, in := range tx.Inputs {
		if _, locked := m.lockedUtxo[in]; locked {
			return ErrInputsLocked
		}
	}

	locked := make(map[UTXORef]struct{}, len(tx.Inputs))
	for _, in := range tx.Inputs {
		m.lockedUtxo[in] = struct{}{}
		locked[in] = struct{}{}
	}

	delete(lm.raw, rawTxID)
	removeHash(&lm.rawOrder, rawTxID)
	lm.processing[rawTxID] = &ProcessingEntry{
		Tx:          tx,
		Validations: make(map[string]struct{}),
		LockedUtxos: locked,
	}
	m.logger.Debugf("mempool: leader=%s raw->processing %s", leader, rawTxID.Hex())
	return nil
}

// Validate records validatorId's endorsement of rawTxId. A validator that
// has already endorsed the same transaction is a no-op.
func (m *Mempool) Validate(leader string, rawTxID Hash, validatorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lm := m.leaderFor(leader)
	entry, ok := lm.processing[rawTxID]
	if !ok {
		if _, done := lm.tx[rawTxID]; done {
			return ErrAlreadyFinalized
		}
		return ErrInvalidState
	}
	entry.Validations[validatorID] = struct{}{}
	return nil
}

// Finalize moves rawTxId from processing to tx once it holds at least
// requiredValidations distinct validations, unlocking its inputs. Calling
// Finalize again for an already-finalized rawTxId returns ErrAlreadyFinalized
// so concurrent finalizers see a terminal, idempotent result.
func (m *Mempool) Finalize(leader string, rawTxID Hash) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lm := m.leaderFor(leader)
	entry, ok := lm.processing[rawTxID]
	if !ok {
		if _, done := lm.tx[rawTxID]; done {
			return nil, ErrAlreadyFinalized
		}
		return nil, ErrInvalidState
	}
	if uint32(len(entry.Validations)) < m.requiredValidations {
		return nil, ErrInsufficientValidations
	}

	for in := range entry.LockedUtxos {
		delete(m.lockedUtxo, in)
	}
	delete(lm.processing, rawTxID)
	lm.tx[rawTxID] = entry.Tx
	m.logger.Debugf("mempool: leader=%s processing->tx %s", leader, rawTxID.Hex())
	return entry.Tx, nil
}

// ResetProcessing rolls rawTxId back from processing to raw, clearing
// validations and unlocking its inputs (the processingTTL timeout path).
// It reports whether an entry was actually reset.
func (m *Mempool) ResetProcessing(leader string, rawTxID Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lm := m.leaderFor(leader)
	entry, ok := lm.processing[rawTxID]
	if !ok {
		return false
	}
	for in := range entry.LockedUtxos {
		delete(m.lockedUtxo, in)
	}
	delete(lm.processing, rawTxID)
	lm.raw[rawTxID] = entry.Tx
	lm.rawOrder = append(lm.rawOrder, rawTxID)
	return true
}

// EvictRaw removes rawTxId from the raw stage (the rawTTL timeout path).
// It reports whether an entry was actually evicted.
func (m *Mempool) EvictRaw(leader string, rawTxID Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lm := m.leaderFor(leader)
	if _, ok := lm.raw[rawTxID]; !ok {
		return false
	}
	delete(lm.raw, rawTxID)
	removeHash(&lm.rawOrder, rawTxID)
	return true
}

// Stats returns per-stage counts for leader.
func (m *Mempool) Stats(leader string) MempoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm := m.leaderFor(leader)
	return MempoolStats{Raw: len(lm.raw), Processing: len(lm.processing), Tx: len(lm.tx)}
}

func removeHash(s *[]Hash, h Hash) {
	for i, v := range *s {
		if v == h {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return
		}
	}
}
