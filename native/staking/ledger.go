package staking

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"towerledger/storage"
)

// NonceStore abstracts replay protection for voucher nonces. Consume must
// fail closed: once a nonce is recorded, every later Consumed call reports
// true until the backing store is destroyed.
type NonceStore interface {
	Consumed(nonce uint64) (bool, error)
	Consume(use VoucherUse) error
}

// VoucherUse is the audit record persisted for every consumed voucher.
type VoucherUse struct {
	Nonce      uint64
	Owner      [20]byte
	Kind       string
	ConsumedAt int64
}

var voucherUsePrefix = []byte("staking/voucher/")

type storedVoucherUse struct {
	Owner      [20]byte
	Kind       string
	ConsumedAt uint64
}

// NonceLedger persists consumed voucher nonces in the underlying key-value
// store so replay protection survives restarts.
type NonceLedger struct {
	db storage.Database
}

// NewNonceLedger constructs a ledger bound to the provided storage backend.
func NewNonceLedger(db storage.Database) *NonceLedger {
	return &NonceLedger{db: db}
}

func nonceKey(nonce uint64) []byte {
	key := make([]byte, len(voucherUsePrefix)+8)
	copy(key, voucherUsePrefix)
	binary.BigEndian.PutUint64(key[len(voucherUsePrefix):], nonce)
	return key
}

// Consumed reports whether the nonce has already been spent.
func (l *NonceLedger) Consumed(nonce uint64) (bool, error) {
	if l == nil || l.db == nil {
		return false, fmt.Errorf("nonce ledger: storage not configured")
	}
	return l.db.Has(nonceKey(nonce))
}

// Consume records the voucher use. Re-consuming an already spent nonce is an
// error so callers cannot silently overwrite the audit trail.
func (l *NonceLedger) Consume(use VoucherUse) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("nonce ledger: storage not configured")
	}
	kind := strings.TrimSpace(use.Kind)
	if kind == "" {
		return fmt.Errorf("nonce ledger: voucher kind required")
	}
	spent, err := l.Consumed(use.Nonce)
	if err != nil {
		return err
	}
	if spent {
		return ErrVoucherUsed
	}
	consumedAt := use.ConsumedAt
	if consumedAt < 0 {
		consumedAt = 0
	}
	encoded, err := rlp.EncodeToBytes(storedVoucherUse{
		Owner:      use.Owner,
		Kind:       kind,
		ConsumedAt: uint64(consumedAt),
	})
	if err != nil {
		return fmt.Errorf("nonce ledger: encode record: %w", err)
	}
	return l.db.Put(nonceKey(use.Nonce), encoded)
}

// Get returns the audit record for a consumed nonce, if present.
func (l *NonceLedger) Get(nonce uint64) (*VoucherUse, bool, error) {
	if l == nil || l.db == nil {
		return nil, false, fmt.Errorf("nonce ledger: storage not configured")
	}
	spent, err := l.db.Has(nonceKey(nonce))
	if err != nil || !spent {
		return nil, false, err
	}
	raw, err := l.db.Get(nonceKey(nonce))
	if err != nil {
		return nil, false, err
	}
	var stored storedVoucherUse
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("nonce ledger: decode record: %w", err)
	}
	return &VoucherUse{
		Nonce:      nonce,
		Owner:      stored.Owner,
		Kind:       stored.Kind,
		ConsumedAt: int64(stored.ConsumedAt),
	}, true, nil
}
