package staking

import (
	"math/big"

	"towerledger/native/voucher"
)

// StakeRecord is the per-token custody entry. A token id maps to at most one
// active record; Index always equals the record's true position in the
// owner's token list.
type StakeRecord struct {
	Owner           [20]byte
	TokenID         uint64
	StakedAt        int64
	RewardClaimedAt int64
	Index           int
	Rental          voucher.RentalTerms
}

// Clone returns a copy so callers cannot mutate the stored record.
func (r *StakeRecord) Clone() *StakeRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// ClaimState accumulates reward payouts per owner.
type ClaimState struct {
	TotalClaimed *big.Int
	LastClaimAt  int64
}

// Clone deep-copies the claim state.
func (c *ClaimState) Clone() *ClaimState {
	if c == nil {
		return nil
	}
	clone := &ClaimState{LastClaimAt: c.LastClaimAt, TotalClaimed: big.NewInt(0)}
	if c.TotalClaimed != nil {
		clone.TotalClaimed = new(big.Int).Set(c.TotalClaimed)
	}
	return clone
}

// Voucher kinds recorded in the consumed-nonce ledger.
const (
	VoucherKindStake    = "stake"
	VoucherKindUnstake  = "unstake"
	VoucherKindClaim    = "claim"
	VoucherKindClaimAll = "claim_all"
)
