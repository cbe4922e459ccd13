package signer

import (
	"errors"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"towerledger/crypto"
	"towerledger/native/voucher"
)

// ErrNilKey is returned when an issuer is constructed without a signing key.
var ErrNilKey = errors.New("signer: nil signing key")

// Issuer is the off-chain service signer. It holds one key bound to one
// voucher domain, hands out monotonically increasing nonces, and tags every
// voucher with an order id for reconciliation against the issuing backend.
type Issuer struct {
	key    *crypto.PrivateKey
	domain voucher.Domain

	mu        sync.Mutex
	nextNonce uint64
}

// New builds an issuer for the given domain. startNonce is the first nonce
// handed out; resuming issuers pass the last persisted nonce plus one.
func New(key *crypto.PrivateKey, domain voucher.Domain, startNonce uint64) (*Issuer, error) {
	if key == nil || key.PrivateKey == nil {
		return nil, ErrNilKey
	}
	return &Issuer{key: key, domain: domain, nextNonce: startNonce}, nil
}

// Address returns the account vouchers verify against.
func (i *Issuer) Address() [20]byte {
	return i.key.PubKey().RawAddress()
}

// Domain returns the bound signing domain.
func (i *Issuer) Domain() voucher.Domain { return i.domain }

func (i *Issuer) nonce() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := i.nextNonce
	i.nextNonce++
	return n
}

func (i *Issuer) sign(structHash [32]byte) ([]byte, error) {
	return voucher.Sign(voucher.Digest(i.domain.Separator(), structHash), i.key)
}

// SignedStake is a stake voucher ready for submission.
type SignedStake struct {
	OrderID   string
	Voucher   voucher.StakeVoucher
	Signature []byte
}

// IssueStake signs a stake authorization for the owner's token batch.
func (i *Issuer) IssueStake(owner [20]byte, tokenIDs []uint64, rental voucher.RentalTerms) (SignedStake, error) {
	v := voucher.StakeVoucher{TokenIDs: tokenIDs, Owner: owner, Nonce: i.nonce(), Rental: rental}
	sig, err := i.sign(v.StructHash())
	if err != nil {
		return SignedStake{}, err
	}
	return SignedStake{OrderID: uuid.NewString(), Voucher: v, Signature: sig}, nil
}

// SignedUnstake is an unstake voucher ready for submission.
type SignedUnstake struct {
	OrderID   string
	Voucher   voucher.UnstakeVoucher
	Signature []byte
}

// IssueUnstake signs an unstake authorization, optionally bundling a reward
// payout.
func (i *Issuer) IssueUnstake(owner [20]byte, tokenIDs []uint64, claimAmount *big.Int) (SignedUnstake, error) {
	v := voucher.UnstakeVoucher{TokenIDs: tokenIDs, Owner: owner, ClaimAmount: claimAmount, Nonce: i.nonce()}
	sig, err := i.sign(v.StructHash())
	if err != nil {
		return SignedUnstake{}, err
	}
	return SignedUnstake{OrderID: uuid.NewString(), Voucher: v, Signature: sig}, nil
}

// SignedClaim is a single-token reward claim ready for submission.
type SignedClaim struct {
	OrderID   string
	Voucher   voucher.ClaimVoucher
	Signature []byte
}

// IssueClaim signs a reward payout, optionally bound to one staked token.
func (i *Issuer) IssueClaim(owner [20]byte, tokenID uint64, amount *big.Int) (SignedClaim, error) {
	v := voucher.ClaimVoucher{TokenID: tokenID, Amount: amount, Nonce: i.nonce(), Owner: owner}
	sig, err := i.sign(v.StructHash())
	if err != nil {
		return SignedClaim{}, err
	}
	return SignedClaim{OrderID: uuid.NewString(), Voucher: v, Signature: sig}, nil
}

// SignedClaimAll is an all-stakes reward claim ready for submission.
type SignedClaimAll struct {
	OrderID   string
	Voucher   voucher.ClaimAllVoucher
	Signature []byte
}

// IssueClaimAll signs a reward payout covering every stake the owner holds.
func (i *Issuer) IssueClaimAll(owner [20]byte, amount *big.Int) (SignedClaimAll, error) {
	v := voucher.ClaimAllVoucher{Amount: amount, Nonce: i.nonce(), Owner: owner}
	sig, err := i.sign(v.StructHash())
	if err != nil {
		return SignedClaimAll{}, err
	}
	return SignedClaimAll{OrderID: uuid.NewString(), Voucher: v, Signature: sig}, nil
}

// SignedTower is a redemption voucher ready for submission.
type SignedTower struct {
	OrderID   string
	Voucher   voucher.TowerVoucher
	Signature []byte
}

// IssueTower signs a redemption authorization for one token. Tower vouchers
// carry no nonce; replay is bounded by the token's unique id.
func (i *Issuer) IssueTower(tokenID uint64) (SignedTower, error) {
	v := voucher.TowerVoucher{TokenID: tokenID}
	sig, err := i.sign(v.StructHash())
	if err != nil {
		return SignedTower{}, err
	}
	return SignedTower{OrderID: uuid.NewString(), Voucher: v, Signature: sig}, nil
}

// SignedMint is a gate mint voucher ready for submission.
type SignedMint struct {
	OrderID   string
	Voucher   voucher.MintVoucher
	Signature []byte
}

// IssueMint signs a gate voucher for an exact (tokenId, uri) pair.
func (i *Issuer) IssueMint(tokenID uint64, uri string) (SignedMint, error) {
	v := voucher.MintVoucher{TokenID: tokenID, URI: uri}
	sig, err := i.sign(v.StructHash())
	if err != nil {
		return SignedMint{}, err
	}
	return SignedMint{OrderID: uuid.NewString(), Voucher: v, Signature: sig}, nil
}
