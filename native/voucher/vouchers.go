package voucher

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signing domain names and versions carried by each engine. The staking
// ledger and the redemption proxy run independent signer keys under distinct
// domains, so a voucher issued for one can never verify against the other.
const (
	StakingDomainName    = "EW_STAKING"
	GateDomainName       = "EthereumTowers"
	RedemptionDomainName = "EthereumTower"
	SignatureVersion     = "1"
)

var (
	stakeVoucherTypeHash    = ethcrypto.Keccak256([]byte("StakeVoucher(uint256[] tokenIds,address owner,uint256 nonce)"))
	unstakeVoucherTypeHash  = ethcrypto.Keccak256([]byte("UnstakeVoucher(uint256[] tokenIds,address owner,uint256 claimAmount,uint256 nonce)"))
	claimVoucherTypeHash    = ethcrypto.Keccak256([]byte("ClaimVoucher(uint256 tokenId,uint256 amount,uint256 nonce,address owner)"))
	claimAllVoucherTypeHash = ethcrypto.Keccak256([]byte("ClaimAllVoucher(uint256 amount,uint256 nonce,address owner)"))
	towerVoucherTypeHash    = ethcrypto.Keccak256([]byte("EthereumTowerVoucher(uint256 tokenId)"))
	mintVoucherTypeHash     = ethcrypto.Keccak256([]byte("MintVoucher(uint256 tokenId,string uri)"))
)

// RentalTerms travel with a stake voucher but are not part of the signed
// payload; they are recorded verbatim on the stake records the voucher
// creates.
type RentalTerms struct {
	Rentable         bool
	MinRentPeriod    uint64
	RentableUntil    uint64
	RentalDailyPrice uint64
	Deposit          uint64
}

// StakeVoucher authorises staking a batch of tokens for a single owner.
type StakeVoucher struct {
	TokenIDs []uint64
	Owner    [20]byte
	Nonce    uint64
	Rental   RentalTerms
}

// StructHash returns the canonical typed-data hash of the signed fields.
func (v StakeVoucher) StructHash() [32]byte {
	var buf []byte
	buf = append(buf, stakeVoucherTypeHash...)
	buf = append(buf, hashUintArray(v.TokenIDs)...)
	buf = append(buf, addressWord(v.Owner)...)
	buf = append(buf, uintWord(v.Nonce)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// UnstakeVoucher authorises returning a batch of staked tokens, optionally
// paying out accrued rewards in the same call.
type UnstakeVoucher struct {
	TokenIDs    []uint64
	Owner       [20]byte
	ClaimAmount *big.Int
	Nonce       uint64
}

func (v UnstakeVoucher) StructHash() [32]byte {
	var buf []byte
	buf = append(buf, unstakeVoucherTypeHash...)
	buf = append(buf, hashUintArray(v.TokenIDs)...)
	buf = append(buf, addressWord(v.Owner)...)
	buf = append(buf, bigWord(v.ClaimAmount)...)
	buf = append(buf, uintWord(v.Nonce)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// ClaimVoucher authorises a reward payout, optionally scoped to one staked
// token. A zero TokenID means the claim is not bound to a specific stake.
type ClaimVoucher struct {
	TokenID uint64
	Amount  *big.Int
	Nonce   uint64
	Owner   [20]byte
}

func (v ClaimVoucher) StructHash() [32]byte {
	var buf []byte
	buf = append(buf, claimVoucherTypeHash...)
	buf = append(buf, uintWord(v.TokenID)...)
	buf = append(buf, bigWord(v.Amount)...)
	buf = append(buf, uintWord(v.Nonce)...)
	buf = append(buf, addressWord(v.Owner)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// ClaimAllVoucher authorises a reward payout covering every stake held by the
// owner.
type ClaimAllVoucher struct {
	Amount *big.Int
	Nonce  uint64
	Owner  [20]byte
}

func (v ClaimAllVoucher) StructHash() [32]byte {
	var buf []byte
	buf = append(buf, claimAllVoucherTypeHash...)
	buf = append(buf, bigWord(v.Amount)...)
	buf = append(buf, uintWord(v.Nonce)...)
	buf = append(buf, addressWord(v.Owner)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// TowerVoucher authorises a single redemption through the redemption proxy.
type TowerVoucher struct {
	TokenID uint64
}

func (v TowerVoucher) StructHash() [32]byte {
	var buf []byte
	buf = append(buf, towerVoucherTypeHash...)
	buf = append(buf, uintWord(v.TokenID)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// MintVoucher authorises the gate's voucher mint path for an exact
// (tokenId, uri) pair.
type MintVoucher struct {
	TokenID uint64
	URI     string
}

func (v MintVoucher) StructHash() [32]byte {
	var buf []byte
	buf = append(buf, mintVoucherTypeHash...)
	buf = append(buf, uintWord(v.TokenID)...)
	buf = append(buf, ethcrypto.Keccak256([]byte(v.URI))...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}
