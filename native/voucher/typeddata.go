package voucher

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"towerledger/crypto"
)

// Domain binds voucher signatures to a single deployment. Rotating any field
// produces a different digest, so vouchers cannot be replayed across chains,
// ledgers or engine instances.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract [20]byte
}

var domainTypeHash = ethcrypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

// Separator returns the deterministic domain separator hash.
func (d Domain) Separator() [32]byte {
	var buf []byte
	buf = append(buf, domainTypeHash...)
	buf = append(buf, ethcrypto.Keccak256([]byte(d.Name))...)
	buf = append(buf, ethcrypto.Keccak256([]byte(d.Version))...)
	buf = append(buf, uintWord(d.ChainID)...)
	buf = append(buf, addressWord(d.VerifyingContract)...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}

// Digest combines the domain separator and a struct hash into the final
// message digest presented to the signer.
func Digest(separator [32]byte, structHash [32]byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte{0x19, 0x01}, separator[:], structHash[:]))
	return out
}

// Sign produces a 65-byte recoverable signature over the digest.
func Sign(digest [32]byte, key *crypto.PrivateKey) ([]byte, error) {
	if key == nil || key.PrivateKey == nil {
		return nil, fmt.Errorf("voucher: nil signing key")
	}
	return ethcrypto.Sign(digest[:], key.PrivateKey)
}

// RecoverSigner returns the 20-byte account that produced the signature over
// the digest. Both the compact (v in {0,1}) and legacy (v in {27,28}) recovery
// id encodings are accepted.
func RecoverSigner(digest [32]byte, sig []byte) ([20]byte, error) {
	var signer [20]byte
	if len(sig) != 65 {
		return signer, fmt.Errorf("voucher: signature must be 65 bytes, got %d", len(sig))
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest[:], normalized)
	if err != nil {
		return signer, fmt.Errorf("voucher: recover signer: %w", err)
	}
	copy(signer[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return signer, nil
}

func uintWord(v uint64) []byte {
	out := make([]byte, 32)
	new(big.Int).SetUint64(v).FillBytes(out)
	return out
}

func bigWord(v *big.Int) []byte {
	out := make([]byte, 32)
	if v != nil && v.Sign() > 0 {
		v.FillBytes(out)
	}
	return out
}

func addressWord(addr [20]byte) []byte {
	out := make([]byte, 32)
	copy(out[12:], addr[:])
	return out
}

// hashUintArray encodes a uint256[] member as its own keccak hash, matching
// the typed-data rule for dynamic array members.
func hashUintArray(ids []uint64) []byte {
	buf := make([]byte, 0, len(ids)*32)
	for _, id := range ids {
		buf = append(buf, uintWord(id)...)
	}
	return ethcrypto.Keccak256(buf)
}
