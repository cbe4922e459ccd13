package mintgate

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Role identifies a capability grant. Role identifiers are keccak hashes of
// their names; the zero value is the admin role.
type Role [32]byte

// RoleAdmin is the default administrative role. Holders may drive every
// privileged operation on the gate, including granting further roles.
var RoleAdmin = Role{}

// RoleWhitelisted gates private-round minting on sections that require it.
var RoleWhitelisted = RoleFromName("WHITELISTED")

// RoleFromName derives a role identifier from a human-readable name.
func RoleFromName(name string) Role {
	var r Role
	copy(r[:], ethcrypto.Keccak256([]byte(name)))
	return r
}

// Item is a unique asset minted by the gate. Ownership is exclusive: exactly
// one account holds an item at any time.
type Item struct {
	ID    uint64
	Owner [20]byte
	URI   string
}

// Clone returns a copy so callers can mutate safely.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}

// Round is an admin-configured capacity window, orthogonal to the stage axis.
type Round struct {
	Remaining uint64
	Private   bool
}

// StageConfig carries the active stage identifier and its mint price.
type StageConfig struct {
	Stage uint64
	Price *big.Int
}

// Clone deep-copies the stage configuration.
func (s StageConfig) Clone() StageConfig {
	out := StageConfig{Stage: s.Stage, Price: big.NewInt(0)}
	if s.Price != nil {
		out.Price = new(big.Int).Set(s.Price)
	}
	return out
}
