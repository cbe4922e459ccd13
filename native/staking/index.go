package staking

// OwnerIndex maintains each owner's active-token list together with a reverse
// position map. Removal is swap-and-pop: the last element overwrites the
// removed slot and the list shrinks by one, so removal is O(1) and list order
// is not preserved. Both directions are updated in the same call so they can
// never disagree.
type OwnerIndex struct {
	tokens map[[20]byte][]uint64
	pos    map[uint64]int
}

// NewOwnerIndex returns an empty index.
func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{
		tokens: make(map[[20]byte][]uint64),
		pos:    make(map[uint64]int),
	}
}

// Append adds a token to the tail of the owner's list and records its
// position.
func (ix *OwnerIndex) Append(owner [20]byte, tokenID uint64) int {
	list := ix.tokens[owner]
	ix.pos[tokenID] = len(list)
	ix.tokens[owner] = append(list, tokenID)
	return ix.pos[tokenID]
}

// Remove deletes a token via swap-and-pop. It returns the token that was
// moved into the freed slot and its new position; moved equals tokenID when
// the removed element was already last (nothing moved).
func (ix *OwnerIndex) Remove(owner [20]byte, tokenID uint64) (moved uint64, newPos int, ok bool) {
	list := ix.tokens[owner]
	position, known := ix.pos[tokenID]
	if !known || position >= len(list) || list[position] != tokenID {
		return 0, 0, false
	}
	last := len(list) - 1
	moved = list[last]
	list[position] = moved
	list = list[:last]
	if len(list) == 0 {
		delete(ix.tokens, owner)
	} else {
		ix.tokens[owner] = list
	}
	delete(ix.pos, tokenID)
	if moved != tokenID {
		ix.pos[moved] = position
	}
	return moved, position, true
}

// Tokens returns a copy of the owner's active-token list. Order is
// unspecified once any removal has happened.
func (ix *OwnerIndex) Tokens(owner [20]byte) []uint64 {
	list := ix.tokens[owner]
	out := make([]uint64, len(list))
	copy(out, list)
	return out
}

// Count returns the number of tokens the owner has staked.
func (ix *OwnerIndex) Count(owner [20]byte) int {
	return len(ix.tokens[owner])
}

// Position returns the recorded slot of a token in its owner's list.
func (ix *OwnerIndex) Position(tokenID uint64) (int, bool) {
	position, ok := ix.pos[tokenID]
	return position, ok
}
