package mintgate

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"towerledger/core/types"
)

const (
	EventTypeMinted         = "mintgate.minted"
	EventTypeTransferred    = "mintgate.transferred"
	EventTypeBurned         = "mintgate.burned"
	EventTypeSectionChanged = "mintgate.section_changed"
	EventTypeStageChanged   = "mintgate.stage_changed"
	EventTypeRoundChanged   = "mintgate.round_changed"
)

// NewMintedEvent carries the MintingInfo payload consumed by indexers.
func NewMintedEvent(to [20]byte, tokenID uint64, privateRound bool, stage uint64, price *big.Int) *types.Event {
	priceStr := "0"
	if price != nil {
		priceStr = price.String()
	}
	return &types.Event{Type: EventTypeMinted, Attributes: map[string]string{
		"to":           hex.EncodeToString(to[:]),
		"tokenId":      strconv.FormatUint(tokenID, 10),
		"privateRound": strconv.FormatBool(privateRound),
		"stage":        strconv.FormatUint(stage, 10),
		"price":        priceStr,
	}}
}

// NewTransferredEvent is the standard ownership-transfer payload. Mints use a
// zero from address, burns a zero to address.
func NewTransferredEvent(from, to [20]byte, tokenID uint64) *types.Event {
	return &types.Event{Type: EventTypeTransferred, Attributes: map[string]string{
		"from":    hex.EncodeToString(from[:]),
		"to":      hex.EncodeToString(to[:]),
		"tokenId": strconv.FormatUint(tokenID, 10),
	}}
}

// NewBurnedEvent records the destruction of an item by its owner.
func NewBurnedEvent(owner [20]byte, tokenID uint64) *types.Event {
	return &types.Event{Type: EventTypeBurned, Attributes: map[string]string{
		"owner":   hex.EncodeToString(owner[:]),
		"tokenId": strconv.FormatUint(tokenID, 10),
	}}
}

// NewSectionChangedEvent records an admin switch of the active section.
func NewSectionChangedEvent(section uint8) *types.Event {
	return &types.Event{Type: EventTypeSectionChanged, Attributes: map[string]string{
		"section": strconv.FormatUint(uint64(section), 10),
	}}
}

// NewStageChangedEvent records an admin stage/price update.
func NewStageChangedEvent(stage uint64, price *big.Int) *types.Event {
	priceStr := "0"
	if price != nil {
		priceStr = price.String()
	}
	return &types.Event{Type: EventTypeStageChanged, Attributes: map[string]string{
		"stage": strconv.FormatUint(stage, 10),
		"price": priceStr,
	}}
}

// NewRoundChangedEvent records an admin round reconfiguration.
func NewRoundChangedEvent(capacity uint64, private bool) *types.Event {
	return &types.Event{Type: EventTypeRoundChanged, Attributes: map[string]string{
		"capacity": strconv.FormatUint(capacity, 10),
		"private":  strconv.FormatBool(private),
	}}
}
