package staking

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"towerledger/core/types"
)

const (
	EventTypeTokenStaked          = "staking.token_staked"
	EventTypeTokenUnstaked        = "staking.token_unstaked"
	EventTypeTokenSetRentable     = "staking.token_set_rentable"
	EventTypeRewardClaimed        = "staking.reward_claimed"
	EventTypeRewardClaimedAll     = "staking.reward_claimed_all"
	EventTypeServiceSignerUpdated = "staking.service_signer_updated"
	EventTypeMaxTokensUpdated     = "staking.max_tokens_updated"
	EventTypeShutdownToggled      = "staking.shutdown_toggled"
)

func newTokenEvent(eventType string, owner [20]byte, tokenID uint64, ts int64) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"owner":     hex.EncodeToString(owner[:]),
		"tokenId":   strconv.FormatUint(tokenID, 10),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

// NewTokenStakedEvent is emitted once per token entering custody.
func NewTokenStakedEvent(owner [20]byte, tokenID uint64, ts int64) *types.Event {
	return newTokenEvent(EventTypeTokenStaked, owner, tokenID, ts)
}

// NewTokenUnstakedEvent is emitted once per token leaving custody.
func NewTokenUnstakedEvent(owner [20]byte, tokenID uint64, ts int64) *types.Event {
	return newTokenEvent(EventTypeTokenUnstaked, owner, tokenID, ts)
}

// NewTokenSetRentableEvent records a rental-term update on a staked token.
func NewTokenSetRentableEvent(owner [20]byte, tokenID uint64, rentable bool) *types.Event {
	return &types.Event{Type: EventTypeTokenSetRentable, Attributes: map[string]string{
		"owner":    hex.EncodeToString(owner[:]),
		"tokenId":  strconv.FormatUint(tokenID, 10),
		"rentable": strconv.FormatBool(rentable),
	}}
}

// NewRewardClaimedEvent records a single-token reward payout.
func NewRewardClaimedEvent(owner [20]byte, tokenID uint64, amount *big.Int) *types.Event {
	amountStr := "0"
	if amount != nil {
		amountStr = amount.String()
	}
	return &types.Event{Type: EventTypeRewardClaimed, Attributes: map[string]string{
		"owner":   hex.EncodeToString(owner[:]),
		"tokenId": strconv.FormatUint(tokenID, 10),
		"amount":  amountStr,
	}}
}

// NewRewardClaimedAllEvent records a payout covering all of an owner's
// stakes.
func NewRewardClaimedAllEvent(owner [20]byte, amount *big.Int) *types.Event {
	amountStr := "0"
	if amount != nil {
		amountStr = amount.String()
	}
	return &types.Event{Type: EventTypeRewardClaimedAll, Attributes: map[string]string{
		"owner":  hex.EncodeToString(owner[:]),
		"amount": amountStr,
	}}
}

// NewServiceSignerUpdatedEvent records a signer rotation.
func NewServiceSignerUpdatedEvent(signer [20]byte) *types.Event {
	return &types.Event{Type: EventTypeServiceSignerUpdated, Attributes: map[string]string{
		"signer": hex.EncodeToString(signer[:]),
	}}
}

// NewMaxTokensUpdatedEvent records a change of the global stake cap.
func NewMaxTokensUpdatedEvent(value uint64) *types.Event {
	return &types.Event{Type: EventTypeMaxTokensUpdated, Attributes: map[string]string{
		"value": strconv.FormatUint(value, 10),
	}}
}

// NewShutdownToggledEvent records a shutdown flag flip.
func NewShutdownToggledEvent(value bool) *types.Event {
	return &types.Event{Type: EventTypeShutdownToggled, Attributes: map[string]string{
		"value": strconv.FormatBool(value),
	}}
}
