package redemption

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"towerledger/core/types"
)

const (
	EventTypeRedeemed              = "redemption.redeemed"
	EventTypeContractToggled       = "redemption.contract_toggled"
	EventTypeBlacklistUpdated      = "redemption.blacklist_updated"
	EventTypeServiceAddressChanged = "redemption.service_address_changed"
	EventTypeWithdrawal            = "redemption.withdrawal"
)

func NewRedeemedEvent(account [20]byte, tokenID uint64, payment *big.Int) *types.Event {
	amount := "0"
	if payment != nil {
		amount = payment.String()
	}
	return &types.Event{Type: EventTypeRedeemed, Attributes: map[string]string{
		"account": hex.EncodeToString(account[:]),
		"tokenId": strconv.FormatUint(tokenID, 10),
		"payment": amount,
	}}
}

func NewContractToggledEvent(enabled bool) *types.Event {
	return &types.Event{Type: EventTypeContractToggled, Attributes: map[string]string{
		"enabled": strconv.FormatBool(enabled),
	}}
}

func NewBlacklistUpdatedEvent(account [20]byte, listed bool) *types.Event {
	return &types.Event{Type: EventTypeBlacklistUpdated, Attributes: map[string]string{
		"account": hex.EncodeToString(account[:]),
		"listed":  strconv.FormatBool(listed),
	}}
}

func NewServiceAddressChangedEvent(account [20]byte) *types.Event {
	return &types.Event{Type: EventTypeServiceAddressChanged, Attributes: map[string]string{
		"account": hex.EncodeToString(account[:]),
	}}
}

func NewWithdrawalEvent(to [20]byte, amount *big.Int) *types.Event {
	value := "0"
	if amount != nil {
		value = amount.String()
	}
	return &types.Event{Type: EventTypeWithdrawal, Attributes: map[string]string{
		"to":     hex.EncodeToString(to[:]),
		"amount": value,
	}}
}
