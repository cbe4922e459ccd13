package staking

import "errors"

var (
	ErrZeroAddress         = errors.New("staking: zero address")
	ErrNotContractOwner    = errors.New("staking: caller is not the owner")
	ErrPaused              = errors.New("staking: paused")
	ErrShutdown            = errors.New("staking: shut down")
	ErrNotShutdown         = errors.New("staking: contract should be shut down")
	ErrNothingToStake      = errors.New("staking: nothing to stake")
	ErrStakeLimit          = errors.New("staking: tokens in stake limit reached")
	ErrInvalidSignature    = errors.New("staking: invalid signature")
	ErrVoucherUsed         = errors.New("staking: this voucher already used")
	ErrNotYourVoucher      = errors.New("staking: not your voucher")
	ErrNotOwner            = errors.New("staking: you are not an owner")
	ErrNotApproved         = errors.New("staking: not approved to transfer tokens")
	ErrInvalidToken        = errors.New("staking: invalid token")
	ErrDuplicateToken      = errors.New("staking: duplicate token in batch")
	ErrNothingToUnstake    = errors.New("staking: nothing to unstake")
	ErrWrongStakeOwner     = errors.New("staking: wrong stake owner")
	ErrZeroDestination     = errors.New("staking: transfer to zero address")
	ErrTransferToContract  = errors.New("staking: transfer to contract")
	ErrNothingToClaim      = errors.New("staking: nothing to claim")
	ErrInsufficientRewards = errors.New("staking: not enough funds to claim")
	ErrNoTokensStaked      = errors.New("staking: no tokens staked")
	ErrZeroAmount          = errors.New("staking: zero amount")
)
