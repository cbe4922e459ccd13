package mintgate

import "errors"

var (
	ErrAdminRole           = errors.New("mintgate: must have admin role")
	ErrInvalidSection      = errors.New("mintgate: available section number 1 or 2")
	ErrIncorrectStage      = errors.New("mintgate: incorrect stage")
	ErrMinterRole          = errors.New("mintgate: must have minter role to mint on this section")
	ErrInsufficientPayment = errors.New("mintgate: insufficient payment")
	ErrRoundExhausted      = errors.New("mintgate: no items remaining in round")
	ErrAlreadyOwns         = errors.New("mintgate: account can hold only one item in this collection")
	ErrAlreadyMinted       = errors.New("mintgate: token already minted")
	ErrArgumentMismatch    = errors.New("mintgate: accounts and token ids length mismatch")
	ErrNotFound            = errors.New("mintgate: token not found")
	ErrNotTokenOwner       = errors.New("mintgate: caller is not the token owner")
	ErrNotApproved         = errors.New("mintgate: caller is not owner nor approved operator")
	ErrInvalidSignature    = errors.New("mintgate: invalid voucher signature")
	ErrVoucherUsed         = errors.New("mintgate: voucher already used")
	ErrZeroAddress         = errors.New("mintgate: zero address")
)
