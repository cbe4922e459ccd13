package redemption

import "errors"

var (
	// ErrNotContractOwner is returned when a non-owner calls an owner-only
	// operation.
	ErrNotContractOwner = errors.New("redemption: caller is not the contract owner")
	// ErrContractDisabled is returned when redeeming through a disabled proxy.
	ErrContractDisabled = errors.New("redemption: contract is disabled")
	// ErrBlacklisted is returned when the redeeming account is blacklisted.
	ErrBlacklisted = errors.New("redemption: account is blacklisted")
	// ErrInvalidSignature is returned when a voucher signature does not
	// recover to the service account.
	ErrInvalidSignature = errors.New("redemption: invalid voucher signature")
	// ErrNoRoleForStage is returned when the current stage is gated by a role
	// the caller does not hold.
	ErrNoRoleForStage = errors.New("redemption: caller lacks the role required for this stage")
	// ErrIncorrectStage is returned when the gate's stage has no role
	// configured on the proxy during a private round.
	ErrIncorrectStage = errors.New("redemption: no role configured for the current stage")
	// ErrIncorrectPrice is returned when the payment does not match the gate's
	// stage price exactly.
	ErrIncorrectPrice = errors.New("redemption: payment does not match stage price")
	// ErrAlreadyOwnsOnTower is returned when the caller already redeemed an
	// item on the current section.
	ErrAlreadyOwnsOnTower = errors.New("redemption: account already owns an item on this tower")
	// ErrTowerFull is returned when the per-tower mint cap is reached.
	ErrTowerFull = errors.New("redemption: tower capacity reached")
	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// custodied balance.
	ErrInsufficientBalance = errors.New("redemption: insufficient custodied balance")
	// ErrZeroAddress is returned when a required address argument is zero.
	ErrZeroAddress = errors.New("redemption: zero address")
	// ErrZeroAmount is returned when a required amount argument is zero.
	ErrZeroAmount = errors.New("redemption: zero amount")
	// ErrNilGate is returned when the proxy is wired without a tower gate.
	ErrNilGate = errors.New("redemption: tower gate not configured")
)
