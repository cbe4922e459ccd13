package redemption

import (
	"errors"
	"math/big"

	"towerledger/core/events"
	"towerledger/core/types"
	"towerledger/native/mintgate"
	"towerledger/native/voucher"
)

// MaxItemsInTower caps how many items the proxy mints for a single tower.
const MaxItemsInTower = 4120

var errNilState = errors.New("redemption engine: state not configured")

// TowerGate is the slice of the mint gate the proxy drives. The proxy's own
// account must hold the gate admin role for the privileged mint path.
type TowerGate interface {
	Section() uint8
	Stage() uint64
	StagePrice() *big.Int
	IsPrivateRound() bool
	HasRole(role mintgate.Role, account [20]byte) bool
	MintByAdmin(caller, to [20]byte, tokenID uint64, uri string) error
}

type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type proxyEvent struct {
	evt *types.Event
}

func (e proxyEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e proxyEvent) Event() *types.Event { return e.evt }

// Engine is the redemption proxy: a second authorization layer in front of
// the mint gate. It verifies service-signed tower vouchers, enforces its own
// per-section ownership and capacity rules, and retains payments in custody
// until the owner withdraws them.
type Engine struct {
	state   engineState
	gate    TowerGate
	emitter events.Emitter

	owner          [20]byte
	self           [20]byte
	serviceAccount [20]byte
	feeAddress     [20]byte
	chainID        uint64

	enabled     bool
	blacklist   map[[20]byte]struct{}
	stageRoles  map[uint64]mintgate.Role
	ownsOnTower map[uint8]map[[20]byte]struct{}
	mintedCount uint64
}

// NewEngine creates an enabled redemption proxy. The service account signs
// tower vouchers; the fee address is the default withdrawal destination.
func NewEngine(owner, self, serviceAccount, feeAddress [20]byte, gate TowerGate, chainID uint64) (*Engine, error) {
	if self == ([20]byte{}) || serviceAccount == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if gate == nil {
		return nil, ErrNilGate
	}
	return &Engine{
		gate:           gate,
		emitter:        events.NoopEmitter{},
		owner:          owner,
		self:           self,
		serviceAccount: serviceAccount,
		feeAddress:     feeAddress,
		chainID:        chainID,
		enabled:        true,
		blacklist:      make(map[[20]byte]struct{}),
		stageRoles:     make(map[uint64]mintgate.Role),
		ownsOnTower:    make(map[uint8]map[[20]byte]struct{}),
	}, nil
}

// SetState configures the account backend holding the custodied payments.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(proxyEvent{evt: event})
}

// Domain returns the typed-data signing domain recognized by Redeem.
func (e *Engine) Domain() voucher.Domain {
	return voucher.Domain{
		Name:              voucher.RedemptionDomainName,
		Version:           voucher.SignatureVersion,
		ChainID:           e.chainID,
		VerifyingContract: e.self,
	}
}

func (e *Engine) verifySignature(structHash [32]byte, sig []byte) error {
	digest := voucher.Digest(e.Domain().Separator(), structHash)
	signer, err := voucher.RecoverSigner(digest, sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if signer != e.serviceAccount {
		return ErrInvalidSignature
	}
	return nil
}

func (e *Engine) ownsOnSection(section uint8, account [20]byte) bool {
	owners, ok := e.ownsOnTower[section]
	if !ok {
		return false
	}
	_, owns := owners[account]
	return owns
}

func (e *Engine) markOwner(section uint8, account [20]byte) {
	if e.ownsOnTower[section] == nil {
		e.ownsOnTower[section] = make(map[[20]byte]struct{})
	}
	e.ownsOnTower[section][account] = struct{}{}
}

func (e *Engine) custody(payment *big.Int) error {
	if payment == nil || payment.Sign() == 0 {
		return nil
	}
	if e.state == nil {
		return errNilState
	}
	acc, err := e.state.GetAccount(e.self[:])
	if err != nil {
		return err
	}
	acc = types.EnsureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, payment)
	return e.state.PutAccount(e.self[:], acc)
}

// Redeem mints a tower item for the caller after verifying the service
// voucher and the proxy's own gating rules. All checks run before the mint;
// a failed mint leaves the proxy untouched.
func (e *Engine) Redeem(caller [20]byte, v voucher.TowerVoucher, sig []byte, uri string, payment *big.Int) error {
	if !e.enabled {
		return ErrContractDisabled
	}
	if _, listed := e.blacklist[caller]; listed {
		return ErrBlacklisted
	}
	if err := e.verifySignature(v.StructHash(), sig); err != nil {
		return err
	}
	stage := e.gate.Stage()
	if e.gate.IsPrivateRound() {
		role, configured := e.stageRoles[stage]
		if !configured {
			return ErrIncorrectStage
		}
		if !e.gate.HasRole(role, caller) {
			return ErrNoRoleForStage
		}
	}
	price := e.gate.StagePrice()
	if price == nil {
		price = big.NewInt(0)
	}
	paid := big.NewInt(0)
	if payment != nil {
		paid = payment
	}
	if paid.Cmp(price) != 0 {
		return ErrIncorrectPrice
	}
	section := e.gate.Section()
	if e.ownsOnSection(section, caller) {
		return ErrAlreadyOwnsOnTower
	}
	if e.mintedCount >= MaxItemsInTower {
		return ErrTowerFull
	}

	if err := e.gate.MintByAdmin(e.self, caller, v.TokenID, uri); err != nil {
		return err
	}
	e.mintedCount++
	e.markOwner(section, caller)
	if err := e.custody(paid); err != nil {
		return err
	}
	e.emit(NewRedeemedEvent(caller, v.TokenID, paid))
	return nil
}

// Withdraw moves custodied payments out of the proxy account. Owner only.
func (e *Engine) Withdraw(caller [20]byte, amount *big.Int, to [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return ErrZeroAmount
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	if e.state == nil {
		return errNilState
	}
	custodied, err := e.state.GetAccount(e.self[:])
	if err != nil {
		return err
	}
	custodied = types.EnsureAccount(custodied)
	if custodied.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	dest, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	dest = types.EnsureAccount(dest)
	custodied.Balance = new(big.Int).Sub(custodied.Balance, amount)
	dest.Balance = new(big.Int).Add(dest.Balance, amount)
	if err := e.state.PutAccount(e.self[:], custodied); err != nil {
		return err
	}
	if err := e.state.PutAccount(to[:], dest); err != nil {
		return err
	}
	e.emit(NewWithdrawalEvent(to, amount))
	return nil
}

// --- admin (contract-owner capability) ---

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.owner {
		return ErrNotContractOwner
	}
	return nil
}

// AddRoleForStage configures which gate role unlocks redemption during a
// private round at the given stage.
func (e *Engine) AddRoleForStage(caller [20]byte, stage uint64, role mintgate.Role) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.stageRoles[stage] = role
	return nil
}

// ResetOwnerOf clears the owns-on-tower mark for an account on every section.
func (e *Engine) ResetOwnerOf(caller, account [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	for _, owners := range e.ownsOnTower {
		delete(owners, account)
	}
	return nil
}

// ResetTokenCount overrides the minted counter used against the tower cap.
func (e *Engine) ResetTokenCount(caller [20]byte, count uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.mintedCount = count
	return nil
}

// DisableContract blocks Redeem until re-enabled.
func (e *Engine) DisableContract(caller [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.enabled = false
	e.emit(NewContractToggledEvent(false))
	return nil
}

// EnableContract re-opens Redeem.
func (e *Engine) EnableContract(caller [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.enabled = true
	e.emit(NewContractToggledEvent(true))
	return nil
}

// AddToBlacklist blocks an account from redeeming.
func (e *Engine) AddToBlacklist(caller, account [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.blacklist[account] = struct{}{}
	e.emit(NewBlacklistUpdatedEvent(account, true))
	return nil
}

// RemoveFromBlacklist lifts the block on an account.
func (e *Engine) RemoveFromBlacklist(caller, account [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	delete(e.blacklist, account)
	e.emit(NewBlacklistUpdatedEvent(account, false))
	return nil
}

// ChangeServiceAddress rotates the voucher-signing service account.
// Outstanding vouchers signed by the previous account stop verifying.
func (e *Engine) ChangeServiceAddress(caller, account [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if account == ([20]byte{}) {
		return ErrZeroAddress
	}
	e.serviceAccount = account
	e.emit(NewServiceAddressChangedEvent(account))
	return nil
}

// ChangeFeeAddress updates the default withdrawal destination.
func (e *Engine) ChangeFeeAddress(caller, account [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if account == ([20]byte{}) {
		return ErrZeroAddress
	}
	e.feeAddress = account
	return nil
}

// ChangeTowerContract swaps the gate the proxy drives.
func (e *Engine) ChangeTowerContract(caller [20]byte, gate TowerGate) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if gate == nil {
		return ErrNilGate
	}
	e.gate = gate
	return nil
}

// --- queries ---

// IsEnabled reports whether Redeem is open.
func (e *Engine) IsEnabled() bool { return e.enabled }

// IsBlacklisted reports whether an account is blocked from redeeming.
func (e *Engine) IsBlacklisted(account [20]byte) bool {
	_, listed := e.blacklist[account]
	return listed
}

// OwnsOnTower reports whether an account already redeemed on a section.
func (e *Engine) OwnsOnTower(section uint8, account [20]byte) bool {
	return e.ownsOnSection(section, account)
}

// WithdrawableBalance reports the custodied payments available to Withdraw.
func (e *Engine) WithdrawableBalance() (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(e.self[:])
	if err != nil {
		return nil, err
	}
	return types.EnsureAccount(acc).Balance, nil
}

// MintedCount reports how many items the proxy has minted toward the cap.
func (e *Engine) MintedCount() uint64 { return e.mintedCount }

// ServiceAccount returns the current voucher-signing account.
func (e *Engine) ServiceAccount() [20]byte { return e.serviceAccount }

// FeeAddress returns the configured withdrawal destination.
func (e *Engine) FeeAddress() [20]byte { return e.feeAddress }
