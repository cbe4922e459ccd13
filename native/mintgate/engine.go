package mintgate

import (
	"errors"
	"math/big"

	"towerledger/core/events"
	"towerledger/core/types"
	"towerledger/native/voucher"
)

var errNilState = errors.New("mintgate engine: state not configured")

// engineState is the narrow account surface the gate needs to credit sale
// proceeds to the configured payee.
type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type gateEvent struct {
	evt *types.Event
}

func (e gateEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e gateEvent) Event() *types.Event { return e.evt }

// Engine owns unique item identity assignment and the stage/round/section
// gating state machine. All phase changes are explicit admin calls; there are
// no time-driven transitions.
type Engine struct {
	state   engineState
	emitter events.Emitter

	chainID uint64
	payee   [20]byte
	baseCID string

	section uint8
	stage   StageConfig
	round   Round

	roles      map[Role]map[[20]byte]struct{}
	stageRoles map[uint64]map[Role]struct{}

	items     map[uint64]*Item
	holdings  map[[20]byte]map[uint64]struct{}
	approvals map[[20]byte]map[[20]byte]bool

	redeemSigner [20]byte
	usedRedeems  map[string]struct{}
}

// NewEngine creates a mint gate with the given admin account, payee for sale
// proceeds and chain identifier used in voucher domain separation.
func NewEngine(admin, payee [20]byte, chainID uint64) *Engine {
	e := &Engine{
		emitter:     events.NoopEmitter{},
		chainID:     chainID,
		payee:       payee,
		section:     1,
		stage:       StageConfig{Price: big.NewInt(0)},
		roles:       make(map[Role]map[[20]byte]struct{}),
		stageRoles:  make(map[uint64]map[Role]struct{}),
		items:       make(map[uint64]*Item),
		holdings:    make(map[[20]byte]map[uint64]struct{}),
		approvals:   make(map[[20]byte]map[[20]byte]bool),
		usedRedeems: make(map[string]struct{}),
	}
	e.grantRole(RoleAdmin, admin)
	return e
}

// SetState configures the account backend used for payment forwarding.
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
	e.emitter.Emit(gateEvent{evt: event})
}

// Domain returns the typed-data signing domain recognized by Redeem.
func (e *Engine) Domain() voucher.Domain {
	return voucher.Domain{
		Name:    voucher.GateDomainName,
		Version: voucher.SignatureVersion,
		ChainID: e.chainID,
	}
}

// ChainID reports the ledger identifier bound into voucher digests.
func (e *Engine) ChainID() uint64 { return e.chainID }

// --- roles ---

func (e *Engine) grantRole(role Role, account [20]byte) {
	members, ok := e.roles[role]
	if !ok {
		members = make(map[[20]byte]struct{})
		e.roles[role] = members
	}
	members[account] = struct{}{}
}

// HasRole reports whether the account holds the role.
func (e *Engine) HasRole(role Role, account [20]byte) bool {
	members, ok := e.roles[role]
	if !ok {
		return false
	}
	_, held := members[account]
	return held
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if !e.HasRole(RoleAdmin, caller) {
		return ErrAdminRole
	}
	return nil
}

// GrantRole adds an account to a role set.
func (e *Engine) GrantRole(caller [20]byte, role Role, account [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.grantRole(role, account)
	return nil
}

// RevokeRole removes an account from a role set.
func (e *Engine) RevokeRole(caller [20]byte, role Role, account [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if members, ok := e.roles[role]; ok {
		delete(members, account)
	}
	return nil
}

// BatchGrantRole applies a role grant to every listed account. Each grant is
// independent, so a later failure cannot undo earlier grants.
func (e *Engine) BatchGrantRole(caller [20]byte, accounts [][20]byte, role Role) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	for _, account := range accounts {
		e.grantRole(role, account)
	}
	return nil
}

// AddStageRole registers a role that satisfies private-round eligibility for
// the given stage.
func (e *Engine) AddStageRole(caller [20]byte, stage uint64, role Role) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	roles, ok := e.stageRoles[stage]
	if !ok {
		roles = make(map[Role]struct{})
		e.stageRoles[stage] = roles
	}
	roles[role] = struct{}{}
	return nil
}

// --- phase state machine ---

// ChangeSection switches the active collection section. Only sections 1 and 2
// exist.
func (e *Engine) ChangeSection(caller [20]byte, section uint8) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if section != 1 && section != 2 {
		return ErrInvalidSection
	}
	e.section = section
	e.emit(NewSectionChangedEvent(section))
	return nil
}

// ChangeStage sets the active stage and its price.
func (e *Engine) ChangeStage(caller [20]byte, stage uint64, price *big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg := StageConfig{Stage: stage, Price: big.NewInt(0)}
	if price != nil {
		cfg.Price = new(big.Int).Set(price)
	}
	e.stage = cfg
	e.emit(NewStageChangedEvent(cfg.Stage, cfg.Price))
	return nil
}

// ChangeRound opens a new round with the given capacity. A private round
// restricts minting to stage-role holders.
func (e *Engine) ChangeRound(caller [20]byte, capacity uint64, private bool) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.round = Round{Remaining: capacity, Private: private}
	e.emit(NewRoundChangedEvent(capacity, private))
	return nil
}

// ChangeToPublic flips the active round to public without touching capacity.
func (e *Engine) ChangeToPublic(caller [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.round.Private = false
	e.emit(NewRoundChangedEvent(e.round.Remaining, false))
	return nil
}

// --- queries ---

// Section returns the active collection section.
func (e *Engine) Section() uint8 { return e.section }

// Stage returns the active stage identifier.
func (e *Engine) Stage() uint64 { return e.stage.Stage }

// StagePrice returns a copy of the active stage price.
func (e *Engine) StagePrice() *big.Int { return e.stage.Clone().Price }

// IsPrivateRound reports whether the active round is allowlisted.
func (e *Engine) IsPrivateRound() bool { return e.round.Private }

// ItemsRemaining reports the unminted capacity of the active round.
func (e *Engine) ItemsRemaining() uint64 { return e.round.Remaining }

// OwnerOf returns the current owner of a token.
func (e *Engine) OwnerOf(tokenID uint64) ([20]byte, bool) {
	item, ok := e.items[tokenID]
	if !ok {
		return [20]byte{}, false
	}
	return item.Owner, true
}

// TokenURI resolves the metadata pointer for a token, joined onto the base
// CID the same way the metadata pipeline publishes it.
func (e *Engine) TokenURI(tokenID uint64) (string, error) {
	item, ok := e.items[tokenID]
	if !ok {
		return "", ErrNotFound
	}
	return e.baseCID + item.URI, nil
}

// HoldingsOf returns the token ids currently held by an account.
func (e *Engine) HoldingsOf(account [20]byte) []uint64 {
	out := make([]uint64, 0, len(e.holdings[account]))
	for id := range e.holdings[account] {
		out = append(out, id)
	}
	return out
}

// --- minting ---

// stageEligible reports whether the caller may mint during a private round on
// the active stage. Admin accounts are always eligible.
func (e *Engine) stageEligible(caller [20]byte) bool {
	if e.HasRole(RoleAdmin, caller) {
		return true
	}
	roles, ok := e.stageRoles[e.stage.Stage]
	if !ok {
		return false
	}
	for role := range roles {
		if e.HasRole(role, caller) {
			return true
		}
	}
	return false
}

func (e *Engine) forwardPayment(amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	acc, err := e.state.GetAccount(e.payee[:])
	if err != nil {
		return err
	}
	acc = types.EnsureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return e.state.PutAccount(e.payee[:], acc)
}

func (e *Engine) createItem(to [20]byte, tokenID uint64, uri string) {
	e.items[tokenID] = &Item{ID: tokenID, Owner: to, URI: uri}
	held, ok := e.holdings[to]
	if !ok {
		held = make(map[uint64]struct{})
		e.holdings[to] = held
	}
	held[tokenID] = struct{}{}
	e.emit(NewTransferredEvent([20]byte{}, to, tokenID))
}

// Mint performs the core price- and role-gated state transition. Precondition
// precedence is fixed: stage, role, payment, round capacity, one-per-wallet,
// unique id. The first failing check determines the error and nothing is
// mutated on failure.
func (e *Engine) Mint(caller, to [20]byte, tokenID uint64, uri string, stage uint64, payment *big.Int) error {
	if stage != e.stage.Stage {
		return ErrIncorrectStage
	}
	if e.round.Private && !e.stageEligible(caller) {
		return ErrMinterRole
	}
	if e.stage.Price.Sign() > 0 {
		if payment == nil || payment.Cmp(e.stage.Price) != 0 {
			return ErrInsufficientPayment
		}
	}
	if e.round.Remaining == 0 {
		return ErrRoundExhausted
	}
	if len(e.holdings[to]) > 0 {
		return ErrAlreadyOwns
	}
	if _, exists := e.items[tokenID]; exists {
		return ErrAlreadyMinted
	}
	if e.stage.Price.Sign() > 0 {
		if err := e.forwardPayment(payment); err != nil {
			return err
		}
	}
	e.round.Remaining--
	e.createItem(to, tokenID, uri)
	e.emit(NewMintedEvent(to, tokenID, e.round.Private, e.stage.Stage, e.stage.Price))
	return nil
}

// Redeem is the voucher-authorized mint path: a service-signed (tokenId, uri)
// pair replaces live role membership and payment. Each signature is consumed
// exactly once.
func (e *Engine) Redeem(to [20]byte, tokenID uint64, uri string, sig []byte) error {
	digest := voucher.Digest(e.Domain().Separator(), voucher.MintVoucher{TokenID: tokenID, URI: uri}.StructHash())
	signer, err := voucher.RecoverSigner(digest, sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if e.redeemSigner == ([20]byte{}) || signer != e.redeemSigner {
		return ErrInvalidSignature
	}
	if _, used := e.usedRedeems[string(sig)]; used {
		return ErrVoucherUsed
	}
	if len(e.holdings[to]) > 0 {
		return ErrAlreadyOwns
	}
	if _, exists := e.items[tokenID]; exists {
		return ErrAlreadyMinted
	}
	e.usedRedeems[string(sig)] = struct{}{}
	e.createItem(to, tokenID, uri)
	e.emit(NewMintedEvent(to, tokenID, e.round.Private, e.stage.Stage, big.NewInt(0)))
	return nil
}

// UpdateRedeemSigner rotates the key recognized by Redeem. Outstanding
// vouchers signed by the previous key stop verifying immediately.
func (e *Engine) UpdateRedeemSigner(caller, signer [20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if signer == ([20]byte{}) {
		return ErrZeroAddress
	}
	e.redeemSigner = signer
	return nil
}

// MintByAdmin mints unconditionally, bypassing price, role and round checks.
// One-per-wallet and unique-id invariants still hold.
func (e *Engine) MintByAdmin(caller, to [20]byte, tokenID uint64, uri string) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if len(e.holdings[to]) > 0 {
		return ErrAlreadyOwns
	}
	if _, exists := e.items[tokenID]; exists {
		return ErrAlreadyMinted
	}
	e.createItem(to, tokenID, uri)
	e.emit(NewMintedEvent(to, tokenID, e.round.Private, e.stage.Stage, big.NewInt(0)))
	return nil
}

// MintBatch airdrops one token to each listed account. Items are applied per
// entry: an entry that fails its own precondition aborts the call at that
// point, leaving earlier entries minted. Admin trust makes this acceptable;
// callers wanting stricter semantics submit one entry per call.
func (e *Engine) MintBatch(caller [20]byte, accounts [][20]byte, tokenIDs []uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if len(accounts) != len(tokenIDs) {
		return ErrArgumentMismatch
	}
	for i := range accounts {
		if err := e.MintByAdmin(caller, accounts[i], tokenIDs[i], ""); err != nil {
			return err
		}
	}
	return nil
}

// Burn destroys an item. Only the current owner may burn.
func (e *Engine) Burn(caller [20]byte, tokenID uint64) error {
	item, ok := e.items[tokenID]
	if !ok {
		return ErrNotFound
	}
	if item.Owner != caller {
		return ErrNotTokenOwner
	}
	delete(e.items, tokenID)
	delete(e.holdings[item.Owner], tokenID)
	e.emit(NewTransferredEvent(item.Owner, [20]byte{}, tokenID))
	e.emit(NewBurnedEvent(item.Owner, tokenID))
	return nil
}

// UpdateTokenURI rewrites the metadata pointer of an existing token.
func (e *Engine) UpdateTokenURI(caller [20]byte, tokenID uint64, uri string) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	item, ok := e.items[tokenID]
	if !ok {
		return ErrNotFound
	}
	item.URI = uri
	return nil
}

// UpdateBaseCID repoints the content-addressed metadata root.
func (e *Engine) UpdateBaseCID(caller [20]byte, cid string) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.baseCID = cid
	return nil
}

// --- custody capability consumed by the staking ledger ---

// SetApprovalForAll lets owner authorize an operator to move any of their
// items.
func (e *Engine) SetApprovalForAll(owner, operator [20]byte, approved bool) {
	ops, ok := e.approvals[owner]
	if !ok {
		ops = make(map[[20]byte]bool)
		e.approvals[owner] = ops
	}
	ops[operator] = approved
}

// IsApprovedForAll reports whether operator may move owner's items.
func (e *Engine) IsApprovedForAll(owner, operator [20]byte) bool {
	return e.approvals[owner][operator]
}

// Transfer moves custody of a token. The caller must be the current owner or
// an approved operator of the owner.
func (e *Engine) Transfer(caller, from, to [20]byte, tokenID uint64) error {
	item, ok := e.items[tokenID]
	if !ok {
		return ErrNotFound
	}
	if item.Owner != from {
		return ErrNotTokenOwner
	}
	if caller != from && !e.IsApprovedForAll(from, caller) {
		return ErrNotApproved
	}
	delete(e.holdings[from], tokenID)
	item.Owner = to
	held, ok := e.holdings[to]
	if !ok {
		held = make(map[uint64]struct{})
		e.holdings[to] = held
	}
	held[tokenID] = struct{}{}
	e.emit(NewTransferredEvent(from, to, tokenID))
	return nil
}
