package staking

import (
	"errors"
	"math/big"
	"time"

	"towerledger/core/events"
	"towerledger/core/types"
	"towerledger/native/voucher"
)

// maxEmergencyUnstake bounds how many tokens a single emergencyUnstake call
// releases.
const maxEmergencyUnstake = 20

var (
	errNilState      = errors.New("staking engine: state not configured")
	errNilRegistry   = errors.New("staking engine: asset registry not configured")
	errNilNonceStore = errors.New("staking engine: nonce store not configured")
)

// AssetRegistry is the custody capability consumed from the external
// unique-asset registry. The mint gate satisfies it directly.
type AssetRegistry interface {
	OwnerOf(tokenID uint64) ([20]byte, bool)
	IsApprovedForAll(owner, operator [20]byte) bool
	Transfer(caller, from, to [20]byte, tokenID uint64) error
}

// engineState is the fungible-balance surface used to pay rewards out of the
// pool account.
type engineState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type stakingEvent struct {
	evt *types.Event
}

func (e stakingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e stakingEvent) Event() *types.Event { return e.evt }

// Engine is the staking ledger: custody accounting for staked items and the
// reward-claim ledger, authorized through vouchers signed by the service
// signer. Every entry point validates all preconditions before the first
// mutation, so a failed call leaves no partial state.
type Engine struct {
	state    engineState
	registry AssetRegistry
	nonces   NonceStore
	emitter  events.Emitter
	nowFn    func() int64

	owner         [20]byte
	self          [20]byte
	rewardToken   [20]byte
	serviceSigner [20]byte
	chainID       uint64

	paused   bool
	shutdown bool

	maxTokensInStake uint64
	tokensInStake    uint64

	records map[uint64]*StakeRecord
	index   *OwnerIndex
	claims  map[[20]byte]*ClaimState
}

// NewEngine constructs the staking ledger. The reward token, asset registry
// and service signer are mandatory collaborators; zero values are rejected
// the same way the deployment path rejects them.
func NewEngine(owner, self, rewardToken, serviceSigner [20]byte, registry AssetRegistry, chainID uint64, maxTokens uint64) (*Engine, error) {
	if rewardToken == ([20]byte{}) || serviceSigner == ([20]byte{}) || self == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if registry == nil {
		return nil, errNilRegistry
	}
	return &Engine{
		registry:         registry,
		emitter:          events.NoopEmitter{},
		nowFn:            func() int64 { return time.Now().Unix() },
		owner:            owner,
		self:             self,
		rewardToken:      rewardToken,
		serviceSigner:    serviceSigner,
		chainID:          chainID,
		maxTokensInStake: maxTokens,
		records:          make(map[uint64]*StakeRecord),
		index:            NewOwnerIndex(),
		claims:           make(map[[20]byte]*ClaimState),
	}, nil
}

// SetState configures the account backend holding the reward pool.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNonceStore configures voucher replay protection.
func (e *Engine) SetNonceStore(store NonceStore) { e.nonces = store }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(stakingEvent{evt: event})
}

// Domain returns the typed-data signing domain recognized by the ledger.
func (e *Engine) Domain() voucher.Domain {
	return voucher.Domain{
		Name:              voucher.StakingDomainName,
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
	if signer != e.serviceSigner {
		return ErrInvalidSignature
	}
	return nil
}

func (e *Engine) checkNonce(nonce uint64) error {
	if e.nonces == nil {
		return errNilNonceStore
	}
	spent, err := e.nonces.Consumed(nonce)
	if err != nil {
		return err
	}
	if spent {
		return ErrVoucherUsed
	}
	return nil
}

func (e *Engine) consumeNonce(nonce uint64, owner [20]byte, kind string, now int64) error {
	return e.nonces.Consume(VoucherUse{Nonce: nonce, Owner: owner, Kind: kind, ConsumedAt: now})
}

func (e *Engine) poolBalance() (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	acc, err := e.state.GetAccount(e.self[:])
	if err != nil {
		return nil, err
	}
	return types.EnsureAccount(acc).Balance, nil
}

func (e *Engine) payFromPool(to [20]byte, amount *big.Int) error {
	if e.state == nil {
		return errNilState
	}
	pool, err := e.state.GetAccount(e.self[:])
	if err != nil {
		return err
	}
	pool = types.EnsureAccount(pool)
	if pool.Balance.Cmp(amount) < 0 {
		return ErrInsufficientRewards
	}
	dest, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	dest = types.EnsureAccount(dest)
	pool.Balance = new(big.Int).Sub(pool.Balance, amount)
	dest.Balance = new(big.Int).Add(dest.Balance, amount)
	if err := e.state.PutAccount(e.self[:], pool); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], dest)
}

func (e *Engine) recordClaim(owner [20]byte, amount *big.Int, now int64) {
	claim, ok := e.claims[owner]
	if !ok {
		claim = &ClaimState{TotalClaimed: big.NewInt(0)}
		e.claims[owner] = claim
	}
	if claim.TotalClaimed == nil {
		claim.TotalClaimed = big.NewInt(0)
	}
	claim.TotalClaimed = new(big.Int).Add(claim.TotalClaimed, amount)
	claim.LastClaimAt = now
}

// Stake places a voucher-authorized batch of tokens into custody. The whole
// batch is a transactional unit: any single token failing a precondition
// aborts the call before any mutation.
func (e *Engine) Stake(caller [20]byte, v voucher.StakeVoucher, sig []byte) error {
	if e.paused {
		return ErrPaused
	}
	if e.shutdown {
		return ErrShutdown
	}
	if len(v.TokenIDs) == 0 {
		return ErrNothingToStake
	}
	if uint64(len(v.TokenIDs))+e.tokensInStake > e.maxTokensInStake {
		return ErrStakeLimit
	}
	if err := e.verifySignature(v.StructHash(), sig); err != nil {
		return err
	}
	if err := e.checkNonce(v.Nonce); err != nil {
		return err
	}
	if caller != v.Owner {
		return ErrNotYourVoucher
	}
	seen := make(map[uint64]struct{}, len(v.TokenIDs))
	for _, tokenID := range v.TokenIDs {
		if _, dup := seen[tokenID]; dup {
			return ErrDuplicateToken
		}
		seen[tokenID] = struct{}{}
		holder, exists := e.registry.OwnerOf(tokenID)
		if !exists {
			return ErrInvalidToken
		}
		if holder != caller {
			return ErrNotOwner
		}
	}
	if !e.registry.IsApprovedForAll(caller, e.self) {
		return ErrNotApproved
	}

	now := e.nowFn()
	for _, tokenID := range v.TokenIDs {
		if err := e.registry.Transfer(e.self, caller, e.self, tokenID); err != nil {
			return err
		}
		position := e.index.Append(caller, tokenID)
		e.records[tokenID] = &StakeRecord{
			Owner:           caller,
			TokenID:         tokenID,
			StakedAt:        now,
			RewardClaimedAt: now,
			Index:           position,
			Rental:          v.Rental,
		}
		e.tokensInStake++
		e.emit(NewTokenStakedEvent(caller, tokenID, now))
	}
	return e.consumeNonce(v.Nonce, caller, VoucherKindStake, now)
}

func (e *Engine) removeRecord(owner [20]byte, tokenID uint64) {
	moved, newPos, ok := e.index.Remove(owner, tokenID)
	if !ok {
		return
	}
	delete(e.records, tokenID)
	if moved != tokenID {
		if rec, exists := e.records[moved]; exists {
			rec.Index = newPos
		}
	}
	e.tokensInStake--
}

// Unstake returns a voucher-authorized batch of tokens to the destination
// account, optionally paying out accrued rewards in the same call.
func (e *Engine) Unstake(caller [20]byte, v voucher.UnstakeVoucher, sig []byte, destination [20]byte) error {
	if len(v.TokenIDs) == 0 {
		return ErrNothingToUnstake
	}
	if destination == ([20]byte{}) {
		return ErrZeroDestination
	}
	if destination == e.self {
		return ErrTransferToContract
	}
	if err := e.verifySignature(v.StructHash(), sig); err != nil {
		return err
	}
	if err := e.checkNonce(v.Nonce); err != nil {
		return err
	}
	if caller != v.Owner {
		return ErrNotYourVoucher
	}
	seen := make(map[uint64]struct{}, len(v.TokenIDs))
	for _, tokenID := range v.TokenIDs {
		if _, dup := seen[tokenID]; dup {
			return ErrDuplicateToken
		}
		seen[tokenID] = struct{}{}
		rec, exists := e.records[tokenID]
		if !exists || rec.Owner != v.Owner {
			return ErrWrongStakeOwner
		}
	}
	claim := big.NewInt(0)
	if v.ClaimAmount != nil {
		claim = new(big.Int).Set(v.ClaimAmount)
	}
	if claim.Sign() > 0 {
		pool, err := e.poolBalance()
		if err != nil {
			return err
		}
		if pool.Cmp(claim) < 0 {
			return ErrInsufficientRewards
		}
	}

	now := e.nowFn()
	for _, tokenID := range v.TokenIDs {
		e.removeRecord(v.Owner, tokenID)
		if err := e.registry.Transfer(e.self, e.self, destination, tokenID); err != nil {
			return err
		}
		e.emit(NewTokenUnstakedEvent(v.Owner, tokenID, now))
	}
	if claim.Sign() > 0 {
		if err := e.payFromPool(v.Owner, claim); err != nil {
			return err
		}
		e.recordClaim(v.Owner, claim, now)
		e.emit(NewRewardClaimedAllEvent(v.Owner, claim))
	}
	return e.consumeNonce(v.Nonce, v.Owner, VoucherKindUnstake, now)
}

// Claim pays out a voucher-authorized reward amount, optionally bound to a
// single staked token.
func (e *Engine) Claim(caller [20]byte, v voucher.ClaimVoucher, sig []byte) error {
	if err := e.verifySignature(v.StructHash(), sig); err != nil {
		return err
	}
	if err := e.checkNonce(v.Nonce); err != nil {
		return err
	}
	if caller != v.Owner {
		return ErrNotYourVoucher
	}
	if v.Amount == nil || v.Amount.Sign() == 0 {
		return ErrNothingToClaim
	}
	pool, err := e.poolBalance()
	if err != nil {
		return err
	}
	if pool.Cmp(v.Amount) < 0 {
		return ErrInsufficientRewards
	}
	now := e.nowFn()
	if v.TokenID != 0 {
		rec, exists := e.records[v.TokenID]
		if !exists || rec.Owner != v.Owner {
			return ErrWrongStakeOwner
		}
		rec.RewardClaimedAt = now
	}
	if err := e.payFromPool(v.Owner, v.Amount); err != nil {
		return err
	}
	e.recordClaim(v.Owner, v.Amount, now)
	e.emit(NewRewardClaimedEvent(v.Owner, v.TokenID, v.Amount))
	return e.consumeNonce(v.Nonce, v.Owner, VoucherKindClaim, now)
}

// ClaimAll pays out a reward covering every stake the owner holds and stamps
// a fresh claim timestamp on each of their records.
func (e *Engine) ClaimAll(caller [20]byte, v voucher.ClaimAllVoucher, sig []byte) error {
	if err := e.verifySignature(v.StructHash(), sig); err != nil {
		return err
	}
	if err := e.checkNonce(v.Nonce); err != nil {
		return err
	}
	if caller != v.Owner {
		return ErrNotYourVoucher
	}
	if v.Amount == nil || v.Amount.Sign() == 0 {
		return ErrNothingToClaim
	}
	staked := e.index.Tokens(v.Owner)
	if len(staked) == 0 {
		return ErrNoTokensStaked
	}
	pool, err := e.poolBalance()
	if err != nil {
		return err
	}
	if pool.Cmp(v.Amount) < 0 {
		return ErrInsufficientRewards
	}
	now := e.nowFn()
	for _, tokenID := range staked {
		if rec, exists := e.records[tokenID]; exists {
			rec.RewardClaimedAt = now
		}
	}
	if err := e.payFromPool(v.Owner, v.Amount); err != nil {
		return err
	}
	e.recordClaim(v.Owner, v.Amount, now)
	e.emit(NewRewardClaimedAllEvent(v.Owner, v.Amount))
	return e.consumeNonce(v.Nonce, v.Owner, VoucherKindClaimAll, now)
}

// EmergencyUnstake is the voucher-free escape hatch available only while the
// ledger is shut down. It releases up to maxEmergencyUnstake of the caller's
// tokens per call and pays no reward.
func (e *Engine) EmergencyUnstake(caller [20]byte) error {
	if !e.shutdown {
		return ErrNotShutdown
	}
	staked := e.index.Tokens(caller)
	if len(staked) == 0 {
		return ErrNothingToUnstake
	}
	release := len(staked)
	if release > maxEmergencyUnstake {
		release = maxEmergencyUnstake
	}
	now := e.nowFn()
	for i := 0; i < release; i++ {
		tokenID := staked[i]
		e.removeRecord(caller, tokenID)
		if err := e.registry.Transfer(e.self, e.self, caller, tokenID); err != nil {
			return err
		}
		e.emit(NewTokenUnstakedEvent(caller, tokenID, now))
	}
	return nil
}

// SetRentable updates rental terms on a staked token. Only the recorded
// stake owner may do so.
func (e *Engine) SetRentable(caller [20]byte, tokenID uint64, terms voucher.RentalTerms) error {
	rec, exists := e.records[tokenID]
	if !exists || rec.Owner != caller {
		return ErrNotOwner
	}
	rec.Rental = terms
	e.emit(NewTokenSetRentableEvent(caller, tokenID, terms.Rentable))
	return nil
}

// --- admin (contract-owner capability) ---

func (e *Engine) requireOwner(caller [20]byte) error {
	if caller != e.owner {
		return ErrNotContractOwner
	}
	return nil
}

// Pause blocks Stake. Unstake paths stay open.
func (e *Engine) Pause(caller [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.paused = true
	return nil
}

// Unpause re-opens Stake.
func (e *Engine) Unpause(caller [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.paused = false
	return nil
}

// UpdateServiceSigner rotates the voucher-issuing key. Outstanding vouchers
// signed by the previous key stop verifying immediately.
func (e *Engine) UpdateServiceSigner(caller, signer [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if signer == ([20]byte{}) {
		return ErrZeroAddress
	}
	e.serviceSigner = signer
	e.emit(NewServiceSignerUpdatedEvent(signer))
	return nil
}

// UpdateMaxTokensInStake adjusts the global stake cap enforced at stake time.
func (e *Engine) UpdateMaxTokensInStake(caller [20]byte, value uint64) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.maxTokensInStake = value
	e.emit(NewMaxTokensUpdatedEvent(value))
	return nil
}

// ToggleShutdown flips the shutdown flag. Shutdown blocks Stake and unlocks
// EmergencyUnstake. Reversible by the owner capability, but intended as a
// one-way switch.
func (e *Engine) ToggleShutdown(caller [20]byte, value bool) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	e.shutdown = value
	e.emit(NewShutdownToggledEvent(value))
	return nil
}

// RescueTokens moves stray fungible balance out of the pool account.
func (e *Engine) RescueTokens(caller, token [20]byte, amount *big.Int, to [20]byte) error {
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if token == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() == 0 {
		return ErrZeroAmount
	}
	if to == ([20]byte{}) {
		return ErrZeroDestination
	}
	if to == e.self {
		return ErrTransferToContract
	}
	return e.payFromPool(to, amount)
}

// --- queries ---

// GetStakeInfo returns a copy of the stake record for a token, if staked.
func (e *Engine) GetStakeInfo(tokenID uint64) (*StakeRecord, bool) {
	rec, ok := e.records[tokenID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// GetTokensByOwner returns the owner's active-token list. Order is
// unspecified once any removal has happened.
func (e *Engine) GetTokensByOwner(owner [20]byte) []uint64 {
	return e.index.Tokens(owner)
}

// TokensInStake reports the global staked-token counter.
func (e *Engine) TokensInStake() uint64 { return e.tokensInStake }

// MaxTokensInStake reports the configured global cap.
func (e *Engine) MaxTokensInStake() uint64 { return e.maxTokensInStake }

// IsPaused reports whether Stake is blocked.
func (e *Engine) IsPaused() bool { return e.paused }

// IsShutdown reports whether the emergency escape hatch is open.
func (e *Engine) IsShutdown() bool { return e.shutdown }

// ServiceSigner returns the current voucher-issuing key.
func (e *Engine) ServiceSigner() [20]byte { return e.serviceSigner }

// TotalClaimed returns the accumulated reward payouts for an owner.
func (e *Engine) TotalClaimed(owner [20]byte) *ClaimState {
	return e.claims[owner].Clone()
}
