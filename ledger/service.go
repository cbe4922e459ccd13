package ledger

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"towerledger/core/events"
	"towerledger/core/types"
	"towerledger/native/mintgate"
	"towerledger/native/redemption"
	"towerledger/native/staking"
	"towerledger/native/voucher"
)

const (
	engineGate       = "gate"
	engineStaking    = "staking"
	engineRedemption = "redemption"
)

const subscriberBuffer = 128

// capturingEmitter collects events raised during a single engine call so the
// service can deliver them to subscribers only after the mutation commits.
type capturingEmitter struct {
	pending []*types.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	if e := carrier.Event(); e != nil {
		c.pending = append(c.pending, e)
	}
}

func (c *capturingEmitter) reset() { c.pending = c.pending[:0] }

func (c *capturingEmitter) drain() []*types.Event {
	out := make([]*types.Event, len(c.pending))
	copy(out, c.pending)
	c.pending = c.pending[:0]
	return out
}

// GateStatus is the point-in-time phase snapshot served to clients.
type GateStatus struct {
	Section       uint8
	Stage         uint64
	Price         *big.Int
	PrivateRound  bool
	Remaining     uint64
	TokensInStake uint64
}

// Service is the single writer in front of the three engines. Every mutating
// call runs under one lock with one timestamp, so engine state only ever
// advances through serialized, deterministic transitions.
type Service struct {
	mu sync.RWMutex

	gate       *mintgate.Engine
	staking    *staking.Engine
	redemption *redemption.Engine
	state      *State

	log     *slog.Logger
	metrics *Metrics
	clock   func() int64
	now     int64

	captured *capturingEmitter

	subMu       sync.Mutex
	subscribers []chan *types.Event
}

// NewService wires the engines to a shared capturing emitter and a single
// clock. Engines must not be mutated outside the returned service once wired.
func NewService(gate *mintgate.Engine, stk *staking.Engine, rdm *redemption.Engine, state *State, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		gate:       gate,
		staking:    stk,
		redemption: rdm,
		state:      state,
		log:        log,
		metrics:    ServiceMetrics(),
		clock:      func() int64 { return time.Now().Unix() },
		captured:   &capturingEmitter{},
	}
	if gate != nil {
		gate.SetState(state)
		gate.SetEmitter(s.captured)
	}
	if stk != nil {
		stk.SetState(state)
		stk.SetEmitter(s.captured)
		stk.SetNowFunc(func() int64 { return s.now })
	}
	if rdm != nil {
		rdm.SetState(state)
		rdm.SetEmitter(s.captured)
	}
	return s
}

// SetClock overrides the service clock. Tests use this for deterministic
// timestamps; the override applies to every engine.
func (s *Service) SetClock(clock func() int64) {
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Subscribe returns a channel receiving every event emitted by committed
// operations. Slow subscribers drop events rather than stalling the writer.
func (s *Service) Subscribe() <-chan *types.Event {
	ch := make(chan *types.Event, subscriberBuffer)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Service) publish(evts []*types.Event) {
	if len(evts) == 0 {
		return
	}
	s.metrics.RecordEvents(len(evts))
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		for _, evt := range evts {
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

func (s *Service) do(engine, op string, fn func() error) error {
	s.mu.Lock()
	s.now = s.clock()
	s.captured.reset()
	err := fn()
	if err == nil {
		// Deliver before releasing the write lock so subscribers see event
		// batches in commit order. publish never blocks on a slow subscriber.
		s.publish(s.captured.drain())
	}
	s.mu.Unlock()

	s.metrics.RecordOperation(engine, op, err)
	if err != nil {
		s.log.Debug("ledger operation rejected", "engine", engine, "op", op, "err", err)
	}
	return err
}

// --- mint gate operations ---

func (s *Service) Mint(caller, to [20]byte, tokenID uint64, uri string, stage uint64, payment *big.Int) error {
	return s.do(engineGate, "mint", func() error {
		return s.gate.Mint(caller, to, tokenID, uri, stage, payment)
	})
}

func (s *Service) RedeemMintVoucher(to [20]byte, tokenID uint64, uri string, sig []byte) error {
	return s.do(engineGate, "redeem_voucher", func() error {
		return s.gate.Redeem(to, tokenID, uri, sig)
	})
}

func (s *Service) MintByAdmin(caller, to [20]byte, tokenID uint64, uri string) error {
	return s.do(engineGate, "mint_by_admin", func() error {
		return s.gate.MintByAdmin(caller, to, tokenID, uri)
	})
}

func (s *Service) MintBatch(caller [20]byte, accounts [][20]byte, tokenIDs []uint64) error {
	return s.do(engineGate, "mint_batch", func() error {
		return s.gate.MintBatch(caller, accounts, tokenIDs)
	})
}

func (s *Service) Burn(caller [20]byte, tokenID uint64) error {
	return s.do(engineGate, "burn", func() error {
		return s.gate.Burn(caller, tokenID)
	})
}

func (s *Service) Transfer(caller, from, to [20]byte, tokenID uint64) error {
	return s.do(engineGate, "transfer", func() error {
		return s.gate.Transfer(caller, from, to, tokenID)
	})
}

func (s *Service) SetApprovalForAll(owner, operator [20]byte, approved bool) error {
	return s.do(engineGate, "set_approval", func() error {
		s.gate.SetApprovalForAll(owner, operator, approved)
		return nil
	})
}

func (s *Service) GrantRole(caller [20]byte, role mintgate.Role, account [20]byte) error {
	return s.do(engineGate, "grant_role", func() error {
		return s.gate.GrantRole(caller, role, account)
	})
}

func (s *Service) RevokeRole(caller [20]byte, role mintgate.Role, account [20]byte) error {
	return s.do(engineGate, "revoke_role", func() error {
		return s.gate.RevokeRole(caller, role, account)
	})
}

func (s *Service) BatchGrantRole(caller [20]byte, accounts [][20]byte, role mintgate.Role) error {
	return s.do(engineGate, "batch_grant_role", func() error {
		return s.gate.BatchGrantRole(caller, accounts, role)
	})
}

func (s *Service) AddStageRole(caller [20]byte, stage uint64, role mintgate.Role) error {
	return s.do(engineGate, "add_stage_role", func() error {
		return s.gate.AddStageRole(caller, stage, role)
	})
}

func (s *Service) ChangeSection(caller [20]byte, section uint8) error {
	return s.do(engineGate, "change_section", func() error {
		return s.gate.ChangeSection(caller, section)
	})
}

func (s *Service) ChangeStage(caller [20]byte, stage uint64, price *big.Int) error {
	return s.do(engineGate, "change_stage", func() error {
		return s.gate.ChangeStage(caller, stage, price)
	})
}

func (s *Service) ChangeRound(caller [20]byte, capacity uint64, private bool) error {
	return s.do(engineGate, "change_round", func() error {
		return s.gate.ChangeRound(caller, capacity, private)
	})
}

func (s *Service) ChangeToPublic(caller [20]byte) error {
	return s.do(engineGate, "change_to_public", func() error {
		return s.gate.ChangeToPublic(caller)
	})
}

func (s *Service) UpdateRedeemSigner(caller, signer [20]byte) error {
	return s.do(engineGate, "update_redeem_signer", func() error {
		return s.gate.UpdateRedeemSigner(caller, signer)
	})
}

func (s *Service) UpdateTokenURI(caller [20]byte, tokenID uint64, uri string) error {
	return s.do(engineGate, "update_token_uri", func() error {
		return s.gate.UpdateTokenURI(caller, tokenID, uri)
	})
}

// --- staking operations ---

func (s *Service) Stake(caller [20]byte, v voucher.StakeVoucher, sig []byte) error {
	return s.do(engineStaking, "stake", func() error {
		return s.staking.Stake(caller, v, sig)
	})
}

func (s *Service) Unstake(caller [20]byte, v voucher.UnstakeVoucher, sig []byte, destination [20]byte) error {
	return s.do(engineStaking, "unstake", func() error {
		return s.staking.Unstake(caller, v, sig, destination)
	})
}

func (s *Service) Claim(caller [20]byte, v voucher.ClaimVoucher, sig []byte) error {
	return s.do(engineStaking, "claim", func() error {
		return s.staking.Claim(caller, v, sig)
	})
}

func (s *Service) ClaimAll(caller [20]byte, v voucher.ClaimAllVoucher, sig []byte) error {
	return s.do(engineStaking, "claim_all", func() error {
		return s.staking.ClaimAll(caller, v, sig)
	})
}

func (s *Service) EmergencyUnstake(caller [20]byte) error {
	return s.do(engineStaking, "emergency_unstake", func() error {
		return s.staking.EmergencyUnstake(caller)
	})
}

func (s *Service) SetRentable(caller [20]byte, tokenID uint64, terms voucher.RentalTerms) error {
	return s.do(engineStaking, "set_rentable", func() error {
		return s.staking.SetRentable(caller, tokenID, terms)
	})
}

func (s *Service) PauseStaking(caller [20]byte) error {
	return s.do(engineStaking, "pause", func() error {
		return s.staking.Pause(caller)
	})
}

func (s *Service) UnpauseStaking(caller [20]byte) error {
	return s.do(engineStaking, "unpause", func() error {
		return s.staking.Unpause(caller)
	})
}

func (s *Service) UpdateServiceSigner(caller, signer [20]byte) error {
	return s.do(engineStaking, "update_service_signer", func() error {
		return s.staking.UpdateServiceSigner(caller, signer)
	})
}

func (s *Service) UpdateMaxTokensInStake(caller [20]byte, value uint64) error {
	return s.do(engineStaking, "update_max_tokens", func() error {
		return s.staking.UpdateMaxTokensInStake(caller, value)
	})
}

func (s *Service) ToggleShutdown(caller [20]byte, value bool) error {
	return s.do(engineStaking, "toggle_shutdown", func() error {
		return s.staking.ToggleShutdown(caller, value)
	})
}

func (s *Service) RescueTokens(caller, token [20]byte, amount *big.Int, to [20]byte) error {
	return s.do(engineStaking, "rescue_tokens", func() error {
		return s.staking.RescueTokens(caller, token, amount, to)
	})
}

// --- redemption proxy operations ---

func (s *Service) RedeemTower(caller [20]byte, v voucher.TowerVoucher, sig []byte, uri string, payment *big.Int) error {
	return s.do(engineRedemption, "redeem", func() error {
		return s.redemption.Redeem(caller, v, sig, uri, payment)
	})
}

func (s *Service) Withdraw(caller [20]byte, amount *big.Int, to [20]byte) error {
	return s.do(engineRedemption, "withdraw", func() error {
		return s.redemption.Withdraw(caller, amount, to)
	})
}

func (s *Service) AddRoleForStage(caller [20]byte, stage uint64, role mintgate.Role) error {
	return s.do(engineRedemption, "add_role_for_stage", func() error {
		return s.redemption.AddRoleForStage(caller, stage, role)
	})
}

func (s *Service) DisableProxy(caller [20]byte) error {
	return s.do(engineRedemption, "disable", func() error {
		return s.redemption.DisableContract(caller)
	})
}

func (s *Service) EnableProxy(caller [20]byte) error {
	return s.do(engineRedemption, "enable", func() error {
		return s.redemption.EnableContract(caller)
	})
}

func (s *Service) Blacklist(caller, account [20]byte) error {
	return s.do(engineRedemption, "blacklist", func() error {
		return s.redemption.AddToBlacklist(caller, account)
	})
}

func (s *Service) Unblacklist(caller, account [20]byte) error {
	return s.do(engineRedemption, "unblacklist", func() error {
		return s.redemption.RemoveFromBlacklist(caller, account)
	})
}

func (s *Service) ChangeServiceAddress(caller, account [20]byte) error {
	return s.do(engineRedemption, "change_service_address", func() error {
		return s.redemption.ChangeServiceAddress(caller, account)
	})
}

// --- queries ---

// Status snapshots the gate phase state and the global stake counter.
func (s *Service) Status() GateStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GateStatus{
		Section:       s.gate.Section(),
		Stage:         s.gate.Stage(),
		Price:         s.gate.StagePrice(),
		PrivateRound:  s.gate.IsPrivateRound(),
		Remaining:     s.gate.ItemsRemaining(),
		TokensInStake: s.staking.TokensInStake(),
	}
}

// StakeInfo returns the stake record for a token, if staked.
func (s *Service) StakeInfo(tokenID uint64) (*staking.StakeRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staking.GetStakeInfo(tokenID)
}

// TokensByOwner lists an owner's staked tokens.
func (s *Service) TokensByOwner(owner [20]byte) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staking.GetTokensByOwner(owner)
}

// OwnerOf resolves a token's current holder on the gate.
func (s *Service) OwnerOf(tokenID uint64) ([20]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gate.OwnerOf(tokenID)
}

// Balance reads an account balance from the shared state.
func (s *Service) Balance(addr [20]byte) *big.Int {
	return s.state.Balance(addr)
}
