package redemption

import (
	"errors"
	"math/big"
	"testing"

	"towerledger/core/events"
	"towerledger/core/types"
	"towerledger/crypto"
	"towerledger/native/mintgate"
	"towerledger/native/voucher"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

type mockState struct {
	accounts map[string]*types.Account
}

func newMockState() *mockState {
	return &mockState{accounts: make(map[string]*types.Account)}
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	acc, ok := m.accounts[string(addr)]
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	return &types.Account{Nonce: acc.Nonce, Balance: new(big.Int).Set(acc.Balance)}, nil
}

func (m *mockState) PutAccount(addr []byte, acc *types.Account) error {
	m.accounts[string(addr)] = acc
	return nil
}

func (m *mockState) balance(a [20]byte) *big.Int {
	acc, ok := m.accounts[string(a[:])]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

type recordingEmitter struct {
	types []string
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.types = append(r.types, evt.EventType())
}

type proxyHarness struct {
	engine  *Engine
	gate    *mintgate.Engine
	state   *mockState
	emitter *recordingEmitter
	signer  *crypto.PrivateKey
	admin   [20]byte
	self    [20]byte
	fee     [20]byte
}

func newProxyHarness(t *testing.T) *proxyHarness {
	t.Helper()
	signer, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate signer key: %v", err)
	}
	h := &proxyHarness{
		state:   newMockState(),
		emitter: &recordingEmitter{},
		signer:  signer,
		admin:   addr(0xAA),
		self:    addr(0xEE),
		fee:     addr(0xFE),
	}
	h.gate = mintgate.NewEngine(h.admin, addr(0xBB), 777)
	h.gate.SetState(h.state)
	// The proxy mints through the gate's privileged path.
	if err := h.gate.GrantRole(h.admin, mintgate.RoleAdmin, h.self); err != nil {
		t.Fatalf("grant gate admin to proxy: %v", err)
	}
	if err := h.gate.ChangeStage(h.admin, 1, big.NewInt(100)); err != nil {
		t.Fatalf("set stage: %v", err)
	}
	if err := h.gate.ChangeRound(h.admin, 1000, false); err != nil {
		t.Fatalf("set round: %v", err)
	}
	engine, err := NewEngine(h.admin, h.self, signer.PubKey().RawAddress(), h.fee, h.gate, 777)
	if err != nil {
		t.Fatalf("new proxy: %v", err)
	}
	engine.SetState(h.state)
	engine.SetEmitter(h.emitter)
	h.engine = engine
	return h
}

func (h *proxyHarness) sign(t *testing.T, v voucher.TowerVoucher) []byte {
	t.Helper()
	sig, err := voucher.Sign(voucher.Digest(h.engine.Domain().Separator(), v.StructHash()), h.signer)
	if err != nil {
		t.Fatalf("sign tower voucher: %v", err)
	}
	return sig
}

func TestRedeemFlow(t *testing.T) {
	h := newProxyHarness(t)
	buyer := addr(0x01)

	v := voucher.TowerVoucher{TokenID: 700}
	if err := h.engine.Redeem(buyer, v, h.sign(t, v), "apt/700", big.NewInt(100)); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if holder, ok := h.gate.OwnerOf(700); !ok || holder != buyer {
		t.Fatal("buyer should own the minted token")
	}
	if got := h.engine.MintedCount(); got != 1 {
		t.Fatalf("minted count: got %d want 1", got)
	}
	if !h.engine.OwnsOnTower(1, buyer) {
		t.Fatal("owns-on-tower mark missing")
	}
	if got := h.state.balance(h.self); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("custodied balance: got %s want 100", got)
	}

	// A second redemption on the same section is blocked by the proxy itself.
	v2 := voucher.TowerVoucher{TokenID: 701}
	if err := h.engine.Redeem(buyer, v2, h.sign(t, v2), "apt/701", big.NewInt(100)); !errors.Is(err, ErrAlreadyOwnsOnTower) {
		t.Fatalf("expected ErrAlreadyOwnsOnTower, got %v", err)
	}
}

func TestRedeemValidationOrder(t *testing.T) {
	h := newProxyHarness(t)
	buyer := addr(0x01)
	v := voucher.TowerVoucher{TokenID: 700}
	sig := h.sign(t, v)

	if err := h.engine.DisableContract(h.admin); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := h.engine.Redeem(buyer, v, sig, "", big.NewInt(100)); !errors.Is(err, ErrContractDisabled) {
		t.Fatalf("expected ErrContractDisabled, got %v", err)
	}
	if err := h.engine.EnableContract(h.admin); err != nil {
		t.Fatalf("enable: %v", err)
	}

	if err := h.engine.AddToBlacklist(h.admin, buyer); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if err := h.engine.Redeem(buyer, v, sig, "", big.NewInt(100)); !errors.Is(err, ErrBlacklisted) {
		t.Fatalf("expected ErrBlacklisted, got %v", err)
	}
	if err := h.engine.RemoveFromBlacklist(h.admin, buyer); err != nil {
		t.Fatalf("unblacklist: %v", err)
	}

	stranger, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate stranger key: %v", err)
	}
	badSig, err := voucher.Sign(voucher.Digest(h.engine.Domain().Separator(), v.StructHash()), stranger)
	if err != nil {
		t.Fatalf("sign with stranger key: %v", err)
	}
	if err := h.engine.Redeem(buyer, v, badSig, "", big.NewInt(100)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	if err := h.engine.Redeem(buyer, v, sig, "", big.NewInt(99)); !errors.Is(err, ErrIncorrectPrice) {
		t.Fatalf("expected ErrIncorrectPrice, got %v", err)
	}

	if err := h.engine.ResetTokenCount(h.admin, MaxItemsInTower); err != nil {
		t.Fatalf("reset count: %v", err)
	}
	if err := h.engine.Redeem(buyer, v, sig, "", big.NewInt(100)); !errors.Is(err, ErrTowerFull) {
		t.Fatalf("expected ErrTowerFull, got %v", err)
	}
	if err := h.engine.ResetTokenCount(h.admin, 0); err != nil {
		t.Fatalf("restore count: %v", err)
	}

	if err := h.engine.Redeem(buyer, v, sig, "", big.NewInt(100)); err != nil {
		t.Fatalf("redeem after fixes: %v", err)
	}
}

func TestRedeemPrivateRoundRoles(t *testing.T) {
	h := newProxyHarness(t)
	buyer := addr(0x01)
	if err := h.gate.ChangeRound(h.admin, 1000, true); err != nil {
		t.Fatalf("private round: %v", err)
	}
	v := voucher.TowerVoucher{TokenID: 700}
	sig := h.sign(t, v)

	// No role configured for the stage yet.
	if err := h.engine.Redeem(buyer, v, sig, "", big.NewInt(100)); !errors.Is(err, ErrIncorrectStage) {
		t.Fatalf("expected ErrIncorrectStage, got %v", err)
	}

	if err := h.engine.AddRoleForStage(h.admin, 1, mintgate.RoleWhitelisted); err != nil {
		t.Fatalf("add stage role: %v", err)
	}
	if err := h.engine.Redeem(buyer, v, sig, "", big.NewInt(100)); !errors.Is(err, ErrNoRoleForStage) {
		t.Fatalf("expected ErrNoRoleForStage, got %v", err)
	}

	if err := h.gate.GrantRole(h.admin, mintgate.RoleWhitelisted, buyer); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	if err := h.engine.Redeem(buyer, v, sig, "", big.NewInt(100)); err != nil {
		t.Fatalf("redeem with role: %v", err)
	}
}

func TestRedeemSectionIndependence(t *testing.T) {
	h := newProxyHarness(t)
	buyer := addr(0x01)
	v := voucher.TowerVoucher{TokenID: 700}
	if err := h.engine.Redeem(buyer, v, h.sign(t, v), "", big.NewInt(100)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := h.gate.ChangeSection(h.admin, 2); err != nil {
		t.Fatalf("change section: %v", err)
	}
	if h.engine.OwnsOnTower(2, buyer) {
		t.Fatal("ownership mark must be per section")
	}
	// The proxy admits the caller on the new section; the gate's collection
	// one-per-wallet rule is what rejects the second mint.
	v2 := voucher.TowerVoucher{TokenID: 701}
	if err := h.engine.Redeem(buyer, v2, h.sign(t, v2), "", big.NewInt(100)); !errors.Is(err, mintgate.ErrAlreadyOwns) {
		t.Fatalf("expected gate ErrAlreadyOwns, got %v", err)
	}
	if h.engine.OwnsOnTower(2, buyer) || h.engine.MintedCount() != 1 {
		t.Fatal("failed mint must leave proxy state untouched")
	}
}

func TestResetOwnerOfAllowsNewRedeem(t *testing.T) {
	h := newProxyHarness(t)
	buyer := addr(0x01)
	v := voucher.TowerVoucher{TokenID: 700}
	if err := h.engine.Redeem(buyer, v, h.sign(t, v), "", big.NewInt(100)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := h.gate.Burn(buyer, 700); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := h.engine.ResetOwnerOf(h.admin, buyer); err != nil {
		t.Fatalf("reset owner: %v", err)
	}
	if h.engine.OwnsOnTower(1, buyer) {
		t.Fatal("ownership mark should be cleared")
	}
	v2 := voucher.TowerVoucher{TokenID: 701}
	if err := h.engine.Redeem(buyer, v2, h.sign(t, v2), "", big.NewInt(100)); err != nil {
		t.Fatalf("redeem after reset: %v", err)
	}
}

func TestServiceAddressRotation(t *testing.T) {
	h := newProxyHarness(t)
	buyer := addr(0x01)
	v := voucher.TowerVoucher{TokenID: 700}
	staleSig := h.sign(t, v)

	next, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate next key: %v", err)
	}
	if err := h.engine.ChangeServiceAddress(h.admin, [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := h.engine.ChangeServiceAddress(h.admin, next.PubKey().RawAddress()); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := h.engine.Redeem(buyer, v, staleSig, "", big.NewInt(100)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("stale voucher must fail, got %v", err)
	}
	freshSig, err := voucher.Sign(voucher.Digest(h.engine.Domain().Separator(), v.StructHash()), next)
	if err != nil {
		t.Fatalf("sign with rotated key: %v", err)
	}
	if err := h.engine.Redeem(buyer, v, freshSig, "", big.NewInt(100)); err != nil {
		t.Fatalf("redeem with rotated signer: %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	h := newProxyHarness(t)
	buyer := addr(0x01)
	v := voucher.TowerVoucher{TokenID: 700}
	if err := h.engine.Redeem(buyer, v, h.sign(t, v), "", big.NewInt(100)); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if err := h.engine.Withdraw(buyer, big.NewInt(50), h.fee); !errors.Is(err, ErrNotContractOwner) {
		t.Fatalf("expected ErrNotContractOwner, got %v", err)
	}
	if err := h.engine.Withdraw(h.admin, nil, h.fee); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if err := h.engine.Withdraw(h.admin, big.NewInt(50), [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := h.engine.Withdraw(h.admin, big.NewInt(200), h.fee); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got, err := h.engine.WithdrawableBalance(); err != nil || got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("withdrawable balance: got %v err %v", got, err)
	}
	if err := h.engine.Withdraw(h.admin, big.NewInt(60), h.fee); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := h.state.balance(h.fee); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("fee balance: got %s want 60", got)
	}
	if got := h.state.balance(h.self); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("custodied remainder: got %s want 40", got)
	}
}

func TestOwnerOnlyAdministration(t *testing.T) {
	h := newProxyHarness(t)
	outsider := addr(0x09)

	checks := []struct {
		name string
		call func() error
	}{
		{"AddRoleForStage", func() error { return h.engine.AddRoleForStage(outsider, 1, mintgate.RoleWhitelisted) }},
		{"ResetOwnerOf", func() error { return h.engine.ResetOwnerOf(outsider, addr(0x01)) }},
		{"ResetTokenCount", func() error { return h.engine.ResetTokenCount(outsider, 0) }},
		{"DisableContract", func() error { return h.engine.DisableContract(outsider) }},
		{"EnableContract", func() error { return h.engine.EnableContract(outsider) }},
		{"AddToBlacklist", func() error { return h.engine.AddToBlacklist(outsider, addr(0x01)) }},
		{"RemoveFromBlacklist", func() error { return h.engine.RemoveFromBlacklist(outsider, addr(0x01)) }},
		{"ChangeServiceAddress", func() error { return h.engine.ChangeServiceAddress(outsider, addr(0x02)) }},
		{"ChangeFeeAddress", func() error { return h.engine.ChangeFeeAddress(outsider, addr(0x02)) }},
		{"ChangeTowerContract", func() error { return h.engine.ChangeTowerContract(outsider, h.gate) }},
	}
	for _, check := range checks {
		if err := check.call(); !errors.Is(err, ErrNotContractOwner) {
			t.Fatalf("%s: expected ErrNotContractOwner, got %v", check.name, err)
		}
	}

	if err := h.engine.ChangeTowerContract(h.admin, nil); !errors.Is(err, ErrNilGate) {
		t.Fatalf("expected ErrNilGate, got %v", err)
	}
}
