package mintgate

import (
	"errors"
	"math/big"
	"testing"

	"towerledger/core/events"
	"towerledger/core/types"
	"towerledger/crypto"
	"towerledger/native/voucher"
)

type mockState struct {
	accounts map[string]*types.Account
}

func newMockState() *mockState {
	return &mockState{accounts: make(map[string]*types.Account)}
}

func (m *mockState) GetAccount(addr []byte) (*types.Account, error) {
	if acc, ok := m.accounts[string(addr)]; ok {
		return acc, nil
	}
	return &types.Account{Balance: big.NewInt(0)}, nil
}

func (m *mockState) PutAccount(addr []byte, acc *types.Account) error {
	m.accounts[string(addr)] = acc
	return nil
}

func (m *mockState) balance(addr [20]byte) *big.Int {
	acc, ok := m.accounts[string(addr[:])]
	if !ok || acc.Balance == nil {
		return big.NewInt(0)
	}
	return acc.Balance
}

type recordingEmitter struct {
	types []string
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.types = append(r.types, evt.EventType())
}

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

// ether mirrors the 0.2 native-unit price in wei-style base units.
func ether(milli int64) *big.Int {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
	return new(big.Int).Mul(big.NewInt(milli), unit)
}

func newTestEngine(t *testing.T) (*Engine, *mockState, [20]byte) {
	t.Helper()
	admin := addr(0xAD)
	payee := addr(0xFE)
	e := NewEngine(admin, payee, 1337)
	state := newMockState()
	e.SetState(state)
	return e, state, admin
}

func TestChangeSectionValidation(t *testing.T) {
	e, _, admin := newTestEngine(t)
	if err := e.ChangeSection(admin, 3); !errors.Is(err, ErrInvalidSection) {
		t.Fatalf("expected ErrInvalidSection, got %v", err)
	}
	if err := e.ChangeSection(admin, 2); err != nil {
		t.Fatalf("change section: %v", err)
	}
	if e.Section() != 2 {
		t.Fatalf("expected section 2, got %d", e.Section())
	}
	if err := e.ChangeSection(addr(0x01), 1); !errors.Is(err, ErrAdminRole) {
		t.Fatalf("expected ErrAdminRole, got %v", err)
	}
}

func TestPrivateRoundMintScenario(t *testing.T) {
	e, state, admin := newTestEngine(t)
	user := addr(0x10)

	if err := e.ChangeRound(admin, 100, true); err != nil {
		t.Fatalf("change round: %v", err)
	}
	if err := e.ChangeStage(admin, 1, ether(200)); err != nil {
		t.Fatalf("change stage: %v", err)
	}
	if err := e.AddStageRole(admin, 1, RoleWhitelisted); err != nil {
		t.Fatalf("add stage role: %v", err)
	}
	if err := e.GrantRole(admin, RoleWhitelisted, user); err != nil {
		t.Fatalf("grant role: %v", err)
	}

	// wrong stage first, regardless of other faults
	if err := e.Mint(user, user, 222, "q", 2, ether(200)); !errors.Is(err, ErrIncorrectStage) {
		t.Fatalf("expected ErrIncorrectStage, got %v", err)
	}
	// underpayment
	if err := e.Mint(user, user, 222, "q", 1, ether(190)); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	// exact payment succeeds
	if err := e.Mint(user, user, 222, "q", 1, ether(200)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if owner, ok := e.OwnerOf(222); !ok || owner != user {
		t.Fatalf("owner of 222 = %x ok=%v", owner, ok)
	}
	if got := state.balance(addr(0xFE)); got.Cmp(ether(200)) != 0 {
		t.Fatalf("payee balance = %s, want %s", got, ether(200))
	}
	// second mint to the same wallet
	if err := e.Mint(user, user, 223, "q", 1, ether(200)); !errors.Is(err, ErrAlreadyOwns) {
		t.Fatalf("expected ErrAlreadyOwns, got %v", err)
	}
	if e.ItemsRemaining() != 99 {
		t.Fatalf("remaining = %d, want 99", e.ItemsRemaining())
	}
}

func TestMintRequiresRoleOnPrivateRound(t *testing.T) {
	e, _, admin := newTestEngine(t)
	outsider := addr(0x30)

	if err := e.ChangeRound(admin, 10, true); err != nil {
		t.Fatal(err)
	}
	if err := e.ChangeStage(admin, 1, big.NewInt(0)); err != nil {
		t.Fatal(err)
	}
	if err := e.AddStageRole(admin, 1, RoleWhitelisted); err != nil {
		t.Fatal(err)
	}
	if err := e.Mint(outsider, outsider, 1, "", 1, nil); !errors.Is(err, ErrMinterRole) {
		t.Fatalf("expected ErrMinterRole, got %v", err)
	}
	// public round drops the requirement
	if err := e.ChangeToPublic(admin); err != nil {
		t.Fatal(err)
	}
	if err := e.Mint(outsider, outsider, 1, "", 1, nil); err != nil {
		t.Fatalf("public mint: %v", err)
	}
}

func TestRoundExhaustion(t *testing.T) {
	e, _, admin := newTestEngine(t)
	if err := e.ChangeRound(admin, 3, false); err != nil {
		t.Fatal(err)
	}
	if err := e.ChangeStage(admin, 1, big.NewInt(0)); err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 3; i++ {
		minter := addr(byte(0x40 + i))
		if err := e.Mint(minter, minter, 100+i, "", 1, nil); err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
	}
	extra := addr(0x50)
	if err := e.Mint(extra, extra, 999, "", 1, nil); !errors.Is(err, ErrRoundExhausted) {
		t.Fatalf("expected ErrRoundExhausted, got %v", err)
	}
}

func TestDuplicateTokenID(t *testing.T) {
	e, _, admin := newTestEngine(t)
	if err := e.MintByAdmin(admin, addr(0x11), 7, "a"); err != nil {
		t.Fatal(err)
	}
	if err := e.MintByAdmin(admin, addr(0x12), 7, "b"); !errors.Is(err, ErrAlreadyMinted) {
		t.Fatalf("expected ErrAlreadyMinted, got %v", err)
	}
}

func TestRedeemVoucherFlow(t *testing.T) {
	e, _, admin := newTestEngine(t)

	signerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.UpdateRedeemSigner(admin, signerKey.PubKey().RawAddress()); err != nil {
		t.Fatal(err)
	}

	to := addr(0x21)
	mv := voucher.MintVoucher{TokenID: 55, URI: "ipfs-slot"}
	digest := voucher.Digest(e.Domain().Separator(), mv.StructHash())
	sig, err := voucher.Sign(digest, signerKey)
	if err != nil {
		t.Fatal(err)
	}

	if err := e.Redeem(to, 55, "ipfs-slot", sig); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if owner, ok := e.OwnerOf(55); !ok || owner != to {
		t.Fatalf("owner after redeem = %x ok=%v", owner, ok)
	}
	// replay
	if err := e.Redeem(addr(0x22), 55, "ipfs-slot", sig); !errors.Is(err, ErrVoucherUsed) {
		t.Fatalf("expected ErrVoucherUsed, got %v", err)
	}
	// wrong signer
	otherKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	badSig, err := voucher.Sign(voucher.Digest(e.Domain().Separator(), voucher.MintVoucher{TokenID: 56, URI: "x"}.StructHash()), otherKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Redeem(addr(0x23), 56, "x", badSig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	// tampered uri
	if err := e.Redeem(addr(0x23), 55, "other-slot", sig); !errors.Is(err, ErrInvalidSignature) && !errors.Is(err, ErrVoucherUsed) {
		t.Fatalf("expected rejection for tampered payload, got %v", err)
	}
}

func TestMintBatch(t *testing.T) {
	e, _, admin := newTestEngine(t)
	accounts := [][20]byte{addr(0x61), addr(0x62), addr(0x63)}
	if err := e.MintBatch(admin, accounts, []uint64{1, 2}); !errors.Is(err, ErrArgumentMismatch) {
		t.Fatalf("expected ErrArgumentMismatch, got %v", err)
	}
	if err := e.MintBatch(admin, accounts, []uint64{1, 2, 3}); err != nil {
		t.Fatalf("mint batch: %v", err)
	}
	for i, account := range accounts {
		if owner, ok := e.OwnerOf(uint64(i + 1)); !ok || owner != account {
			t.Fatalf("token %d owner mismatch", i+1)
		}
	}
}

func TestBurn(t *testing.T) {
	e, _, admin := newTestEngine(t)
	owner := addr(0x70)
	if err := e.MintByAdmin(admin, owner, 9, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.Burn(addr(0x71), 9); !errors.Is(err, ErrNotTokenOwner) {
		t.Fatalf("expected ErrNotTokenOwner, got %v", err)
	}
	if err := e.Burn(owner, 9); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := e.Burn(owner, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// slot freed: the wallet may mint again
	if err := e.MintByAdmin(admin, owner, 10, ""); err != nil {
		t.Fatalf("re-mint after burn: %v", err)
	}
}

func TestTransferAuthorization(t *testing.T) {
	e, _, admin := newTestEngine(t)
	owner := addr(0x80)
	operator := addr(0x81)
	stranger := addr(0x82)

	if err := e.MintByAdmin(admin, owner, 77, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.Transfer(stranger, owner, stranger, 77); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	e.SetApprovalForAll(owner, operator, true)
	if !e.IsApprovedForAll(owner, operator) {
		t.Fatal("approval not recorded")
	}
	if err := e.Transfer(operator, owner, operator, 77); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}
	if got, _ := e.OwnerOf(77); got != operator {
		t.Fatalf("owner after transfer = %x", got)
	}
}

func TestTokenURI(t *testing.T) {
	e, _, admin := newTestEngine(t)
	if err := e.UpdateBaseCID(admin, "https://ipfs.io/ipfs/"); err != nil {
		t.Fatal(err)
	}
	if err := e.MintByAdmin(admin, addr(0x90), 0, "0x0"); err != nil {
		t.Fatal(err)
	}
	uri, err := e.TokenURI(0)
	if err != nil {
		t.Fatal(err)
	}
	if uri != "https://ipfs.io/ipfs/0x0" {
		t.Fatalf("token uri = %q", uri)
	}
	if _, err := e.TokenURI(404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMintEmitsEvents(t *testing.T) {
	e, _, admin := newTestEngine(t)
	rec := &recordingEmitter{}
	e.SetEmitter(rec)
	if err := e.ChangeRound(admin, 1, false); err != nil {
		t.Fatal(err)
	}
	if err := e.Mint(addr(0x33), addr(0x33), 5, "", 0, nil); err != nil {
		t.Fatal(err)
	}
	var sawMinted, sawTransferred bool
	for _, typ := range rec.types {
		switch typ {
		case EventTypeMinted:
			sawMinted = true
		case EventTypeTransferred:
			sawTransferred = true
		}
	}
	if !sawMinted || !sawTransferred {
		t.Fatalf("events = %v", rec.types)
	}
}
