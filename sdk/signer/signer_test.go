package signer

import (
	"math/big"
	"testing"

	"towerledger/crypto"
	"towerledger/native/mintgate"
	"towerledger/native/staking"
	"towerledger/native/voucher"
	"towerledger/storage"
)

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func newIssuer(t *testing.T, domain voucher.Domain) *Issuer {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuer, err := New(key, domain, 1)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func TestIssuerNonceAssignment(t *testing.T) {
	issuer := newIssuer(t, voucher.Domain{Name: voucher.StakingDomainName, Version: voucher.SignatureVersion, ChainID: 777})

	first, err := issuer.IssueStake(addr(0x01), []uint64{1}, voucher.RentalTerms{})
	if err != nil {
		t.Fatalf("issue stake: %v", err)
	}
	second, err := issuer.IssueClaimAll(addr(0x01), big.NewInt(10))
	if err != nil {
		t.Fatalf("issue claim all: %v", err)
	}
	if first.Voucher.Nonce != 1 || second.Voucher.Nonce != 2 {
		t.Fatalf("nonces must increase: got %d then %d", first.Voucher.Nonce, second.Voucher.Nonce)
	}
	if first.OrderID == "" || first.OrderID == second.OrderID {
		t.Fatal("order ids must be unique and non-empty")
	}
}

func TestIssuedVouchersVerifyAgainstLedger(t *testing.T) {
	admin := addr(0xAA)
	pool := addr(0xE1)
	owner := addr(0x01)

	gate := mintgate.NewEngine(admin, addr(0xBB), 777)
	stk, err := staking.NewEngine(admin, pool, addr(0xF0), addr(0x02), gate, 777, 1000)
	if err != nil {
		t.Fatalf("staking engine: %v", err)
	}
	stk.SetNonceStore(staking.NewNonceLedger(storage.NewMemDB()))

	issuer := newIssuer(t, stk.Domain())
	if err := stk.UpdateServiceSigner(admin, issuer.Address()); err != nil {
		t.Fatalf("install issuer key: %v", err)
	}

	if err := gate.MintByAdmin(admin, owner, 42, "item/42"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	gate.SetApprovalForAll(owner, pool, true)

	signed, err := issuer.IssueStake(owner, []uint64{42}, voucher.RentalTerms{Rentable: true})
	if err != nil {
		t.Fatalf("issue stake: %v", err)
	}
	if err := stk.Stake(owner, signed.Voucher, signed.Signature); err != nil {
		t.Fatalf("stake with issued voucher: %v", err)
	}
	rec, ok := stk.GetStakeInfo(42)
	if !ok || !rec.Rental.Rentable {
		t.Fatalf("stake record: ok=%v rec=%+v", ok, rec)
	}

	unstake, err := issuer.IssueUnstake(owner, []uint64{42}, nil)
	if err != nil {
		t.Fatalf("issue unstake: %v", err)
	}
	if err := stk.Unstake(owner, unstake.Voucher, unstake.Signature, owner); err != nil {
		t.Fatalf("unstake with issued voucher: %v", err)
	}
}

func TestIssuedMintVoucherVerifiesAgainstGate(t *testing.T) {
	admin := addr(0xAA)
	gate := mintgate.NewEngine(admin, addr(0xBB), 777)

	issuer := newIssuer(t, gate.Domain())
	if err := gate.UpdateRedeemSigner(admin, issuer.Address()); err != nil {
		t.Fatalf("install redeem signer: %v", err)
	}

	signed, err := issuer.IssueMint(7, "item/7")
	if err != nil {
		t.Fatalf("issue mint: %v", err)
	}
	if err := gate.Redeem(addr(0x01), signed.Voucher.TokenID, signed.Voucher.URI, signed.Signature); err != nil {
		t.Fatalf("redeem issued voucher: %v", err)
	}
}

func TestNewRejectsNilKey(t *testing.T) {
	if _, err := New(nil, voucher.Domain{}, 0); err != ErrNilKey {
		t.Fatalf("expected ErrNilKey, got %v", err)
	}
}
