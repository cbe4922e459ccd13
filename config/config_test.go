package config

import (
	"os"
	"path/filepath"
	"testing"

	"towerledger/crypto"
)

func testAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key.PubKey().Address().String()
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":8545" || cfg.ChainID != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxTokensInStake != DefaultMaxTokensInStake {
		t.Fatalf("unexpected stake cap default: %d", cfg.MaxTokensInStake)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
	// The generated file must round-trip through Load.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AdminAddress != cfg.AdminAddress {
		t.Fatal("reloaded config does not match generated one")
	}
}

func TestLoadValidatesAddresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
ListenAddress = ":9000"
ChainID = 777
AdminAddress = "not-an-address"
StakingPool = "` + testAddress(t) + `"
RewardToken = "` + testAddress(t) + `"
ProxyAddress = "` + testAddress(t) + `"
ServiceSigner = "` + testAddress(t) + `"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for bad admin address")
	}
}

func TestLoadAppliesFallbacks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
AdminAddress = "` + testAddress(t) + `"
StakingPool = "` + testAddress(t) + `"
RewardToken = "` + testAddress(t) + `"
ProxyAddress = "` + testAddress(t) + `"
ServiceSigner = "` + testAddress(t) + `"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NetworkName != "towerledger-local" || cfg.ChainID != 1 || cfg.DataDir != "./towerledger-data" {
		t.Fatalf("fallbacks not applied: %+v", cfg)
	}
}

func TestDecodeAccount(t *testing.T) {
	addr := testAddress(t)
	raw, err := DecodeAccount(addr)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw == ([20]byte{}) {
		t.Fatal("decoded account must not be zero")
	}
	if _, err := DecodeAccount("garbage"); err == nil {
		t.Fatal("expected error for invalid account")
	}
}
