package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"towerledger/crypto"
)

// DefaultMaxTokensInStake seeds generated configurations. A zero cap is
// honored as configured and blocks all staking.
const DefaultMaxTokensInStake = 10000

// Config is the towerledgerd deployment configuration.
type Config struct {
	ListenAddress    string `toml:"ListenAddress"`
	DataDir          string `toml:"DataDir"`
	NetworkName      string `toml:"NetworkName"`
	ChainID          uint64 `toml:"ChainID"`
	Environment      string `toml:"Environment"`
	AdminAddress     string `toml:"AdminAddress"`
	PayeeAddress     string `toml:"PayeeAddress"`
	FeeAddress       string `toml:"FeeAddress"`
	StakingPool      string `toml:"StakingPool"`
	RewardToken      string `toml:"RewardToken"`
	ProxyAddress     string `toml:"ProxyAddress"`
	ServiceSigner    string `toml:"ServiceSigner"`
	MaxTokensInStake uint64 `toml:"MaxTokensInStake"`
}

// Load reads the configuration at path, creating a commented default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "towerledger-local"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 1
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./towerledger-data"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every configured account decodes to a ledger address.
func (c *Config) Validate() error {
	required := map[string]string{
		"AdminAddress":  c.AdminAddress,
		"StakingPool":   c.StakingPool,
		"RewardToken":   c.RewardToken,
		"ProxyAddress":  c.ProxyAddress,
		"ServiceSigner": c.ServiceSigner,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config: %s is required", field)
		}
		if _, err := DecodeAccount(value); err != nil {
			return fmt.Errorf("config: %s: %w", field, err)
		}
	}
	optional := map[string]string{
		"PayeeAddress": c.PayeeAddress,
		"FeeAddress":   c.FeeAddress,
	}
	for field, value := range optional {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := DecodeAccount(value); err != nil {
			return fmt.Errorf("config: %s: %w", field, err)
		}
	}
	return nil
}

// DecodeAccount parses a bech32 ledger address into its raw 20-byte form.
func DecodeAccount(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func createDefault(path string) (*Config, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	// A generated placeholder admin key keeps a fresh node bootable; operators
	// replace every address before exposing the service.
	admin, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	pool, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	proxy, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ListenAddress:    ":8545",
		DataDir:          "./towerledger-data",
		NetworkName:      "towerledger-local",
		ChainID:          1,
		AdminAddress:     admin.PubKey().Address().String(),
		StakingPool:      pool.PubKey().Address().String(),
		RewardToken:      pool.PubKey().Address().String(),
		ProxyAddress:     proxy.PubKey().Address().String(),
		ServiceSigner:    admin.PubKey().Address().String(),
		MaxTokensInStake: DefaultMaxTokensInStake,
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
