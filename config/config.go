package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"collateralvault/crypto"
	"collateralvault/native/collateral"
)

// Config is the daemon configuration, immutable once loaded. Trustee,
// minimum increase and decision timeout fix the engine parameters for the
// lifetime of the vault; NetworkName is an opaque tag for off-chain
// discovery and carries no semantics inside the core.
type Config struct {
	RPCAddress             string `toml:"RPCAddress"`
	DataDir                string `toml:"DataDir"`
	NetworkName            string `toml:"NetworkName"`
	Trustee                string `toml:"Trustee"`
	MinCollateralIncrease  string `toml:"MinCollateralIncrease"`
	DecisionTimeoutSeconds uint64 `toml:"DecisionTimeoutSeconds"`
	LogFile                string `toml:"LogFile"`
	LogEnv                 string `toml:"LogEnv"`
}

// Load loads the configuration from the given path. A missing file is
// replaced with a default skeleton; the skeleton does not pass Validate
// until a trustee is filled in.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "collateral-local"
	}
	if strings.TrimSpace(cfg.MinCollateralIncrease) == "" {
		cfg.MinCollateralIncrease = "1000000000000000000"
	}
	if cfg.DecisionTimeoutSeconds == 0 {
		cfg.DecisionTimeoutSeconds = 7 * 24 * 60 * 60
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Trustee) == "" {
		return fmt.Errorf("config: Trustee is required")
	}
	if _, err := c.TrusteeAddress(); err != nil {
		return err
	}
	min, ok := new(big.Int).SetString(strings.TrimSpace(c.MinCollateralIncrease), 10)
	if !ok || min.Sign() <= 0 {
		return fmt.Errorf("config: MinCollateralIncrease must be a positive decimal integer")
	}
	if c.DecisionTimeoutSeconds == 0 {
		return fmt.Errorf("config: DecisionTimeoutSeconds must be positive")
	}
	return nil
}

// TrusteeAddress decodes the configured trustee identity.
func (c *Config) TrusteeAddress() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.Trustee))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: invalid Trustee address: %w", err)
	}
	if addr.Prefix() != crypto.VaultPrefix {
		return crypto.Address{}, fmt.Errorf("config: Trustee must use the %q prefix", crypto.VaultPrefix)
	}
	return addr, nil
}

// EngineParams converts the validated configuration into the engine's
// immutable parameter set.
func (c *Config) EngineParams() (collateral.Params, error) {
	if err := c.Validate(); err != nil {
		return collateral.Params{}, err
	}
	trustee, err := c.TrusteeAddress()
	if err != nil {
		return collateral.Params{}, err
	}
	min, _ := new(big.Int).SetString(strings.TrimSpace(c.MinCollateralIncrease), 10)
	return collateral.Params{
		Trustee:               trustee.Array(),
		MinCollateralIncrease: min,
		DecisionTimeout:       c.DecisionTimeoutSeconds,
	}, nil
}
