package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"collateralvault/crypto"
)

func testTrustee(t *testing.T) string {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key.PubKey().Address().String()
}

func TestLoadCreatesDefaultSkeleton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8645", cfg.RPCAddress)
	require.NotEmpty(t, cfg.MinCollateralIncrease)

	// The skeleton has no trustee and must not validate.
	require.Error(t, cfg.Validate())
}

func TestLoadAndEngineParams(t *testing.T) {
	trustee := testTrustee(t)
	path := filepath.Join(t.TempDir(), "vault.toml")
	body := `
RPCAddress = ":9999"
DataDir = "/tmp/vault"
NetworkName = "testnet-7"
Trustee = "` + trustee + `"
MinCollateralIncrease = "250"
DecisionTimeoutSeconds = 3600
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	params, err := cfg.EngineParams()
	require.NoError(t, err)
	require.Equal(t, int64(250), params.MinCollateralIncrease.Int64())
	require.Equal(t, uint64(3600), params.DecisionTimeout)

	addr, err := cfg.TrusteeAddress()
	require.NoError(t, err)
	require.Equal(t, addr.Array(), params.Trustee)
}

func TestValidateRejectsBadValues(t *testing.T) {
	trustee := testTrustee(t)

	cfg := &Config{Trustee: trustee, MinCollateralIncrease: "0", DecisionTimeoutSeconds: 10}
	require.Error(t, cfg.Validate())

	cfg = &Config{Trustee: trustee, MinCollateralIncrease: "10", DecisionTimeoutSeconds: 0}
	require.Error(t, cfg.Validate())

	cfg = &Config{Trustee: "not-an-address", MinCollateralIncrease: "10", DecisionTimeoutSeconds: 10}
	require.Error(t, cfg.Validate())
}
