package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"collateralvault/crypto"
	"collateralvault/native/collateral"
	collateralstate "collateralvault/state/collateral"
	"collateralvault/storage"
)

type rpcFixture struct {
	server  *httptest.Server
	store   *collateralstate.Store
	trustee crypto.Address
	poster  crypto.Address
	now     *int64
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()

	trusteeKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	posterKey, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	trustee := trusteeKey.PubKey().Address()
	poster := posterKey.PubKey().Address()

	store := collateralstate.NewStore(storage.NewMemDB())
	engine, err := collateral.NewEngine(collateral.Params{
		Trustee:               trustee.Array(),
		MinCollateralIncrease: big.NewInt(10),
		DecisionTimeout:       100,
	})
	require.NoError(t, err)
	engine.SetState(store)
	engine.SetBank(store)
	now := int64(1_000)
	engine.SetNowFunc(func() int64 { return now })

	fixture := &rpcFixture{
		store:   store,
		trustee: trustee,
		poster:  poster,
		now:     &now,
	}
	fixture.server = httptest.NewServer(NewServer(engine, "testnet-7", nil).Handler())
	t.Cleanup(fixture.server.Close)
	return fixture
}

func (f *rpcFixture) call(t *testing.T, method string, params interface{}) (*RPCResponse, int) {
	t.Helper()
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = []interface{}{params}
	}
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(f.server.URL+"/", "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return &decoded, resp.StatusCode
}

func resultField(t *testing.T, resp *RPCResponse, key string) string {
	t.Helper()
	obj, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result is not an object: %v", resp.Result)
	value, ok := obj[key]
	require.True(t, ok, "result missing %q: %v", key, obj)
	return fmt.Sprintf("%v", value)
}

func TestDepositAndQueryOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	require.NoError(t, f.store.Mint(f.poster.Array(), big.NewInt(1_000)))

	resp, status := f.call(t, "collateral_deposit", depositParams{
		Account: f.poster.String(),
		Amount:  "300",
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.Equal(t, "300", resultField(t, resp, "balance"))

	resp, status = f.call(t, "collateral_getCollateral", accountParams{Account: f.poster.String()})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "300", resultField(t, resp, "balance"))
	require.Equal(t, "0", resultField(t, resp, "reserved"))
}

func TestReclaimLifecycleOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	require.NoError(t, f.store.Mint(f.poster.Array(), big.NewInt(1_000)))

	resp, _ := f.call(t, "collateral_deposit", depositParams{Account: f.poster.String(), Amount: "100"})
	require.Nil(t, resp.Error)

	resp, _ = f.call(t, "collateral_reclaim", reclaimParams{
		Account:     f.poster.String(),
		Amount:      "40",
		URL:         "https://audit.example/reclaim/1",
		URLChecksum: "00112233445566778899aabbccddeeff",
	})
	require.Nil(t, resp.Error)
	require.Equal(t, "1", resultField(t, resp, "id"))
	require.Equal(t, "1100", resultField(t, resp, "expiresAt"))

	// Too early to finalize.
	resp, status := f.call(t, "collateral_finalizeReclaim", reclaimIDParams{ID: 1})
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeBeforeDenyTimeout, resp.Error.Code)

	*f.now = 1_101
	resp, status = f.call(t, "collateral_finalizeReclaim", reclaimIDParams{ID: 1})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.Equal(t, "false", resultField(t, resp, "voided"))

	// Resolved ids read as not found.
	resp, status = f.call(t, "collateral_getReclaim", reclaimIDParams{ID: 1})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeReclaimNotFound, resp.Error.Code)
}

func TestTrusteeGateOverRPC(t *testing.T) {
	f := newRPCFixture(t)
	require.NoError(t, f.store.Mint(f.poster.Array(), big.NewInt(1_000)))

	resp, _ := f.call(t, "collateral_deposit", depositParams{Account: f.poster.String(), Amount: "100"})
	require.Nil(t, resp.Error)

	resp, status := f.call(t, "collateral_slash", slashParams{
		Caller:  f.poster.String(),
		Account: f.poster.String(),
		Amount:  "10",
	})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeNotTrustee, resp.Error.Code)

	resp, status = f.call(t, "collateral_slash", slashParams{
		Caller:  f.trustee.String(),
		Account: f.poster.String(),
		Amount:  "10",
		URL:     "https://audit.example/slash/1",
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.Equal(t, "90", resultField(t, resp, "balance"))
}

func TestUnknownMethodRejected(t *testing.T) {
	f := newRPCFixture(t)

	resp, status := f.call(t, "collateral_transfer", depositParams{Account: f.poster.String(), Amount: "1"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestGetConfigOverRPC(t *testing.T) {
	f := newRPCFixture(t)

	resp, status := f.call(t, "collateral_getConfig", nil)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.Equal(t, f.trustee.String(), resultField(t, resp, "trustee"))
	require.Equal(t, "10", resultField(t, resp, "minCollateralIncrease"))
	require.Equal(t, "testnet-7", resultField(t, resp, "networkName"))
}

func TestInvalidChecksumRejected(t *testing.T) {
	f := newRPCFixture(t)

	resp, status := f.call(t, "collateral_reclaim", reclaimParams{
		Account:     f.poster.String(),
		Amount:      "40",
		URLChecksum: "zz",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}
