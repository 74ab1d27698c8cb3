package collateralstate

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"collateralvault/native/collateral"
	"collateralvault/storage"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestAmountsReadZeroForUnknownAccounts(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	balance, err := store.CollateralGet(testAddr(0x11))
	require.NoError(t, err)
	require.Zero(t, balance.Sign())

	reserved, err := store.ReservedGet(testAddr(0x11))
	require.NoError(t, err)
	require.Zero(t, reserved.Sign())
}

func TestCollateralRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	addr := testAddr(0x22)

	require.NoError(t, store.CollateralPut(addr, big.NewInt(1234)))
	got, err := store.CollateralGet(addr)
	require.NoError(t, err)
	require.Equal(t, int64(1234), got.Int64())

	require.Error(t, store.CollateralPut(addr, big.NewInt(-1)))
}

func TestReclaimLifecycle(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	id, err := store.NextReclaimID()
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	req := &collateral.ReclaimRequest{
		ID:        id,
		Account:   testAddr(0x33),
		Amount:    big.NewInt(500),
		ExpiresAt: 2_000,
	}
	require.NoError(t, store.ReclaimPut(req))

	loaded, ok, err := store.ReclaimGet(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, req.ID, loaded.ID)
	require.Equal(t, req.Account, loaded.Account)
	require.Equal(t, int64(500), loaded.Amount.Int64())
	require.Equal(t, uint64(2_000), loaded.ExpiresAt)

	require.NoError(t, store.ReclaimDelete(id))
	_, ok, err = store.ReclaimGet(id)
	require.NoError(t, err)
	require.False(t, ok)

	// Ids keep counting past deleted requests.
	next, err := store.NextReclaimID()
	require.NoError(t, err)
	require.Equal(t, uint64(2), next)
}

func TestReclaimPutRejectsInvalidRecords(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	require.Error(t, store.ReclaimPut(nil))
	require.Error(t, store.ReclaimPut(&collateral.ReclaimRequest{ID: 0, Amount: big.NewInt(1)}))
	require.Error(t, store.ReclaimPut(&collateral.ReclaimRequest{ID: 1, Amount: big.NewInt(0)}))
}

func TestBankGuardsVaultDestination(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	poster := testAddr(0x44)

	require.NoError(t, store.Mint(poster, big.NewInt(1_000)))
	require.ErrorIs(t, store.Mint(collateral.VaultAddress, big.NewInt(1)), collateral.ErrInvalidDepositMethod)

	err := store.Transfer(poster, collateral.VaultAddress, big.NewInt(100))
	require.ErrorIs(t, err, collateral.ErrInvalidDepositMethod)

	require.NoError(t, store.Deposit(poster, big.NewInt(100)))
	vault, err := store.BankBalance(collateral.VaultAddress)
	require.NoError(t, err)
	require.Equal(t, int64(100), vault.Int64())

	remaining, err := store.BankBalance(poster)
	require.NoError(t, err)
	require.Equal(t, int64(900), remaining.Int64())
}

func TestBankTransferInsufficientFunds(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	require.Error(t, store.Transfer(testAddr(0x55), testAddr(0x66), big.NewInt(1)))
}

func TestStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	store1 := NewStore(db1)

	addr := testAddr(0x77)
	require.NoError(t, store1.CollateralPut(addr, big.NewInt(42)))
	require.NoError(t, store1.ReservedPut(addr, big.NewInt(7)))
	id, err := store1.NextReclaimID()
	require.NoError(t, err)
	require.NoError(t, store1.ReclaimPut(&collateral.ReclaimRequest{
		ID: id, Account: addr, Amount: big.NewInt(7), ExpiresAt: 3_000,
	}))
	db1.Close()

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()
	store2 := NewStore(db2)

	balance, err := store2.CollateralGet(addr)
	require.NoError(t, err)
	require.Equal(t, int64(42), balance.Int64())

	req, ok, err := store2.ReclaimGet(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), req.Amount.Int64())

	next, err := store2.NextReclaimID()
	require.NoError(t, err)
	require.Equal(t, id+1, next)
}

func TestEngineRunsOnDurableStore(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	trustee := testAddr(0x01)
	poster := testAddr(0x02)

	engine, err := collateral.NewEngine(collateral.Params{
		Trustee:               trustee,
		MinCollateralIncrease: big.NewInt(1),
		DecisionTimeout:       100,
	})
	require.NoError(t, err)
	engine.SetState(store)
	engine.SetBank(store)
	now := int64(1_000)
	engine.SetNowFunc(func() int64 { return now })

	require.NoError(t, store.Mint(poster, big.NewInt(10)))
	require.NoError(t, engine.Deposit(poster, big.NewInt(4)))

	id, err := engine.ReclaimCollateral(poster, big.NewInt(2), collateral.Justification{})
	require.NoError(t, err)

	now = 1_101
	voided, err := engine.FinalizeReclaim(id)
	require.NoError(t, err)
	require.False(t, voided)

	balance, err := engine.Collateral(poster)
	require.NoError(t, err)
	require.Equal(t, int64(2), balance.Int64())

	spendable, err := store.BankBalance(poster)
	require.NoError(t, err)
	require.Equal(t, int64(8), spendable.Int64())
}
