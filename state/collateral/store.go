package collateralstate

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"collateralvault/native/collateral"
	"collateralvault/storage"
)

const (
	balanceKeyFormat  = "collateral/balance/%s"
	reservedKeyFormat = "collateral/reserved/%s"
	reclaimKeyFormat  = "collateral/reclaim/%020d"
	nextReclaimIDKey  = "collateral/reclaims/nextid"
	bankKeyFormat     = "bank/account/%s"
)

// Store persists the collateral ledger, the reservation totals, the
// reclaim registry and the spendable bank balances in a single key-value
// database. It implements both the engine's state interface and its
// Transferor.
type Store struct {
	db storage.Database
	mu sync.RWMutex
}

// NewStore wraps the supplied key-value database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

type storedReclaim struct {
	ID        uint64
	Account   []byte
	Amount    []byte
	ExpiresAt uint64
}

func addressKey(format string, addr [20]byte) []byte {
	return []byte(fmt.Sprintf(format, hex.EncodeToString(addr[:])))
}

func (s *Store) readAmount(key []byte) (*big.Int, error) {
	data, err := s.db.Get(key)
	if err != nil {
		// Absent keys read as zero: accounts are created implicitly.
		return big.NewInt(0), nil
	}
	var raw []byte
	if err := rlp.DecodeBytes(data, &raw); err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (s *Store) writeAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("collateral state: amount must be non-negative")
	}
	encoded, err := rlp.EncodeToBytes(amount.Bytes())
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

// CollateralGet returns the bonded balance for an account, zero when the
// account has never deposited.
func (s *Store) CollateralGet(addr [20]byte) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readAmount(addressKey(balanceKeyFormat, addr))
}

// CollateralPut overwrites the bonded balance for an account.
func (s *Store) CollateralPut(addr [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAmount(addressKey(balanceKeyFormat, addr), amount)
}

// ReservedGet returns the account's reservation total.
func (s *Store) ReservedGet(addr [20]byte) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readAmount(addressKey(reservedKeyFormat, addr))
}

// ReservedPut overwrites the account's reservation total.
func (s *Store) ReservedPut(addr [20]byte, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAmount(addressKey(reservedKeyFormat, addr), amount)
}

// ReclaimGet loads a pending reclaim request by id.
func (s *Store) ReclaimGet(id uint64) (*collateral.ReclaimRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := []byte(fmt.Sprintf(reclaimKeyFormat, id))
	ok, err := s.db.Has(key)
	if err != nil || !ok {
		return nil, false, err
	}
	data, err := s.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	var stored storedReclaim
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, false, err
	}
	req := &collateral.ReclaimRequest{
		ID:        stored.ID,
		Amount:    new(big.Int).SetBytes(stored.Amount),
		ExpiresAt: stored.ExpiresAt,
	}
	copy(req.Account[:], stored.Account)
	return req, true, nil
}

// ReclaimPut persists a pending reclaim request.
func (s *Store) ReclaimPut(req *collateral.ReclaimRequest) error {
	sanitized, err := collateral.SanitizeReclaimRequest(req)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := rlp.EncodeToBytes(storedReclaim{
		ID:        sanitized.ID,
		Account:   append([]byte(nil), sanitized.Account[:]...),
		Amount:    sanitized.Amount.Bytes(),
		ExpiresAt: sanitized.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return s.db.Put([]byte(fmt.Sprintf(reclaimKeyFormat, sanitized.ID)), encoded)
}

// ReclaimDelete removes a resolved reclaim request. Deleting an absent id
// is a no-op; the id counter never rewinds.
func (s *Store) ReclaimDelete(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete([]byte(fmt.Sprintf(reclaimKeyFormat, id)))
}

// NextReclaimID allocates the next request identifier. Ids start at 1 and
// survive restarts; deleted requests never free their ids.
func (s *Store) NextReclaimID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last uint64
	if data, err := s.db.Get([]byte(nextReclaimIDKey)); err == nil {
		if err := rlp.DecodeBytes(data, &last); err != nil {
			return 0, err
		}
	}
	next := last + 1
	encoded, err := rlp.EncodeToBytes(next)
	if err != nil {
		return 0, err
	}
	if err := s.db.Put([]byte(nextReclaimIDKey), encoded); err != nil {
		return 0, err
	}
	return next, nil
}

// --- Bank (the external value-transfer primitive) ---

// BankBalance returns the spendable funds held by an account outside the
// collateral ledger.
func (s *Store) BankBalance(addr [20]byte) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readAmount(addressKey(bankKeyFormat, addr))
}

// Mint credits spendable funds to an account. Genesis and test funding
// only; the vault itself is never a valid mint target.
func (s *Store) Mint(addr [20]byte, amount *big.Int) error {
	if addr == collateral.VaultAddress {
		return collateral.ErrInvalidDepositMethod
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("collateral state: mint amount must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := addressKey(bankKeyFormat, addr)
	balance, err := s.readAmount(key)
	if err != nil {
		return err
	}
	return s.writeAmount(key, new(big.Int).Add(balance, amount))
}

func (s *Store) move(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("collateral state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fromKey := addressKey(bankKeyFormat, from)
	toKey := addressKey(bankKeyFormat, to)
	fromBal, err := s.readAmount(fromKey)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("collateral state: insufficient funds for %s", hex.EncodeToString(from[:]))
	}
	toBal, err := s.readAmount(toKey)
	if err != nil {
		return err
	}
	if err := s.writeAmount(fromKey, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return s.writeAmount(toKey, new(big.Int).Add(toBal, amount))
}

// Transfer moves spendable funds between accounts. The vault is not a
// legal destination here: value bonded any way other than the explicit
// deposit entry point could not be attributed to an account.
func (s *Store) Transfer(from, to [20]byte, amount *big.Int) error {
	if to == collateral.VaultAddress {
		return collateral.ErrInvalidDepositMethod
	}
	return s.move(from, to, amount)
}

// Deposit is the single path that credits the vault, reserved for the
// engine's deposit operation.
func (s *Store) Deposit(from [20]byte, amount *big.Int) error {
	return s.move(from, collateral.VaultAddress, amount)
}
