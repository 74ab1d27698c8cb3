package collateral

import (
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"collateralvault/core/events"
	"collateralvault/core/types"
)

// Module accounts. Neither address has a signing key: the vault holds all
// bonded collateral, the burn sink receives slashed value so the trustee
// never profits from a slash.
var (
	VaultAddress = moduleAddress("collateralvault/module/vault")
	BurnAddress  = moduleAddress("collateralvault/module/burn")
)

func moduleAddress(label string) [20]byte {
	hash := ethcrypto.Keccak256([]byte(label))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// engineState is the persistence boundary for the balance ledger and the
// reclaim registry. The engine never touches storage directly so tests can
// substitute a map-backed implementation.
type engineState interface {
	CollateralGet(addr [20]byte) (*big.Int, error)
	CollateralPut(addr [20]byte, amount *big.Int) error
	ReservedGet(addr [20]byte) (*big.Int, error)
	ReservedPut(addr [20]byte, amount *big.Int) error
	ReclaimGet(id uint64) (*ReclaimRequest, bool, error)
	ReclaimPut(req *ReclaimRequest) error
	ReclaimDelete(id uint64) error
	NextReclaimID() (uint64, error)
}

// Transferor is the external value-movement primitive: atomic, synchronous
// and failable. Transfer must reject the vault as a destination so the
// explicit deposit path stays the only way to bond funds; Deposit is that
// path.
type Transferor interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	Deposit(from [20]byte, amount *big.Int) error
}

type collateralEvent struct {
	evt *types.Event
}

func (e collateralEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e collateralEvent) Event() *types.Event { return e.evt }

// Engine wires the collateral ledger and reclaim registry to external
// state, the bank and an event emitter. All five public operations either
// commit every effect or none; the only point where control leaves the
// engine is the bank transfer, which always runs after the registry and
// ledger mutations relevant to double-spends have been applied.
type Engine struct {
	state   engineState
	bank    Transferor
	emitter events.Emitter
	params  Params
	nowFn   func() int64
}

// NewEngine creates an engine with the immutable parameter set. The
// emitter defaults to a no-op implementation.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params:  params.Clone(),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBank configures the value-transfer backend used by the engine.
func (e *Engine) SetBank(bank Transferor) { e.bank = bank }

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Params returns a copy of the immutable engine configuration.
func (e *Engine) Params() Params { return e.params.Clone() }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(collateralEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.bank == nil {
		return ErrNilBank
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) balance(addr [20]byte) (*big.Int, error) {
	v, err := e.state.CollateralGet(addr)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(v), nil
}

func (e *Engine) reserved(addr [20]byte) (*big.Int, error) {
	v, err := e.state.ReservedGet(addr)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(v), nil
}

// Deposit bonds amount for the account. The value is pulled from the
// account's spendable funds before the ledger is credited, so a failed
// transfer leaves no trace.
func (e *Engine) Deposit(account [20]byte, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Cmp(e.params.MinCollateralIncrease) < 0 {
		return ErrInsufficientAmount
	}
	if err := e.bank.Deposit(account, amt); err != nil {
		return err
	}
	balance, err := e.balance(account)
	if err != nil {
		return err
	}
	if err := e.state.CollateralPut(account, new(big.Int).Add(balance, amt)); err != nil {
		return err
	}
	e.emit(NewDepositedEvent(account, amt))
	return nil
}

// ReclaimCollateral opens a timed withdrawal request and reserves the
// amount against the account. Multiple live requests per account are
// allowed; the aggregate reservation may never exceed the bonded balance
// at creation time.
func (e *Engine) ReclaimCollateral(account [20]byte, amount *big.Int, justification Justification) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return 0, ErrAmountZero
	}
	balance, err := e.balance(account)
	if err != nil {
		return 0, err
	}
	reserved, err := e.reserved(account)
	if err != nil {
		return 0, err
	}
	headroom := new(big.Int).Sub(balance, reserved)
	if amt.Cmp(headroom) > 0 {
		return 0, ErrReclaimAmountTooLarge
	}
	// Close-out exception: withdrawing the entire unreserved balance is
	// always allowed, even below the minimum increase.
	if amt.Cmp(e.params.MinCollateralIncrease) < 0 && amt.Cmp(headroom) != 0 {
		return 0, ErrReclaimAmountTooSmall
	}
	id, err := e.state.NextReclaimID()
	if err != nil {
		return 0, err
	}
	req := &ReclaimRequest{
		ID:        id,
		Account:   account,
		Amount:    amt,
		ExpiresAt: uint64(e.now()) + e.params.DecisionTimeout,
	}
	if err := e.state.ReclaimPut(req); err != nil {
		return 0, err
	}
	if err := e.state.ReservedPut(account, new(big.Int).Add(reserved, amt)); err != nil {
		return 0, err
	}
	e.emit(NewReclaimStartedEvent(req, justification.Sanitize()))
	return id, nil
}

// FinalizeReclaim resolves an expired request. Anyone may call it, so a
// disinterested third party can unblock funds for an offline poster. The
// request record and reservation are consumed before any value moves; if a
// slash has since reduced the balance below the reserved amount the
// request is voided without a payout and voided=true is returned.
func (e *Engine) FinalizeReclaim(id uint64) (voided bool, err error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	req, ok, err := e.state.ReclaimGet(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrReclaimNotFound
	}
	if e.now() <= int64(req.ExpiresAt) {
		return false, ErrBeforeDenyTimeout
	}
	reservedBefore, err := e.reserved(req.Account)
	if err != nil {
		return false, err
	}
	balanceBefore, err := e.balance(req.Account)
	if err != nil {
		return false, err
	}
	// Consume the request and release the reservation unconditionally,
	// before any balance check or transfer. A re-entrant call through the
	// payout path observes the request as already resolved.
	if err := e.state.ReclaimDelete(id); err != nil {
		return false, err
	}
	released := new(big.Int).Sub(reservedBefore, req.Amount)
	if released.Sign() < 0 {
		released = big.NewInt(0)
	}
	if err := e.state.ReservedPut(req.Account, released); err != nil {
		return false, err
	}
	if balanceBefore.Cmp(req.Amount) < 0 {
		// The stake backing this request was slashed after the
		// reservation was made. The poster is owed nothing, but the
		// request no longer blocks fresh reclaims.
		return true, nil
	}
	if err := e.state.CollateralPut(req.Account, new(big.Int).Sub(balanceBefore, req.Amount)); err != nil {
		return false, err
	}
	if err := e.bank.Transfer(VaultAddress, req.Account, req.Amount); err != nil {
		// Undo every mutation of this call; the ledger must never record
		// a withdrawal that did not deliver value.
		if restoreErr := e.state.CollateralPut(req.Account, balanceBefore); restoreErr != nil {
			return false, restoreErr
		}
		if restoreErr := e.state.ReservedPut(req.Account, reservedBefore); restoreErr != nil {
			return false, restoreErr
		}
		if restoreErr := e.state.ReclaimPut(req); restoreErr != nil {
			return false, restoreErr
		}
		return false, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(NewReclaimedEvent(req))
	return false, nil
}

// DenyReclaimRequest lets the trustee block a pending withdrawal while its
// deny window is open. The reservation is released immediately; no value
// moves, and the poster may reclaim again at once.
func (e *Engine) DenyReclaimRequest(caller [20]byte, id uint64, justification Justification) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.params.Trustee {
		return ErrNotTrustee
	}
	req, ok, err := e.state.ReclaimGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrReclaimNotFound
	}
	if e.now() > int64(req.ExpiresAt) {
		return ErrPastDenyTimeout
	}
	if err := e.state.ReclaimDelete(id); err != nil {
		return err
	}
	reserved, err := e.reserved(req.Account)
	if err != nil {
		return err
	}
	released := new(big.Int).Sub(reserved, req.Amount)
	if released.Sign() < 0 {
		released = big.NewInt(0)
	}
	if err := e.state.ReservedPut(req.Account, released); err != nil {
		return err
	}
	e.emit(NewDeniedEvent(req, justification.Sanitize()))
	return nil
}

// Slash lets the trustee seize bonded collateral. The seized value is
// moved to the burn sink and destroyed. Reservations are deliberately left
// untouched: when a slash undercuts a pending reclaim, FinalizeReclaim
// voids that request later instead.
func (e *Engine) Slash(caller, account [20]byte, amount *big.Int, justification Justification) error {
	if err := e.ready(); err != nil {
		return err
	}
	if caller != e.params.Trustee {
		return ErrNotTrustee
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrAmountZero
	}
	balance, err := e.balance(account)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return ErrInsufficientAmount
	}
	if err := e.state.CollateralPut(account, new(big.Int).Sub(balance, amt)); err != nil {
		return err
	}
	if err := e.bank.Transfer(VaultAddress, BurnAddress, amt); err != nil {
		if restoreErr := e.state.CollateralPut(account, balance); restoreErr != nil {
			return restoreErr
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(NewSlashedEvent(account, amt, justification.Sanitize()))
	return nil
}

// Collateral returns the account's bonded balance. Accounts are created
// implicitly on first deposit; unknown accounts read as zero.
func (e *Engine) Collateral(account [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.balance(account)
}

// ReservedCollateral returns the sum of amounts across the account's live
// reclaim requests.
func (e *Engine) ReservedCollateral(account [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.reserved(account)
}

// Reclaim returns the stored request by id, if it is still pending.
func (e *Engine) Reclaim(id uint64) (*ReclaimRequest, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	req, ok, err := e.state.ReclaimGet(id)
	if err != nil || !ok {
		return nil, ok, err
	}
	return req.Clone(), true, nil
}
