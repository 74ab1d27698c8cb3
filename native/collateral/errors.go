package collateral

import "errors"

// Every failure mode surfaces as its own sentinel so callers (validator
// and miner tooling) can branch on the exact condition. Nothing here is
// coalesced into a generic error.
var (
	ErrNilState = errors.New("collateral engine: state not configured")
	ErrNilBank  = errors.New("collateral engine: bank not configured")

	// ErrAmountZero rejects zero-valued reclaim and slash requests.
	ErrAmountZero = errors.New("collateral: amount must be positive")
	// ErrInsufficientAmount covers deposits below the minimum increase and
	// slashes that exceed the account's bonded balance.
	ErrInsufficientAmount = errors.New("collateral: insufficient amount")
	// ErrInvalidDepositMethod rejects value arriving at the vault through
	// any path other than the explicit deposit entry point. Funds moved
	// that way could not be attributed to an account.
	ErrInvalidDepositMethod = errors.New("collateral: use deposit to bond funds")

	// ErrNotTrustee guards the privileged operations (deny, slash).
	ErrNotTrustee = errors.New("collateral: caller is not the trustee")

	// ErrReclaimNotFound covers ids that never existed and ids already
	// resolved; terminal states are deletions, so both read the same.
	ErrReclaimNotFound = errors.New("collateral: reclaim request not found")
	// ErrReclaimAmountTooLarge fires when a reclaim would push the
	// account's reservation total past its bonded balance.
	ErrReclaimAmountTooLarge = errors.New("collateral: reclaim exceeds available collateral")
	// ErrReclaimAmountTooSmall fires below the minimum increase, unless
	// the request closes out the entire unreserved balance.
	ErrReclaimAmountTooSmall = errors.New("collateral: reclaim below minimum increase")

	// ErrBeforeDenyTimeout means the deny window is still open and the
	// reclaim cannot be finalized yet.
	ErrBeforeDenyTimeout = errors.New("collateral: deny window still open")
	// ErrPastDenyTimeout means the deny window has elapsed and the trustee
	// can no longer block the reclaim.
	ErrPastDenyTimeout = errors.New("collateral: deny window elapsed")

	// ErrTransferFailed wraps a failed payout; the whole operation rolls
	// back, and the caller may retry once the recipient can receive value.
	ErrTransferFailed = errors.New("collateral: transfer failed")
)
