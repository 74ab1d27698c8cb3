package collateral

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"collateralvault/core/types"
	"collateralvault/crypto"
)

const (
	EventTypeDeposited      = "collateral.deposited"
	EventTypeReclaimStarted = "collateral.reclaimStarted"
	EventTypeReclaimed      = "collateral.reclaimed"
	EventTypeDenied         = "collateral.denied"
	EventTypeSlashed        = "collateral.slashed"
)

// NewDepositedEvent returns the canonical payload for a completed deposit.
func NewDepositedEvent(account [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeDeposited, Attributes: map[string]string{
		"account": bech32Addr(account),
		"amount":  formatAmount(amount),
	}}
}

// NewReclaimStartedEvent returns the canonical payload emitted when a
// reclaim request is opened, carrying the computed expiry and the
// justification reference.
func NewReclaimStartedEvent(r *ReclaimRequest, j Justification) *types.Event {
	if r == nil {
		return &types.Event{Type: EventTypeReclaimStarted, Attributes: map[string]string{}}
	}
	attrs := map[string]string{
		"id":        strconv.FormatUint(r.ID, 10),
		"account":   bech32Addr(r.Account),
		"amount":    formatAmount(r.Amount),
		"expiresAt": strconv.FormatUint(r.ExpiresAt, 10),
	}
	addJustification(attrs, j)
	return &types.Event{Type: EventTypeReclaimStarted, Attributes: attrs}
}

// NewReclaimedEvent returns the canonical payload for a finalized reclaim
// that paid out.
func NewReclaimedEvent(r *ReclaimRequest) *types.Event {
	if r == nil {
		return &types.Event{Type: EventTypeReclaimed, Attributes: map[string]string{}}
	}
	return &types.Event{Type: EventTypeReclaimed, Attributes: map[string]string{
		"id":      strconv.FormatUint(r.ID, 10),
		"account": bech32Addr(r.Account),
		"amount":  formatAmount(r.Amount),
	}}
}

// NewDeniedEvent returns the canonical payload for a trustee denial.
func NewDeniedEvent(r *ReclaimRequest, j Justification) *types.Event {
	if r == nil {
		return &types.Event{Type: EventTypeDenied, Attributes: map[string]string{}}
	}
	attrs := map[string]string{
		"id":      strconv.FormatUint(r.ID, 10),
		"account": bech32Addr(r.Account),
		"amount":  formatAmount(r.Amount),
	}
	addJustification(attrs, j)
	return &types.Event{Type: EventTypeDenied, Attributes: attrs}
}

// NewSlashedEvent returns the canonical payload for a slash. The amount is
// the value destroyed, not a payout.
func NewSlashedEvent(account [20]byte, amount *big.Int, j Justification) *types.Event {
	attrs := map[string]string{
		"account": bech32Addr(account),
		"amount":  formatAmount(amount),
	}
	addJustification(attrs, j)
	return &types.Event{Type: EventTypeSlashed, Attributes: attrs}
}

func addJustification(attrs map[string]string, j Justification) {
	j = j.Sanitize()
	if j.URL != "" {
		attrs["url"] = j.URL
	}
	if j.Checksum != ([16]byte{}) {
		attrs["urlChecksum"] = hex.EncodeToString(j.Checksum[:])
	}
}

func bech32Addr(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.VaultPrefix, addr[:]).String()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
