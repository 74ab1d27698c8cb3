package collateral

import (
	"fmt"
	"math/big"
	"strings"
)

// ReclaimRequest is a pending withdrawal awaiting either trustee denial or
// permissionless finalization. While the request exists its amount counts
// against the owner's reservation total. Terminal states are represented
// by deleting the record, not by a status flag.
type ReclaimRequest struct {
	ID        uint64
	Account   [20]byte
	Amount    *big.Int
	ExpiresAt uint64
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (r *ReclaimRequest) Clone() *ReclaimRequest {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeReclaimRequest validates a request record before it is persisted
// or returned. The function does not mutate the original value.
func SanitizeReclaimRequest(r *ReclaimRequest) (*ReclaimRequest, error) {
	if r == nil {
		return nil, fmt.Errorf("nil reclaim request")
	}
	if r.ID == 0 {
		return nil, fmt.Errorf("reclaim request id must be positive")
	}
	clone := r.Clone()
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("reclaim request amount must be positive")
	}
	return clone, nil
}

// Justification is the opaque audit reference attached to reclaim
// creation, denial and slashing: a URL plus the MD5 checksum of its
// content. The core never fetches or validates it.
type Justification struct {
	URL      string
	Checksum [16]byte
}

// Sanitize trims the URL. An empty justification is legal; the reference
// only matters to off-chain audit tooling.
func (j Justification) Sanitize() Justification {
	j.URL = strings.TrimSpace(j.URL)
	return j
}

// Params holds the immutable configuration fixed at engine construction:
// the trustee identity, the minimum deposit/reclaim increment and the
// decision timeout applied to new reclaim requests.
type Params struct {
	Trustee               [20]byte
	MinCollateralIncrease *big.Int
	DecisionTimeout       uint64
}

// Clone returns a deep copy of the parameter set.
func (p Params) Clone() Params {
	clone := p
	if p.MinCollateralIncrease != nil {
		clone.MinCollateralIncrease = new(big.Int).Set(p.MinCollateralIncrease)
	} else {
		clone.MinCollateralIncrease = big.NewInt(0)
	}
	return clone
}

// Validate rejects parameter sets that would leave the vault without a
// trustee or without a usable increment floor.
func (p Params) Validate() error {
	if p.Trustee == ([20]byte{}) {
		return fmt.Errorf("collateral: trustee address required")
	}
	if p.MinCollateralIncrease == nil || p.MinCollateralIncrease.Sign() <= 0 {
		return fmt.Errorf("collateral: minimum collateral increase must be positive")
	}
	if p.DecisionTimeout == 0 {
		return fmt.Errorf("collateral: decision timeout must be positive")
	}
	return nil
}
