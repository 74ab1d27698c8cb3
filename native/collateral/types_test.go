package collateral

import (
	"math/big"
	"testing"
)

func TestSanitizeReclaimRequest(t *testing.T) {
	if _, err := SanitizeReclaimRequest(nil); err == nil {
		t.Fatal("nil request accepted")
	}
	if _, err := SanitizeReclaimRequest(&ReclaimRequest{ID: 0, Amount: big.NewInt(1)}); err == nil {
		t.Fatal("zero id accepted")
	}
	if _, err := SanitizeReclaimRequest(&ReclaimRequest{ID: 1, Amount: big.NewInt(0)}); err == nil {
		t.Fatal("zero amount accepted")
	}

	req := &ReclaimRequest{ID: 7, Account: newTestAddress(0xAB), Amount: big.NewInt(42), ExpiresAt: 99}
	clone, err := SanitizeReclaimRequest(req)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	clone.Amount.SetInt64(1)
	if req.Amount.Int64() != 42 {
		t.Fatal("sanitize returned a shallow copy")
	}
}

func TestParamsValidate(t *testing.T) {
	valid := Params{Trustee: newTestAddress(0x01), MinCollateralIncrease: big.NewInt(1), DecisionTimeout: 60}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	missingTrustee := valid
	missingTrustee.Trustee = [20]byte{}
	if err := missingTrustee.Validate(); err == nil {
		t.Fatal("zero trustee accepted")
	}

	zeroMin := valid
	zeroMin.MinCollateralIncrease = big.NewInt(0)
	if err := zeroMin.Validate(); err == nil {
		t.Fatal("zero minimum increase accepted")
	}

	zeroTimeout := valid
	zeroTimeout.DecisionTimeout = 0
	if err := zeroTimeout.Validate(); err == nil {
		t.Fatal("zero decision timeout accepted")
	}
}

func TestJustificationSanitizeTrimsURL(t *testing.T) {
	j := Justification{URL: "  https://audit.example/doc  "}
	if got := j.Sanitize().URL; got != "https://audit.example/doc" {
		t.Fatalf("sanitized url = %q", got)
	}
}

func TestModuleAddressesDistinct(t *testing.T) {
	if VaultAddress == BurnAddress {
		t.Fatal("vault and burn sink share an address")
	}
	if VaultAddress == ([20]byte{}) || BurnAddress == ([20]byte{}) {
		t.Fatal("module address is zero")
	}
}
