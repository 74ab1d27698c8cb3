package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"collateralvault/crypto"
	"collateralvault/native/collateral"
)

type depositParams struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type reclaimParams struct {
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	URL         string `json:"url,omitempty"`
	URLChecksum string `json:"urlChecksum,omitempty"`
}

type reclaimIDParams struct {
	ID uint64 `json:"id"`
}

type denyParams struct {
	Caller      string `json:"caller"`
	ID          uint64 `json:"id"`
	URL         string `json:"url,omitempty"`
	URLChecksum string `json:"urlChecksum,omitempty"`
}

type slashParams struct {
	Caller      string `json:"caller"`
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	URL         string `json:"url,omitempty"`
	URLChecksum string `json:"urlChecksum,omitempty"`
}

type accountParams struct {
	Account string `json:"account"`
}

type collateralResult struct {
	Account  string `json:"account"`
	Balance  string `json:"balance"`
	Reserved string `json:"reserved"`
}

type reclaimResult struct {
	ID        uint64 `json:"id"`
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	ExpiresAt uint64 `json:"expiresAt"`
}

type finalizeResult struct {
	ID     uint64 `json:"id"`
	Voided bool   `json:"voided"`
}

type configResult struct {
	Trustee                string `json:"trustee"`
	MinCollateralIncrease  string `json:"minCollateralIncrease"`
	DecisionTimeoutSeconds uint64 `json:"decisionTimeoutSeconds"`
	NetworkName            string `json:"networkName"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAccount(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != crypto.VaultPrefix {
		return [20]byte{}, fmt.Errorf("account must use the %q prefix", crypto.VaultPrefix)
	}
	return addr.Array(), nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be a non-negative decimal integer")
	}
	return amount, nil
}

func parseJustification(url, checksum string) (collateral.Justification, error) {
	j := collateral.Justification{URL: url}
	trimmed := strings.TrimSpace(checksum)
	if trimmed == "" {
		return j.Sanitize(), nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 16 {
		return collateral.Justification{}, fmt.Errorf("urlChecksum must be 16 hex-encoded bytes")
	}
	copy(j.Checksum[:], raw)
	return j.Sanitize(), nil
}

func bech32String(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.VaultPrefix, addr[:]).String()
}

// writeEngineError maps engine sentinels onto stable JSON-RPC codes so
// automated callers can branch on the failure kind.
func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) {
	s.metrics.ObserveFailure(req.Method)
	switch {
	case errors.Is(err, collateral.ErrAmountZero):
		writeError(w, http.StatusBadRequest, req.ID, codeAmountZero, "amount_zero", err.Error())
	case errors.Is(err, collateral.ErrInsufficientAmount):
		writeError(w, http.StatusBadRequest, req.ID, codeInsufficientAmount, "insufficient_amount", err.Error())
	case errors.Is(err, collateral.ErrReclaimAmountTooLarge):
		writeError(w, http.StatusBadRequest, req.ID, codeReclaimTooLarge, "reclaim_amount_too_large", err.Error())
	case errors.Is(err, collateral.ErrReclaimAmountTooSmall):
		writeError(w, http.StatusBadRequest, req.ID, codeReclaimTooSmall, "reclaim_amount_too_small", err.Error())
	case errors.Is(err, collateral.ErrNotTrustee):
		writeError(w, http.StatusForbidden, req.ID, codeNotTrustee, "not_trustee", err.Error())
	case errors.Is(err, collateral.ErrReclaimNotFound):
		writeError(w, http.StatusNotFound, req.ID, codeReclaimNotFound, "reclaim_not_found", err.Error())
	case errors.Is(err, collateral.ErrBeforeDenyTimeout):
		writeError(w, http.StatusConflict, req.ID, codeBeforeDenyTimeout, "before_deny_timeout", err.Error())
	case errors.Is(err, collateral.ErrPastDenyTimeout):
		writeError(w, http.StatusConflict, req.ID, codePastDenyTimeout, "past_deny_timeout", err.Error())
	case errors.Is(err, collateral.ErrTransferFailed):
		writeError(w, http.StatusBadGateway, req.ID, codeTransferFailed, "transfer_failed", err.Error())
	case errors.Is(err, collateral.ErrInvalidDepositMethod):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidDepositMethod, "invalid_deposit_method", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "server_error", err.Error())
	}
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAccount(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	err = s.engine.Deposit(account, amount)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	s.metrics.ObserveDeposit()

	balance, err := s.engine.Collateral(account)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	reserved, err := s.engine.ReservedCollateral(account)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, collateralResult{
		Account:  bech32String(account),
		Balance:  balance.String(),
		Reserved: reserved.String(),
	})
}

func (s *Server) handleReclaim(w http.ResponseWriter, req *RPCRequest) {
	var params reclaimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAccount(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	justification, err := parseJustification(params.URL, params.URLChecksum)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	id, err := s.engine.ReclaimCollateral(account, amount, justification)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	s.metrics.ObserveReclaimStarted()

	record, ok, err := s.engine.Reclaim(id)
	if err != nil || !ok {
		writeResult(w, req.ID, reclaimResult{ID: id, Account: bech32String(account), Amount: amount.String()})
		return
	}
	writeResult(w, req.ID, reclaimResult{
		ID:        record.ID,
		Account:   bech32String(record.Account),
		Amount:    record.Amount.String(),
		ExpiresAt: record.ExpiresAt,
	})
}

func (s *Server) handleFinalizeReclaim(w http.ResponseWriter, req *RPCRequest) {
	var params reclaimIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	voided, err := s.engine.FinalizeReclaim(params.ID)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	s.metrics.ObserveReclaimFinalized(voided)
	writeResult(w, req.ID, finalizeResult{ID: params.ID, Voided: voided})
}

func (s *Server) handleDenyReclaim(w http.ResponseWriter, req *RPCRequest) {
	var params denyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAccount(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	justification, err := parseJustification(params.URL, params.URLChecksum)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	err = s.engine.DenyReclaimRequest(caller, params.ID, justification)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	s.metrics.ObserveReclaimDenied()
	writeResult(w, req.ID, map[string]interface{}{"id": params.ID, "denied": true})
}

func (s *Server) handleSlash(w http.ResponseWriter, req *RPCRequest) {
	var params slashParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAccount(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAccount(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	justification, err := parseJustification(params.URL, params.URLChecksum)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	err = s.engine.Slash(caller, account, amount, justification)
	s.mu.Unlock()
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	s.metrics.ObserveSlash()

	balance, err := s.engine.Collateral(account)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"account": bech32String(account),
		"slashed": amount.String(),
		"balance": balance.String(),
	})
}

func (s *Server) handleGetCollateral(w http.ResponseWriter, req *RPCRequest) {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAccount(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.engine.Collateral(account)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	reserved, err := s.engine.ReservedCollateral(account)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, collateralResult{
		Account:  bech32String(account),
		Balance:  balance.String(),
		Reserved: reserved.String(),
	})
}

func (s *Server) handleGetReclaim(w http.ResponseWriter, req *RPCRequest) {
	var params reclaimIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, ok, err := s.engine.Reclaim(params.ID)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	if !ok {
		s.writeEngineError(w, req, collateral.ErrReclaimNotFound)
		return
	}
	writeResult(w, req.ID, reclaimResult{
		ID:        record.ID,
		Account:   bech32String(record.Account),
		Amount:    record.Amount.String(),
		ExpiresAt: record.ExpiresAt,
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, req *RPCRequest) {
	params := s.engine.Params()
	writeResult(w, req.ID, configResult{
		Trustee:                bech32String(params.Trustee),
		MinCollateralIncrease:  params.MinCollateralIncrease.String(),
		DecisionTimeoutSeconds: params.DecisionTimeout,
		NetworkName:            s.networkName,
	})
}
