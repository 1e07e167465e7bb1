package rpc

import (
	"fmt"
	"net/http"

	"tokensale/native/sale"
)

type multisigSignerParams struct {
	Signer string `json:"signer"`
}

type multisigApprovalsParams struct {
	Action string `json:"action"`
}

type multisigActionResult struct {
	Approvals uint64 `json:"approvals"`
	Executed  bool   `json:"executed"`
}

type multisigApprovalsResult struct {
	Action    string `json:"action"`
	Approvals uint64 `json:"approvals"`
}

func (s *Server) thresholdAction(w http.ResponseWriter, req *RPCRequest, action string) {
	var params multisigSignerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	signer, err := parseAddress(params.Signer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var (
		approvals uint64
		executed  bool
	)
	switch action {
	case sale.ActionFinalizeSale:
		approvals, executed, err = s.ledger.FinalizeSale(signer)
	case sale.ActionWithdrawUnsold:
		approvals, executed, err = s.ledger.WithdrawUnsoldTokens(signer)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("unknown action %q", action))
		return
	}
	if err != nil {
		writeMultisigError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, multisigActionResult{Approvals: approvals, Executed: executed})
}

func (s *Server) handleMultisigFinalize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.thresholdAction(w, req, sale.ActionFinalizeSale)
}

func (s *Server) handleMultisigWithdrawUnsold(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.thresholdAction(w, req, sale.ActionWithdrawUnsold)
}

func (s *Server) handleMultisigApprovals(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params multisigApprovalsParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	switch params.Action {
	case sale.ActionFinalizeSale, sale.ActionWithdrawUnsold:
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("unknown action %q", params.Action))
		return
	}
	approvals, err := s.ledger.Approvals(params.Action)
	if err != nil {
		writeMultisigError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, multisigApprovalsResult{
		Action:    params.Action,
		Approvals: approvals,
	})
}
