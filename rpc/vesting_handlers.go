package rpc

import "net/http"

type vestingClaimParams struct {
	Account string `json:"account"`
}

type vestingBatchParams struct {
	Accounts []string `json:"accounts"`
}

type vestingInfoResult struct {
	Schedule  *scheduleJSON `json:"schedule,omitempty"`
	Claimable string        `json:"claimable"`
}

type vestingClaimResult struct {
	Account string `json:"account"`
	Claimed string `json:"claimed"`
}

type vestingBatchResult struct {
	TotalClaimed string `json:"totalClaimed"`
	Settled      int    `json:"settled"`
}

func (s *Server) handleVestingClaimable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params userAddressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	info, err := s.ledger.VestingInfo(account)
	if err != nil {
		writeVestingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vestingInfoResult{
		Schedule:  scheduleFromView(info.Schedule),
		Claimable: bigString(info.Claimable),
	})
}

func (s *Server) handleVestingClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vestingClaimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	claimed, err := s.ledger.ClaimVested(account)
	if err != nil {
		writeVestingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vestingClaimResult{
		Account: account.Hex(),
		Claimed: bigString(claimed),
	})
}

func (s *Server) handleVestingBatchClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vestingBatchParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	accounts, err := parseAddressList(params.Accounts)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	total, settled, err := s.ledger.BatchClaimVested(accounts)
	if err != nil {
		writeVestingError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vestingBatchResult{
		TotalClaimed: bigString(total),
		Settled:      settled,
	})
}
