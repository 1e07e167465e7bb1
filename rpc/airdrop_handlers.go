package rpc

import (
	"encoding/hex"
	"net/http"
)

type airdropClaimParams struct {
	Account string   `json:"account"`
	Amount  string   `json:"amount"`
	Proof   []string `json:"proof"`
}

type airdropClaimResult struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type airdropInfoResult struct {
	Configured   bool   `json:"configured"`
	MerkleRoot   string `json:"merkleRoot,omitempty"`
	Deadline     uint64 `json:"deadline,omitempty"`
	TotalClaimed string `json:"totalClaimed,omitempty"`
}

func (s *Server) handleAirdropInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	cfg, err := s.ledger.AirdropInfo()
	if err != nil {
		writeAirdropError(w, req.ID, err)
		return
	}
	if cfg == nil {
		writeResult(w, req.ID, airdropInfoResult{Configured: false})
		return
	}
	writeResult(w, req.ID, airdropInfoResult{
		Configured:   true,
		MerkleRoot:   "0x" + hex.EncodeToString(cfg.MerkleRoot[:]),
		Deadline:     cfg.Deadline,
		TotalClaimed: bigString(cfg.TotalClaimed),
	})
}

func (s *Server) handleAirdropClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params airdropClaimParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	proof := make([][32]byte, 0, len(params.Proof))
	for _, entry := range params.Proof {
		node, err := parseHash(entry)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		proof = append(proof, node)
	}
	if err := s.ledger.ClaimAirdrop(account, amount, proof); err != nil {
		writeAirdropError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, airdropClaimResult{
		Account: account.Hex(),
		Amount:  amount.String(),
	})
}
