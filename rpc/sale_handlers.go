package rpc

import (
	"encoding/json"
	"net/http"
)

type userAddressParams struct {
	Address string `json:"address"`
}

type purchaseParams struct {
	Buyer        string `json:"buyer"`
	NativeAmount string `json:"nativeAmount"`
}

type refundParams struct {
	Account string `json:"account"`
}

type listPurchasesParams struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit"`
}

type listPurchasesResult struct {
	Purchases  []*purchaseJSON `json:"purchases"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

type priceResult struct {
	Mode         string `json:"mode"`
	UsdPerNative string `json:"usdPerNative"`
	TokenPerUsd  string `json:"tokenPerUsd"`
}

type refundResult struct {
	Account  string `json:"account"`
	Refunded string `json:"refunded"`
}

type exportResult struct {
	CSV  string `json:"csv"`
	Rows int    `json:"rows"`
}

func (s *Server) handleGetSaleInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	info, err := s.ledger.SaleInfo()
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, saleInfoFromView(info))
}

func (s *Server) handleGetUserInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
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
	profile, err := s.ledger.UserProfile(account)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, profileFromView(profile))
}

func (s *Server) handleCurrentPrice(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	info, err := s.ledger.CurrentPrice()
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, priceResult{
		Mode:         info.Mode,
		UsdPerNative: bigString(info.UsdPerNative),
		TokenPerUsd:  bigString(info.TokenPerUsd),
	})
}

func (s *Server) handlePurchase(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params purchaseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.NativeAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rec, err := s.ledger.Purchase(buyer, amount)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, purchaseFromRecord(rec))
}

func (s *Server) handleProcessRefund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params refundParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	refunded, err := s.ledger.ProcessRefund(account)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, refundResult{
		Account:  account.Hex(),
		Refunded: bigString(refunded),
	})
}

func (s *Server) handleListPurchases(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listPurchasesParams
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "at most one parameter object expected")
		return
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	recs, next, err := s.ledger.Purchases(params.Cursor, params.Limit)
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	out := listPurchasesResult{
		Purchases:  make([]*purchaseJSON, 0, len(recs)),
		NextCursor: next,
	}
	for _, rec := range recs {
		out.Purchases = append(out.Purchases, purchaseFromRecord(rec))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleExportPurchases(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	data, rows, err := s.ledger.ExportPurchasesCSV()
	if err != nil {
		writeSaleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, exportResult{CSV: string(data), Rows: rows})
}
