package rpc

import (
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"tokensale/native/sale"
	"tokensale/native/vesting"
)

type adminInitializeParams struct {
	Owner         string `json:"owner"`
	Token         string `json:"token"`
	FundWallet    string `json:"fundWallet"`
	FeeWallet     string `json:"feeWallet"`
	FeePercentage uint64 `json:"feePercentage"`
}

type adminConfigureSaleParams struct {
	Caller            string `json:"caller"`
	StartTime         uint64 `json:"startTime"`
	EndTime           uint64 `json:"endTime"`
	MaxPerTransaction string `json:"maxPerTransaction"`
	MaxPerWallet      string `json:"maxPerWallet"`
	SoftCap           string `json:"softCap"`
	HardCap           string `json:"hardCap"`
	TotalSupply       string `json:"totalSupply"`
}

type adminConfigureSecurityParams struct {
	Caller             string `json:"caller"`
	AntiWhaleLimit     string `json:"antiWhaleLimit"`
	CooldownSeconds    uint64 `json:"cooldownSeconds"`
	AntiBotSlotSeconds uint64 `json:"antiBotSlotSeconds"`
	MultisigThreshold  uint64 `json:"multisigThreshold"`
}

type adminConfigurePricingParams struct {
	Caller          string `json:"caller"`
	UseManualPrice  bool   `json:"useManualPrice"`
	UseExternalFeed bool   `json:"useExternalFeed"`
	ManualPrice     string `json:"manualPrice"`
	TokenPerUsd     string `json:"tokenPerUsd"`
}

type adminConfigureVestingParams struct {
	Caller          string `json:"caller"`
	Duration        uint64 `json:"duration"`
	CliffPeriod     uint64 `json:"cliffPeriod"`
	CliffPercentage uint64 `json:"cliffPercentage"`
}

type adminConfigureAirdropParams struct {
	Caller     string `json:"caller"`
	MerkleRoot string `json:"merkleRoot"`
	Deadline   uint64 `json:"deadline"`
}

type adminRefundEnabledParams struct {
	Caller  string `json:"caller"`
	Enabled bool   `json:"enabled"`
}

type adminUserStatusParams struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Flag    string `json:"flag"`
	Value   bool   `json:"value"`
}

type adminUserStatusBatchParams struct {
	Caller   string   `json:"caller"`
	Accounts []string `json:"accounts"`
	Flag     string   `json:"flag"`
	Value    bool     `json:"value"`
}

type adminSignerParams struct {
	Caller string `json:"caller"`
	Signer string `json:"signer"`
}

type adminCallerParams struct {
	Caller string `json:"caller"`
}

type fiatPaymentEntry struct {
	Recipient   string `json:"recipient"`
	TokenAmount string `json:"tokenAmount"`
	PaymentID   string `json:"paymentId"`
}

type adminFiatParams struct {
	Caller string `json:"caller"`
	fiatPaymentEntry
}

type adminFiatBatchParams struct {
	Caller   string             `json:"caller"`
	Payments []fiatPaymentEntry `json:"payments"`
}

type adminFiatBatchResult struct {
	Processed int             `json:"processed"`
	Purchases []*purchaseJSON `json:"purchases"`
}

type adminEmergencyParams struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
}

type adminEmergencyResult struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type okResult struct {
	OK bool `json:"ok"`
}

func (s *Server) handleAdminInitialize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminInitializeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rec := sale.InitRecord{FeePercentage: params.FeePercentage}
	fields := []struct {
		raw string
		dst *common.Address
	}{
		{params.Owner, &rec.Owner},
		{params.Token, &rec.Token},
		{params.FundWallet, &rec.FundWallet},
		{params.FeeWallet, &rec.FeeWallet},
	}
	for _, field := range fields {
		addr, err := parseAddress(field.raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		*field.dst = addr
	}
	if err := s.ledger.Initialize(rec); err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminConfigureSale(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminConfigureSaleParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	cfg := sale.SaleParams{StartTime: params.StartTime, EndTime: params.EndTime}
	amounts := []struct {
		raw string
		dst **big.Int
	}{
		{params.MaxPerTransaction, &cfg.MaxPerTransaction},
		{params.MaxPerWallet, &cfg.MaxPerWallet},
		{params.SoftCap, &cfg.SoftCap},
		{params.HardCap, &cfg.HardCap},
		{params.TotalSupply, &cfg.TotalSupply},
	}
	for _, amount := range amounts {
		value, err := parseAmount(amount.raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		*amount.dst = value
	}
	if err := s.ledger.ConfigureSale(caller, cfg); err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminConfigureSecurity(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminConfigureSecurityParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	limit, err := parseAmount(params.AntiWhaleLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	slot := params.AntiBotSlotSeconds
	if slot == 0 {
		slot = s.defaultSlotSeconds
	}
	if slot == 0 {
		slot = sale.DefaultAntiBotSlotSeconds
	}
	cfg := sale.SecurityConfig{
		AntiWhaleLimit:     limit,
		CooldownSeconds:    params.CooldownSeconds,
		AntiBotSlotSeconds: slot,
		MultisigThreshold:  params.MultisigThreshold,
	}
	if err := s.ledger.ConfigureSecurity(caller, cfg); err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminConfigurePricing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminConfigurePricingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tokenPerUsd, err := parseAmount(params.TokenPerUsd)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	cfg := sale.PricingConfig{
		UseManualPrice:  params.UseManualPrice,
		UseExternalFeed: params.UseExternalFeed,
		TokenPerUsd:     tokenPerUsd,
	}
	if params.ManualPrice != "" {
		manual, err := parseAmount(params.ManualPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		cfg.ManualPrice = manual
	}
	if err := s.ledger.ConfigurePricing(caller, cfg); err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) configureVestingTemplate(w http.ResponseWriter, req *RPCRequest, airdrop bool) {
	var params adminConfigureVestingParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tpl := vesting.Template{
		Duration:        params.Duration,
		CliffPeriod:     params.CliffPeriod,
		CliffPercentage: params.CliffPercentage,
	}
	if airdrop {
		err = s.ledger.ConfigureAirdropVesting(caller, tpl)
	} else {
		err = s.ledger.ConfigureVesting(caller, tpl)
	}
	if err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminConfigureVesting(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.configureVestingTemplate(w, req, false)
}

func (s *Server) handleAdminConfigureAirdropVesting(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.configureVestingTemplate(w, req, true)
}

func (s *Server) handleAdminConfigureAirdrop(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminConfigureAirdropParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	root, err := parseHash(params.MerkleRoot)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.ledger.ConfigureAirdrop(caller, root, params.Deadline); err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminSetRefundEnabled(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminRefundEnabledParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.ledger.SetRefundEnabled(caller, params.Enabled); err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminSetUserStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminUserStatusParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	switch params.Flag {
	case "whitelist":
		err = s.ledger.SetWhitelisted(caller, account, params.Value)
	case "kyc":
		err = s.ledger.SetKYCVerified(caller, account, params.Value)
	case "blacklist":
		err = s.ledger.SetBlacklisted(caller, account, params.Value)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("unknown status flag %q", params.Flag))
		return
	}
	if err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminSetUserStatusBatch(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminUserStatusBatchParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	accounts, err := parseAddressList(params.Accounts)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	switch params.Flag {
	case "whitelist":
		err = s.ledger.SetWhitelistedBatch(caller, accounts, params.Value)
	case "kyc":
		err = s.ledger.SetKYCVerifiedBatch(caller, accounts, params.Value)
	case "blacklist":
		err = s.ledger.SetBlacklistedBatch(caller, accounts, params.Value)
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", fmt.Sprintf("unknown status flag %q", params.Flag))
		return
	}
	if err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) updateSigner(w http.ResponseWriter, req *RPCRequest, add bool) {
	var params adminSignerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	signer, err := parseAddress(params.Signer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if add {
		err = s.ledger.AddMultisigSigner(caller, signer)
	} else {
		err = s.ledger.RemoveMultisigSigner(caller, signer)
	}
	if err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminAddSigner(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.updateSigner(w, req, true)
}

func (s *Server) handleAdminRemoveSigner(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.updateSigner(w, req, false)
}

func (s *Server) togglePause(w http.ResponseWriter, req *RPCRequest, pause bool) {
	var params adminCallerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if pause {
		err = s.ledger.Pause(caller)
	} else {
		err = s.ledger.Unpause(caller)
	}
	if err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminPause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.togglePause(w, req, true)
}

func (s *Server) handleAdminUnpause(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.togglePause(w, req, false)
}

func (s *Server) handleAdminProcessFiat(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminFiatParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.TokenAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rec, err := s.ledger.ProcessFiatPayment(caller, recipient, amount, params.PaymentID)
	if err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, purchaseFromRecord(rec))
}

func (s *Server) handleAdminProcessFiatBatch(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminFiatBatchParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	recipients := make([]common.Address, 0, len(params.Payments))
	amounts := make([]*big.Int, 0, len(params.Payments))
	paymentIDs := make([]string, 0, len(params.Payments))
	for _, payment := range params.Payments {
		recipient, err := parseAddress(payment.Recipient)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		amount, err := parseAmount(payment.TokenAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		recipients = append(recipients, recipient)
		amounts = append(amounts, amount)
		paymentIDs = append(paymentIDs, payment.PaymentID)
	}
	recs, err := s.ledger.BatchProcessFiatPayments(caller, recipients, amounts, paymentIDs)
	if err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	out := adminFiatBatchResult{
		Processed: len(recs),
		Purchases: make([]*purchaseJSON, 0, len(recs)),
	}
	for _, rec := range recs {
		out.Purchases = append(out.Purchases, purchaseFromRecord(rec))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleAdminEmergencyWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminEmergencyParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.ledger.EmergencyWithdraw(caller, recipient)
	if err != nil {
		writeAdminError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, adminEmergencyResult{
		Recipient: recipient.Hex(),
		Amount:    bigString(amount),
	})
}
