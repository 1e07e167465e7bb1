package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"tokensale/core/ledger"
	"tokensale/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Options carries the listener policy derived from the daemon
// configuration.
type Options struct {
	AuthToken          string
	AllowInsecureAuth  bool
	TrustProxyHeaders  bool
	TrustedProxies     []string
	RateLimitPerSecond float64
	RateLimitBurst     int
	EventBuffer        int
	DefaultSlotSeconds uint64
}

type Server struct {
	ledger *ledger.Ledger
	log    *slog.Logger

	authToken          string
	allowInsecure      bool
	trustProxyHeaders  bool
	trustedProxies     map[string]struct{}
	eventBuffer        int
	defaultSlotSeconds uint64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewServer wires a JSON-RPC server over the ledger.
func NewServer(l *ledger.Ledger, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(opts.RateLimitPerSecond)
	if opts.RateLimitPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	trusted := make(map[string]struct{}, len(opts.TrustedProxies))
	for _, proxy := range opts.TrustedProxies {
		if proxy = strings.TrimSpace(proxy); proxy != "" {
			trusted[proxy] = struct{}{}
		}
	}
	return &Server{
		ledger:             l,
		log:                logger.With("component", "rpc"),
		authToken:          strings.TrimSpace(opts.AuthToken),
		allowInsecure:      opts.AllowInsecureAuth,
		trustProxyHeaders:  opts.TrustProxyHeaders,
		trustedProxies:     trusted,
		eventBuffer:        buffer,
		defaultSlotSeconds: opts.DefaultSlotSeconds,
		limiters:           make(map[string]*rate.Limiter),
		limit:              limit,
		burst:              burst,
	}
}

// Handler returns the HTTP handler serving the RPC endpoint, the health
// probe and the websocket event stream.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"eventSeq": s.ledger.EventSeq(),
	})
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	route, ok := methodTable[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}

	status := http.StatusOK
	if route.mutating {
		if !s.allowSource(s.clientSource(r)) {
			observability.ModuleMetrics().RecordThrottle(route.module, "rate_limit")
			status = http.StatusTooManyRequests
			writeError(w, status, req.ID, codeRateLimited, "rate limit exceeded", nil)
			s.observe(route, req.Method, status, started)
			return
		}
	}
	if route.auth {
		if authErr := s.requireAuth(r); authErr != nil {
			status = http.StatusUnauthorized
			writeError(w, status, req.ID, authErr.Code, authErr.Message, authErr.Data)
			s.observe(route, req.Method, status, started)
			return
		}
	}

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	route.handler(s, recorder, r, req)
	s.observe(route, req.Method, recorder.status, started)
}

func (s *Server) observe(route methodRoute, method string, status int, started time.Time) {
	observability.ModuleMetrics().Observe(route.module, method, status, time.Since(started))
}

// statusRecorder captures the final HTTP status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type handlerFunc func(*Server, http.ResponseWriter, *http.Request, *RPCRequest)

type methodRoute struct {
	module   string
	auth     bool
	mutating bool
	handler  handlerFunc
}

var methodTable = map[string]methodRoute{
	"sale_getSaleInfo":     {module: "sale", handler: (*Server).handleGetSaleInfo},
	"sale_getUserInfo":     {module: "sale", handler: (*Server).handleGetUserInfo},
	"sale_currentPrice":    {module: "sale", handler: (*Server).handleCurrentPrice},
	"sale_listPurchases":   {module: "sale", handler: (*Server).handleListPurchases},
	"sale_exportPurchases": {module: "sale", auth: true, handler: (*Server).handleExportPurchases},
	"sale_purchase":        {module: "sale", auth: true, mutating: true, handler: (*Server).handlePurchase},
	"sale_processRefund":   {module: "sale", auth: true, mutating: true, handler: (*Server).handleProcessRefund},

	"vesting_claimable":  {module: "vesting", handler: (*Server).handleVestingClaimable},
	"vesting_claim":      {module: "vesting", auth: true, mutating: true, handler: (*Server).handleVestingClaim},
	"vesting_batchClaim": {module: "vesting", auth: true, mutating: true, handler: (*Server).handleVestingBatchClaim},

	"airdrop_getInfo": {module: "airdrop", handler: (*Server).handleAirdropInfo},
	"airdrop_claim":   {module: "airdrop", auth: true, mutating: true, handler: (*Server).handleAirdropClaim},

	"admin_initialize":              {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminInitialize},
	"admin_configureSale":           {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminConfigureSale},
	"admin_configureSecurity":       {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminConfigureSecurity},
	"admin_configurePricing":        {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminConfigurePricing},
	"admin_configureVesting":        {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminConfigureVesting},
	"admin_configureAirdropVesting": {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminConfigureAirdropVesting},
	"admin_configureAirdrop":        {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminConfigureAirdrop},
	"admin_setRefundEnabled":        {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminSetRefundEnabled},
	"admin_setUserStatus":           {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminSetUserStatus},
	"admin_setUserStatusBatch":      {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminSetUserStatusBatch},
	"admin_addSigner":               {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminAddSigner},
	"admin_removeSigner":            {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminRemoveSigner},
	"admin_pause":                   {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminPause},
	"admin_unpause":                 {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminUnpause},
	"admin_processFiatPayment":      {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminProcessFiat},
	"admin_processFiatBatch":        {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminProcessFiatBatch},
	"admin_emergencyWithdraw":       {module: "admin", auth: true, mutating: true, handler: (*Server).handleAdminEmergencyWithdraw},

	"multisig_approvals":      {module: "multisig", handler: (*Server).handleMultisigApprovals},
	"multisig_finalize":       {module: "multisig", auth: true, mutating: true, handler: (*Server).handleMultisigFinalize},
	"multisig_withdrawUnsold": {module: "multisig", auth: true, mutating: true, handler: (*Server).handleMultisigWithdrawUnsold},
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		if s.allowInsecure {
			return nil
		}
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

// clientSource resolves the address rate limiting keys on. The
// X-Forwarded-For header is honoured only when proxy headers are trusted
// globally or the direct peer is a registered proxy.
func (s *Server) clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	trusted := s.trustProxyHeaders
	if !trusted {
		_, trusted = s.trustedProxies[host]
	}
	if trusted {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if candidate := strings.TrimSpace(parts[0]); candidate != "" {
				return candidate
			}
		}
	}
	return host
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
