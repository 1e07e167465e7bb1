package salegateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tokensale/observability/logging"
	"tokensale/observability/metrics"
)

const (
	maxRequestBody       = 1 << 20
	headerIdempotencyKey = "Idempotency-Key"
	headerWebhookSig     = "X-Sale-Signature"
	tracerName           = "salegateway"

	nodeCallTimeout = 10 * time.Second
)

// ServerOptions carries the tunable parts of the gateway server.
type ServerOptions struct {
	WebhookSecret []byte
	InvoiceTTL    time.Duration
	ReconDir      string
	Now           func() time.Time
}

// Server is the fiat on-ramp for the token sale. It issues invoices,
// consumes provider webhooks, and credits settled payments on the ledger
// through the sale daemon.
type Server struct {
	store         *SQLiteStore
	receipts      *ReceiptStore
	node          NodeClient
	auth          *Authenticator
	webhookSecret []byte
	invoiceTTL    time.Duration
	reconDir      string
	log           *slog.Logger
	metrics       *metrics.GatewayMetrics
	tracer        trace.Tracer
	nowFn         func() time.Time
	router        chi.Router
}

// NewServer wires the gateway together. Store, receipts, node, and auth are
// mandatory dependencies.
func NewServer(store *SQLiteStore, receipts *ReceiptStore, node NodeClient, auth *Authenticator, log *slog.Logger, opts ServerOptions) *Server {
	if store == nil {
		panic("salegateway: storage backend required")
	}
	if receipts == nil {
		panic("salegateway: receipt store required")
	}
	if node == nil {
		panic("salegateway: node client required")
	}
	if auth == nil {
		panic("salegateway: authenticator required")
	}
	if log == nil {
		log = slog.Default()
	}
	ttl := opts.InvoiceTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	reconDir := strings.TrimSpace(opts.ReconDir)
	if reconDir == "" {
		reconDir = "recon"
	}
	s := &Server{
		store:         store,
		receipts:      receipts,
		node:          node,
		auth:          auth,
		webhookSecret: opts.WebhookSecret,
		invoiceTTL:    ttl,
		reconDir:      reconDir,
		log:           log.With("component", "salegateway"),
		metrics:       metrics.Gateway(),
		tracer:        otel.Tracer(tracerName),
		nowFn:         nowFn,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/invoices", func(sr chi.Router) {
		sr.Use(s.auth.Middleware(ScopeInvoice))
		sr.With(s.instrument("invoice_create")).Post("/", s.handleInvoiceCreate)
		sr.With(s.instrument("invoice_get")).Get("/{invoiceID}", s.handleInvoiceGet)
	})
	r.With(s.instrument("webhook")).Post("/webhooks/payments", s.handleWebhook)
	r.Group(func(gr chi.Router) {
		gr.Use(s.auth.Middleware(ScopeAdmin))
		gr.With(s.instrument("receipt_get")).Get("/receipts/{digest}", s.handleReceiptGet)
		gr.With(s.instrument("recon_export")).Post("/recon/export", s.handleReconExport)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ctx, span := s.tracer.Start(r.Context(), route, trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
			))
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.status_code", recorder.status))
			span.End()
			s.metrics.ObserveRequest(route, r.Method, recorder.status, time.Since(started))
		})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type invoiceCreateRequest struct {
	Recipient    string `json:"recipient"`
	TokenAmount  string `json:"tokenAmount"`
	FiatCurrency string `json:"fiatCurrency"`
	FiatAmount   string `json:"fiatAmount"`
}

type invoiceResponse struct {
	ID           string    `json:"id"`
	PaymentID    string    `json:"paymentId"`
	Recipient    string    `json:"recipient"`
	TokenAmount  string    `json:"tokenAmount"`
	FiatCurrency string    `json:"fiatCurrency"`
	FiatAmount   string    `json:"fiatAmount"`
	Status       string    `json:"status"`
	TxRef        string    `json:"txRef,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (s *Server) invoiceResponseFromRecord(inv *InvoiceRecord) invoiceResponse {
	resp := invoiceResponse{
		ID:           inv.ID,
		PaymentID:    inv.PaymentID,
		Recipient:    inv.Recipient,
		TokenAmount:  inv.TokenAmount,
		FiatCurrency: inv.FiatCurrency,
		FiatAmount:   inv.FiatAmount,
		Status:       inv.Status,
		CreatedAt:    inv.CreatedAt,
		ExpiresAt:    inv.CreatedAt.Add(s.invoiceTTL),
	}
	if inv.TxRef.Valid {
		resp.TxRef = inv.TxRef.String
	}
	return resp
}

func (s *Server) handleInvoiceCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, nil, http.StatusBadRequest, "request body unreadable")
		return
	}
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if key == "" {
		s.writeError(w, r, body, http.StatusBadRequest, "Idempotency-Key header required")
		return
	}
	requestHash := hashRequest(r.Method, canonicalRequestPath(r), body)
	cached, err := s.store.LookupIdempotency(ctx, key, requestHash)
	if err != nil {
		if errors.Is(err, ErrIdempotencyConflict) {
			s.metrics.RecordIdempotencyConflict()
			s.writeError(w, r, body, http.StatusConflict, "idempotency key reused with different payload")
			return
		}
		s.writeError(w, r, body, http.StatusInternalServerError, "idempotency lookup failed")
		return
	}
	if cached != nil {
		s.metrics.RecordIdempotencyReplay()
		s.writeJSONBytes(w, r, body, cached.Status, cached.Body)
		return
	}

	var payload invoiceCreateRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, r, body, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	recipient := strings.TrimSpace(payload.Recipient)
	if !common.IsHexAddress(recipient) {
		s.writeError(w, r, body, http.StatusBadRequest, "invalid recipient address")
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(payload.TokenAmount), 10)
	if !ok || amount.Sign() <= 0 {
		s.writeError(w, r, body, http.StatusBadRequest, "token amount must be a positive integer")
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(payload.FiatCurrency))
	if len(currency) != 3 {
		s.writeError(w, r, body, http.StatusBadRequest, "fiat currency must be a three letter code")
		return
	}
	fiatAmount := strings.TrimSpace(payload.FiatAmount)
	if fiatAmount == "" {
		s.writeError(w, r, body, http.StatusBadRequest, "fiat amount required")
		return
	}

	now := s.nowFn().UTC()
	inv := &InvoiceRecord{
		ID:           uuid.NewString(),
		PaymentID:    uuid.NewString(),
		Recipient:    recipient,
		TokenAmount:  amount.String(),
		FiatCurrency: currency,
		FiatAmount:   fiatAmount,
		Status:       InvoiceStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertInvoice(ctx, inv); err != nil {
		s.log.Error("insert invoice failed", "error", err)
		s.writeError(w, r, body, http.StatusInternalServerError, "store invoice failed")
		return
	}
	s.metrics.RecordInvoice(InvoiceStatusPending)

	respBody, err := json.Marshal(s.invoiceResponseFromRecord(inv))
	if err != nil {
		s.writeError(w, r, body, http.StatusInternalServerError, "encode response failed")
		return
	}
	if err := s.store.SaveIdempotency(ctx, key, requestHash, http.StatusCreated, respBody); err != nil {
		s.log.Error("save idempotency failed", "error", err)
		s.writeError(w, r, body, http.StatusInternalServerError, "persist idempotency failed")
		return
	}
	s.log.Info("invoice created", "invoice", inv.ID, "recipient", logging.ShortAddress(inv.Recipient))
	s.writeJSONBytes(w, r, body, http.StatusCreated, respBody)
}

func (s *Server) handleInvoiceGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "invoiceID")
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		s.writeError(w, r, nil, http.StatusInternalServerError, "load invoice failed")
		return
	}
	if inv == nil {
		s.writeError(w, r, nil, http.StatusNotFound, "invoice not found")
		return
	}
	s.writeJSON(w, r, nil, http.StatusOK, s.invoiceResponseFromRecord(inv))
}

type webhookEvent struct {
	PaymentID  string `json:"paymentId"`
	Status     string `json:"status"`
	FiatAmount string `json:"fiatAmount"`
	Currency   string `json:"currency"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, nil, http.StatusBadRequest, "request body unreadable")
		return
	}
	signature := firstNonEmpty(r.Header.Get(headerWebhookSig), r.Header.Get("X-Signature"))
	if err := s.verifyWebhookSignature(body, signature); err != nil {
		s.metrics.RecordWebhookFailure("signature")
		s.writeError(w, r, body, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	digest, err := s.receipts.Put("payments", s.nowFn(), body)
	if err != nil {
		s.log.Error("archive receipt failed", "error", err)
		s.metrics.RecordWebhookFailure("receipt_store")
		s.writeError(w, r, body, http.StatusInternalServerError, "archive receipt failed")
		return
	}
	s.metrics.RecordReceiptWrite()

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.metrics.RecordWebhookFailure("payload")
		s.writeError(w, r, body, http.StatusBadRequest, "invalid webhook payload")
		return
	}
	if strings.TrimSpace(event.PaymentID) == "" {
		s.metrics.RecordWebhookFailure("payload")
		s.writeError(w, r, body, http.StatusBadRequest, "paymentId required")
		return
	}

	inv, err := s.store.GetInvoiceByPaymentID(ctx, event.PaymentID)
	if err != nil {
		s.writeError(w, r, body, http.StatusInternalServerError, "load invoice failed")
		return
	}
	if inv == nil {
		s.metrics.RecordWebhookFailure("unknown_invoice")
		s.writeError(w, r, body, http.StatusNotFound, "unknown payment reference")
		return
	}
	switch inv.Status {
	case InvoiceStatusSettled:
		// Provider retry after a successful settlement. Acknowledge without
		// touching the ledger again.
		s.writeJSON(w, r, body, http.StatusOK, map[string]string{"status": InvoiceStatusSettled, "receipt": digest})
		return
	case InvoiceStatusFailed, InvoiceStatusExpired:
		s.writeError(w, r, body, http.StatusConflict, fmt.Sprintf("invoice already %s", inv.Status))
		return
	}

	now := s.nowFn()
	if now.After(inv.CreatedAt.Add(s.invoiceTTL)) {
		if err := s.store.UpdateInvoiceStatus(ctx, inv.ID, InvoiceStatusExpired, nil); err != nil {
			s.log.Error("expire invoice failed", "invoice", inv.ID, "error", err)
		}
		s.metrics.RecordInvoice(InvoiceStatusExpired)
		s.writeError(w, r, body, http.StatusGone, "invoice expired")
		return
	}

	switch strings.ToLower(strings.TrimSpace(event.Status)) {
	case "confirmed", "settled", "succeeded":
		creditCtx, cancel := context.WithTimeout(ctx, nodeCallTimeout)
		defer cancel()
		credit, err := s.node.ProcessFiatPayment(creditCtx, inv.Recipient, inv.TokenAmount, inv.PaymentID)
		if err != nil {
			// Leave the invoice pending so the provider retry can settle it
			// once the daemon is reachable again.
			s.log.Error("ledger credit failed", "invoice", inv.ID, "error", err)
			s.metrics.RecordWebhookFailure("ledger")
			s.writeError(w, r, body, http.StatusBadGateway, "ledger credit failed")
			return
		}
		txRef := credit.ID
		if err := s.store.UpdateInvoiceStatus(ctx, inv.ID, InvoiceStatusSettled, &txRef); err != nil {
			s.log.Error("settle invoice failed", "invoice", inv.ID, "error", err)
			s.writeError(w, r, body, http.StatusInternalServerError, "settle invoice failed")
			return
		}
		s.metrics.RecordInvoice(InvoiceStatusSettled)
		s.log.Info("invoice settled", "invoice", inv.ID, logging.MaskField("payment", inv.PaymentID), "purchase", txRef)
		s.writeJSON(w, r, body, http.StatusOK, map[string]string{"status": InvoiceStatusSettled, "txRef": txRef, "receipt": digest})
	case "failed", "cancelled":
		if err := s.store.UpdateInvoiceStatus(ctx, inv.ID, InvoiceStatusFailed, nil); err != nil {
			s.log.Error("fail invoice failed", "invoice", inv.ID, "error", err)
			s.writeError(w, r, body, http.StatusInternalServerError, "update invoice failed")
			return
		}
		s.metrics.RecordInvoice(InvoiceStatusFailed)
		s.writeJSON(w, r, body, http.StatusOK, map[string]string{"status": InvoiceStatusFailed, "receipt": digest})
	default:
		s.metrics.RecordWebhookFailure("status")
		s.writeError(w, r, body, http.StatusBadRequest, fmt.Sprintf("unsupported payment status %q", event.Status))
	}
}

func (s *Server) handleReceiptGet(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "digest")
	receipt, err := s.receipts.Get(digest)
	if err != nil {
		s.writeError(w, r, nil, http.StatusInternalServerError, "load receipt failed")
		return
	}
	if receipt == nil {
		s.writeError(w, r, nil, http.StatusNotFound, "receipt not found")
		return
	}
	s.writeJSON(w, r, nil, http.StatusOK, receipt)
}

type reconExportRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (s *Server) handleReconExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, nil, http.StatusBadRequest, "request body unreadable")
		return
	}
	var payload reconExportRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			s.writeError(w, r, body, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}
	to := payload.To
	if to.IsZero() {
		to = s.nowFn().UTC()
	}
	from := payload.From
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !from.Before(to) {
		s.writeError(w, r, body, http.StatusBadRequest, "from must precede to")
		return
	}
	report, err := s.runRecon(ctx, from, to)
	if err != nil {
		s.log.Error("recon export failed", "error", err)
		s.writeError(w, r, body, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	s.log.Info("recon export complete", "actor", SubjectFromContext(ctx),
		"rows", report.Rows, "anomalies", report.Anomalies)
	s.writeJSON(w, r, body, http.StatusOK, report)
}

func (s *Server) verifyWebhookSignature(body []byte, signature string) error {
	if len(s.webhookSecret) == 0 {
		return errors.New("webhook secret not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return errors.New("signature missing")
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	mac := hmac.New(sha512.New, s.webhookSecret)
	mac.Write(body)
	expected := mac.Sum(nil)
	if len(decoded) != len(expected) || !hmac.Equal(decoded, expected) {
		return errors.New("signature mismatch")
	}
	return nil
}

func (s *Server) audit(r *http.Request, requestBody, responseBody []byte, status int) {
	entry := AuditEntry{
		Timestamp:      s.nowFn(),
		Method:         r.Method,
		Path:           r.URL.Path,
		RequestBody:    requestBody,
		ResponseStatus: status,
		ResponseBody:   responseBody,
	}
	if err := s.store.InsertAudit(r.Context(), entry); err != nil {
		s.log.Error("audit write failed", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, requestBody []byte, status int, payload interface{}) {
	respBody, err := json.Marshal(payload)
	if err != nil {
		s.writeError(w, r, requestBody, http.StatusInternalServerError, "encode response failed")
		return
	}
	s.writeJSONBytes(w, r, requestBody, status, respBody)
}

func (s *Server) writeJSONBytes(w http.ResponseWriter, r *http.Request, requestBody []byte, status int, respBody []byte) {
	s.audit(r, requestBody, respBody, status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, requestBody []byte, status int, message string) {
	respBody, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		respBody = []byte(`{"error":"internal error"}`)
	}
	s.writeJSONBytes(w, r, requestBody, status, respBody)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	limited := http.MaxBytesReader(nil, r.Body, maxRequestBody)
	return io.ReadAll(limited)
}

func canonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if r.URL.RawQuery == "" {
		return path
	}
	parts := strings.Split(r.URL.RawQuery, "&")
	sort.Strings(parts)
	return path + "?" + strings.Join(parts, "&")
}

func hashRequest(method, path string, body []byte) string {
	sum := sha256.Sum256([]byte(method + "\n" + path + "\n" + string(body)))
	return hex.EncodeToString(sum[:])
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
