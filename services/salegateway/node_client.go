package salegateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LedgerPurchase mirrors the purchase record returned by the sale daemon.
type LedgerPurchase struct {
	ID          string `json:"id"`
	Account     string `json:"account"`
	Source      string `json:"source"`
	PaymentID   string `json:"paymentId,omitempty"`
	NativeAmt   string `json:"nativeAmount"`
	USDAmount   string `json:"usdAmount"`
	TokenAmount string `json:"tokenAmount"`
	Timestamp   uint64 `json:"timestamp"`
}

// PurchasePage is one page of the daemon's purchase journal.
type PurchasePage struct {
	Purchases  []LedgerPurchase `json:"purchases"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// NodeClient abstracts the sale daemon RPC surface the gateway depends on.
type NodeClient interface {
	ProcessFiatPayment(ctx context.Context, recipient, tokenAmount, paymentID string) (*LedgerPurchase, error)
	ListPurchases(ctx context.Context, cursor string, limit int) (*PurchasePage, error)
}

// NodeError is a structured JSON-RPC error returned by the daemon.
type NodeError struct {
	Code    int
	Message string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node error %d: %s", e.Code, e.Message)
}

// RPCNodeClient talks JSON-RPC to a sale daemon.
type RPCNodeClient struct {
	baseURL   string
	authToken string
	operator  string
	http      *http.Client
	nextID    atomic.Int64
}

// NewRPCNodeClient builds a client for the daemon at baseURL. Mutating calls
// are issued with operator as the acting owner address.
func NewRPCNodeClient(baseURL, authToken, operator string) *RPCNodeClient {
	return &RPCNodeClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		operator:  operator,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *RPCNodeClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode rpc request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call node: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read node response: %w", err)
	}
	var envelope rpcEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("node status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("decode node response: %w", err)
	}
	if envelope.Error != nil {
		return &NodeError{Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 {
		return fmt.Errorf("node returned empty result for %s", method)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// ProcessFiatPayment credits tokens for a settled fiat payment.
func (c *RPCNodeClient) ProcessFiatPayment(ctx context.Context, recipient, tokenAmount, paymentID string) (*LedgerPurchase, error) {
	params := map[string]string{
		"caller":      c.operator,
		"recipient":   recipient,
		"tokenAmount": tokenAmount,
		"paymentId":   paymentID,
	}
	purchase := &LedgerPurchase{}
	if err := c.call(ctx, "admin_processFiatPayment", params, purchase); err != nil {
		return nil, err
	}
	return purchase, nil
}

// ListPurchases pages through the daemon's purchase journal.
func (c *RPCNodeClient) ListPurchases(ctx context.Context, cursor string, limit int) (*PurchasePage, error) {
	params := map[string]interface{}{"limit": limit}
	if cursor != "" {
		params["cursor"] = cursor
	}
	page := &PurchasePage{}
	if err := c.call(ctx, "sale_listPurchases", params, page); err != nil {
		return nil, err
	}
	return page, nil
}
