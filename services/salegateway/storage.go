package salegateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrIdempotencyConflict reports a reused Idempotency-Key with a different payload.
var ErrIdempotencyConflict = errors.New("idempotency key conflict")

// Invoice lifecycle states.
const (
	InvoiceStatusPending = "pending"
	InvoiceStatusSettled = "settled"
	InvoiceStatusFailed  = "failed"
	InvoiceStatusExpired = "expired"
)

// SQLiteStore persists invoices, idempotency records, and the audit log.
type SQLiteStore struct {
	db *sql.DB
}

// StoredResponse captures a previously served response for idempotent replay.
type StoredResponse struct {
	Status int
	Body   []byte
}

// AuditEntry captures a single request/response pair.
type AuditEntry struct {
	Timestamp      time.Time
	Method         string
	Path           string
	RequestBody    []byte
	ResponseStatus int
	ResponseBody   []byte
}

// InvoiceRecord mirrors one row of the invoices table.
type InvoiceRecord struct {
	ID           string
	PaymentID    string
	Recipient    string
	TokenAmount  string
	FiatCurrency string
	FiatAmount   string
	Status       string
	TxRef        sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSQLiteStore opens (creating if necessary) the gateway database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS idempotency_keys (
            key TEXT PRIMARY KEY,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS invoices (
            id TEXT PRIMARY KEY,
            payment_id TEXT NOT NULL,
            recipient TEXT NOT NULL,
            token_amount TEXT NOT NULL,
            fiat_currency TEXT NOT NULL,
            fiat_amount TEXT NOT NULL,
            status TEXT NOT NULL,
            tx_ref TEXT,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL,
            UNIQUE(payment_id)
        )`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            request_body BLOB,
            response_status INTEGER NOT NULL,
            response_body BLOB
        )`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LookupIdempotency returns the stored response for key, nil when the key is
// unused, or ErrIdempotencyConflict when the key was used with a different
// request payload.
func (s *SQLiteStore) LookupIdempotency(ctx context.Context, key, requestHash string) (*StoredResponse, error) {
	row := s.db.QueryRowContext(ctx, `SELECT request_hash, response_status, response_body FROM idempotency_keys WHERE key = ?`, key)
	var storedHash string
	var status int
	var body []byte
	if err := row.Scan(&storedHash, &status, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup idempotency: %w", err)
	}
	if storedHash != requestHash {
		return nil, ErrIdempotencyConflict
	}
	return &StoredResponse{Status: status, Body: body}, nil
}

// SaveIdempotency records the response served for key.
func (s *SQLiteStore) SaveIdempotency(ctx context.Context, key, requestHash string, status int, body []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO idempotency_keys (key, request_hash, response_status, response_body, created_at) VALUES (?, ?, ?, ?, ?)`,
		key, requestHash, status, body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save idempotency: %w", err)
	}
	return nil
}

// InsertAudit appends one entry to the audit log.
func (s *SQLiteStore) InsertAudit(ctx context.Context, entry AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (occurred_at, method, path, request_body, response_status, response_body) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Timestamp.UTC(), entry.Method, entry.Path, entry.RequestBody, entry.ResponseStatus, entry.ResponseBody)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// InsertInvoice stores a freshly issued invoice.
func (s *SQLiteStore) InsertInvoice(ctx context.Context, inv *InvoiceRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invoices (id, payment_id, recipient, token_amount, fiat_currency, fiat_amount, status, tx_ref, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.PaymentID, inv.Recipient, inv.TokenAmount, inv.FiatCurrency, inv.FiatAmount, inv.Status, nullable(inv.TxRef), inv.CreatedAt.UTC(), inv.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

const invoiceColumns = `id, payment_id, recipient, token_amount, fiat_currency, fiat_amount, status, tx_ref, created_at, updated_at`

// GetInvoice fetches an invoice by gateway identifier. Missing rows return nil.
func (s *SQLiteStore) GetInvoice(ctx context.Context, id string) (*InvoiceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	return scanInvoice(row)
}

// GetInvoiceByPaymentID fetches an invoice by provider payment reference.
func (s *SQLiteStore) GetInvoiceByPaymentID(ctx context.Context, paymentID string) (*InvoiceRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE payment_id = ?`, paymentID)
	return scanInvoice(row)
}

// UpdateInvoiceStatus transitions an invoice and optionally records the ledger reference.
func (s *SQLiteStore) UpdateInvoiceStatus(ctx context.Context, id, status string, txRef *string) error {
	var ref interface{}
	if txRef != nil {
		ref = *txRef
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, tx_ref = COALESCE(?, tx_ref), updated_at = ? WHERE id = ?`,
		status, ref, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("invoice %s not found", id)
	}
	return nil
}

// ListInvoicesBetween returns invoices created within [from, to) ordered by creation time.
func (s *SQLiteStore) ListInvoicesBetween(ctx context.Context, from, to time.Time) ([]*InvoiceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()
	var out []*InvoiceRecord
	for rows.Next() {
		inv, err := scanInvoiceRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row *sql.Row) (*InvoiceRecord, error) {
	inv, err := scanInvoiceRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

func scanInvoiceRow(row rowScanner) (*InvoiceRecord, error) {
	inv := &InvoiceRecord{}
	if err := row.Scan(&inv.ID, &inv.PaymentID, &inv.Recipient, &inv.TokenAmount, &inv.FiatCurrency, &inv.FiatAmount, &inv.Status, &inv.TxRef, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	return inv, nil
}

func nullable(ns sql.NullString) interface{} {
	if ns.Valid {
		return ns.String
	}
	return nil
}
