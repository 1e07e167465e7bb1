package salegateway

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"tokensale/native/sale"
)

// Anomaly classifications produced by reconciliation.
const (
	AnomalyMissingCredit    = "missing_credit"
	AnomalyAmountMismatch   = "amount_mismatch"
	AnomalyUnexpectedCredit = "unexpected_credit"
	AnomalyOrphanCredit     = "orphan_credit"
)

// ReconRow joins one invoice with its ledger credit, if any.
type ReconRow struct {
	InvoiceID     string `json:"invoiceId,omitempty"`
	PaymentID     string `json:"paymentId"`
	Recipient     string `json:"recipient"`
	InvoiceAmount string `json:"invoiceAmount,omitempty"`
	LedgerAmount  string `json:"ledgerAmount,omitempty"`
	PurchaseID    string `json:"purchaseId,omitempty"`
	InvoiceStatus string `json:"invoiceStatus,omitempty"`
	Anomaly       string `json:"anomaly,omitempty"`
}

// ReconReport summarises one reconciliation run.
type ReconReport struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Rows        int       `json:"rows"`
	Anomalies   int       `json:"anomalies"`
	CSVPath     string    `json:"csvPath"`
	ParquetPath string    `json:"parquetPath"`
}

// runRecon joins gateway invoices in [from, to) against the daemon's fiat
// purchase journal and writes the result as CSV and Parquet exports.
func (s *Server) runRecon(ctx context.Context, from, to time.Time) (*ReconReport, error) {
	invoices, err := s.store.ListInvoicesBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	credits, err := s.fetchFiatCredits(ctx)
	if err != nil {
		return nil, err
	}
	rows := buildReconRows(invoices, credits, from, to)

	if err := os.MkdirAll(s.reconDir, 0o755); err != nil {
		return nil, fmt.Errorf("create recon dir: %w", err)
	}
	stamp := fmt.Sprintf("%s-%s", from.UTC().Format("20060102T150405"), to.UTC().Format("20060102T150405"))
	csvPath := filepath.Join(s.reconDir, "recon-"+stamp+".csv")
	parquetPath := filepath.Join(s.reconDir, "recon-"+stamp+".parquet")

	if err := writeReconCSV(csvPath, rows); err != nil {
		return nil, err
	}
	s.metrics.RecordReconExport("csv")
	if err := writeReconParquet(parquetPath, rows); err != nil {
		return nil, err
	}
	s.metrics.RecordReconExport("parquet")

	anomalies := 0
	for _, row := range rows {
		if row.Anomaly != "" {
			anomalies++
		}
	}
	return &ReconReport{
		From:        from.UTC(),
		To:          to.UTC(),
		Rows:        len(rows),
		Anomalies:   anomalies,
		CSVPath:     csvPath,
		ParquetPath: parquetPath,
	}, nil
}

// fetchFiatCredits pages through the daemon's purchase journal and indexes
// fiat credits by payment reference.
func (s *Server) fetchFiatCredits(ctx context.Context) (map[string]LedgerPurchase, error) {
	const pageSize = 200
	credits := make(map[string]LedgerPurchase)
	cursor := ""
	for {
		page, err := s.node.ListPurchases(ctx, cursor, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list purchases: %w", err)
		}
		for _, purchase := range page.Purchases {
			if purchase.Source != sale.SourceFiat || purchase.PaymentID == "" {
				continue
			}
			credits[purchase.PaymentID] = purchase
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return credits, nil
}

func buildReconRows(invoices []*InvoiceRecord, credits map[string]LedgerPurchase, from, to time.Time) []ReconRow {
	rows := make([]ReconRow, 0, len(invoices))
	matched := make(map[string]struct{}, len(invoices))
	for _, inv := range invoices {
		row := ReconRow{
			InvoiceID:     inv.ID,
			PaymentID:     inv.PaymentID,
			Recipient:     inv.Recipient,
			InvoiceAmount: inv.TokenAmount,
			InvoiceStatus: inv.Status,
		}
		credit, ok := credits[inv.PaymentID]
		if ok {
			matched[inv.PaymentID] = struct{}{}
			row.LedgerAmount = credit.TokenAmount
			row.PurchaseID = credit.ID
		}
		switch {
		case inv.Status == InvoiceStatusSettled && !ok:
			row.Anomaly = AnomalyMissingCredit
		case inv.Status == InvoiceStatusSettled && credit.TokenAmount != inv.TokenAmount:
			row.Anomaly = AnomalyAmountMismatch
		case inv.Status != InvoiceStatusSettled && ok:
			row.Anomaly = AnomalyUnexpectedCredit
		}
		rows = append(rows, row)
	}

	// Ledger credits inside the window with no invoice on our side.
	orphans := make([]ReconRow, 0)
	for paymentID, credit := range credits {
		if _, ok := matched[paymentID]; ok {
			continue
		}
		ts := time.Unix(int64(credit.Timestamp), 0).UTC()
		if ts.Before(from) || !ts.Before(to) {
			continue
		}
		orphans = append(orphans, ReconRow{
			PaymentID:    paymentID,
			Recipient:    credit.Account,
			LedgerAmount: credit.TokenAmount,
			PurchaseID:   credit.ID,
			Anomaly:      AnomalyOrphanCredit,
		})
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].PaymentID < orphans[j].PaymentID })
	return append(rows, orphans...)
}

func writeReconCSV(path string, rows []ReconRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()
	cw := csv.NewWriter(file)
	header := []string{"invoice_id", "payment_id", "recipient", "invoice_amount", "ledger_amount", "purchase_id", "invoice_status", "anomaly"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.InvoiceID, row.PaymentID, row.Recipient, row.InvoiceAmount, row.LedgerAmount, row.PurchaseID, row.InvoiceStatus, row.Anomaly}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

type parquetReconRow struct {
	InvoiceID     string `parquet:"name=invoice_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	PaymentID     string `parquet:"name=payment_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Recipient     string `parquet:"name=recipient, type=BYTE_ARRAY, convertedtype=UTF8"`
	InvoiceAmount string `parquet:"name=invoice_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	LedgerAmount  string `parquet:"name=ledger_amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	PurchaseID    string `parquet:"name=purchase_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	InvoiceStatus string `parquet:"name=invoice_status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Anomaly       string `parquet:"name=anomaly, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeReconParquet(path string, rows []ReconRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetReconRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		pr := parquetReconRow{
			InvoiceID:     row.InvoiceID,
			PaymentID:     row.PaymentID,
			Recipient:     row.Recipient,
			InvoiceAmount: row.InvoiceAmount,
			LedgerAmount:  row.LedgerAmount,
			PurchaseID:    row.PurchaseID,
			InvoiceStatus: row.InvoiceStatus,
			Anomaly:       row.Anomaly,
		}
		if err := pw.Write(pr); err != nil {
			_ = pw.WriteStop()
			file.Close()
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("finalize parquet: %w", err)
	}
	return file.Close()
}
