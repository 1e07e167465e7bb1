package sale

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/big"
	"testing"
)

func seedJournal(t *testing.T, f *saleFixture, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("SEED-%03d", i)
		if _, err := f.engine.ProcessFiatPayment(ownerAddr, secondAddr, big.NewInt(int64(i+1)), id); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
}

func TestJournalPagination(t *testing.T) {
	f := readySaleFixture(t)
	seedJournal(t, f, 7)

	page, next, err := f.engine.Purchases("", 3)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page) != 3 || next != "sale-000003" {
		t.Fatalf("page 1 = %d records, next %q", len(page), next)
	}
	if page[0].ID != "sale-000001" || page[2].ID != "sale-000003" {
		t.Fatalf("page 1 ids = %q..%q", page[0].ID, page[2].ID)
	}

	page, next, err = f.engine.Purchases(next, 3)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page) != 3 || next != "sale-000006" {
		t.Fatalf("page 2 = %d records, next %q", len(page), next)
	}

	page, next, err = f.engine.Purchases(next, 3)
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if len(page) != 1 || next != "" {
		t.Fatalf("page 3 = %d records, next %q, want 1 record and empty cursor", len(page), next)
	}
	if page[0].TokenAmount.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("last record amount = %s, want 7", page[0].TokenAmount)
	}

	page, next, err = f.engine.Purchases("no-such-id", 3)
	if err != nil {
		t.Fatalf("unknown cursor: %v", err)
	}
	if len(page) != 0 || next != "" {
		t.Fatalf("unknown cursor = %d records, next %q, want empty", len(page), next)
	}
}

func TestJournalMixesSources(t *testing.T) {
	f := readySaleFixture(t)
	if _, err := f.engine.Purchase(buyerAddr, nativeCoins(4)); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := f.engine.ProcessFiatPayment(ownerAddr, secondAddr, big.NewInt(25), "INV-77"); err != nil {
		t.Fatalf("fiat: %v", err)
	}
	page, _, err := f.engine.Purchases("", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("records = %d, want 2", len(page))
	}
	if page[0].Source != SourceNative || page[1].Source != SourceFiat {
		t.Fatalf("sources = %q, %q", page[0].Source, page[1].Source)
	}
	if page[1].PaymentID != "INV-77" {
		t.Fatalf("fiat payment id = %q", page[1].PaymentID)
	}
}

func TestExportJournalCSV(t *testing.T) {
	f := readySaleFixture(t)
	seedJournal(t, f, 4)

	payload, count, err := f.engine.ExportJournalCSV()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if count != 4 {
		t.Fatalf("count = %d, want 4", count)
	}
	rows, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want header + 4", len(rows))
	}
	if rows[0][0] != "id" || rows[0][6] != "token_amount" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "sale-000001" || rows[1][2] != SourceFiat {
		t.Fatalf("first row = %v", rows[1])
	}
	if rows[4][6] != "4" {
		t.Fatalf("last row token amount = %q, want 4", rows[4][6])
	}
}

func TestExportJournalCSVEmpty(t *testing.T) {
	f := newSaleFixture(t)
	payload, count, err := f.engine.ExportJournalCSV()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
	rows, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want header only", len(rows))
	}
}
