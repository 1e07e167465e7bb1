package state

import (
	"math/big"
	"testing"

	"tokensale/storage"
)

type testRecord struct {
	Name   string
	Amount *big.Int
	Count  uint64
}

func TestManagerKVRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	in := testRecord{Name: "alpha", Amount: big.NewInt(42), Count: 7}
	if err := manager.KVPut([]byte("records/alpha"), &in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out testRecord
	ok, err := manager.KVGet([]byte("records/alpha"), &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected record to exist")
	}
	if out.Name != in.Name || out.Count != in.Count || out.Amount.Cmp(in.Amount) != 0 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestManagerKVGetMissing(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	var out testRecord
	ok, err := manager.KVGet([]byte("records/none"), &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key")
	}
	if _, err := manager.KVGet(nil, &out); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestManagerKVAppendDeduplicates(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	key := []byte("index/purchases")
	for _, id := range [][]byte{[]byte("a"), []byte("b"), []byte("a")} {
		if err := manager.KVAppend(key, id); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var list [][]byte
	if err := manager.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if string(list[0]) != "a" || string(list[1]) != "b" {
		t.Fatalf("unexpected order: %q %q", list[0], list[1])
	}
}

func TestManagerKVGetListEmpty(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	var list [][]byte
	if err := manager.KVGetList([]byte("index/none"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", list)
	}
}

func TestTxnReadsThroughOverlay(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	if err := manager.KVPut([]byte("k/base"), &testRecord{Name: "base"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	txn := manager.Begin()
	if err := txn.KVPut([]byte("k/new"), &testRecord{Name: "buffered"}); err != nil {
		t.Fatalf("txn put: %v", err)
	}

	var rec testRecord
	ok, err := txn.KVGet([]byte("k/base"), &rec)
	if err != nil || !ok {
		t.Fatalf("txn read of committed key: ok=%v err=%v", ok, err)
	}
	if rec.Name != "base" {
		t.Fatalf("unexpected committed read: %+v", rec)
	}
	ok, err = txn.KVGet([]byte("k/new"), &rec)
	if err != nil || !ok {
		t.Fatalf("txn read of buffered key: ok=%v err=%v", ok, err)
	}
	if rec.Name != "buffered" {
		t.Fatalf("unexpected buffered read: %+v", rec)
	}

	// Buffered writes are invisible outside the transaction until Commit.
	ok, err = manager.KVGet([]byte("k/new"), &rec)
	if err != nil {
		t.Fatalf("base read: %v", err)
	}
	if ok {
		t.Fatalf("buffered write leaked to committed state")
	}
}

func TestTxnCommitFlushesInOrder(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	txn := manager.Begin()
	if err := txn.KVPut([]byte("k/a"), &testRecord{Name: "a"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := txn.KVPut([]byte("k/b"), &testRecord{Name: "b"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := txn.KVPut([]byte("k/a"), &testRecord{Name: "a2"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got := txn.Pending(); got != 2 {
		t.Fatalf("expected 2 pending writes, got %d", got)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	var rec testRecord
	ok, err := manager.KVGet([]byte("k/a"), &rec)
	if err != nil || !ok {
		t.Fatalf("read after commit: ok=%v err=%v", ok, err)
	}
	if rec.Name != "a2" {
		t.Fatalf("last write should win, got %+v", rec)
	}
	if err := txn.Commit(); err == nil {
		t.Fatalf("expected reuse of finished txn to fail")
	}
}

func TestTxnDiscardLeavesDatabaseUntouched(t *testing.T) {
	db := storage.NewMemDB()
	manager := NewManager(db)
	if err := manager.KVPut([]byte("k/seed"), &testRecord{Name: "seed"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := db.Len()

	txn := manager.Begin()
	if err := txn.KVPut([]byte("k/x"), &testRecord{Name: "x"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := txn.KVAppend([]byte("index/x"), []byte("x")); err != nil {
		t.Fatalf("append: %v", err)
	}
	txn.Discard()

	if db.Len() != before {
		t.Fatalf("discard mutated the database: %d -> %d", before, db.Len())
	}
	var rec testRecord
	ok, err := manager.KVGet([]byte("k/x"), &rec)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ok {
		t.Fatalf("discarded write visible in committed state")
	}
}

func TestTxnAppendObservesBufferedList(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	if err := manager.KVAppend([]byte("index/p"), []byte("one")); err != nil {
		t.Fatalf("append: %v", err)
	}
	txn := manager.Begin()
	if err := txn.KVAppend([]byte("index/p"), []byte("two")); err != nil {
		t.Fatalf("txn append: %v", err)
	}
	if err := txn.KVAppend([]byte("index/p"), []byte("two")); err != nil {
		t.Fatalf("txn dedup append: %v", err)
	}
	var list [][]byte
	if err := txn.KVGetList([]byte("index/p"), &list); err != nil {
		t.Fatalf("txn get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries in overlay view, got %d", len(list))
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	list = nil
	if err := manager.KVGetList([]byte("index/p"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 || string(list[1]) != "two" {
		t.Fatalf("unexpected committed list: %v", list)
	}
}
