package sale

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Purchase sources recorded in the journal.
const (
	SourceNative = "purchase"
	SourceFiat   = "fiat"
)

// PurchaseRecord is one committed sale entry, whether funded by a native
// contribution or an off-chain fiat payment.
type PurchaseRecord struct {
	ID           string
	Account      common.Address
	Source       string
	PaymentID    string
	NativeAmount *big.Int
	UsdAmount    *big.Int
	TokenAmount  *big.Int
	Timestamp    uint64
}

// Clone returns a deep copy.
func (r *PurchaseRecord) Clone() *PurchaseRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.NativeAmount = cloneBigInt(r.NativeAmount)
	clone.UsdAmount = cloneBigInt(r.UsdAmount)
	clone.TokenAmount = cloneBigInt(r.TokenAmount)
	return &clone
}

type storedPurchaseRecord struct {
	ID           string
	Account      common.Address
	Source       string
	PaymentID    string
	NativeAmount *big.Int
	UsdAmount    *big.Int
	TokenAmount  *big.Int
	Timestamp    uint64
}

func (r *PurchaseRecord) stored() *storedPurchaseRecord {
	return &storedPurchaseRecord{
		ID:           r.ID,
		Account:      r.Account,
		Source:       r.Source,
		PaymentID:    r.PaymentID,
		NativeAmount: cloneBigInt(r.NativeAmount),
		UsdAmount:    cloneBigInt(r.UsdAmount),
		TokenAmount:  cloneBigInt(r.TokenAmount),
		Timestamp:    r.Timestamp,
	}
}

func (s *storedPurchaseRecord) record() *PurchaseRecord {
	return &PurchaseRecord{
		ID:           s.ID,
		Account:      s.Account,
		Source:       s.Source,
		PaymentID:    s.PaymentID,
		NativeAmount: cloneBigInt(s.NativeAmount),
		UsdAmount:    cloneBigInt(s.UsdAmount),
		TokenAmount:  cloneBigInt(s.TokenAmount),
		Timestamp:    s.Timestamp,
	}
}

type storedSequence struct {
	Next uint64
}

func (e *Engine) nextPurchaseID() (string, error) {
	var seq storedSequence
	if _, err := e.store.KVGet(sequenceKey, &seq); err != nil {
		return "", err
	}
	seq.Next++
	if err := e.store.KVPut(sequenceKey, seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("sale-%06d", seq.Next), nil
}

func (e *Engine) appendPurchase(rec *PurchaseRecord) error {
	if err := e.store.KVPut(purchaseKey(rec.ID), rec.stored()); err != nil {
		return err
	}
	return e.store.KVAppend(purchaseIndexKey, []byte(rec.ID))
}

func (e *Engine) purchaseByID(id string) (*PurchaseRecord, bool, error) {
	var stored storedPurchaseRecord
	ok, err := e.store.KVGet(purchaseKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.record(), true, nil
}

// maxPurchasePage bounds a single journal page.
const maxPurchasePage = 200

// Purchases returns journal entries in commit order, starting after the
// cursor ID. An empty cursor starts at the beginning. The returned cursor
// is empty once the journal is exhausted.
func (e *Engine) Purchases(cursor string, limit int) ([]*PurchaseRecord, string, error) {
	if e == nil || e.store == nil {
		return nil, "", ErrNotInitialized
	}
	if limit <= 0 || limit > maxPurchasePage {
		limit = maxPurchasePage
	}
	var ids [][]byte
	if err := e.store.KVGetList(purchaseIndexKey, &ids); err != nil {
		return nil, "", err
	}
	start := 0
	if cursor != "" {
		start = len(ids)
		for i, id := range ids {
			if string(id) == cursor {
				start = i + 1
				break
			}
		}
	}
	records := make([]*PurchaseRecord, 0, limit)
	next := ""
	for i := start; i < len(ids); i++ {
		if len(records) == limit {
			next = records[len(records)-1].ID
			break
		}
		rec, ok, err := e.purchaseByID(string(ids[i]))
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "", fmt.Errorf("sale: journal entry %s missing", ids[i])
		}
		records = append(records, rec)
	}
	return records, next, nil
}

// ExportJournalCSV renders the full journal as CSV and returns the byte
// payload along with the entry count.
func (e *Engine) ExportJournalCSV() ([]byte, int, error) {
	if e == nil || e.store == nil {
		return nil, 0, ErrNotInitialized
	}
	var ids [][]byte
	if err := e.store.KVGetList(purchaseIndexKey, &ids); err != nil {
		return nil, 0, err
	}
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	header := []string{"id", "account", "source", "payment_id", "native_amount", "usd_amount", "token_amount", "timestamp"}
	if err := writer.Write(header); err != nil {
		return nil, 0, err
	}
	count := 0
	for _, id := range ids {
		rec, ok, err := e.purchaseByID(string(id))
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			return nil, 0, fmt.Errorf("sale: journal entry %s missing", id)
		}
		row := []string{
			rec.ID,
			rec.Account.Hex(),
			rec.Source,
			rec.PaymentID,
			rec.NativeAmount.String(),
			rec.UsdAmount.String(),
			rec.TokenAmount.String(),
			strconv.FormatUint(rec.Timestamp, 10),
		}
		if err := writer.Write(row); err != nil {
			return nil, 0, err
		}
		count++
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), count, nil
}
