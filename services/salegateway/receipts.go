package salegateway

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"
)

var receiptsBucket = []byte("receipts")

// Receipt preserves a raw provider callback exactly as it arrived.
type Receipt struct {
	Digest     string    `json:"digest"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"receivedAt"`
	Payload    []byte    `json:"payload"`
}

// ReceiptStore is an append-only archive of webhook payloads keyed by
// content digest. Storing the same payload twice is a no-op.
type ReceiptStore struct {
	db *bolt.DB
}

// OpenReceiptStore opens (creating if necessary) the receipt archive at path.
func OpenReceiptStore(path string) (*ReceiptStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open receipt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(receiptsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init receipt store: %w", err)
	}
	return &ReceiptStore{db: db}, nil
}

// Close releases the underlying database.
func (s *ReceiptStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put archives payload and returns its content digest.
func (s *ReceiptStore) Put(source string, receivedAt time.Time, payload []byte) (string, error) {
	sum := blake3.Sum256(payload)
	digest := hex.EncodeToString(sum[:])
	record := Receipt{
		Digest:     digest,
		Source:     source,
		ReceivedAt: receivedAt.UTC(),
		Payload:    payload,
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(receiptsBucket)
		if bucket.Get([]byte(digest)) != nil {
			return nil
		}
		return bucket.Put([]byte(digest), encoded)
	})
	if err != nil {
		return "", fmt.Errorf("store receipt: %w", err)
	}
	return digest, nil
}

// Get returns the archived receipt for digest, or nil when absent.
func (s *ReceiptStore) Get(digest string) (*Receipt, error) {
	var record *Receipt
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(receiptsBucket).Get([]byte(digest))
		if raw == nil {
			return nil
		}
		decoded := &Receipt{}
		if err := json.Unmarshal(raw, decoded); err != nil {
			return fmt.Errorf("decode receipt: %w", err)
		}
		record = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
