// Package ledger хранит журнал запусков выгрузки.
package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"wechat-daily-report/internal/domain"
	"wechat-daily-report/internal/ports"
)

var runsBucket = []byte("runs")

// BoltLedger хранит записи в файле bbolt в порядке добавления.
type BoltLedger struct {
	db *bbolt.DB
}

// Open открывает или создает файл журнала.
func Open(path string) (*BoltLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init ledger: %w", err)
	}
	return &BoltLedger{db: db}, nil
}

var _ ports.RunLedger = (*BoltLedger)(nil)

// Record добавляет записи одной транзакцией.
func (l *BoltLedger) Record(entries []domain.RunEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(runsBucket)
		for _, e := range entries {
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to encode run entry: %w", err)
			}
			if err := bucket.Put(sequenceKey(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recent возвращает до limit последних записей, новые первыми.
// limit <= 0 возвращает все записи.
func (l *BoltLedger) Recent(limit int) ([]domain.RunEntry, error) {
	entries := make([]domain.RunEntry, 0)
	err := l.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(runsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var e domain.RunEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to decode run entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

// Close закрывает файл журнала.
func (l *BoltLedger) Close() error {
	return l.db.Close()
}

// sequenceKey кодирует номер big-endian, чтобы порядок ключей совпадал с порядком записи.
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
