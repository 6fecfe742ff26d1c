package badgerdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/auctionhaus/marketd/internal/domain"
)

const auditPrefix = "audit:"

// AuditStore implements domain.AuditStore on Badger. Entries are keyed
// by a zero-padded counter so a prefix scan walks them in append order.
type AuditStore struct {
	db   *badger.DB
	next atomic.Int64
}

var _ domain.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore on the shared client and resumes
// the counter from the highest existing entry.
func NewAuditStore(c *Client) (*AuditStore, error) {
	s := &AuditStore{db: c.db}

	var last int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(auditPrefix)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		// Reverse iteration starts past the prefix range.
		it.Seek([]byte(auditPrefix + "~"))
		if it.ValidForPrefix([]byte(auditPrefix)) {
			var e domain.AuditEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			last = e.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: resume audit counter: %w", err)
	}
	s.next.Store(last)
	return s, nil
}

func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	entry := domain.AuditEntry{
		ID:        s.next.Add(1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	key := fmt.Sprintf("%s%020d", auditPrefix, entry.ID)
	if err := setJSON(s.db, key, entry); err != nil {
		return fmt.Errorf("badgerdb: log audit event %s: %w", event, err)
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	err := scanPrefix(s.db, auditPrefix, func(val []byte) error {
		var e domain.AuditEntry
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if inWindow(e.CreatedAt, opts) {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: list audit entries: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID > entries[j].ID
	})
	return paginate(entries, opts), nil
}

func (s *AuditStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	err := scanPrefix(s.db, auditPrefix, func(val []byte) error {
		if limit > 0 && len(entries) >= limit {
			return nil
		}
		var e domain.AuditEntry
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		if e.CreatedAt.Before(cutoff) {
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: list audit entries before %s: %w", cutoff, err)
	}
	return entries, nil
}
