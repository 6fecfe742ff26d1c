package badgerdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/auctionhaus/marketd/internal/domain"
)

const (
	fixedPrefix   = "fixed:"
	englishPrefix = "english:"
	dutchPrefix   = "dutch:"
)

// getJSON loads and decodes one record, mapping a missing key to
// domain.ErrNotFound.
func getJSON(db *badger.DB, key string, out any) error {
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// setJSON encodes and writes one record.
func setJSON(db *badger.DB, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// scanPrefix decodes every record under a prefix into the collector.
func scanPrefix(db *badger.DB, prefix string, collect func(val []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				return collect(bytes.Clone(val))
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// inWindow applies ListOpts time filtering to one record.
func inWindow(createdAt time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && createdAt.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && createdAt.After(*opts.Until) {
		return false
	}
	return true
}

// paginate applies Offset and Limit to an already-sorted slice.
func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// FixedStore implements domain.FixedStore on Badger.
type FixedStore struct {
	db *badger.DB
}

var _ domain.FixedStore = (*FixedStore)(nil)

// NewFixedStore creates a FixedStore on the shared client.
func NewFixedStore(c *Client) *FixedStore {
	return &FixedStore{db: c.db}
}

func (s *FixedStore) Create(ctx context.Context, l domain.FixedListing) error {
	var existing domain.FixedListing
	err := getJSON(s.db, fixedPrefix+l.Key.String(), &existing)
	if err == nil && existing.Status == domain.ListingStatusActive {
		return domain.ErrAlreadyListed
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("badgerdb: create fixed listing %s: %w", l.Key, err)
	}
	if err := setJSON(s.db, fixedPrefix+l.Key.String(), l); err != nil {
		return fmt.Errorf("badgerdb: create fixed listing %s: %w", l.Key, err)
	}
	return nil
}

func (s *FixedStore) Update(ctx context.Context, l domain.FixedListing) error {
	var existing domain.FixedListing
	if err := getJSON(s.db, fixedPrefix+l.Key.String(), &existing); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("badgerdb: update fixed listing %s: %w", l.Key, err)
	}
	if err := setJSON(s.db, fixedPrefix+l.Key.String(), l); err != nil {
		return fmt.Errorf("badgerdb: update fixed listing %s: %w", l.Key, err)
	}
	return nil
}

func (s *FixedStore) Get(ctx context.Context, key domain.Key) (domain.FixedListing, error) {
	var l domain.FixedListing
	if err := getJSON(s.db, fixedPrefix+key.String(), &l); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.FixedListing{}, domain.ErrNotFound
		}
		return domain.FixedListing{}, fmt.Errorf("badgerdb: get fixed listing %s: %w", key, err)
	}
	return l, nil
}

func (s *FixedStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.FixedListing, error) {
	var listings []domain.FixedListing
	err := scanPrefix(s.db, fixedPrefix, func(val []byte) error {
		var l domain.FixedListing
		if err := json.Unmarshal(val, &l); err != nil {
			return err
		}
		if l.Status == domain.ListingStatusActive && inWindow(l.CreatedAt, opts) {
			listings = append(listings, l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: list active fixed listings: %w", err)
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].CreatedAt.After(listings[j].CreatedAt)
	})
	return paginate(listings, opts), nil
}

// EnglishStore implements domain.EnglishStore on Badger.
type EnglishStore struct {
	db *badger.DB
}

var _ domain.EnglishStore = (*EnglishStore)(nil)

// NewEnglishStore creates an EnglishStore on the shared client.
func NewEnglishStore(c *Client) *EnglishStore {
	return &EnglishStore{db: c.db}
}

func (s *EnglishStore) Create(ctx context.Context, l domain.EnglishListing) error {
	var existing domain.EnglishListing
	err := getJSON(s.db, englishPrefix+l.Key.String(), &existing)
	if err == nil && existing.Status == domain.ListingStatusActive {
		return domain.ErrAlreadyListed
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("badgerdb: create english auction %s: %w", l.Key, err)
	}
	if err := setJSON(s.db, englishPrefix+l.Key.String(), l); err != nil {
		return fmt.Errorf("badgerdb: create english auction %s: %w", l.Key, err)
	}
	return nil
}

func (s *EnglishStore) Update(ctx context.Context, l domain.EnglishListing) error {
	var existing domain.EnglishListing
	if err := getJSON(s.db, englishPrefix+l.Key.String(), &existing); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("badgerdb: update english auction %s: %w", l.Key, err)
	}
	if err := setJSON(s.db, englishPrefix+l.Key.String(), l); err != nil {
		return fmt.Errorf("badgerdb: update english auction %s: %w", l.Key, err)
	}
	return nil
}

func (s *EnglishStore) Get(ctx context.Context, key domain.Key) (domain.EnglishListing, error) {
	var l domain.EnglishListing
	if err := getJSON(s.db, englishPrefix+key.String(), &l); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.EnglishListing{}, domain.ErrNotFound
		}
		return domain.EnglishListing{}, fmt.Errorf("badgerdb: get english auction %s: %w", key, err)
	}
	return l, nil
}

func (s *EnglishStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.EnglishListing, error) {
	var listings []domain.EnglishListing
	err := scanPrefix(s.db, englishPrefix, func(val []byte) error {
		var l domain.EnglishListing
		if err := json.Unmarshal(val, &l); err != nil {
			return err
		}
		if l.Status == domain.ListingStatusActive && inWindow(l.CreatedAt, opts) {
			listings = append(listings, l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: list active english auctions: %w", err)
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].CreatedAt.After(listings[j].CreatedAt)
	})
	return paginate(listings, opts), nil
}

func (s *EnglishStore) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]domain.EnglishListing, error) {
	var listings []domain.EnglishListing
	err := scanPrefix(s.db, englishPrefix, func(val []byte) error {
		var l domain.EnglishListing
		if err := json.Unmarshal(val, &l); err != nil {
			return err
		}
		if l.Status == domain.ListingStatusActive && !l.EndAt.After(asOf) {
			listings = append(listings, l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: list expired english auctions: %w", err)
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].EndAt.Before(listings[j].EndAt)
	})
	if limit > 0 && limit < len(listings) {
		listings = listings[:limit]
	}
	return listings, nil
}

// DutchStore implements domain.DutchStore on Badger.
type DutchStore struct {
	db *badger.DB
}

var _ domain.DutchStore = (*DutchStore)(nil)

// NewDutchStore creates a DutchStore on the shared client.
func NewDutchStore(c *Client) *DutchStore {
	return &DutchStore{db: c.db}
}

func (s *DutchStore) Create(ctx context.Context, l domain.DutchListing) error {
	var existing domain.DutchListing
	err := getJSON(s.db, dutchPrefix+l.Key.String(), &existing)
	if err == nil && existing.Status == domain.ListingStatusActive {
		return domain.ErrAlreadyListed
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("badgerdb: create dutch auction %s: %w", l.Key, err)
	}
	if err := setJSON(s.db, dutchPrefix+l.Key.String(), l); err != nil {
		return fmt.Errorf("badgerdb: create dutch auction %s: %w", l.Key, err)
	}
	return nil
}

func (s *DutchStore) Update(ctx context.Context, l domain.DutchListing) error {
	var existing domain.DutchListing
	if err := getJSON(s.db, dutchPrefix+l.Key.String(), &existing); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("badgerdb: update dutch auction %s: %w", l.Key, err)
	}
	if err := setJSON(s.db, dutchPrefix+l.Key.String(), l); err != nil {
		return fmt.Errorf("badgerdb: update dutch auction %s: %w", l.Key, err)
	}
	return nil
}

func (s *DutchStore) Get(ctx context.Context, key domain.Key) (domain.DutchListing, error) {
	var l domain.DutchListing
	if err := getJSON(s.db, dutchPrefix+key.String(), &l); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.DutchListing{}, domain.ErrNotFound
		}
		return domain.DutchListing{}, fmt.Errorf("badgerdb: get dutch auction %s: %w", key, err)
	}
	return l, nil
}

func (s *DutchStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.DutchListing, error) {
	var listings []domain.DutchListing
	err := scanPrefix(s.db, dutchPrefix, func(val []byte) error {
		var l domain.DutchListing
		if err := json.Unmarshal(val, &l); err != nil {
			return err
		}
		if l.Status == domain.ListingStatusActive && inWindow(l.CreatedAt, opts) {
			listings = append(listings, l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: list active dutch auctions: %w", err)
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].CreatedAt.After(listings[j].CreatedAt)
	})
	return paginate(listings, opts), nil
}
