package badgerdb

import (
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
	salePrefix     = "sale:"
	saleTimePrefix = "sale_t:"
)

// SaleStore implements domain.SaleStore on Badger. Each sale is written
// twice: once by ID for lookups and once under a timestamp-ordered key
// so time-bounded scans walk records in order.
type SaleStore struct {
	db *badger.DB
}

var _ domain.SaleStore = (*SaleStore)(nil)

// NewSaleStore creates a SaleStore on the shared client.
func NewSaleStore(c *Client) *SaleStore {
	return &SaleStore{db: c.db}
}

func saleTimeKey(sale domain.Sale) string {
	return saleTimePrefix + sale.CreatedAt.UTC().Format(time.RFC3339Nano) + ":" + sale.ID
}

func (s *SaleStore) Insert(ctx context.Context, sale domain.Sale) error {
	data, err := json.Marshal(sale)
	if err != nil {
		return fmt.Errorf("badgerdb: marshal sale %s: %w", sale.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(salePrefix+sale.ID), data); err != nil {
			return err
		}
		return txn.Set([]byte(saleTimeKey(sale)), data)
	})
	if err != nil {
		return fmt.Errorf("badgerdb: insert sale %s: %w", sale.ID, err)
	}
	return nil
}

func (s *SaleStore) GetByID(ctx context.Context, id string) (domain.Sale, error) {
	var sale domain.Sale
	if err := getJSON(s.db, salePrefix+id, &sale); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Sale{}, domain.ErrNotFound
		}
		return domain.Sale{}, fmt.Errorf("badgerdb: get sale %s: %w", id, err)
	}
	return sale, nil
}

func (s *SaleStore) ListByKey(ctx context.Context, key domain.Key, opts domain.ListOpts) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := scanPrefix(s.db, saleTimePrefix, func(val []byte) error {
		var sale domain.Sale
		if err := json.Unmarshal(val, &sale); err != nil {
			return err
		}
		if sale.Key == key {
			sales = append(sales, sale)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: list sales for %s: %w", key, err)
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].CreatedAt.After(sales[j].CreatedAt)
	})
	return paginate(sales, opts), nil
}

func (s *SaleStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := scanPrefix(s.db, saleTimePrefix, func(val []byte) error {
		if limit > 0 && len(sales) >= limit {
			return nil
		}
		var sale domain.Sale
		if err := json.Unmarshal(val, &sale); err != nil {
			return err
		}
		if sale.CreatedAt.Before(cutoff) {
			sales = append(sales, sale)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: list sales before %s: %w", cutoff, err)
	}
	return sales, nil
}

func (s *SaleStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := scanPrefix(s.db, saleTimePrefix, func(val []byte) error {
		var sale domain.Sale
		if err := json.Unmarshal(val, &sale); err != nil {
			return err
		}
		if inWindow(sale.CreatedAt, opts) {
			sales = append(sales, sale)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerdb: list sales: %w", err)
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].CreatedAt.After(sales[j].CreatedAt)
	})
	return paginate(sales, opts), nil
}

// CancellationStore implements domain.CancellationStore on Badger.
type CancellationStore struct {
	db *badger.DB
}

var _ domain.CancellationStore = (*CancellationStore)(nil)

// NewCancellationStore creates a CancellationStore on the shared client.
func NewCancellationStore(c *Client) *CancellationStore {
	return &CancellationStore{db: c.db}
}

func cancelKey(key domain.Key, modality domain.Modality) string {
	return "cancel:" + key.String() + ":" + string(modality)
}

func (s *CancellationStore) Insert(ctx context.Context, c domain.Cancellation) error {
	// Sticky marker: the first write wins.
	var existing domain.Cancellation
	err := getJSON(s.db, cancelKey(c.Key, c.Modality), &existing)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("badgerdb: insert cancellation %s: %w", c.Key, err)
	}
	if err := setJSON(s.db, cancelKey(c.Key, c.Modality), c); err != nil {
		return fmt.Errorf("badgerdb: insert cancellation %s: %w", c.Key, err)
	}
	return nil
}

func (s *CancellationStore) Get(ctx context.Context, key domain.Key, modality domain.Modality) (domain.Cancellation, error) {
	var c domain.Cancellation
	if err := getJSON(s.db, cancelKey(key, modality), &c); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Cancellation{}, domain.ErrNotFound
		}
		return domain.Cancellation{}, fmt.Errorf("badgerdb: get cancellation %s: %w", key, err)
	}
	return c, nil
}
