package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// FixedStore persists fixed-price listings.
type FixedStore interface {
	Create(ctx context.Context, l FixedListing) error
	Update(ctx context.Context, l FixedListing) error
	Get(ctx context.Context, key Key) (FixedListing, error)
	ListActive(ctx context.Context, opts ListOpts) ([]FixedListing, error)
}

// EnglishStore persists English (ascending) auction listings.
type EnglishStore interface {
	Create(ctx context.Context, l EnglishListing) error
	Update(ctx context.Context, l EnglishListing) error
	Get(ctx context.Context, key Key) (EnglishListing, error)
	ListActive(ctx context.Context, opts ListOpts) ([]EnglishListing, error)
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]EnglishListing, error)
}

// DutchStore persists Dutch (descending) auction listings.
type DutchStore interface {
	Create(ctx context.Context, l DutchListing) error
	Update(ctx context.Context, l DutchListing) error
	Get(ctx context.Context, key Key) (DutchListing, error)
	ListActive(ctx context.Context, opts ListOpts) ([]DutchListing, error)
}

// BidStore persists escrowed auction bids. Push appends a new leader;
// the previous leader joins the superseded set. Clear removes every bid
// for an auction once settlement has refunded them.
type BidStore interface {
	Push(ctx context.Context, bid Bid) error
	State(ctx context.Context, key Key) (BidState, error)
	Clear(ctx context.Context, key Key) error
}

// SaleStore persists completed settlements.
type SaleStore interface {
	Insert(ctx context.Context, sale Sale) error
	GetByID(ctx context.Context, id string) (Sale, error)
	ListByKey(ctx context.Context, key Key, opts ListOpts) ([]Sale, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Sale, error)
	List(ctx context.Context, opts ListOpts) ([]Sale, error)
}

// CancellationStore persists sticky cancellation markers.
type CancellationStore interface {
	Insert(ctx context.Context, c Cancellation) error
	Get(ctx context.Context, key Key, modality Modality) (Cancellation, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]AuditEntry, error)
}
