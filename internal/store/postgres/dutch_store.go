package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionhaus/marketd/internal/domain"
)

// DutchStore implements domain.DutchStore using PostgreSQL.
type DutchStore struct {
	pool *pgxpool.Pool
}

var _ domain.DutchStore = (*DutchStore)(nil)

// NewDutchStore creates a new DutchStore backed by the given connection
// pool.
func NewDutchStore(pool *pgxpool.Pool) *DutchStore {
	return &DutchStore{pool: pool}
}

const dutchCols = `collection, token_id, seller, start_price::TEXT, end_price::TEXT,
	discount_rate::TEXT, start_at, end_at, status, created_at, updated_at`

// Create inserts a new auction row, overwriting only dead rows.
func (s *DutchStore) Create(ctx context.Context, l domain.DutchListing) error {
	const query = `
		INSERT INTO dutch_listings (
			collection, token_id, seller, start_price, end_price,
			discount_rate, start_at, end_at, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10, $11)
		ON CONFLICT (collection, token_id) DO UPDATE SET
			seller        = EXCLUDED.seller,
			start_price   = EXCLUDED.start_price,
			end_price     = EXCLUDED.end_price,
			discount_rate = EXCLUDED.discount_rate,
			start_at      = EXCLUDED.start_at,
			end_at        = EXCLUDED.end_at,
			status        = EXCLUDED.status,
			created_at    = EXCLUDED.created_at,
			updated_at    = EXCLUDED.updated_at
		WHERE dutch_listings.status <> 'active'`

	tag, err := s.pool.Exec(ctx, query,
		l.Key.Collection.Hex(), int64(l.Key.TokenID), l.Seller.Hex(),
		l.StartPrice.String(), l.EndPrice.String(), l.DiscountRate.String(),
		l.StartAt, l.EndAt, string(l.Status), l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create dutch auction %s: %w", l.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyListed
	}
	return nil
}

// Update rewrites an existing auction row.
func (s *DutchStore) Update(ctx context.Context, l domain.DutchListing) error {
	const query = `
		UPDATE dutch_listings SET
			seller        = $3,
			start_price   = $4::numeric,
			end_price     = $5::numeric,
			discount_rate = $6::numeric,
			start_at      = $7,
			end_at        = $8,
			status        = $9,
			updated_at    = $10
		WHERE collection = $1 AND token_id = $2`

	tag, err := s.pool.Exec(ctx, query,
		l.Key.Collection.Hex(), int64(l.Key.TokenID), l.Seller.Hex(),
		l.StartPrice.String(), l.EndPrice.String(), l.DiscountRate.String(),
		l.StartAt, l.EndAt, string(l.Status), l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update dutch auction %s: %w", l.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves an auction by asset key.
func (s *DutchStore) Get(ctx context.Context, key domain.Key) (domain.DutchListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dutchCols+` FROM dutch_listings WHERE collection = $1 AND token_id = $2`,
		key.Collection.Hex(), int64(key.TokenID))
	l, err := scanDutch(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.DutchListing{}, domain.ErrNotFound
		}
		return domain.DutchListing{}, fmt.Errorf("postgres: get dutch auction %s: %w", key, err)
	}
	return l, nil
}

// ListActive returns active auctions with pagination and optional time
// filtering.
func (s *DutchStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.DutchListing, error) {
	query := `SELECT ` + dutchCols + ` FROM dutch_listings WHERE status = 'active'`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active dutch auctions: %w", err)
	}
	defer rows.Close()

	var listings []domain.DutchListing
	for rows.Next() {
		l, err := scanDutch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan dutch auction: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active dutch auctions rows: %w", err)
	}
	return listings, nil
}

// scanDutch scans a single auction row into a domain.DutchListing.
func scanDutch(row pgx.Row) (domain.DutchListing, error) {
	var l domain.DutchListing
	var collection, seller, startPrice, endPrice, rate, status string
	var tokenID int64
	err := row.Scan(
		&collection, &tokenID, &seller, &startPrice, &endPrice,
		&rate, &l.StartAt, &l.EndAt, &status, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.DutchListing{}, err
	}
	l.Key = domain.Key{Collection: common.HexToAddress(collection), TokenID: uint64(tokenID)}
	l.Seller = common.HexToAddress(seller)
	l.Status = domain.ListingStatus(status)
	if l.StartPrice, err = parseBig(startPrice); err != nil {
		return domain.DutchListing{}, err
	}
	if l.EndPrice, err = parseBig(endPrice); err != nil {
		return domain.DutchListing{}, err
	}
	if l.DiscountRate, err = parseBig(rate); err != nil {
		return domain.DutchListing{}, err
	}
	return l, nil
}
