package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionhaus/marketd/internal/domain"
)

// FixedStore implements domain.FixedStore using PostgreSQL.
type FixedStore struct {
	pool *pgxpool.Pool
}

var _ domain.FixedStore = (*FixedStore)(nil)

// NewFixedStore creates a new FixedStore backed by the given connection pool.
func NewFixedStore(pool *pgxpool.Pool) *FixedStore {
	return &FixedStore{pool: pool}
}

const fixedCols = `collection, token_id, seller, price::TEXT, status, created_at, updated_at`

// Create inserts a new listing row. A live row for the same asset makes
// the insert fail on the primary key; relists of dead rows overwrite.
func (s *FixedStore) Create(ctx context.Context, l domain.FixedListing) error {
	const query = `
		INSERT INTO fixed_listings (
			collection, token_id, seller, price, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)
		ON CONFLICT (collection, token_id) DO UPDATE SET
			seller     = EXCLUDED.seller,
			price      = EXCLUDED.price,
			status     = EXCLUDED.status,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
		WHERE fixed_listings.status <> 'active'`

	tag, err := s.pool.Exec(ctx, query,
		l.Key.Collection.Hex(), int64(l.Key.TokenID), l.Seller.Hex(),
		l.Price.String(), string(l.Status), l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create fixed listing %s: %w", l.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyListed
	}
	return nil
}

// Update rewrites an existing listing row.
func (s *FixedStore) Update(ctx context.Context, l domain.FixedListing) error {
	const query = `
		UPDATE fixed_listings SET
			seller     = $3,
			price      = $4::numeric,
			status     = $5,
			updated_at = $6
		WHERE collection = $1 AND token_id = $2`

	tag, err := s.pool.Exec(ctx, query,
		l.Key.Collection.Hex(), int64(l.Key.TokenID), l.Seller.Hex(),
		l.Price.String(), string(l.Status), l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update fixed listing %s: %w", l.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves a listing by asset key.
func (s *FixedStore) Get(ctx context.Context, key domain.Key) (domain.FixedListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fixedCols+` FROM fixed_listings WHERE collection = $1 AND token_id = $2`,
		key.Collection.Hex(), int64(key.TokenID))
	l, err := scanFixed(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FixedListing{}, domain.ErrNotFound
		}
		return domain.FixedListing{}, fmt.Errorf("postgres: get fixed listing %s: %w", key, err)
	}
	return l, nil
}

// ListActive returns active listings with pagination and optional time
// filtering.
func (s *FixedStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.FixedListing, error) {
	query := `SELECT ` + fixedCols + ` FROM fixed_listings WHERE status = 'active'`
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
		return nil, fmt.Errorf("postgres: list active fixed listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.FixedListing
	for rows.Next() {
		l, err := scanFixed(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fixed listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active fixed listings rows: %w", err)
	}
	return listings, nil
}

// scanFixed scans a single listing row into a domain.FixedListing.
func scanFixed(row pgx.Row) (domain.FixedListing, error) {
	var l domain.FixedListing
	var collection, seller, price, status string
	var tokenID int64
	err := row.Scan(
		&collection, &tokenID, &seller, &price, &status,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.FixedListing{}, err
	}
	l.Key = domain.Key{Collection: common.HexToAddress(collection), TokenID: uint64(tokenID)}
	l.Seller = common.HexToAddress(seller)
	l.Status = domain.ListingStatus(status)
	if l.Price, err = parseBig(price); err != nil {
		return domain.FixedListing{}, err
	}
	return l, nil
}
