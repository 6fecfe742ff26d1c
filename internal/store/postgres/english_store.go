package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auctionhaus/marketd/internal/domain"
)

// EnglishStore implements domain.EnglishStore using PostgreSQL.
type EnglishStore struct {
	pool *pgxpool.Pool
}

var _ domain.EnglishStore = (*EnglishStore)(nil)

// NewEnglishStore creates a new EnglishStore backed by the given
// connection pool.
func NewEnglishStore(pool *pgxpool.Pool) *EnglishStore {
	return &EnglishStore{pool: pool}
}

const englishCols = `collection, token_id, seller, start_price::TEXT,
	start_at, end_at, status, created_at, updated_at`

// Create inserts a new auction row, overwriting only dead rows.
func (s *EnglishStore) Create(ctx context.Context, l domain.EnglishListing) error {
	const query = `
		INSERT INTO english_listings (
			collection, token_id, seller, start_price,
			start_at, end_at, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
		ON CONFLICT (collection, token_id) DO UPDATE SET
			seller      = EXCLUDED.seller,
			start_price = EXCLUDED.start_price,
			start_at    = EXCLUDED.start_at,
			end_at      = EXCLUDED.end_at,
			status      = EXCLUDED.status,
			created_at  = EXCLUDED.created_at,
			updated_at  = EXCLUDED.updated_at
		WHERE english_listings.status <> 'active'`

	tag, err := s.pool.Exec(ctx, query,
		l.Key.Collection.Hex(), int64(l.Key.TokenID), l.Seller.Hex(),
		l.StartPrice.String(), l.StartAt, l.EndAt,
		string(l.Status), l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create english auction %s: %w", l.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyListed
	}
	return nil
}

// Update rewrites an existing auction row.
func (s *EnglishStore) Update(ctx context.Context, l domain.EnglishListing) error {
	const query = `
		UPDATE english_listings SET
			seller      = $3,
			start_price = $4::numeric,
			start_at    = $5,
			end_at      = $6,
			status      = $7,
			updated_at  = $8
		WHERE collection = $1 AND token_id = $2`

	tag, err := s.pool.Exec(ctx, query,
		l.Key.Collection.Hex(), int64(l.Key.TokenID), l.Seller.Hex(),
		l.StartPrice.String(), l.StartAt, l.EndAt,
		string(l.Status), l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update english auction %s: %w", l.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves an auction by asset key.
func (s *EnglishStore) Get(ctx context.Context, key domain.Key) (domain.EnglishListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+englishCols+` FROM english_listings WHERE collection = $1 AND token_id = $2`,
		key.Collection.Hex(), int64(key.TokenID))
	l, err := scanEnglish(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.EnglishListing{}, domain.ErrNotFound
		}
		return domain.EnglishListing{}, fmt.Errorf("postgres: get english auction %s: %w", key, err)
	}
	return l, nil
}

// ListActive returns active auctions with pagination and optional time
// filtering.
func (s *EnglishStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.EnglishListing, error) {
	query := `SELECT ` + englishCols + ` FROM english_listings WHERE status = 'active'`
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
		return nil, fmt.Errorf("postgres: list active english auctions: %w", err)
	}
	defer rows.Close()

	return collectEnglish(rows)
}

// ListExpired returns active auctions whose window closed at or before
// asOf, oldest expiry first, for the settlement sweep.
func (s *EnglishStore) ListExpired(ctx context.Context, asOf time.Time, limit int) ([]domain.EnglishListing, error) {
	const query = `
		SELECT ` + englishCols + ` FROM english_listings
		WHERE status = 'active' AND end_at <= $1
		ORDER BY end_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired english auctions: %w", err)
	}
	defer rows.Close()

	return collectEnglish(rows)
}

func collectEnglish(rows pgx.Rows) ([]domain.EnglishListing, error) {
	var listings []domain.EnglishListing
	for rows.Next() {
		l, err := scanEnglish(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan english auction: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: english auction rows: %w", err)
	}
	return listings, nil
}

// scanEnglish scans a single auction row into a domain.EnglishListing.
func scanEnglish(row pgx.Row) (domain.EnglishListing, error) {
	var l domain.EnglishListing
	var collection, seller, startPrice, status string
	var tokenID int64
	err := row.Scan(
		&collection, &tokenID, &seller, &startPrice,
		&l.StartAt, &l.EndAt, &status, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.EnglishListing{}, err
	}
	l.Key = domain.Key{Collection: common.HexToAddress(collection), TokenID: uint64(tokenID)}
	l.Seller = common.HexToAddress(seller)
	l.Status = domain.ListingStatus(status)
	if l.StartPrice, err = parseBig(startPrice); err != nil {
		return domain.EnglishListing{}, err
	}
	return l, nil
}
