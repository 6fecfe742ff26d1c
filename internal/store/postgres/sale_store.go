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

// SaleStore implements domain.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *pgxpool.Pool
}

var _ domain.SaleStore = (*SaleStore)(nil)

// NewSaleStore creates a new SaleStore backed by the given connection pool.
func NewSaleStore(pool *pgxpool.Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

const saleCols = `id, collection, token_id, modality, seller, buyer, price::TEXT, created_at`

// Insert records a completed settlement.
func (s *SaleStore) Insert(ctx context.Context, sale domain.Sale) error {
	const query = `
		INSERT INTO sales (id, collection, token_id, modality, seller, buyer, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)`

	_, err := s.pool.Exec(ctx, query,
		sale.ID, sale.Key.Collection.Hex(), int64(sale.Key.TokenID),
		string(sale.Modality), sale.Seller.Hex(), sale.Buyer.Hex(),
		sale.Price.String(), sale.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert sale %s: %w", sale.ID, err)
	}
	return nil
}

// GetByID retrieves a sale by its primary key.
func (s *SaleStore) GetByID(ctx context.Context, id string) (domain.Sale, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+saleCols+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Sale{}, domain.ErrNotFound
		}
		return domain.Sale{}, fmt.Errorf("postgres: get sale %s: %w", id, err)
	}
	return sale, nil
}

// ListByKey returns the sale history of one asset, newest first.
func (s *SaleStore) ListByKey(ctx context.Context, key domain.Key, opts domain.ListOpts) ([]domain.Sale, error) {
	query := `SELECT ` + saleCols + ` FROM sales WHERE collection = $1 AND token_id = $2 ORDER BY created_at DESC`
	args := []any{key.Collection.Hex(), int64(key.TokenID)}
	argIdx := 3

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
		return nil, fmt.Errorf("postgres: list sales for %s: %w", key, err)
	}
	defer rows.Close()

	return collectSales(rows)
}

// ListBefore returns sales older than cutoff, oldest first, for the
// archiver.
func (s *SaleStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Sale, error) {
	const query = `
		SELECT ` + saleCols + ` FROM sales
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sales before %s: %w", cutoff, err)
	}
	defer rows.Close()

	return collectSales(rows)
}

// List returns sales with pagination and optional time filtering,
// newest first.
func (s *SaleStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Sale, error) {
	query := `SELECT ` + saleCols + ` FROM sales`
	args := []any{}
	argIdx := 1
	where := ""

	if opts.Since != nil {
		where = fmt.Sprintf(" WHERE created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		if where == "" {
			where = fmt.Sprintf(" WHERE created_at <= $%d", argIdx)
		} else {
			where += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		}
		args = append(args, *opts.Until)
		argIdx++
	}

	query += where + " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list sales: %w", err)
	}
	defer rows.Close()

	return collectSales(rows)
}

func collectSales(rows pgx.Rows) ([]domain.Sale, error) {
	var sales []domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: sale rows: %w", err)
	}
	return sales, nil
}

// scanSale scans a single sale row into a domain.Sale.
func scanSale(row pgx.Row) (domain.Sale, error) {
	var sale domain.Sale
	var collection, modality, seller, buyer, price string
	var tokenID int64
	err := row.Scan(
		&sale.ID, &collection, &tokenID, &modality,
		&seller, &buyer, &price, &sale.CreatedAt,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Key = domain.Key{Collection: common.HexToAddress(collection), TokenID: uint64(tokenID)}
	sale.Modality = domain.Modality(modality)
	sale.Seller = common.HexToAddress(seller)
	sale.Buyer = common.HexToAddress(buyer)
	if sale.Price, err = parseBig(price); err != nil {
		return domain.Sale{}, err
	}
	return sale, nil
}
