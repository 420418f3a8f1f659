package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Product is a catalog item. Price is stored in minor units.
type Product struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Price       int64     `json:"price"`
	ImageURL    string    `json:"imageUrl"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Stock       int32     `json:"stock"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ErrProductNotFound is returned when a lookup misses.
var ErrProductNotFound = errors.New("product not found")

// ListFilter narrows the product listing.
type ListFilter struct {
	Query    string
	Category string
	Limit    int
}

// Store is the persistence boundary for the catalog.
type Store interface {
	List(ctx context.Context, f ListFilter) ([]Product, error)
	GetByID(ctx context.Context, id uuid.UUID) (Product, error)
	Insert(ctx context.Context, p *Product) error
}

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore implements Store on Postgres.
type PGStore struct {
	DB DB
}

const productColumns = `id, name, price, image_url, category, description, stock, created_at`

// List returns products matching the filter, name search is case
// insensitive.
func (st *PGStore) List(ctx context.Context, f ListFilter) ([]Product, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var (
		conds []string
		args  []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if category := strings.TrimSpace(f.Category); category != "" {
		args = append(args, category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	query := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := st.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Category, &p.Description, &p.Stock, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetByID fetches one product.
func (st *PGStore) GetByID(ctx context.Context, id uuid.UUID) (Product, error) {
	var p Product
	row := st.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.ImageURL, &p.Category, &p.Description, &p.Stock, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// Insert stores a new product, assigning an id when missing.
func (st *PGStore) Insert(ctx context.Context, p *Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := st.DB.QueryRow(ctx,
		`INSERT INTO products (id, name, price, image_url, category, description, stock)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		p.ID, p.Name, p.Price, p.ImageURL, p.Category, p.Description, p.Stock)
	return row.Scan(&p.CreatedAt)
}
