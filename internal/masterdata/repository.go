package masterdata

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom-wms/stockroom/internal/workflow"
)

// Repository reads the reference tables. The warehouse engines only need
// existence and contact lookups; listings serve the reference endpoints.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a Repository over the given pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) exists(ctx context.Context, table string, id int64) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&found)
	return found, err
}

// ProductExists reports whether the product id resolves.
func (r *Repository) ProductExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "products", id)
}

// SupplierExists reports whether the supplier id resolves.
func (r *Repository) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "suppliers", id)
}

// CustomerExists reports whether the customer id resolves.
func (r *Repository) CustomerExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, "customers", id)
}

// GetSupplier fetches a supplier by id.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx,
		`SELECT id, code, name, email, phone, address, created_at, updated_at FROM suppliers WHERE id = $1`, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.Address, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, workflow.ErrNotFound
	}
	return s, err
}

// GetProduct fetches a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx,
		`SELECT id, sku, name, unit, unit_price, created_at, updated_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.UnitPrice, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, workflow.ErrNotFound
	}
	return p, err
}

// ListProducts returns a filtered page of products with the total count.
func (r *Repository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	query := `SELECT id, sku, name, unit, unit_price, created_at, updated_at FROM products WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM products WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND (name ILIKE $1 OR sku ILIKE $1)`
		countQuery += ` AND (name ILIKE $1 OR sku ILIKE $1)`
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name ASC` + pageClause(&args, filters)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Unit, &p.UnitPrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// ListSuppliers returns a filtered page of suppliers with the total count.
func (r *Repository) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	query := `SELECT id, code, name, email, phone, address, created_at, updated_at FROM suppliers WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM suppliers WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND (name ILIKE $1 OR code ILIKE $1)`
		countQuery += ` AND (name ILIKE $1 OR code ILIKE $1)`
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name ASC` + pageClause(&args, filters)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.Address, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

// ListCustomers returns a filtered page of customers with the total count.
func (r *Repository) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	query := `SELECT id, code, name, email, phone, address, created_at, updated_at FROM customers WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM customers WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND (name ILIKE $1 OR code ILIKE $1)`
		countQuery += ` AND (name ILIKE $1 OR code ILIKE $1)`
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name ASC` + pageClause(&args, filters)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func pageClause(args *[]any, filters ListFilters) string {
	clause := ""
	if filters.Limit > 0 {
		*args = append(*args, filters.Limit)
		clause += ` LIMIT $` + strconv.Itoa(len(*args))
		*args = append(*args, filters.Offset)
		clause += ` OFFSET $` + strconv.Itoa(len(*args))
	}
	return clause
}
