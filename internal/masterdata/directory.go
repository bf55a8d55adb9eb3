package masterdata

import (
	"context"

	"github.com/stockroom-wms/stockroom/internal/receipt"
)

// ProductCatalog adapts the repository to the engines' product lookups.
type ProductCatalog struct {
	repo *Repository
}

// NewProductCatalog returns the product lookup adapter.
func NewProductCatalog(repo *Repository) *ProductCatalog {
	return &ProductCatalog{repo: repo}
}

// Exists reports whether the product id resolves.
func (c *ProductCatalog) Exists(ctx context.Context, productID int64) (bool, error) {
	return c.repo.ProductExists(ctx, productID)
}

// SupplierDirectory adapts the repository to the receipt engine's supplier
// lookups.
type SupplierDirectory struct {
	repo *Repository
}

// NewSupplierDirectory returns the supplier lookup adapter.
func NewSupplierDirectory(repo *Repository) *SupplierDirectory {
	return &SupplierDirectory{repo: repo}
}

// Exists reports whether the supplier id resolves.
func (d *SupplierDirectory) Exists(ctx context.Context, supplierID int64) (bool, error) {
	return d.repo.SupplierExists(ctx, supplierID)
}

// Contact returns the supplier's name and confirmation e-mail address.
func (d *SupplierDirectory) Contact(ctx context.Context, supplierID int64) (receipt.SupplierContact, error) {
	s, err := d.repo.GetSupplier(ctx, supplierID)
	if err != nil {
		return receipt.SupplierContact{}, err
	}
	return receipt.SupplierContact{Name: s.Name, Email: s.Email}, nil
}

// CustomerDirectory adapts the repository to the issue engine's customer
// lookups.
type CustomerDirectory struct {
	repo *Repository
}

// NewCustomerDirectory returns the customer lookup adapter.
func NewCustomerDirectory(repo *Repository) *CustomerDirectory {
	return &CustomerDirectory{repo: repo}
}

// Exists reports whether the customer id resolves.
func (d *CustomerDirectory) Exists(ctx context.Context, customerID int64) (bool, error) {
	return d.repo.CustomerExists(ctx, customerID)
}
