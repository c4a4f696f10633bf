package sales

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atelier-erp/atelier/internal/catalog"
	"github.com/atelier-erp/atelier/internal/shared"
)

// ErrInvalidQuantity is returned for cart quantities below one.
var ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrInvalidArgument)

// ProductReader loads a single product without locking it.
type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

// Resolver turns a product and quantity into a priced cart line. It never writes
// and never reserves stock.
type Resolver struct {
	products ProductReader
}

// NewResolver constructs a Resolver.
func NewResolver(products ProductReader) *Resolver {
	return &Resolver{products: products}
}

// Resolve loads the product and prices quantity units of it for the channel.
func (r *Resolver) Resolve(ctx context.Context, productID, quantity int64, wholesale bool) (CartLine, error) {
	if quantity <= 0 {
		return CartLine{}, ErrInvalidQuantity
	}
	product, err := r.products.GetProduct(ctx, productID)
	if err != nil {
		return CartLine{}, fmt.Errorf("resolve product %d: %w", productID, err)
	}
	return BuildLine(product, quantity, wholesale)
}

// BuildLine prices an already loaded product. Archived products are not sellable
// and report NotFound.
func BuildLine(product catalog.Product, quantity int64, wholesale bool) (CartLine, error) {
	if quantity <= 0 {
		return CartLine{}, ErrInvalidQuantity
	}
	if !product.Active() {
		return CartLine{}, fmt.Errorf("product %d is archived: %w", product.ID, shared.ErrNotFound)
	}
	price := product.PriceFor(wholesale)
	return CartLine{
		ProductID:    product.ID,
		Description:  product.Description,
		Quantity:     quantity,
		IsWholesale:  wholesale,
		UnitPrice:    price,
		Subtotal:     price.Mul(decimal.NewFromInt(quantity)).Round(2),
		CurrentStock: product.Stock,
		LowStock:     product.LowStock(),
	}, nil
}
