package services

import (
	"context"
	"database/sql"
	"sync"

	"github.com/eventcard/backend/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// ProductCatalog resolves cart items to the event's product prices.
type ProductCatalog interface {
	Products(ctx context.Context, eventID string, ids []string) (map[string]models.Product, error)
}

// priceCart totals a cart from catalog prices. Every product must belong to
// the event and every quantity must be positive.
func priceCart(ctx context.Context, catalog ProductCatalog, eventID string, items []models.CartItem) (decimal.Decimal, models.SaleDetail, error) {
	if catalog == nil || len(items) == 0 {
		return decimal.Zero, models.SaleDetail{}, ErrInvalidItems
	}

	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Quantity <= 0 {
			return decimal.Zero, models.SaleDetail{}, ErrInvalidItems
		}
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	products, err := catalog.Products(ctx, eventID, ids)
	if err != nil {
		return decimal.Zero, models.SaleDetail{}, err
	}

	total := decimal.Zero
	detail := models.SaleDetail{Items: make([]models.SaleItem, 0, len(items))}
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return decimal.Zero, models.SaleDetail{}, ErrInvalidItems
		}
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		detail.Items = append(detail.Items, models.SaleItem{
			ProductID: product.ID,
			Name:      product.Name,
			Qty:       item.Quantity,
			Price:     product.Price,
		})
	}
	return total, detail, nil
}

type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Products(ctx context.Context, eventID string, ids []string) (map[string]models.Product, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, event_id, name, price
		FROM products
		WHERE event_id = $1 AND id = ANY($2)`, eventID, pq.Array(ids))
	if err != nil {
		return nil, storageErr("load products", err)
	}
	defer rows.Close()

	products := make(map[string]models.Product, len(ids))
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.EventID, &p.Name, &p.Price); err != nil {
			return nil, storageErr("scan product", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load products", err)
	}
	return products, nil
}

// MemoryCatalog backs the in-memory store driver.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]models.Product
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[string]models.Product)}
}

func (c *MemoryCatalog) AddProduct(p models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

func (c *MemoryCatalog) Products(ctx context.Context, eventID string, ids []string) (map[string]models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	products := make(map[string]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok && p.EventID == eventID {
			products[id] = p
		}
	}
	return products, nil
}
