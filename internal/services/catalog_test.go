package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/eventcard/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresCatalog_Products(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	catalog := NewPostgresCatalog(db)

	t.Run("loads event products", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, event_id, name, price FROM products WHERE event_id = \\$1 AND id = ANY\\(\\$2\\)").
			WithArgs(testEvent, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "name", "price"}).
				AddRow("beer", testEvent, "Beer", "4.50"))

		products, err := catalog.Products(context.Background(), testEvent, []string{"beer", "ghost"})
		require.NoError(t, err)
		assert.Len(t, products, 1)
		assert.Equal(t, "4.50", products["beer"].Price.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		mock.ExpectQuery("FROM products").WillReturnError(errors.New("relation does not exist"))

		_, err := catalog.Products(context.Background(), testEvent, []string{"beer"})
		assert.ErrorIs(t, err, ErrStorageFailure)
	})
}

func TestPriceCart(t *testing.T) {
	ctx := context.Background()
	catalog := NewMemoryCatalog()
	catalog.AddProduct(models.Product{ID: "beer", EventID: testEvent, Name: "Beer", Price: dec("4.50")})

	t.Run("repeated product lines are summed", func(t *testing.T) {
		total, detail, err := priceCart(ctx, catalog, testEvent, []models.CartItem{
			{ProductID: "beer", Quantity: 1},
			{ProductID: "beer", Quantity: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, "13.50", total.StringFixed(2))
		assert.Len(t, detail.Items, 2)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, _, err := priceCart(ctx, catalog, testEvent, []models.CartItem{{ProductID: "ghost", Quantity: 1}})
		assert.ErrorIs(t, err, ErrInvalidItems)
	})

	t.Run("no catalog configured", func(t *testing.T) {
		_, _, err := priceCart(ctx, nil, testEvent, []models.CartItem{{ProductID: "beer", Quantity: 1}})
		assert.ErrorIs(t, err, ErrInvalidItems)
	})
}
