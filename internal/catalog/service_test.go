package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/internal/shared"
)

type memoryRepo struct {
	products  map[int64]Product
	locations map[int64]Location
	customers map[int64]Customer
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products: map[int64]Product{
			1: {ID: 1, SKU: "RING-01", Description: "Silver ring", Status: StatusActive, Stock: 4, LowStockAlert: 2,
				FinalSellingPriceRetail: decimal.RequireFromString("120.00"), FinalSellingPriceWholesale: decimal.RequireFromString("90.00")},
		},
		locations: map[int64]Location{10: {ID: 10, Name: "Studio", Status: StatusActive}},
		customers: map[int64]Customer{20: {ID: 20, Name: "Marta", Status: StatusActive}},
	}
}

func (m *memoryRepo) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (m *memoryRepo) UpdateProduct(ctx context.Context, id int64, upd ProductUpdate) (Product, error) {
	p, err := m.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.FinalSellingPriceRetail != nil {
		p.FinalSellingPriceRetail = *upd.FinalSellingPriceRetail
	}
	if upd.FinalSellingPriceWholesale != nil {
		p.FinalSellingPriceWholesale = *upd.FinalSellingPriceWholesale
	}
	if upd.LowStockAlert != nil {
		p.LowStockAlert = *upd.LowStockAlert
	}
	m.products[id] = p
	return p, nil
}

func (m *memoryRepo) SetProductStatus(_ context.Context, id int64, from, to Status) error {
	p, ok := m.products[id]
	if !ok {
		return shared.ErrNotFound
	}
	if p.Status != from {
		return ErrInvalidTransition
	}
	p.Status = to
	m.products[id] = p
	return nil
}

func (m *memoryRepo) GetLocation(_ context.Context, id int64) (Location, error) {
	l, ok := m.locations[id]
	if !ok {
		return Location{}, shared.ErrNotFound
	}
	return l, nil
}

func (m *memoryRepo) SetLocationStatus(_ context.Context, id int64, from, to Status) error {
	l, ok := m.locations[id]
	if !ok {
		return shared.ErrNotFound
	}
	if l.Status != from {
		return ErrInvalidTransition
	}
	l.Status = to
	m.locations[id] = l
	return nil
}

func (m *memoryRepo) GetCustomer(_ context.Context, id int64) (Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return c, nil
}

type recordingAudit struct{ actions []string }

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return nil
}

func TestArchiveRestoreProduct(t *testing.T) {
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	inv := &countingInvalidator{}
	svc := NewService(repo, audit, inv, nil)
	ctx := context.Background()

	require.NoError(t, svc.ArchiveProduct(ctx, 1))
	assert.Equal(t, StatusArchived, repo.products[1].Status)
	require.ErrorIs(t, svc.ArchiveProduct(ctx, 1), ErrInvalidTransition)
	require.ErrorIs(t, svc.ArchiveProduct(ctx, 1), shared.ErrInvalidArgument)

	require.NoError(t, svc.RestoreProduct(ctx, 1))
	assert.True(t, repo.products[1].Active())
	require.ErrorIs(t, svc.RestoreProduct(ctx, 99), shared.ErrNotFound)

	assert.Equal(t, []string{"catalog:product_archive", "catalog:product_restore"}, audit.actions)
	assert.Equal(t, 2, inv.bumps)
}

func TestArchiveLocation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	require.NoError(t, svc.ArchiveLocation(context.Background(), 10))
	assert.False(t, repo.locations[10].Active())
	require.NoError(t, svc.RestoreLocation(context.Background(), 10))
	assert.True(t, repo.locations[10].Active())
}

func TestUpdateProductValidates(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	neg := decimal.RequireFromString("-1")

	_, err := svc.UpdateProduct(context.Background(), 1, ProductUpdate{})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
	_, err = svc.UpdateProduct(context.Background(), 1, ProductUpdate{FinalSellingPriceRetail: &neg})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	desc := "Gold ring"
	p, err := svc.UpdateProduct(context.Background(), 1, ProductUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Gold ring", p.Description)
}

func TestProductHelpers(t *testing.T) {
	p := newMemoryRepo().products[1]
	assert.True(t, p.PriceFor(true).Equal(decimal.RequireFromString("90")))
	assert.True(t, p.PriceFor(false).Equal(decimal.RequireFromString("120")))
	assert.False(t, p.LowStock())
	p.Stock = 2
	assert.True(t, p.LowStock())
}

func TestHandlerRoutes(t *testing.T) {
	repo := newMemoryRepo()
	r := chi.NewRouter()
	NewHandler(nil, NewService(repo, nil, nil, nil)).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/products/1/archive", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ARCHIVED"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/products/1", strings.NewReader(`{"finalSellingPriceRetail":"150.00"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, repo.products[1].FinalSellingPriceRetail.Equal(decimal.RequireFromString("150")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/locations/77/archive", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
