package sales

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *memoryRepo, guards ...func(http.Handler) http.Handler) chi.Router {
	svc, _, _ := newTestService(repo, true)
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r, guards...)
	return r
}

func serve(r http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandlerPricingPreview(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 2, "100.00", "80.00")
	r := newTestRouter(repo)

	rec := serve(r, http.MethodPost, "/record-sale/calculate-pricing",
		`{"items":[{"productId":1,"quantity":2}],"packagingCost":"10","discountPercentage":"50"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"finalTotal":"105"`)
	assert.Contains(t, rec.Body.String(), `"discountPercentage":"50"`)

	rec = serve(r, http.MethodPost, "/record-sale/calculate-pricing",
		`{"items":[{"productId":1,"quantity":1}],"discountPercentage":"5","finalPrice":"20"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPost, "/record-sale/calculate-pricing",
		`{"items":[{"productId":1,"quantity":1}],"discountPercentage":"120"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPost, "/record-sale/calculate-pricing",
		`{"items":[{"productId":1,"quantity":1}],"discountPercentage":"12.345649"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPost, "/record-sale/calculate-pricing", `{"items":[{"productId":1,"quantity":-1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCartItem(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(4, 2, "12.50", "10.00")
	r := newTestRouter(repo)

	rec := serve(r, http.MethodGet, "/record-sale/products/4/cart-item?quantity=2&isWholesale=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unitPrice":"10"`)
	assert.Contains(t, rec.Body.String(), `"subtotal":"20"`)

	rec = serve(r, http.MethodGet, "/record-sale/products/5/cart-item", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(r, http.MethodGet, "/record-sale/products/4/cart-item?quantity=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRecordUpdateDelete(t *testing.T) {
	repo := newMemoryRepo()
	repo.addProduct(1, 3, "100.00", "80.00")
	adminOnly := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Test-Admin") != "yes" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	r := newTestRouter(repo, adminOnly)

	body := `{"locationId":1,"paymentMethod":"CASH","items":[{"productId":1,"quantity":2}]}`
	rec := serve(r, http.MethodPost, "/record-sale/record", body, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"grandTotal":"200"`)
	assert.Contains(t, rec.Body.String(), `"productDescriptionSnapshot":"Gold ring 1"`)

	rec = serve(r, http.MethodPost, "/record-sale/record", body, IdempotencyHeader, "k-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int64(1), repo.stock(1))

	rec = serve(r, http.MethodPost, "/record-sale/record", `{"locationId":9,"paymentMethod":"CASH","items":[{"productId":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(r, http.MethodPost, "/record-sale/record", `{"locationId":1,"paymentMethod":"CASH","items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPost, "/record-sale/record", `{"locationId":1,"paymentMethod":"IOU","items":[{"productId":1,"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPut, "/sales/1", `{"id":2,"locationId":1,"paymentMethod":"CARD"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(r, http.MethodPut, "/sales/1", `{"id":1,"locationId":1,"paymentMethod":"CARD","finalPrice":"150"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"grandTotal":"150"`)
	assert.Contains(t, rec.Body.String(), `"discountKind":"FINAL_PRICE"`)

	rec = serve(r, http.MethodGet, "/sales/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"finalPrice":"150"`)

	rec = serve(r, http.MethodGet, "/sales?locationId=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = serve(r, http.MethodGet, "/sales?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodDelete, "/sales/1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, int64(1), repo.stock(1))

	rec = serve(r, http.MethodDelete, "/sales/1", "", "X-Test-Admin", "yes")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(3), repo.stock(1))

	rec = serve(r, http.MethodGet, "/sales/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
