package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gunjou/be-toko-yani/internal/cache"
	"github.com/gunjou/be-toko-yani/internal/service"
	"github.com/gunjou/be-toko-yani/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopDebtTotalCache{}, false)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginToken(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token, got %v", body)
	}
	return token
}

func authedRequest(t *testing.T, method, target, token string, payload any) *http.Request {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestStockRequiresAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestProductCreateForbiddenForKasir(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	req := authedRequest(t, http.MethodPost, "/api/v1/products", token, map[string]any{
		"name":          "Beras 5kg",
		"unit":          "karung",
		"purchase_cost": 62000,
		"sale_price":    68000,
		"location_id":   1,
		"initial_stock": 10,
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for kasir, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	saleBody := map[string]any{
		"cashier_id":  2,
		"location_id": 1,
		"customer_id": 1,
		"total":       100,
		"cash":        60,
		"items": []map[string]any{
			{"product_id": 2, "qty": 2, "unit_price": 50},
		},
	}

	req := authedRequest(t, http.MethodPost, "/api/v1/sales", token, saleBody)
	req.Header.Set("Idempotency-Key", "http-sale-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var result map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode sale result: %v", err)
	}
	if result["shortfall"] != float64(40) {
		t.Fatalf("expected shortfall 40, got %v", result["shortfall"])
	}
	if result["debt_status"] != "belum lunas" {
		t.Fatalf("expected debt status belum lunas, got %v", result["debt_status"])
	}

	// Replay with the same key returns the stored outcome, not a new sale.
	req = authedRequest(t, http.MethodPost, "/api/v1/sales", token, saleBody)
	req.Header.Set("Idempotency-Key", "http-sale-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var replay map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&replay); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replay["duplicate"] != true {
		t.Fatalf("expected duplicate:true, got %v", replay["duplicate"])
	}

	// Pay the debt off and verify the FIFO walk response shape.
	req = authedRequest(t, http.MethodPost, "/api/v1/debts/pay", token, map[string]any{
		"customer_id": 1,
		"amount":      40,
	})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var payResp struct {
		Payments []struct {
			AmountApplied int64  `json:"amount_applied"`
			Status        string `json:"status"`
		} `json:"payments"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payResp); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	if len(payResp.Payments) != 1 || payResp.Payments[0].AmountApplied != 40 || payResp.Payments[0].Status != "lunas" {
		t.Fatalf("unexpected payments: %+v", payResp.Payments)
	}
}

func TestSaleInsufficientStockMapsTo422(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	req := authedRequest(t, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"cashier_id":  2,
		"location_id": 1,
		"total":       1000,
		"cash":        1000,
		"items": []map[string]any{
			{"product_id": 1, "qty": 5000, "unit_price": 3500},
		},
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSaleValidationMapsTo400(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	req := authedRequest(t, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"cashier_id":  2,
		"location_id": 1,
		"total":       1000,
		"cash":        1000,
		"items":       []map[string]any{},
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty items, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestTransferOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "admin", "admin123")

	req := authedRequest(t, http.MethodPost, "/api/v1/transfers", token, map[string]any{
		"product_id":              1,
		"source_location_id":      2,
		"destination_location_id": 1,
		"qty":                     30,
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var result map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode transfer: %v", err)
	}
	if result["source_location_name"] != "Gudang Utama" {
		t.Fatalf("expected denormalized names, got %v", result)
	}
}

func TestSelfTransferMapsTo422(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "admin", "admin123")

	req := authedRequest(t, http.MethodPost, "/api/v1/transfers", token, map[string]any{
		"product_id":              1,
		"source_location_id":      1,
		"destination_location_id": 1,
		"qty":                     5,
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestUserCreateAndLoginOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	adminToken := loginToken(t, handler, "admin", "admin123")

	req := authedRequest(t, http.MethodPost, "/api/v1/users", adminToken, map[string]any{
		"username": "Rina",
		"password": "rahasia-toko",
		"role":     "kasir",
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// The new account can log in immediately, case-insensitively.
	token := loginToken(t, handler, "rina", "rahasia-toko")
	stockReq := authedRequest(t, http.MethodGet, "/api/v1/stock", token, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, stockReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("new cashier should read stock, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestUserCreateForbiddenForKasir(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	req := authedRequest(t, http.MethodPost, "/api/v1/users", token, map[string]any{
		"username": "rina",
		"password": "rahasia-toko",
		"role":     "kasir",
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for kasir, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestDebtTotalForCustomerOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := loginToken(t, handler, "kasir", "kasir123")

	req := authedRequest(t, http.MethodGet, "/api/v1/debts/total?customer_id=1", token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var total map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&total); err != nil {
		t.Fatalf("decode total: %v", err)
	}
	if total["customer_name"] != "Ibu Sari" {
		t.Fatalf("expected Ibu Sari, got %v", total["customer_name"])
	}
	if total["total_balance"] != float64(0) {
		t.Fatalf("expected zero balance, got %v", total["total_balance"])
	}
}
