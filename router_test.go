package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/maresto/inventory_backend/catalogsync"
	"github.com/maresto/inventory_backend/config"
	"github.com/maresto/inventory_backend/models"
	"gorm.io/driver/sqlite"
)

type stubFetcher struct{}

func (stubFetcher) FetchBranch(ctx context.Context, referenceId uuid.UUID) (*models.CatalogBranch, error) {
	return &models.CatalogBranch{Name: "Upstream Branch"}, nil
}

type apiFixture struct {
	router *gin.Engine
	token  string
	user   *models.User
	branch *models.Branch
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := config.OpenDatabase(sqlite.Open(filepath.Join(t.TempDir(), "api.db") + "?_busy_timeout=5000"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	prev := config.GetDB()
	config.SetDB(conn)
	t.Cleanup(func() {
		config.SetDB(prev)
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	ctx := context.Background()
	if err := models.AutoMigrate(ctx, conn); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	user, err := models.SaveUser(ctx, &models.NewUser{Name: "Owner", Email: "owner@api.test", Password: "password123"})
	if err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	token, _, err := models.IssueAccessToken(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	branch, err := models.CreateBranch(ctx, &models.NewBranch{Name: "Main Branch", ReferenceId: uuid.New(), UserId: user.ID}, nil)
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	svc := catalogsync.NewService(stubFetcher{}, nil)
	return &apiFixture{
		router: newRouter(config.Settings{}, svc, func() bool { return true }),
		token:  token,
		user:   user,
		branch: branch,
	}
}

func (f *apiFixture) do(t *testing.T, method string, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) branchPath(format string, args ...interface{}) string {
	return fmt.Sprintf("/branches/%d", f.branch.ID) + fmt.Sprintf(format, args...)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestPostingOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	burgerRef := uuid.New()
	if _, _, err := models.UpsertCatalogProducts(ctx, f.branch.ID, []models.CatalogProduct{{ReferenceId: burgerRef, Name: "Burger"}}); err != nil {
		t.Fatalf("UpsertCatalogProducts: %v", err)
	}

	w := f.do(t, http.MethodPost, f.branchPath("/specifications"), map[string]interface{}{
		"name": "Bun", "unit": "pc", "unit_name": "piece", "smallest_unit": 1, "raw_price": "5",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create specification: expected 201, got %d %s", w.Code, w.Body.String())
	}
	var spec models.Specification
	decode(t, w, &spec)

	w = f.do(t, http.MethodPost, f.branchPath("/specification/%d/purchase", spec.ID), map[string]interface{}{"quantity": 10, "price": "5"})
	if w.Code != http.StatusCreated {
		t.Fatalf("purchase: expected 201, got %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, f.branchPath("/products"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("products: expected 200, got %d", w.Code)
	}
	var products []models.ProductWithSpecifications
	decode(t, w, &products)
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}

	w = f.do(t, http.MethodPut, f.branchPath("/set-product-specification"), map[string]interface{}{
		"product_id": products[0].ID, "specification_id": spec.ID, "quantity": 2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("set edge: expected 200, got %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, f.branchPath("/transaction"), map[string]interface{}{
		"items": []map[string]interface{}{{"product_reference_id": burgerRef, "product_quantity": 3}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("transaction: expected 201, got %d %s", w.Code, w.Body.String())
	}
	var created struct {
		ID int `json:"id"`
	}
	decode(t, w, &created)

	w = f.do(t, http.MethodGet, f.branchPath("/transaction/%d", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get transaction: expected 200, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, f.branchPath("/bulk-transaction"), []map[string]interface{}{
		{"items": []map[string]interface{}{{"product_reference_id": burgerRef, "product_quantity": 1}}},
		{"items": []map[string]interface{}{{"product_reference_id": burgerRef, "product_quantity": 2}}},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("bulk: expected 201, got %d %s", w.Code, w.Body.String())
	}
	var bulk struct {
		Ids []int `json:"ids"`
	}
	decode(t, w, &bulk)
	if len(bulk.Ids) != 2 || bulk.Ids[0] >= bulk.Ids[1] {
		t.Fatalf("expected 2 ascending ids, got %v", bulk.Ids)
	}

	w = f.do(t, http.MethodGet, f.branchPath("/specification/%d/histories", spec.ID), nil)
	var histories []models.SpecificationHistory
	decode(t, w, &histories)
	// one purchase plus one OUT row per posted sale
	if len(histories) != 4 {
		t.Fatalf("expected 4 ledger rows, got %d", len(histories))
	}
	if histories[len(histories)-1].FlowType != models.FlowTypeIn {
		t.Fatalf("expected the purchase to be the oldest row, got %+v", histories[len(histories)-1])
	}
}

func TestBulkTransactionErrorsCarryIndices(t *testing.T) {
	f := newAPIFixture(t)
	path := f.branchPath("/bulk-transaction")
	known := uuid.New()
	if _, _, err := models.UpsertCatalogProducts(context.Background(), f.branch.ID, []models.CatalogProduct{{ReferenceId: known, Name: "Water"}}); err != nil {
		t.Fatalf("UpsertCatalogProducts: %v", err)
	}

	w := f.do(t, http.MethodPost, path, "[]")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty list: expected 422, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, path, []map[string]interface{}{
		{"items": []map[string]interface{}{{"product_reference_id": known, "product_quantity": 1}}},
		{"items": []map[string]interface{}{{"product_reference_id": known, "product_quantity": 0}}},
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid element: expected 422, got %d %s", w.Code, w.Body.String())
	}
	var invalid struct {
		Error map[string]string `json:"error"`
	}
	decode(t, w, &invalid)
	if invalid.Error["transactions.1.items.0.product_quantity"] == "" {
		t.Fatalf("expected an indexed field error, got %v", invalid.Error)
	}

	w = f.do(t, http.MethodPost, path, []map[string]interface{}{
		{"items": []map[string]interface{}{{"product_reference_id": known, "product_quantity": 1}}},
		{"items": []map[string]interface{}{{"product_reference_id": uuid.New(), "product_quantity": 1}}},
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown product: expected 404, got %d %s", w.Code, w.Body.String())
	}
	var missing map[string]interface{}
	decode(t, w, &missing)
	if missing["field"] != "transactions.1.items.0.product_reference_id" || missing["kind"] != "not_found" {
		t.Fatalf("unexpected error body %v", missing)
	}

	w = f.do(t, http.MethodPost, path, "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", w.Code)
	}

	var count int64
	if err := config.GetDB().Model(&models.Transaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected nothing posted, got %d transactions", count)
	}
}

func TestBranchRoutes(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/branch", map[string]interface{}{
		"name": "Airport Kiosk", "reference_id": uuid.New(), "user_id": f.user.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create branch: expected 201, got %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/branch", map[string]interface{}{"name": "abc"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid branch: expected 422, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, "/branches?user_id="+f.user.ID.String(), nil)
	var branches []models.Branch
	decode(t, w, &branches)
	if len(branches) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(branches))
	}
	if w := f.do(t, http.MethodGet, "/branches?user_id=nope", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad user_id, got %d", w.Code)
	}

	w = f.do(t, http.MethodGet, f.branchPath("/sync"), nil)
	var synced models.Branch
	decode(t, w, &synced)
	if w.Code != http.StatusOK || synced.Name != "Upstream Branch" {
		t.Fatalf("sync: expected the upstream name, got %d %+v", w.Code, synced)
	}

	if w := f.do(t, http.MethodGet, "/branches/999/products", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown branch, got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/nowhere", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown route, got %d", w.Code)
	}
}

func TestAuthAndReadiness(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/branches", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", w.Code)
	}

	notReady := newRouter(config.Settings{}, catalogsync.NewService(stubFetcher{}, nil), func() bool { return false })
	w = httptest.NewRecorder()
	notReady.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected /healthz to answer 204 before ready, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	notReady.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/branches", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", w.Code)
	}
}

func TestCorsConfig(t *testing.T) {
	var s config.Settings
	if c := corsConfig(s); !c.AllowAllOrigins || c.AllowCredentials {
		t.Fatalf("expected all origins without credentials outside production, got %+v", c)
	}

	s.GoEnv = "production"
	c := corsConfig(s)
	if c.AllowAllOrigins || c.AllowOriginFunc == nil || c.AllowOriginFunc("https://evil.test") {
		t.Fatalf("expected production without an allowlist to deny every origin")
	}

	s.CorsAllowedOrigins = " https://pos.test , ,https://admin.test"
	c = corsConfig(s)
	if len(c.AllowOrigins) != 2 || c.AllowOrigins[0] != "https://pos.test" || c.AllowOrigins[1] != "https://admin.test" {
		t.Fatalf("unexpected allowlist %v", c.AllowOrigins)
	}
	if !c.AllowCredentials {
		t.Fatalf("expected credentials with an explicit allowlist")
	}
}

func TestRateLimiterFailsOpenWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "1")
	rl := rateLimiterFromEnv()
	if rl == nil || rl.limit != 1 {
		t.Fatalf("expected a limiter with limit 1, got %+v", rl)
	}

	prev := config.GetRedisDB()
	config.SetRedisClient(nil)
	t.Cleanup(func() { config.SetRedisClient(prev) })

	r := gin.New()
	r.Use(rl.RateLimitMiddleware)
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204 without redis, got %d", i, w.Code)
		}
	}

	t.Setenv("RATE_LIMIT_ENABLED", "")
	if rateLimiterFromEnv() != nil {
		t.Fatalf("expected no limiter when disabled")
	}
}
