package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

func sampleProduct(now time.Time) services.Product {
	return services.Product{
		ID:             "prd_tomato",
		FarmerID:       "farmer-1",
		Name:           "Tomato",
		Category:       domain.CategoryVegetables,
		Price:          40,
		Unit:           domain.UnitKilogram,
		CurrentStock:   10,
		MinStock:       5,
		HarvestDate:    now.Add(-36 * time.Hour),
		FarmLocation:   "Local Farm",
		DeliveryRadius: 25,
		Status:         domain.ProductStatusActive,
		CreatedAt:      now,
	}
}

func newTestProductHandlers(svc services.CatalogService, now time.Time) *ProductHandlers {
	h := NewProductHandlers(nil, svc)
	h.clock = func() time.Time { return now }
	return h
}

func TestProductHandlersListPublic(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	var captured services.ProductListFilter
	svc := &stubCatalogService{
		listFn: func(_ context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			captured = filter
			return domain.CursorPage[services.Product]{Items: []services.Product{sampleProduct(now)}}, nil
		},
	}
	router := NewRouter(WithProductRoutes(newTestProductHandlers(svc, now).Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?category=vegetables&search=TOM&farmer=farmer-1&page_size=5", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Category != "vegetables" || captured.Search != "TOM" || captured.FarmerID != "farmer-1" || captured.Pagination.PageSize != 5 {
		t.Fatalf("unexpected filter %#v", captured)
	}

	var payload struct {
		Results int `json:"results"`
		Data    struct {
			Products []productPayload `json:"products"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Results != 1 || payload.Data.Products[0].Freshness != "1-day" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload.Data.Products[0].Images == nil || payload.Data.Products[0].Tags == nil {
		t.Fatalf("expected empty arrays rather than null")
	}
}

func TestProductHandlersGetNotFound(t *testing.T) {
	svc := &stubCatalogService{
		getFn: func(context.Context, string) (services.Product, error) {
			return services.Product{}, fmt.Errorf("%w: prd_x", services.ErrCatalogNotFound)
		},
	}
	router := NewRouter(WithProductRoutes(NewProductHandlers(nil, svc).Routes))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/prd_x", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestProductHandlersCreate(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	var captured services.CreateProductCommand
	svc := &stubCatalogService{
		createFn: func(_ context.Context, cmd services.CreateProductCommand) (services.Product, error) {
			captured = cmd
			return sampleProduct(now), nil
		},
	}
	router := NewRouter(WithProductRoutes(newTestProductHandlers(svc, now).Routes))

	body := `{"name":"Tomato","category":"vegetables","price":40,"unit":"kg","currentStock":10,"harvestDate":"2024-03-09","tags":["organic"]}`
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(body)), "farmer-1", "farmer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.FarmerID != "farmer-1" || captured.Price != 40 || captured.CurrentStock != 10 {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.HarvestDate == nil || !captured.HarvestDate.Equal(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected harvest date parsed, got %v", captured.HarvestDate)
	}
	if captured.MinStock != nil || captured.DeliveryRadius != nil {
		t.Fatalf("expected omitted optional fields to stay nil")
	}
	if len(captured.Tags) != 1 || captured.Tags[0] != "organic" {
		t.Fatalf("unexpected tags %v", captured.Tags)
	}
}

func TestProductHandlersCreateRejectsBadHarvestDate(t *testing.T) {
	router := NewRouter(WithProductRoutes(NewProductHandlers(nil, &stubCatalogService{}).Routes))
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"name":"x","harvestDate":"yesterday"}`)), "farmer-1", "farmer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestProductHandlersUpdatePatchSemantics(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	var captured services.UpdateProductCommand
	svc := &stubCatalogService{
		updateFn: func(_ context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
			captured = cmd
			return sampleProduct(now), nil
		},
	}
	router := NewRouter(WithProductRoutes(newTestProductHandlers(svc, now).Routes))
	req := withIdentity(httptest.NewRequest(http.MethodPut, "/api/v1/products/prd_tomato", strings.NewReader(`{"currentStock":0,"status":"inactive"}`)), "farmer-1", "farmer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.ProductID != "prd_tomato" || captured.FarmerID != "farmer-1" {
		t.Fatalf("unexpected ids %#v", captured)
	}
	if captured.CurrentStock == nil || *captured.CurrentStock != 0 {
		t.Fatalf("expected explicit zero stock to be forwarded")
	}
	if captured.Status == nil || *captured.Status != "inactive" {
		t.Fatalf("expected status forwarded")
	}
	if captured.Name != nil || captured.Price != nil || captured.Tags != nil {
		t.Fatalf("expected untouched fields to stay nil")
	}
}

func TestProductHandlersErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"forbidden", services.ErrCatalogForbidden, http.StatusForbidden},
		{"invalid", fmt.Errorf("%w: price must be at least 1", services.ErrCatalogInvalidInput), http.StatusBadRequest},
		{"missing", services.ErrCatalogNotFound, http.StatusNotFound},
		{"unavailable", services.ErrCatalogUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubCatalogService{
				deleteFn: func(context.Context, string, string) error { return tc.err },
			}
			router := NewRouter(WithProductRoutes(NewProductHandlers(nil, svc).Routes))
			req := withIdentity(httptest.NewRequest(http.MethodDelete, "/api/v1/products/prd_tomato", nil), "farmer-2", "farmer")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestProductHandlersDelete(t *testing.T) {
	var gotProduct, gotFarmer string
	svc := &stubCatalogService{
		deleteFn: func(_ context.Context, productID, farmerID string) error {
			gotProduct, gotFarmer = productID, farmerID
			return nil
		},
	}
	router := NewRouter(WithProductRoutes(NewProductHandlers(nil, svc).Routes))
	req := withIdentity(httptest.NewRequest(http.MethodDelete, "/api/v1/products/prd_tomato", nil), "farmer-1", "farmer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || gotProduct != "prd_tomato" || gotFarmer != "farmer-1" {
		t.Fatalf("unexpected delete outcome %d %s %s", rr.Code, gotProduct, gotFarmer)
	}
}

func TestProductHandlersImageUploadFlow(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	var uploadCmd services.ImageUploadCommand
	var attachCmd services.AttachImageCommand
	svc := &stubCatalogService{
		uploadFn: func(_ context.Context, cmd services.ImageUploadCommand) (services.ImageUpload, error) {
			uploadCmd = cmd
			return services.ImageUpload{
				ObjectPath: "products/prd_tomato/images/01hzx.jpg",
				UploadURL:  "https://storage.googleapis.com/signed",
				Method:     http.MethodPut,
				Headers:    map[string]string{"Content-Type": "image/jpeg"},
				ExpiresAt:  now.Add(15 * time.Minute),
			}, nil
		},
		attachFn: func(_ context.Context, cmd services.AttachImageCommand) (services.Product, error) {
			attachCmd = cmd
			product := sampleProduct(now)
			product.Images = []services.ProductImage{{URL: "https://storage.googleapis.com/bucket/" + cmd.ObjectPath, ObjectPath: cmd.ObjectPath}}
			return product, nil
		},
	}
	router := NewRouter(WithProductRoutes(newTestProductHandlers(svc, now).Routes))

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/products/prd_tomato/images:upload-url", strings.NewReader(`{"fileName":"tomato.jpg","contentType":"image/jpeg","sizeBytes":2048}`)), "farmer-1", "farmer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if uploadCmd.ProductID != "prd_tomato" || uploadCmd.ContentType != "image/jpeg" || uploadCmd.SizeBytes != 2048 {
		t.Fatalf("unexpected upload command %#v", uploadCmd)
	}
	var uploadPayload struct {
		Data imageUploadResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &uploadPayload); err != nil {
		t.Fatalf("failed to decode upload: %v", err)
	}
	if uploadPayload.Data.Upload.Method != http.MethodPut || uploadPayload.Data.Upload.ObjectPath == "" {
		t.Fatalf("unexpected upload payload %#v", uploadPayload)
	}

	req = withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/products/prd_tomato/images", strings.NewReader(`{"objectPath":"products/prd_tomato/images/01hzx.jpg"}`)), "farmer-1", "farmer")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if attachCmd.ObjectPath != "products/prd_tomato/images/01hzx.jpg" || attachCmd.FarmerID != "farmer-1" {
		t.Fatalf("unexpected attach command %#v", attachCmd)
	}
}

func TestProductHandlersImagesDisabled(t *testing.T) {
	svc := &stubCatalogService{
		uploadFn: func(context.Context, services.ImageUploadCommand) (services.ImageUpload, error) {
			return services.ImageUpload{}, services.ErrCatalogImagesDisabled
		},
	}
	router := NewRouter(WithProductRoutes(NewProductHandlers(nil, svc).Routes))
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/products/prd_tomato/images:upload-url", strings.NewReader(`{"contentType":"image/png"}`)), "farmer-1", "farmer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestProductHandlersFarmerRoutesRequireFarmerRole(t *testing.T) {
	router := NewRouter(WithProductRoutes(NewProductHandlers(tokenAuthenticator(), &stubCatalogService{}).Routes))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/farmer/my-products", nil)
	req.Header.Set("Authorization", "Bearer consumer-1:consumer")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/products/farmer/my-products", nil)
	req.Header.Set("Authorization", "Bearer farmer-1:farmer")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected public listing without token, got %d", rr.Code)
	}
}
