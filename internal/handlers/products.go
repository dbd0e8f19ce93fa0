package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/httpx"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

const maxProductBodySize = 32 * 1024

// ProductHandlers serves public browsing and farmer catalog management.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	clock   func() time.Time
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{
		authn:   authn,
		catalog: catalog,
		clock:   time.Now,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.With(h.require(auth.RoleFarmer)).Get("/farmer/my-products", h.listFarmerProducts)
	r.Get("/{productID}", h.getProduct)

	r.Group(func(farmer chi.Router) {
		farmer.Use(h.require(auth.RoleFarmer))
		farmer.Post("/", h.createProduct)
		farmer.Put("/{productID}", h.updateProduct)
		farmer.Delete("/{productID}", h.deleteProduct)
		farmer.Post("/{productID}/images:upload-url", h.createImageUpload)
		farmer.Post("/{productID}/images", h.attachImage)
	})
}

func (h *ProductHandlers) require(roles ...string) func(http.Handler) http.Handler {
	if h.authn == nil {
		return passthrough
	}
	return h.authn.RequireAuth(roles...)
}

type productRequest struct {
	Name           *string   `json:"name"`
	Description    *string   `json:"description"`
	Category       *string   `json:"category"`
	Price          *int64    `json:"price"`
	Unit           *string   `json:"unit"`
	CurrentStock   *int64    `json:"currentStock"`
	MinStock       *int64    `json:"minStock"`
	HarvestDate    *string   `json:"harvestDate"`
	FarmLocation   *string   `json:"farmLocation"`
	DeliveryRadius *int      `json:"deliveryRadius"`
	Tags           *[]string `json:"tags"`
	Status         *string   `json:"status"`
}

type imageUploadRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type attachImageRequest struct {
	ObjectPath string `json:"objectPath"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		Category:   strings.TrimSpace(query.Get("category")),
		FarmerID:   strings.TrimSpace(firstNonEmpty(query.Get("farmer"), query.Get("farmerId"))),
		Search:     strings.TrimSpace(query.Get("search")),
		Pagination: pager,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	products := h.buildProductList(page.Items)
	writeList(w, len(products), productListResponse{Products: products}, page.NextPageToken)
}

func (h *ProductHandlers) listFarmerProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	items, err := h.catalog.ListFarmerProducts(ctx, strings.TrimSpace(identity.UID))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	products := h.buildProductList(items)
	writeList(w, len(products), productListResponse{Products: products}, "")
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, productResponse{Product: h.buildProductPayload(product)})
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req productRequest
	if !decodeJSONBody(ctx, w, r, maxProductBodySize, &req) {
		return
	}
	harvest, err := parseOptionalDate(req.HarvestDate)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "harvestDate must be an RFC3339 timestamp or YYYY-MM-DD date", http.StatusBadRequest))
		return
	}

	cmd := services.CreateProductCommand{
		FarmerID:       strings.TrimSpace(identity.UID),
		Name:           deref(req.Name),
		Description:    deref(req.Description),
		Category:       deref(req.Category),
		Unit:           deref(req.Unit),
		FarmLocation:   deref(req.FarmLocation),
		MinStock:       req.MinStock,
		HarvestDate:    harvest,
		DeliveryRadius: req.DeliveryRadius,
	}
	if req.Price != nil {
		cmd.Price = *req.Price
	}
	if req.CurrentStock != nil {
		cmd.CurrentStock = *req.CurrentStock
	}
	if req.Tags != nil {
		cmd.Tags = *req.Tags
	}

	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, productResponse{Product: h.buildProductPayload(product)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req productRequest
	if !decodeJSONBody(ctx, w, r, maxProductBodySize, &req) {
		return
	}
	harvest, err := parseOptionalDate(req.HarvestDate)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "harvestDate must be an RFC3339 timestamp or YYYY-MM-DD date", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID:      strings.TrimSpace(chi.URLParam(r, "productID")),
		FarmerID:       strings.TrimSpace(identity.UID),
		Name:           req.Name,
		Description:    req.Description,
		Category:       req.Category,
		Price:          req.Price,
		Unit:           req.Unit,
		CurrentStock:   req.CurrentStock,
		MinStock:       req.MinStock,
		HarvestDate:    harvest,
		FarmLocation:   req.FarmLocation,
		DeliveryRadius: req.DeliveryRadius,
		Tags:           req.Tags,
		Status:         req.Status,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, productResponse{Product: h.buildProductPayload(product)})
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID")), strings.TrimSpace(identity.UID)); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, successEnvelope{Status: statusSuccess, Message: "product deleted"})
}

func (h *ProductHandlers) createImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req imageUploadRequest
	if !decodeJSONBody(ctx, w, r, maxProductBodySize, &req) {
		return
	}

	upload, err := h.catalog.CreateImageUpload(ctx, services.ImageUploadCommand{
		ProductID:   strings.TrimSpace(chi.URLParam(r, "productID")),
		FarmerID:    strings.TrimSpace(identity.UID),
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, imageUploadResponse{Upload: imageUploadPayload{
		ObjectPath: upload.ObjectPath,
		UploadURL:  upload.UploadURL,
		Method:     upload.Method,
		Headers:    upload.Headers,
		ExpiresAt:  formatTime(upload.ExpiresAt),
	}})
}

func (h *ProductHandlers) attachImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req attachImageRequest
	if !decodeJSONBody(ctx, w, r, maxProductBodySize, &req) {
		return
	}

	product, err := h.catalog.AttachImage(ctx, services.AttachImageCommand{
		ProductID:  strings.TrimSpace(chi.URLParam(r, "productID")),
		FarmerID:   strings.TrimSpace(identity.UID),
		ObjectPath: strings.TrimSpace(req.ObjectPath),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, productResponse{Product: h.buildProductPayload(product)})
}

func (h *ProductHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

type productListResponse struct {
	Products []productPayload `json:"products"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type imageUploadResponse struct {
	Upload imageUploadPayload `json:"upload"`
}

type imageUploadPayload struct {
	ObjectPath string            `json:"objectPath"`
	UploadURL  string            `json:"uploadUrl"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	ExpiresAt  string            `json:"expiresAt"`
}

type productPayload struct {
	ID             string                `json:"id"`
	FarmerID       string                `json:"farmerId"`
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	Category       string                `json:"category"`
	Price          int64                 `json:"price"`
	Unit           string                `json:"unit"`
	CurrentStock   int64                 `json:"currentStock"`
	MinStock       int64                 `json:"minStock"`
	Images         []productImagePayload `json:"images"`
	HarvestDate    string                `json:"harvestDate,omitempty"`
	Freshness      string                `json:"freshness,omitempty"`
	FarmLocation   string                `json:"farmLocation"`
	DeliveryRadius int                   `json:"deliveryRadius"`
	Tags           []string              `json:"tags"`
	Status         string                `json:"status"`
	AverageRating  float64               `json:"averageRating"`
	ReviewCount    int                   `json:"reviewCount"`
	CreatedAt      string                `json:"createdAt"`
	UpdatedAt      string                `json:"updatedAt,omitempty"`
}

type productImagePayload struct {
	URL        string `json:"url"`
	ObjectPath string `json:"objectPath,omitempty"`
}

func (h *ProductHandlers) buildProductList(items []services.Product) []productPayload {
	products := make([]productPayload, 0, len(items))
	for _, product := range items {
		products = append(products, h.buildProductPayload(product))
	}
	return products
}

func (h *ProductHandlers) buildProductPayload(product services.Product) productPayload {
	payload := productPayload{
		ID:             product.ID,
		FarmerID:       product.FarmerID,
		Name:           product.Name,
		Description:    product.Description,
		Category:       string(product.Category),
		Price:          product.Price,
		Unit:           string(product.Unit),
		CurrentStock:   product.CurrentStock,
		MinStock:       product.MinStock,
		Images:         make([]productImagePayload, 0, len(product.Images)),
		HarvestDate:    formatTime(product.HarvestDate),
		FarmLocation:   product.FarmLocation,
		DeliveryRadius: product.DeliveryRadius,
		Tags:           append([]string{}, product.Tags...),
		Status:         string(product.Status),
		AverageRating:  product.AverageRating,
		ReviewCount:    product.ReviewCount,
		CreatedAt:      formatTime(product.CreatedAt),
		UpdatedAt:      formatTime(product.UpdatedAt),
	}
	if !product.HarvestDate.IsZero() {
		payload.Freshness = domain.Freshness(product.HarvestDate, h.clock())
	}
	for _, image := range product.Images {
		payload.Images = append(payload.Images, productImagePayload{URL: image.URL, ObjectPath: image.ObjectPath})
	}
	return payload
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err, services.ErrCatalogInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not authorized to modify this product", http.StatusForbidden))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", trimSentinel(err, services.ErrCatalogConflict), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogImagesDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("image_uploads_disabled", "image uploads are not configured", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog repository unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process product request", http.StatusInternalServerError))
	}
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	ts, err := parseTimeParam(*raw)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
