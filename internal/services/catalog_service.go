package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/cases"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/pagination"
	pstorage "github.com/Hero-Alpha/KrishiSetu/internal/platform/storage"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const (
	productIDPrefix = "prd_"

	defaultMinStock       = int64(5)
	defaultFarmLocation   = "Local Farm"
	defaultDeliveryRadius = 25
	defaultMaxImageBytes  = int64(5 << 20)
	defaultMaxImages      = 5
	maxProductNameLength  = 100
	maxDescriptionLength  = 500

	catalogLoggerEventImageDelete = "catalog.image.delete.failed"
	catalogLoggerEventUpload      = "catalog.image.upload.issued"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog operation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product does not exist.
	ErrCatalogNotFound = errors.New("catalog: product not found")
	// ErrCatalogForbidden indicates the caller does not own the product.
	ErrCatalogForbidden = errors.New("catalog: forbidden")
	// ErrCatalogConflict indicates a concurrent write won.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates the backing store is temporarily unreachable.
	ErrCatalogUnavailable = errors.New("catalog: repository unavailable")
	// ErrCatalogImagesDisabled indicates no object storage bucket is configured.
	ErrCatalogImagesDisabled = errors.New("catalog: image uploads are not configured")
)

var imageContentTypes = []string{"image/*"}

// ProductImageStore signs uploads into and deletes objects from the product image bucket.
type ProductImageStore interface {
	SignedUploadURL(ctx context.Context, object string, opts pstorage.UploadOptions) (pstorage.SignedURLResult, error)
	PublicURL(object string) string
	DeleteObject(ctx context.Context, object string) error
}

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products      repositories.ProductRepository
	UnitOfWork    repositories.UnitOfWork
	Images        ProductImageStore
	UploadURLTTL  time.Duration
	MaxImageBytes int64
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products      repositories.ProductRepository
	unitOfWork    repositories.UnitOfWork
	images        ProductImageStore
	uploadTTL     time.Duration
	maxImageBytes int64
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
	fold          cases.Caser
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("catalog service: unit of work is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	maxBytes := deps.MaxImageBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	return &catalogService{
		products:      deps.Products,
		unitOfWork:    deps.UnitOfWork,
		images:        deps.Images,
		uploadTTL:     deps.UploadURLTTL,
		maxImageBytes: maxBytes,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
		fold:   cases.Fold(),
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	repoFilter := repositories.ProductListFilter{
		FarmerID:   strings.TrimSpace(filter.FarmerID),
		Status:     domain.ProductStatusActive,
		Pagination: filter.Pagination,
	}
	if raw := strings.TrimSpace(filter.Category); raw != "" {
		category := domain.ProductCategory(strings.ToLower(raw))
		if !category.Valid() {
			return domain.CursorPage[Product]{}, fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, raw)
		}
		repoFilter.Category = category
	}

	search := strings.TrimSpace(filter.Search)
	if search == "" {
		page, err := s.products.List(ctx, repoFilter)
		if err != nil {
			return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
		}
		return page, nil
	}

	// Name search has no index; filter the active listing in memory and page the matches.
	repoFilter.Pagination = Pagination{}
	all, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	needle := s.fold.String(search)
	matches := slices.DeleteFunc(all.Items, func(p Product) bool {
		return !strings.Contains(s.fold.String(p.Name), needle)
	})
	return pageProducts(matches, filter.Pagination)
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListFarmerProducts(ctx context.Context, farmerID string) ([]Product, error) {
	farmerID = strings.TrimSpace(farmerID)
	if farmerID == "" {
		return nil, fmt.Errorf("%w: farmer id is required", ErrCatalogInvalidInput)
	}
	products, err := s.products.ListByFarmer(ctx, farmerID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return products, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	farmerID := strings.TrimSpace(cmd.FarmerID)
	if farmerID == "" {
		return Product{}, fmt.Errorf("%w: farmer id is required", ErrCatalogInvalidInput)
	}

	now := s.clock()
	product := Product{
		ID:             productIDPrefix + s.newID(),
		FarmerID:       farmerID,
		MinStock:       defaultMinStock,
		HarvestDate:    now,
		FarmLocation:   defaultFarmLocation,
		DeliveryRadius: defaultDeliveryRadius,
		Status:         domain.ProductStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	patch := UpdateProductCommand{
		Name:           &cmd.Name,
		Description:    &cmd.Description,
		Category:       &cmd.Category,
		Price:          &cmd.Price,
		Unit:           &cmd.Unit,
		CurrentStock:   &cmd.CurrentStock,
		MinStock:       cmd.MinStock,
		HarvestDate:    cmd.HarvestDate,
		DeliveryRadius: cmd.DeliveryRadius,
		Tags:           &cmd.Tags,
	}
	if strings.TrimSpace(cmd.FarmLocation) != "" {
		patch.FarmLocation = &cmd.FarmLocation
	}
	if err := applyProductPatch(&product, patch); err != nil {
		return Product{}, err
	}
	product.AdjustStock(0)

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	var product Product
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		product, err = s.ownedProduct(txCtx, productID, cmd.FarmerID)
		if err != nil {
			return err
		}
		if err := applyProductPatch(&product, cmd); err != nil {
			return err
		}
		product.AdjustStock(0)
		product.UpdatedAt = s.clock()
		return s.mapRepositoryError(s.products.Update(txCtx, product))
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID, farmerID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.ownedProduct(ctx, productID, farmerID)
	if err != nil {
		return err
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}
	if s.images == nil {
		return nil
	}
	for _, image := range product.Images {
		if image.ObjectPath == "" {
			continue
		}
		if err := s.images.DeleteObject(ctx, image.ObjectPath); err != nil {
			s.logger(ctx, catalogLoggerEventImageDelete, map[string]any{
				"productId": productID,
				"object":    image.ObjectPath,
				"error":     err.Error(),
			})
		}
	}
	return nil
}

func (s *catalogService) CreateImageUpload(ctx context.Context, cmd ImageUploadCommand) (ImageUpload, error) {
	if s.images == nil {
		return ImageUpload{}, ErrCatalogImagesDisabled
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return ImageUpload{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	contentType := strings.ToLower(strings.TrimSpace(cmd.ContentType))
	if !pstorage.ContentTypeAllowed(contentType, imageContentTypes) {
		return ImageUpload{}, fmt.Errorf("%w: only image files are allowed", ErrCatalogInvalidInput)
	}
	if cmd.SizeBytes < 0 || cmd.SizeBytes > s.maxImageBytes {
		return ImageUpload{}, fmt.Errorf("%w: image must not exceed %d bytes", ErrCatalogInvalidInput, s.maxImageBytes)
	}

	product, err := s.ownedProduct(ctx, productID, cmd.FarmerID)
	if err != nil {
		return ImageUpload{}, err
	}
	if len(product.Images) >= defaultMaxImages {
		return ImageUpload{}, fmt.Errorf("%w: a product holds at most %d images", ErrCatalogInvalidInput, defaultMaxImages)
	}

	object, err := pstorage.BuildObjectPath(pstorage.PurposeProductImage, pstorage.PathParams{
		ProductID:   product.ID,
		ImageID:     s.newID(),
		FileName:    cmd.FileName,
		ContentType: contentType,
	})
	if err != nil {
		return ImageUpload{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	signed, err := s.images.SignedUploadURL(ctx, object, pstorage.UploadOptions{
		ContentType:         contentType,
		AllowedContentTypes: imageContentTypes,
		Size:                cmd.SizeBytes,
		MaxSize:             s.maxImageBytes,
		ExpiresIn:           s.uploadTTL,
	})
	if err != nil {
		if errors.Is(err, pstorage.ErrContentTypeDenied) || errors.Is(err, pstorage.ErrObjectTooLarge) {
			return ImageUpload{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
		return ImageUpload{}, fmt.Errorf("catalog: sign upload: %w", err)
	}

	s.logger(ctx, catalogLoggerEventUpload, map[string]any{
		"productId":   product.ID,
		"object":      object,
		"contentType": contentType,
	})
	return ImageUpload{
		ObjectPath: object,
		UploadURL:  signed.URL,
		Method:     signed.Method,
		Headers:    signed.Headers,
		ExpiresAt:  signed.ExpiresAt,
	}, nil
}

func (s *catalogService) AttachImage(ctx context.Context, cmd AttachImageCommand) (Product, error) {
	if s.images == nil {
		return Product{}, ErrCatalogImagesDisabled
	}
	productID := strings.TrimSpace(cmd.ProductID)
	object := strings.TrimSpace(cmd.ObjectPath)
	if productID == "" || object == "" {
		return Product{}, fmt.Errorf("%w: product id and object path are required", ErrCatalogInvalidInput)
	}
	if !strings.HasPrefix(object, pstorage.ProductImagePrefix(productID)) || strings.Contains(object, "..") {
		return Product{}, fmt.Errorf("%w: object path does not belong to the product", ErrCatalogInvalidInput)
	}

	var product Product
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		product, err = s.ownedProduct(txCtx, productID, cmd.FarmerID)
		if err != nil {
			return err
		}
		if slices.ContainsFunc(product.Images, func(img ProductImage) bool { return img.ObjectPath == object }) {
			return nil
		}
		if len(product.Images) >= defaultMaxImages {
			return fmt.Errorf("%w: a product holds at most %d images", ErrCatalogInvalidInput, defaultMaxImages)
		}
		product.Images = append(product.Images, ProductImage{URL: s.images.PublicURL(object), ObjectPath: object})
		product.UpdatedAt = s.clock()
		return s.mapRepositoryError(s.products.Update(txCtx, product))
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

func (s *catalogService) ownedProduct(ctx context.Context, productID, farmerID string) (Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	farmerID = strings.TrimSpace(farmerID)
	if farmerID == "" || product.FarmerID != farmerID {
		return Product{}, fmt.Errorf("%w: product %s belongs to another farmer", ErrCatalogForbidden, productID)
	}
	return product, nil
}

// applyProductPatch validates and applies every non-nil field of cmd.
func applyProductPatch(product *Product, cmd UpdateProductCommand) error {
	if cmd.Name != nil {
		name := sanitizePlainText(*cmd.Name)
		if name == "" {
			return fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
		}
		if utf8.RuneCountInString(name) > maxProductNameLength {
			return fmt.Errorf("%w: name cannot exceed %d characters", ErrCatalogInvalidInput, maxProductNameLength)
		}
		product.Name = name
	}
	if cmd.Description != nil {
		description := sanitizePlainText(*cmd.Description)
		if utf8.RuneCountInString(description) > maxDescriptionLength {
			return fmt.Errorf("%w: description cannot exceed %d characters", ErrCatalogInvalidInput, maxDescriptionLength)
		}
		product.Description = description
	}
	if cmd.Category != nil {
		category := domain.ProductCategory(strings.ToLower(strings.TrimSpace(*cmd.Category)))
		if !category.Valid() {
			return fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, *cmd.Category)
		}
		product.Category = category
	}
	if cmd.Price != nil {
		if *cmd.Price < 1 {
			return fmt.Errorf("%w: price must be at least 1", ErrCatalogInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Unit != nil {
		unit := domain.ProductUnit(strings.ToLower(strings.TrimSpace(*cmd.Unit)))
		if !unit.Valid() {
			return fmt.Errorf("%w: unknown unit %q", ErrCatalogInvalidInput, *cmd.Unit)
		}
		product.Unit = unit
	}
	if cmd.CurrentStock != nil {
		if *cmd.CurrentStock < 0 {
			return fmt.Errorf("%w: stock must not be negative", ErrCatalogInvalidInput)
		}
		product.CurrentStock = *cmd.CurrentStock
	}
	if cmd.MinStock != nil {
		if *cmd.MinStock < 0 {
			return fmt.Errorf("%w: minimum stock must not be negative", ErrCatalogInvalidInput)
		}
		product.MinStock = *cmd.MinStock
	}
	if cmd.HarvestDate != nil && !cmd.HarvestDate.IsZero() {
		product.HarvestDate = cmd.HarvestDate.UTC()
	}
	if cmd.FarmLocation != nil {
		location := sanitizePlainText(*cmd.FarmLocation)
		if location == "" {
			location = defaultFarmLocation
		}
		product.FarmLocation = location
	}
	if cmd.DeliveryRadius != nil {
		if *cmd.DeliveryRadius < 0 {
			return fmt.Errorf("%w: delivery radius must not be negative", ErrCatalogInvalidInput)
		}
		product.DeliveryRadius = *cmd.DeliveryRadius
	}
	if cmd.Tags != nil {
		product.Tags = normalizeTags(*cmd.Tags)
	}
	if cmd.Status != nil {
		status := domain.ProductStatus(strings.ToLower(strings.TrimSpace(*cmd.Status)))
		if status != domain.ProductStatusActive && status != domain.ProductStatusInactive {
			return fmt.Errorf("%w: status must be active or inactive", ErrCatalogInvalidInput)
		}
		product.Status = status
	}
	if product.Name == "" || product.Category == "" || product.Unit == "" || product.Price < 1 {
		return fmt.Errorf("%w: name, category, unit and price are required", ErrCatalogInvalidInput)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(sanitizePlainText(tag))
		if tag != "" && !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out
}

// pageProducts applies cursor paging to a newest-first product slice.
func pageProducts(items []Product, pager Pagination) (domain.CursorPage[Product], error) {
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	items = slices.DeleteFunc(items, func(p Product) bool { return !cursor.Follows(p.CreatedAt, p.ID) })
	if pager.PageSize <= 0 || len(items) <= pager.PageSize {
		return domain.CursorPage[Product]{Items: items}, nil
	}
	items = items[:pager.PageSize]
	last := items[len(items)-1]
	token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	if err != nil {
		return domain.CursorPage[Product]{}, err
	}
	return domain.CursorPage[Product]{Items: items, NextPageToken: token}, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}
