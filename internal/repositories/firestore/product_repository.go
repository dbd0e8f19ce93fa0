package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	pfirestore "github.com/Hero-Alpha/KrishiSetu/internal/platform/firestore"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	FarmerID       string                 `firestore:"farmerId"`
	Name           string                 `firestore:"name"`
	Description    string                 `firestore:"description"`
	Category       string                 `firestore:"category"`
	Price          int64                  `firestore:"price"`
	Unit           string                 `firestore:"unit"`
	CurrentStock   int64                  `firestore:"currentStock"`
	MinStock       int64                  `firestore:"minStock"`
	Images         []productImageDocument `firestore:"images,omitempty"`
	HarvestDate    time.Time              `firestore:"harvestDate"`
	FarmLocation   string                 `firestore:"farmLocation"`
	DeliveryRadius int                    `firestore:"deliveryRadius"`
	Tags           []string               `firestore:"tags,omitempty"`
	Status         string                 `firestore:"status"`
	AverageRating  float64                `firestore:"averageRating"`
	ReviewCount    int                    `firestore:"reviewCount"`
	CreatedAt      time.Time              `firestore:"createdAt"`
	UpdatedAt      time.Time              `firestore:"updatedAt"`
}

type productImageDocument struct {
	URL        string `firestore:"url"`
	ObjectPath string `firestore:"objectPath"`
}

// ProductRepository stores catalog listings in the products collection.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil),
	}, nil
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// Insert creates the product document and fails with a conflict when the id is taken.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.base.Create(ctx, product.ID, encodeProduct(product))
}

// Update overwrites the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	return r.base.Set(ctx, product.ID, encodeProduct(product))
}

// Delete removes the product document.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(productID))
}

// FindByID loads a product by id.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc), nil
}

// List returns products matching the filter, newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	var queryErr error
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if id := strings.TrimSpace(filter.FarmerID); id != "" {
			q = q.Where("farmerId", "==", id)
		}
		if filter.Category != "" {
			q = q.Where("category", "==", string(filter.Category))
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		q, queryErr = newestFirst(q, filter.Pagination)
		return q
	})
	if queryErr != nil {
		return domain.CursorPage[domain.Product]{}, queryErr
	}
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, decodeProduct(doc))
	}
	return trimPage(products, filter.Pagination.PageSize, productKey)
}

// ListByFarmer returns every product owned by the farmer regardless of status.
func (r *ProductRepository) ListByFarmer(ctx context.Context, farmerID string) ([]domain.Product, error) {
	page, err := r.List(ctx, repositories.ProductListFilter{FarmerID: farmerID})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func productKey(p domain.Product) (time.Time, string) { return p.CreatedAt, p.ID }

func encodeProduct(p domain.Product) productDocument {
	doc := productDocument{
		FarmerID:       p.FarmerID,
		Name:           p.Name,
		Description:    p.Description,
		Category:       string(p.Category),
		Price:          p.Price,
		Unit:           string(p.Unit),
		CurrentStock:   p.CurrentStock,
		MinStock:       p.MinStock,
		HarvestDate:    p.HarvestDate.UTC(),
		FarmLocation:   p.FarmLocation,
		DeliveryRadius: p.DeliveryRadius,
		Tags:           append([]string(nil), p.Tags...),
		Status:         string(p.Status),
		AverageRating:  p.AverageRating,
		ReviewCount:    p.ReviewCount,
		CreatedAt:      p.CreatedAt.UTC(),
		UpdatedAt:      p.UpdatedAt.UTC(),
	}
	for _, img := range p.Images {
		doc.Images = append(doc.Images, productImageDocument{URL: img.URL, ObjectPath: img.ObjectPath})
	}
	return doc
}

func decodeProduct(doc pfirestore.Document[productDocument]) domain.Product {
	d := doc.Data
	product := domain.Product{
		ID:             doc.ID,
		FarmerID:       d.FarmerID,
		Name:           d.Name,
		Description:    d.Description,
		Category:       domain.ProductCategory(d.Category),
		Price:          d.Price,
		Unit:           domain.ProductUnit(d.Unit),
		CurrentStock:   d.CurrentStock,
		MinStock:       d.MinStock,
		HarvestDate:    d.HarvestDate.UTC(),
		FarmLocation:   d.FarmLocation,
		DeliveryRadius: d.DeliveryRadius,
		Tags:           append([]string(nil), d.Tags...),
		Status:         domain.ProductStatus(d.Status),
		AverageRating:  d.AverageRating,
		ReviewCount:    d.ReviewCount,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = doc.CreateTime.UTC()
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = doc.UpdateTime.UTC()
	}
	for _, img := range d.Images {
		product.Images = append(product.Images, domain.ProductImage{URL: img.URL, ObjectPath: img.ObjectPath})
	}
	return product
}
