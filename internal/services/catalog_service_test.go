package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	pstorage "github.com/Hero-Alpha/KrishiSetu/internal/platform/storage"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories/memory"
)

type fakeImageStore struct {
	signed  []string
	deleted []string
	signErr error
}

func (f *fakeImageStore) SignedUploadURL(_ context.Context, object string, opts pstorage.UploadOptions) (pstorage.SignedURLResult, error) {
	if f.signErr != nil {
		return pstorage.SignedURLResult{}, f.signErr
	}
	f.signed = append(f.signed, object)
	return pstorage.SignedURLResult{
		URL:       "https://storage.example/" + object + "?sig=1",
		Method:    "PUT",
		ExpiresAt: testNow.Add(15 * time.Minute),
		Headers:   map[string]string{"Content-Type": opts.ContentType},
	}, nil
}

func (f *fakeImageStore) PublicURL(object string) string {
	return "https://cdn.example/" + object
}

func (f *fakeImageStore) DeleteObject(_ context.Context, object string) error {
	f.deleted = append(f.deleted, object)
	return nil
}

func newCatalogFixture(t *testing.T, images ProductImageStore) (CatalogService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	var seq int
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:   store.Products(),
		UnitOfWork: store,
		Images:     images,
		Clock:      func() time.Time { return testNow },
		IDGenerator: func() string {
			seq++
			return fmt.Sprintf("ID%03d", seq)
		},
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return svc, store
}

func validProduct(farmerID, name string) CreateProductCommand {
	return CreateProductCommand{
		FarmerID:     farmerID,
		Name:         name,
		Category:     "vegetables",
		Price:        40,
		Unit:         "kg",
		CurrentStock: 10,
	}
}

func TestCreateProductAppliesDefaults(t *testing.T) {
	svc, _ := newCatalogFixture(t, nil)

	cmd := validProduct("farmer-a", "  Heirloom Tomato ")
	cmd.Description = "<script>alert(1)</script>Sweet & <b>juicy</b>"
	cmd.Tags = []string{"Organic", "organic", " "}
	product, err := svc.CreateProduct(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	if product.ID != "prd_ID001" {
		t.Fatalf("expected generated id, got %s", product.ID)
	}
	if product.Name != "Heirloom Tomato" {
		t.Fatalf("expected trimmed name, got %q", product.Name)
	}
	if product.Description != "Sweet & juicy" {
		t.Fatalf("expected sanitised description, got %q", product.Description)
	}
	if product.MinStock != 5 || product.FarmLocation != "Local Farm" || product.DeliveryRadius != 25 {
		t.Fatalf("expected defaults, got min=%d location=%q radius=%d", product.MinStock, product.FarmLocation, product.DeliveryRadius)
	}
	if !product.HarvestDate.Equal(testNow) {
		t.Fatalf("expected harvest date to default to now, got %v", product.HarvestDate)
	}
	if product.Status != domain.ProductStatusActive {
		t.Fatalf("expected active product, got %s", product.Status)
	}
	if len(product.Tags) != 1 || product.Tags[0] != "organic" {
		t.Fatalf("expected deduplicated tags, got %v", product.Tags)
	}
}

func TestCreateProductWithoutStockIsOutOfStock(t *testing.T) {
	svc, _ := newCatalogFixture(t, nil)
	cmd := validProduct("farmer-a", "Okra")
	cmd.CurrentStock = 0
	product, err := svc.CreateProduct(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Status != domain.ProductStatusOutOfStock {
		t.Fatalf("expected out-of-stock, got %s", product.Status)
	}
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newCatalogFixture(t, nil)
	cases := map[string]func(*CreateProductCommand){
		"missing farmer": func(c *CreateProductCommand) { c.FarmerID = "" },
		"missing name":   func(c *CreateProductCommand) { c.Name = "<b></b>" },
		"long name":      func(c *CreateProductCommand) { c.Name = strings.Repeat("a", 101) },
		"bad category":   func(c *CreateProductCommand) { c.Category = "meat" },
		"bad unit":       func(c *CreateProductCommand) { c.Unit = "ton" },
		"zero price":     func(c *CreateProductCommand) { c.Price = 0 },
		"negative stock": func(c *CreateProductCommand) { c.CurrentStock = -1 },
		"long desc":      func(c *CreateProductCommand) { c.Description = strings.Repeat("x", 501) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := validProduct("farmer-a", "Tomato")
			mutate(&cmd)
			if _, err := svc.CreateProduct(context.Background(), cmd); !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
			}
		})
	}
}

func TestUpdateProductStockRecomputesStatus(t *testing.T) {
	svc, _ := newCatalogFixture(t, nil)
	product, err := svc.CreateProduct(context.Background(), validProduct("farmer-a", "Brinjal"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: product.ID, FarmerID: "farmer-a", CurrentStock: ptr[int64](0)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.ProductStatusOutOfStock {
		t.Fatalf("expected out-of-stock, got %s", updated.Status)
	}

	updated, err = svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: product.ID, FarmerID: "farmer-a", CurrentStock: ptr[int64](12), Price: ptr[int64](55)})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if updated.Status != domain.ProductStatusActive || updated.Price != 55 {
		t.Fatalf("expected active product at new price, got %s %d", updated.Status, updated.Price)
	}

	updated, err = svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: product.ID, FarmerID: "farmer-a", Status: ptr("inactive")})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if updated.Status != domain.ProductStatusInactive {
		t.Fatalf("expected inactive, got %s", updated.Status)
	}

	if _, err := svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: product.ID, FarmerID: "farmer-a", Status: ptr("out-of-stock")}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected manual out-of-stock status to be rejected, got %v", err)
	}
}

func TestUpdateProductOwnership(t *testing.T) {
	svc, _ := newCatalogFixture(t, nil)
	product, err := svc.CreateProduct(context.Background(), validProduct("farmer-a", "Cabbage"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: product.ID, FarmerID: "farmer-b", Price: ptr[int64](10)})
	if !errors.Is(err, ErrCatalogForbidden) {
		t.Fatalf("expected ErrCatalogForbidden, got %v", err)
	}
	_, err = svc.UpdateProduct(context.Background(), UpdateProductCommand{ProductID: "prd_missing", FarmerID: "farmer-a"})
	if !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestListProductsShowsActiveAndSearches(t *testing.T) {
	svc, store := newCatalogFixture(t, nil)
	ctx := context.Background()
	names := []string{"Red Tomato", "Cherry TOMATO", "Potato", "Straße Greens"}
	for i, name := range names {
		if err := store.Products().Insert(ctx, domain.Product{
			ID: fmt.Sprintf("p%d", i), FarmerID: "farmer-a", Name: name, Price: 10, CurrentStock: 5,
			Category: domain.CategoryVegetables, Unit: domain.UnitKilogram, Status: domain.ProductStatusActive,
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := store.Products().Insert(ctx, domain.Product{
		ID: "hidden", FarmerID: "farmer-a", Name: "Hidden Tomato", Price: 10,
		Category: domain.CategoryVegetables, Unit: domain.UnitKilogram, Status: domain.ProductStatusInactive, CreatedAt: testNow,
	}); err != nil {
		t.Fatalf("seed hidden: %v", err)
	}

	all, err := svc.ListProducts(ctx, ProductListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all.Items) != 4 {
		t.Fatalf("expected only active products, got %d", len(all.Items))
	}

	page, err := svc.ListProducts(ctx, ProductListFilter{Search: "tomato", Pagination: Pagination{PageSize: 1}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Name != "Cherry TOMATO" || page.NextPageToken == "" {
		t.Fatalf("expected newest tomato first with a next token, got %+v", page)
	}
	next, err := svc.ListProducts(ctx, ProductListFilter{Search: "tomato", Pagination: Pagination{PageSize: 1, PageToken: page.NextPageToken}})
	if err != nil {
		t.Fatalf("search page 2: %v", err)
	}
	if len(next.Items) != 1 || next.Items[0].Name != "Red Tomato" || next.NextPageToken != "" {
		t.Fatalf("expected last tomato, got %+v", next)
	}

	folded, err := svc.ListProducts(ctx, ProductListFilter{Search: "STRASSE"})
	if err != nil {
		t.Fatalf("folded search: %v", err)
	}
	if len(folded.Items) != 1 {
		t.Fatalf("expected case-folded match, got %d", len(folded.Items))
	}

	if _, err := svc.ListProducts(ctx, ProductListFilter{Category: "meat"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid category error, got %v", err)
	}
}

func TestImageUploadLifecycle(t *testing.T) {
	images := &fakeImageStore{}
	svc, _ := newCatalogFixture(t, images)
	ctx := context.Background()
	product, err := svc.CreateProduct(ctx, validProduct("farmer-a", "Mango"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	upload, err := svc.CreateImageUpload(ctx, ImageUploadCommand{ProductID: product.ID, FarmerID: "farmer-a", FileName: "mango.JPG", ContentType: "image/jpeg", SizeBytes: 1024})
	if err != nil {
		t.Fatalf("create upload: %v", err)
	}
	wantPrefix := "products/" + product.ID + "/images/"
	if !strings.HasPrefix(upload.ObjectPath, wantPrefix) || !strings.HasSuffix(upload.ObjectPath, ".jpg") {
		t.Fatalf("unexpected object path %s", upload.ObjectPath)
	}
	if upload.Method != "PUT" || upload.UploadURL == "" {
		t.Fatalf("unexpected upload %+v", upload)
	}

	attached, err := svc.AttachImage(ctx, AttachImageCommand{ProductID: product.ID, FarmerID: "farmer-a", ObjectPath: upload.ObjectPath})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if len(attached.Images) != 1 || attached.Images[0].URL != "https://cdn.example/"+upload.ObjectPath {
		t.Fatalf("expected attached image, got %+v", attached.Images)
	}
	again, err := svc.AttachImage(ctx, AttachImageCommand{ProductID: product.ID, FarmerID: "farmer-a", ObjectPath: upload.ObjectPath})
	if err != nil || len(again.Images) != 1 {
		t.Fatalf("expected idempotent attach, got %v %d", err, len(again.Images))
	}

	if err := svc.DeleteProduct(ctx, product.ID, "farmer-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(images.deleted) != 1 || images.deleted[0] != upload.ObjectPath {
		t.Fatalf("expected stored image removed, got %v", images.deleted)
	}
	if _, err := svc.GetProduct(ctx, product.ID); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected deleted product to be gone, got %v", err)
	}
}

func TestImageUploadRejections(t *testing.T) {
	images := &fakeImageStore{}
	svc, _ := newCatalogFixture(t, images)
	ctx := context.Background()
	product, err := svc.CreateProduct(ctx, validProduct("farmer-a", "Guava"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		name string
		cmd  ImageUploadCommand
		want error
	}{
		{"pdf", ImageUploadCommand{ProductID: product.ID, FarmerID: "farmer-a", FileName: "a.pdf", ContentType: "application/pdf"}, ErrCatalogInvalidInput},
		{"too large", ImageUploadCommand{ProductID: product.ID, FarmerID: "farmer-a", FileName: "a.png", ContentType: "image/png", SizeBytes: 6 << 20}, ErrCatalogInvalidInput},
		{"not owner", ImageUploadCommand{ProductID: product.ID, FarmerID: "farmer-b", FileName: "a.png", ContentType: "image/png"}, ErrCatalogForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateImageUpload(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	_, err = svc.AttachImage(ctx, AttachImageCommand{ProductID: product.ID, FarmerID: "farmer-a", ObjectPath: "products/other/images/x.png"})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected foreign object path to be rejected, got %v", err)
	}

	for i := 0; i < 5; i++ {
		object := fmt.Sprintf("products/%s/images/img%d.png", product.ID, i)
		if _, err := svc.AttachImage(ctx, AttachImageCommand{ProductID: product.ID, FarmerID: "farmer-a", ObjectPath: object}); err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
	}
	_, err = svc.CreateImageUpload(ctx, ImageUploadCommand{ProductID: product.ID, FarmerID: "farmer-a", FileName: "a.png", ContentType: "image/png"})
	if !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected image limit error, got %v", err)
	}
}

func TestImageUploadWithoutBucket(t *testing.T) {
	svc, _ := newCatalogFixture(t, nil)
	_, err := svc.CreateImageUpload(context.Background(), ImageUploadCommand{ProductID: "p", FarmerID: "f", ContentType: "image/png"})
	if !errors.Is(err, ErrCatalogImagesDisabled) {
		t.Fatalf("expected ErrCatalogImagesDisabled, got %v", err)
	}
}
