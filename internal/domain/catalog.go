package domain

import (
	"slices"
	"time"
)

// ProductStatus enumerates listing states for catalog products.
type ProductStatus string

const (
	// ProductStatusActive marks a product visible and purchasable.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive marks a product hidden by its farmer.
	ProductStatusInactive ProductStatus = "inactive"
	// ProductStatusOutOfStock marks a product whose stock reached zero.
	ProductStatusOutOfStock ProductStatus = "out-of-stock"
)

// ProductCategory groups products for browsing.
type ProductCategory string

const (
	CategoryVegetables ProductCategory = "vegetables"
	CategoryFruits     ProductCategory = "fruits"
	CategoryDairy      ProductCategory = "dairy"
	CategoryGrains     ProductCategory = "grains"
	CategoryHerbs      ProductCategory = "herbs"
	CategoryOthers     ProductCategory = "others"
)

// ProductUnit is the measurement unit a price refers to.
type ProductUnit string

const (
	UnitKilogram   ProductUnit = "kg"
	UnitGram       ProductUnit = "g"
	UnitLiter      ProductUnit = "liter"
	UnitMilliliter ProductUnit = "ml"
	UnitPiece      ProductUnit = "piece"
	UnitBunch      ProductUnit = "bunch"
	UnitDozen      ProductUnit = "dozen"
)

var (
	productCategories = []ProductCategory{CategoryVegetables, CategoryFruits, CategoryDairy, CategoryGrains, CategoryHerbs, CategoryOthers}
	productUnits      = []ProductUnit{UnitKilogram, UnitGram, UnitLiter, UnitMilliliter, UnitPiece, UnitBunch, UnitDozen}
	productStatuses   = []ProductStatus{ProductStatusActive, ProductStatusInactive, ProductStatusOutOfStock}
)

// Valid reports whether the category is one of the known categories.
func (c ProductCategory) Valid() bool { return slices.Contains(productCategories, c) }

// Valid reports whether the unit is one of the known units.
func (u ProductUnit) Valid() bool { return slices.Contains(productUnits, u) }

// Valid reports whether the status is one of the known listing states.
func (s ProductStatus) Valid() bool { return slices.Contains(productStatuses, s) }

// ProductImage references an uploaded product photo in object storage.
type ProductImage struct {
	URL        string
	ObjectPath string
}

// Product is a farmer-owned catalog listing.
type Product struct {
	ID             string
	FarmerID       string
	Name           string
	Description    string
	Category       ProductCategory
	Price          int64
	Unit           ProductUnit
	CurrentStock   int64
	MinStock       int64
	Images         []ProductImage
	HarvestDate    time.Time
	FarmLocation   string
	DeliveryRadius int
	Tags           []string
	Status         ProductStatus
	AverageRating  float64
	ReviewCount    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AdjustStock applies delta to the current stock and keeps the status in line
// with it: zero stock means out-of-stock, restored stock re-activates an
// out-of-stock listing. Inactive listings stay inactive.
func (p *Product) AdjustStock(delta int64) {
	p.CurrentStock += delta
	switch {
	case p.CurrentStock <= 0:
		p.CurrentStock = max(p.CurrentStock, 0)
		if p.Status != ProductStatusInactive {
			p.Status = ProductStatusOutOfStock
		}
	case p.Status == ProductStatusOutOfStock:
		p.Status = ProductStatusActive
	}
}

// Freshness labels days since harvest for display.
func Freshness(harvest, now time.Time) string {
	days := int(now.Sub(harvest).Abs().Hours() / 24)
	switch days {
	case 0:
		return "today"
	case 1:
		return "1-day"
	case 2:
		return "2-day"
	default:
		return "3+day"
	}
}

// Review is a consumer rating of a delivered product.
type Review struct {
	ID         string
	ProductID  string
	UserID     string
	OrderID    string
	Rating     int
	Comment    string
	IsVerified bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RatingSummary aggregates review ratings for a product.
type RatingSummary struct {
	AverageRating float64
	TotalReviews  int
	Distribution  map[int]int
}
