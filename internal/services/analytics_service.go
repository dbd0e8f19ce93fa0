package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const topCustomerLimit = 5

var (
	// ErrAnalyticsInvalidInput signals a missing farmer id.
	ErrAnalyticsInvalidInput = errors.New("analytics: invalid input")
	// ErrAnalyticsFailed wraps any fetch failure; no partial report is returned.
	ErrAnalyticsFailed = errors.New("analytics: computation failed")
)

// AnalyticsServiceDeps bundles collaborators required to construct the analytics service.
type AnalyticsServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type analyticsService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewAnalyticsService constructs the farmer analytics aggregator.
func NewAnalyticsService(deps AnalyticsServiceDeps) (AnalyticsService, error) {
	if deps.Orders == nil || deps.Products == nil {
		return nil, errors.New("analytics service: order and product repositories are required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &analyticsService{
		orders:   deps.Orders,
		products: deps.Products,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *analyticsService) ComputeFarmerAnalytics(ctx context.Context, farmerID string, period string) (AnalyticsReport, error) {
	farmerID = strings.TrimSpace(farmerID)
	if farmerID == "" {
		return AnalyticsReport{}, fmt.Errorf("%w: farmer id is required", ErrAnalyticsInvalidInput)
	}

	p := domain.NormalizeAnalyticsPeriod(period)
	now := s.clock()
	start := p.WindowStart(now)

	products, err := s.products.ListByFarmer(ctx, farmerID)
	if err != nil {
		s.logger(ctx, "analytics.products.failed", map[string]any{"farmer": farmerID, "error": err.Error()})
		return AnalyticsReport{}, fmt.Errorf("%w: load products: %v", ErrAnalyticsFailed, err)
	}

	productIDs := make([]string, 0, len(products))
	for _, product := range products {
		productIDs = append(productIDs, product.ID)
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		ProductIDs: productIDs,
		Created:    domain.RangeQuery[time.Time]{From: &start, To: &now},
	})
	if err != nil {
		s.logger(ctx, "analytics.orders.failed", map[string]any{"farmer": farmerID, "error": err.Error()})
		return AnalyticsReport{}, fmt.Errorf("%w: load orders: %v", ErrAnalyticsFailed, err)
	}

	// Only orders holding at least one line of this farmer count anywhere in the report.
	orders := slices.DeleteFunc(page.Items, func(o Order) bool { return !o.HasFarmer(farmerID) })

	return AnalyticsReport{
		FarmerID:           farmerID,
		Period:             p,
		WindowStart:        start,
		WindowEnd:          now,
		Overview:           overview(orders, farmerID),
		SalesTrend:         salesTrend(orders, farmerID, start, p.Days(now)),
		ProductPerformance: productPerformance(orders, products, farmerID),
		CustomerInsights:   customerInsights(orders, farmerID),
		OrderStatus:        statusDistribution(orders),
	}, nil
}

func overview(orders []Order, farmerID string) domain.AnalyticsOverview {
	var out domain.AnalyticsOverview
	customers := make(map[string]struct{})
	for _, order := range orders {
		out.TotalRevenue += order.FarmerRevenue(farmerID)
		out.TotalOrders++
		if order.Status == domain.OrderStatusDelivered {
			out.CompletedOrders++
		}
		customers[order.ConsumerID] = struct{}{}
	}
	out.PendingOrders = out.TotalOrders - out.CompletedOrders
	out.TotalCustomers = len(customers)
	if out.TotalOrders > 0 {
		out.AverageOrderValue = float64(out.TotalRevenue) / float64(out.TotalOrders)
	}
	return out
}

func salesTrend(orders []Order, farmerID string, start time.Time, days int) []domain.SalesTrendPoint {
	points := make([]domain.SalesTrendPoint, days)
	index := make(map[string]int, days)
	for i := range points {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		points[i] = domain.SalesTrendPoint{Date: date}
		index[date] = i
	}
	for _, order := range orders {
		if i, ok := index[order.CreatedAt.UTC().Format(time.DateOnly)]; ok {
			points[i].Revenue += order.FarmerRevenue(farmerID)
		}
	}
	return points
}

func productPerformance(orders []Order, products []Product, farmerID string) []domain.ProductPerformance {
	stats := make([]domain.ProductPerformance, len(products))
	index := make(map[string]int, len(products))
	for i, product := range products {
		stats[i] = domain.ProductPerformance{
			ProductID: product.ID,
			Name:      product.Name,
			Stock:     product.CurrentStock,
		}
		index[product.ID] = i
	}
	for _, order := range orders {
		for _, item := range order.Items {
			i, ok := index[item.ProductID]
			if !ok || item.FarmerID != farmerID {
				continue
			}
			stats[i].TotalSold += item.Quantity
			stats[i].TotalRevenue += item.Subtotal()
		}
	}

	sold := slices.DeleteFunc(slices.Clone(stats), func(p domain.ProductPerformance) bool { return p.TotalSold == 0 })
	if len(sold) > 0 {
		slices.SortStableFunc(sold, func(a, b domain.ProductPerformance) int { return cmp.Compare(b.TotalRevenue, a.TotalRevenue) })
		return sold
	}
	slices.SortStableFunc(stats, func(a, b domain.ProductPerformance) int { return cmp.Compare(b.Stock, a.Stock) })
	return stats
}

func customerInsights(orders []Order, farmerID string) domain.CustomerInsights {
	var summaries []domain.CustomerSummary
	index := make(map[string]int)
	for _, order := range orders {
		i, ok := index[order.ConsumerID]
		if !ok {
			i = len(summaries)
			index[order.ConsumerID] = i
			summaries = append(summaries, domain.CustomerSummary{ConsumerID: order.ConsumerID})
		}
		summaries[i].OrderCount++
		summaries[i].TotalSpent += order.FarmerRevenue(farmerID)
	}

	out := domain.CustomerInsights{CustomerCount: len(summaries)}
	for _, summary := range summaries {
		if summary.OrderCount > 1 {
			out.RepeatCustomers++
		}
	}
	slices.SortStableFunc(summaries, func(a, b domain.CustomerSummary) int { return cmp.Compare(b.TotalSpent, a.TotalSpent) })
	out.TopCustomers = summaries[:min(topCustomerLimit, len(summaries))]
	return out
}

func statusDistribution(orders []Order) map[domain.OrderStatus]int {
	out := make(map[domain.OrderStatus]int, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		out[status] = 0
	}
	for _, order := range orders {
		if order.Status.Valid() {
			out[order.Status]++
		}
	}
	return out
}
