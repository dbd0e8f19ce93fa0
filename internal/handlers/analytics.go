package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/httpx"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

// AnalyticsHandlers serves the farmer sales dashboard.
type AnalyticsHandlers struct {
	authn     *auth.Authenticator
	analytics services.AnalyticsService
}

// NewAnalyticsHandlers constructs a new AnalyticsHandlers instance.
func NewAnalyticsHandlers(authn *auth.Authenticator, analytics services.AnalyticsService) *AnalyticsHandlers {
	return &AnalyticsHandlers{authn: authn, analytics: analytics}
}

// Routes registers the /analytics endpoints.
func (h *AnalyticsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleFarmer))
	}
	r.Get("/farmer", h.farmerAnalytics)
}

func (h *AnalyticsHandlers) farmerAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_service_unavailable", "analytics service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	report, err := h.analytics.ComputeFarmerAnalytics(ctx, strings.TrimSpace(identity.UID), strings.TrimSpace(r.URL.Query().Get("period")))
	if err != nil {
		writeAnalyticsError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, analyticsResponse{Analytics: buildAnalyticsPayload(report)})
}

type analyticsResponse struct {
	Analytics analyticsPayload `json:"analytics"`
}

type analyticsPayload struct {
	Period             string                      `json:"period"`
	WindowStart        string                      `json:"windowStart"`
	WindowEnd          string                      `json:"windowEnd"`
	Overview           analyticsOverviewPayload    `json:"overview"`
	SalesTrend         []salesTrendPayload         `json:"salesTrend"`
	ProductPerformance []productPerformancePayload `json:"productPerformance"`
	CustomerInsights   customerInsightsPayload     `json:"customerInsights"`
	OrderStatus        map[string]int              `json:"orderStatus"`
}

type analyticsOverviewPayload struct {
	TotalRevenue      int64   `json:"totalRevenue"`
	TotalOrders       int     `json:"totalOrders"`
	CompletedOrders   int     `json:"completedOrders"`
	PendingOrders     int     `json:"pendingOrders"`
	TotalCustomers    int     `json:"totalCustomers"`
	AverageOrderValue float64 `json:"averageOrderValue"`
}

type salesTrendPayload struct {
	Date    string `json:"date"`
	Revenue int64  `json:"revenue"`
}

type productPerformancePayload struct {
	ProductID    string `json:"productId"`
	Name         string `json:"name"`
	TotalSold    int64  `json:"totalSold"`
	TotalRevenue int64  `json:"totalRevenue"`
	Stock        int64  `json:"stock"`
}

type customerInsightsPayload struct {
	RepeatCustomers int                      `json:"repeatCustomers"`
	TopCustomers    []customerSummaryPayload `json:"topCustomers"`
	CustomerCount   int                      `json:"customerCount"`
}

type customerSummaryPayload struct {
	ConsumerID string `json:"consumerId"`
	OrderCount int    `json:"orderCount"`
	TotalSpent int64  `json:"totalSpent"`
}

func buildAnalyticsPayload(report services.AnalyticsReport) analyticsPayload {
	payload := analyticsPayload{
		Period:      string(report.Period),
		WindowStart: formatTime(report.WindowStart),
		WindowEnd:   formatTime(report.WindowEnd),
		Overview: analyticsOverviewPayload{
			TotalRevenue:      report.Overview.TotalRevenue,
			TotalOrders:       report.Overview.TotalOrders,
			CompletedOrders:   report.Overview.CompletedOrders,
			PendingOrders:     report.Overview.PendingOrders,
			TotalCustomers:    report.Overview.TotalCustomers,
			AverageOrderValue: report.Overview.AverageOrderValue,
		},
		SalesTrend:         make([]salesTrendPayload, 0, len(report.SalesTrend)),
		ProductPerformance: make([]productPerformancePayload, 0, len(report.ProductPerformance)),
		CustomerInsights: customerInsightsPayload{
			RepeatCustomers: report.CustomerInsights.RepeatCustomers,
			TopCustomers:    make([]customerSummaryPayload, 0, len(report.CustomerInsights.TopCustomers)),
			CustomerCount:   report.CustomerInsights.CustomerCount,
		},
		OrderStatus: make(map[string]int, len(domain.OrderStatuses)),
	}
	for _, point := range report.SalesTrend {
		payload.SalesTrend = append(payload.SalesTrend, salesTrendPayload{Date: point.Date, Revenue: point.Revenue})
	}
	for _, perf := range report.ProductPerformance {
		payload.ProductPerformance = append(payload.ProductPerformance, productPerformancePayload{
			ProductID:    perf.ProductID,
			Name:         perf.Name,
			TotalSold:    perf.TotalSold,
			TotalRevenue: perf.TotalRevenue,
			Stock:        perf.Stock,
		})
	}
	for _, customer := range report.CustomerInsights.TopCustomers {
		payload.CustomerInsights.TopCustomers = append(payload.CustomerInsights.TopCustomers, customerSummaryPayload{
			ConsumerID: customer.ConsumerID,
			OrderCount: customer.OrderCount,
			TotalSpent: customer.TotalSpent,
		})
	}
	for _, status := range domain.OrderStatuses {
		payload.OrderStatus[string(status)] = report.OrderStatus[status]
	}
	return payload
}

func writeAnalyticsError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAnalyticsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err, services.ErrAnalyticsInvalidInput), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("analytics_error", "failed to compute analytics", http.StatusInternalServerError))
	}
}
