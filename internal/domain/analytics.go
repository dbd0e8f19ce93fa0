package domain

import "time"

// AnalyticsPeriod selects the lookback window for farmer analytics.
type AnalyticsPeriod string

const (
	AnalyticsPeriod7Days  AnalyticsPeriod = "7d"
	AnalyticsPeriod30Days AnalyticsPeriod = "30d"
	AnalyticsPeriod90Days AnalyticsPeriod = "90d"
	AnalyticsPeriod1Year  AnalyticsPeriod = "1y"
)

// NormalizeAnalyticsPeriod maps unknown values to the 30 day default.
func NormalizeAnalyticsPeriod(raw string) AnalyticsPeriod {
	switch p := AnalyticsPeriod(raw); p {
	case AnalyticsPeriod7Days, AnalyticsPeriod30Days, AnalyticsPeriod90Days, AnalyticsPeriod1Year:
		return p
	}
	return AnalyticsPeriod30Days
}

// Days returns the number of calendar days covered by the period when it ends at now.
func (p AnalyticsPeriod) Days(now time.Time) int {
	switch p {
	case AnalyticsPeriod7Days:
		return 7
	case AnalyticsPeriod90Days:
		return 90
	case AnalyticsPeriod1Year:
		return int(now.Sub(now.AddDate(-1, 0, 0)).Hours() / 24)
	default:
		return 30
	}
}

// WindowStart returns the UTC midnight opening the window, so that the window spans exactly
// Days(now) calendar days with the current day last.
func (p AnalyticsPeriod) WindowStart(now time.Time) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -(p.Days(now) - 1))
}

// AnalyticsOverview summarises a farmer's sales in the window.
type AnalyticsOverview struct {
	TotalRevenue      int64
	TotalOrders       int
	CompletedOrders   int
	PendingOrders     int
	TotalCustomers    int
	AverageOrderValue float64
}

// SalesTrendPoint is the farmer revenue for one UTC calendar day.
type SalesTrendPoint struct {
	Date    string
	Revenue int64
}

// ProductPerformance accumulates sales for one of the farmer's products.
type ProductPerformance struct {
	ProductID    string
	Name         string
	TotalSold    int64
	TotalRevenue int64
	Stock        int64
}

// CustomerSummary accumulates one consumer's purchases from a farmer.
type CustomerSummary struct {
	ConsumerID string
	OrderCount int
	TotalSpent int64
}

// CustomerInsights describes the farmer's customer base in the window.
type CustomerInsights struct {
	RepeatCustomers int
	TopCustomers    []CustomerSummary
	CustomerCount   int
}

// AnalyticsReport bundles every farmer dashboard view.
type AnalyticsReport struct {
	FarmerID           string
	Period             AnalyticsPeriod
	WindowStart        time.Time
	WindowEnd          time.Time
	Overview           AnalyticsOverview
	SalesTrend         []SalesTrendPoint
	ProductPerformance []ProductPerformance
	CustomerInsights   CustomerInsights
	OrderStatus        map[OrderStatus]int
}
