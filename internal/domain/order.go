package domain

import (
	"slices"
	"time"
)

// OrderStatus enumerates lifecycle states shared by orders and their line items.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every order and line item.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates the farmer accepted the line item.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing indicates the produce is being packed.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusShipped indicates the produce left the farm.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the consumer received the produce.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal. Only a consumer cancel releases reserved stock.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every known status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether the status is part of the closed status set.
func (s OrderStatus) Valid() bool { return slices.Contains(OrderStatuses, s) }

// PaymentMethod enumerates accepted payment options.
type PaymentMethod string

const (
	PaymentMethodUPI      PaymentMethod = "upi"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodRazorpay PaymentMethod = "razorpay"
)

// Valid reports whether the payment method is accepted.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodUPI, PaymentMethodCard, PaymentMethodCash, PaymentMethodRazorpay:
		return true
	}
	return false
}

// PaymentStatus tracks the payment sub-record. Only pending is ever written by the API.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// DefaultCurrency is the currency recorded on payment sub-records.
const DefaultCurrency = "INR"

// DeliveryAddress is the free-form destination captured at checkout.
type DeliveryAddress struct {
	Street  string
	City    string
	State   string
	Pincode string
	Phone   string
}

// OrderPayment stores the payment sub-record. Gateway fields are carried but never driven.
type OrderPayment struct {
	Method           PaymentMethod
	Status           PaymentStatus
	TransactionID    string
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           int64
	Currency         string
}

// OrderItem is one product line with its price and farmer snapshotted at order time.
type OrderItem struct {
	ProductID   string
	ProductName string
	Unit        ProductUnit
	Quantity    int64
	Price       int64
	FarmerID    string
	Status      OrderStatus
}

// Subtotal returns price times quantity for the line.
func (i OrderItem) Subtotal() int64 {
	return i.Price * i.Quantity
}

// Order is a consumer purchase spanning one or more farmers.
type Order struct {
	ID                string
	OrderNumber       string
	ConsumerID        string
	Items             []OrderItem
	TotalAmount       int64
	DeliveryFee       int64
	FinalAmount       int64
	Status            OrderStatus
	DeliveryAddress   DeliveryAddress
	Payment           OrderPayment
	EstimatedDelivery time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FarmerIDs returns the distinct farmers owning at least one line, in item order.
func (o Order) FarmerIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if !slices.Contains(ids, item.FarmerID) {
			ids = append(ids, item.FarmerID)
		}
	}
	return ids
}

// ProductIDs returns the distinct products referenced by the order, in item order.
func (o Order) ProductIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if !slices.Contains(ids, item.ProductID) {
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}

// HasFarmer reports whether any line belongs to farmerID.
func (o Order) HasFarmer(farmerID string) bool {
	return slices.ContainsFunc(o.Items, func(item OrderItem) bool { return item.FarmerID == farmerID })
}

// FarmerRevenue sums line subtotals belonging to farmerID.
func (o Order) FarmerRevenue(farmerID string) int64 {
	var total int64
	for _, item := range o.Items {
		if item.FarmerID == farmerID {
			total += item.Subtotal()
		}
	}
	return total
}

// AllItemsIn reports whether every line has the given status. Orders without lines never match.
func (o Order) AllItemsIn(status OrderStatus) bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, item := range o.Items {
		if item.Status != status {
			return false
		}
	}
	return true
}

// ItemsTotal sums price times quantity across all lines.
func ItemsTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}
