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
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers exposes checkout, order history and farmer fulfilment endpoints.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order creation with the given middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	create := []func(http.Handler) http.Handler{h.require(auth.RoleConsumer)}
	if h.idempotency != nil {
		create = append(create, h.idempotency)
	}
	r.With(create...).Post("/", h.createOrder)
	r.With(h.require()).Get("/my-orders", h.listMyOrders)
	r.With(h.require(auth.RoleFarmer)).Get("/farmer/orders", h.listFarmerOrders)
	r.With(h.require()).Get("/{orderID}", h.getOrder)
	r.With(h.require(auth.RoleConsumer)).Patch("/{orderID}/cancel", h.cancelOrder)
	r.With(h.require(auth.RoleFarmer)).Patch("/{orderID}/status", h.updateStatus)
}

func (h *OrderHandlers) require(roles ...string) func(http.Handler) http.Handler {
	if h.authn == nil {
		return passthrough
	}
	return h.authn.RequireAuth(roles...)
}

type createOrderRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int64  `json:"quantity"`
	} `json:"items"`
	DeliveryAddress addressPayload `json:"deliveryAddress"`
	PaymentMethod   string         `json:"paymentMethod"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	cmd := services.CreateOrderCommand{
		ConsumerID:      strings.TrimSpace(identity.UID),
		Items:           make([]services.OrderLineInput, 0, len(req.Items)),
		DeliveryAddress: req.DeliveryAddress.toDomain(),
		PaymentMethod:   strings.TrimSpace(req.PaymentMethod),
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderLineInput{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, false)
}

func (h *OrderHandlers) listFarmerOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, true)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request, asFarmer bool) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}

	var (
		page domain.CursorPage[services.Order]
		err  error
	)
	if asFarmer {
		page, err = h.orders.ListFarmerOrders(ctx, strings.TrimSpace(identity.UID), pager)
	} else {
		page, err = h.orders.ListConsumerOrders(ctx, strings.TrimSpace(identity.UID), pager)
	}
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	orders := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		orders = append(orders, buildOrderPayload(order))
	}
	writeList(w, len(orders), orderListResponse{Orders: orders}, page.NextPageToken)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, strings.TrimSpace(identity.UID))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID:    orderID,
		ConsumerID: strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if !decodeJSONBody(ctx, w, r, maxOrderBodySize, &req) {
		return
	}

	order, err := h.orders.UpdateItemStatus(ctx, services.UpdateItemStatusCommand{
		OrderID:  orderID,
		FarmerID: strings.TrimSpace(identity.UID),
		Status:   strings.ToLower(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func orderIDParam(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

type orderListResponse struct {
	Orders []orderPayload `json:"orders"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                string             `json:"id"`
	OrderNumber       string             `json:"orderNumber"`
	ConsumerID        string             `json:"consumerId"`
	Items             []orderItemPayload `json:"items"`
	TotalAmount       int64              `json:"totalAmount"`
	DeliveryFee       int64              `json:"deliveryFee"`
	FinalAmount       int64              `json:"finalAmount"`
	Status            string             `json:"status"`
	DeliveryAddress   addressPayload     `json:"deliveryAddress"`
	Payment           paymentPayload     `json:"payment"`
	EstimatedDelivery string             `json:"estimatedDelivery,omitempty"`
	DeliveredAt       string             `json:"deliveredAt,omitempty"`
	CancelledAt       string             `json:"cancelledAt,omitempty"`
	CreatedAt         string             `json:"createdAt"`
	UpdatedAt         string             `json:"updatedAt,omitempty"`
}

type orderItemPayload struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Unit        string `json:"unit"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"`
	Subtotal    int64  `json:"subtotal"`
	FarmerID    string `json:"farmerId"`
	Status      string `json:"status"`
}

type addressPayload struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
}

func (a addressPayload) toDomain() services.DeliveryAddress {
	return services.DeliveryAddress{
		Street:  strings.TrimSpace(a.Street),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		Pincode: strings.TrimSpace(a.Pincode),
		Phone:   strings.TrimSpace(a.Phone),
	}
}

type paymentPayload struct {
	Method        string `json:"method"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		ConsumerID:  order.ConsumerID,
		Items:       make([]orderItemPayload, 0, len(order.Items)),
		TotalAmount: order.TotalAmount,
		DeliveryFee: order.DeliveryFee,
		FinalAmount: order.FinalAmount,
		Status:      string(order.Status),
		DeliveryAddress: addressPayload{
			Street:  order.DeliveryAddress.Street,
			City:    order.DeliveryAddress.City,
			State:   order.DeliveryAddress.State,
			Pincode: order.DeliveryAddress.Pincode,
			Phone:   order.DeliveryAddress.Phone,
		},
		Payment: paymentPayload{
			Method:        string(order.Payment.Method),
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			Amount:        order.Payment.Amount,
			Currency:      order.Payment.Currency,
		},
		EstimatedDelivery: formatTime(order.EstimatedDelivery),
		DeliveredAt:       formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:       formatTime(pointerTime(order.CancelledAt)),
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Unit:        string(item.Unit),
			Quantity:    item.Quantity,
			Price:       item.Price,
			Subtotal:    item.Subtotal(),
			FarmerID:    item.FarmerID,
			Status:      string(item.Status),
		})
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInsufficientStock):
		apiErr := httpx.NewError("insufficient_stock", trimSentinel(err, services.ErrOrderInsufficientStock), http.StatusBadRequest)
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			apiErr = apiErr.WithDetails(map[string]any{
				"productId": stockErr.ProductID,
				"available": stockErr.Available,
				"requested": stockErr.Requested,
			})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err, services.ErrOrderInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", trimSentinel(err, services.ErrOrderInvalidTransition), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", trimSentinel(err, services.ErrOrderProductNotFound), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not authorized to access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently, retry the request", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order repository unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

// trimSentinel drops the "package: reason: " prefix added by the wrapped sentinel so clients see
// only the detail.
func trimSentinel(err, sentinel error) string {
	msg := err.Error()
	if detail, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok && detail != "" {
		return detail
	}
	return msg
}

func passthrough(next http.Handler) http.Handler { return next }
