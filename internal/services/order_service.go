package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const (
	orderEventCreated      = "order.created"
	orderEventCancelled    = "order.cancelled"
	orderEventItemsUpdated = "order.items.updated"
	orderEventDelivered    = "order.delivered"

	orderIDPrefix = "ord_"

	defaultDeliveryFee    = 25
	defaultDeliveryWindow = 24 * time.Hour
	defaultMaxOrderLines  = 50
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderProductNotFound indicates a requested product does not exist.
	ErrOrderProductNotFound = errors.New("order: product not found")
	// ErrOrderForbidden indicates the actor does not own the order or any of its lines.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInsufficientStock indicates a product cannot cover the requested quantity.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderInvalidTransition indicates a status change outside the transition table.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent write won.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the backing store is temporarily unreachable.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

// orderItemTransitions lists the statuses each line status may move to. Delivered and
// cancelled are terminal.
var orderItemTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered},
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	ConsumerID     string
	FarmerIDs      []string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders         repositories.OrderRepository
	Products       repositories.ProductRepository
	Counters       CounterService
	UnitOfWork     repositories.UnitOfWork
	DeliveryFee    int64
	DeliveryWindow time.Duration
	MaxOrderLines  int
	Clock          func() time.Time
	IDGenerator    func() string
	Events         OrderEventPublisher
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	products       repositories.ProductRepository
	counters       CounterService
	unitOfWork     repositories.UnitOfWork
	deliveryFee    int64
	deliveryWindow time.Duration
	maxLines       int
	clock          func() time.Time
	newID          func() string
	events         OrderEventPublisher
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("order service: unit of work is required")
	}
	if deps.DeliveryFee < 0 {
		return nil, errors.New("order service: delivery fee must not be negative")
	}

	fee := deps.DeliveryFee
	if fee == 0 {
		fee = defaultDeliveryFee
	}
	window := deps.DeliveryWindow
	if window <= 0 {
		window = defaultDeliveryWindow
	}
	maxLines := deps.MaxOrderLines
	if maxLines <= 0 {
		maxLines = defaultMaxOrderLines
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

	return &orderService{
		orders:         deps.Orders,
		products:       deps.Products,
		counters:       deps.Counters,
		unitOfWork:     deps.UnitOfWork,
		deliveryFee:    fee,
		deliveryWindow: window,
		maxLines:       maxLines,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	consumerID := strings.TrimSpace(cmd.ConsumerID)
	if consumerID == "" {
		return Order{}, fmt.Errorf("%w: consumer id is required", ErrOrderInvalidInput)
	}
	lines, err := s.normalizeLines(cmd.Items)
	if err != nil {
		return Order{}, err
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(cmd.PaymentMethod)))
	if !method.Valid() {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	// The counter runs its own transaction; Firestore forbids nesting it in the order one.
	orderNumber, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order: allocate order number: %w", err)
	}

	now := s.clock()
	order := Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     orderNumber,
		ConsumerID:      consumerID,
		Status:          domain.OrderStatusPending,
		DeliveryAddress: trimAddress(cmd.DeliveryAddress),
		DeliveryFee:     s.deliveryFee,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		products := make([]domain.Product, len(lines))
		for i, line := range lines {
			product, err := s.products.FindByID(txCtx, line.ProductID)
			if err != nil {
				if isRepoNotFound(err) {
					return fmt.Errorf("%w: %s", ErrOrderProductNotFound, line.ProductID)
				}
				return s.mapRepositoryError(err)
			}
			if product.CurrentStock < line.Quantity {
				return fmt.Errorf("%w: %w", ErrOrderInsufficientStock, &repositories.StockError{
					Op:        "order.create",
					Code:      repositories.StockErrorInsufficient,
					ProductID: product.ID,
					Name:      product.Name,
					Available: product.CurrentStock,
					Requested: line.Quantity,
				})
			}
			products[i] = product
		}

		items := make([]domain.OrderItem, 0, len(lines))
		for i, line := range lines {
			product := products[i]
			items = append(items, domain.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Unit:        product.Unit,
				Quantity:    line.Quantity,
				Price:       product.Price,
				FarmerID:    product.FarmerID,
				Status:      domain.OrderStatusPending,
			})
			product.AdjustStock(-line.Quantity)
			product.UpdatedAt = now
			if err := s.products.Update(txCtx, product); err != nil {
				return s.mapRepositoryError(err)
			}
		}

		order.Items = items
		order.TotalAmount = domain.ItemsTotal(items)
		order.FinalAmount = order.TotalAmount + order.DeliveryFee
		order.EstimatedDelivery = now.Add(s.deliveryWindow)
		order.Payment = domain.OrderPayment{
			Method:   method,
			Status:   domain.PaymentStatusPending,
			Amount:   order.FinalAmount,
			Currency: domain.DefaultCurrency,
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		ConsumerID:    order.ConsumerID,
		FarmerIDs:     order.FarmerIDs(),
		CurrentStatus: string(order.Status),
		ActorID:       consumerID,
		OccurredAt:    now,
		Metadata:      map[string]any{"finalAmount": order.FinalAmount, "items": len(order.Items)},
	})
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	consumerID := strings.TrimSpace(cmd.ConsumerID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.clock()
	var order Order
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if order.ConsumerID != consumerID {
			return fmt.Errorf("%w: order %s belongs to another consumer", ErrOrderForbidden, orderID)
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: only pending orders can be cancelled, order is %s", ErrOrderInvalidTransition, order.Status)
		}

		// Items a farmer already cancelled still hold their reservation; shipped and
		// delivered items keep both their status and their stock.
		restore := make([]int, 0, len(order.Items))
		for i, item := range order.Items {
			if item.Status == domain.OrderStatusCancelled || canTransition(item.Status, domain.OrderStatusCancelled) {
				restore = append(restore, i)
			}
		}
		if err := s.restoreStock(txCtx, order.Items, restore, now); err != nil {
			return err
		}
		for _, i := range restore {
			order.Items[i].Status = domain.OrderStatusCancelled
		}
		order.Status = domain.OrderStatusCancelled
		order.CancelledAt = &now
		order.UpdatedAt = now
		return s.mapRepositoryError(s.orders.Update(txCtx, order))
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		ConsumerID:     order.ConsumerID,
		FarmerIDs:      order.FarmerIDs(),
		PreviousStatus: string(domain.OrderStatusPending),
		CurrentStatus:  string(order.Status),
		ActorID:        consumerID,
		OccurredAt:     now,
	})
	return order, nil
}

func (s *orderService) UpdateItemStatus(ctx context.Context, cmd UpdateItemStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	farmerID := strings.TrimSpace(cmd.FarmerID)
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(cmd.Status)))
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	now := s.clock()
	var (
		order          Order
		previousStatus domain.OrderStatus
		changed        bool
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if farmerID == "" || !order.HasFarmer(farmerID) {
			return fmt.Errorf("%w: no items of order %s belong to the farmer", ErrOrderForbidden, orderID)
		}
		previousStatus = order.Status

		var moved []int
		for i, item := range order.Items {
			if item.FarmerID != farmerID || item.Status == target {
				continue
			}
			if !canTransition(item.Status, target) {
				return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidTransition, item.Status, target)
			}
			moved = append(moved, i)
		}
		if len(moved) == 0 {
			return nil
		}

		for _, i := range moved {
			order.Items[i].Status = target
		}
		if order.AllItemsIn(domain.OrderStatusDelivered) {
			order.Status = domain.OrderStatusDelivered
			order.DeliveredAt = &now
		}
		order.UpdatedAt = now
		changed = true
		return s.mapRepositoryError(s.orders.Update(txCtx, order))
	})
	if err != nil {
		return Order{}, err
	}
	if !changed {
		return order, nil
	}

	event := OrderEvent{
		Type:           orderEventItemsUpdated,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		ConsumerID:     order.ConsumerID,
		FarmerIDs:      []string{farmerID},
		PreviousStatus: string(previousStatus),
		CurrentStatus:  string(order.Status),
		ActorID:        farmerID,
		OccurredAt:     now,
		Metadata:       map[string]any{"itemStatus": string(target)},
	}
	s.publishEvent(ctx, event)
	if order.Status == domain.OrderStatusDelivered && previousStatus != domain.OrderStatusDelivered {
		event.Type = orderEventDelivered
		event.FarmerIDs = order.FarmerIDs()
		event.Metadata = nil
		s.publishEvent(ctx, event)
	}
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID, actorID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" || (order.ConsumerID != actorID && !order.HasFarmer(actorID)) {
		return Order{}, fmt.Errorf("%w: order %s is not visible to the caller", ErrOrderForbidden, orderID)
	}
	return order, nil
}

func (s *orderService) ListConsumerOrders(ctx context.Context, consumerID string, pager Pagination) (domain.CursorPage[Order], error) {
	consumerID = strings.TrimSpace(consumerID)
	if consumerID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: consumer id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{ConsumerID: consumerID, Pagination: pager})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListFarmerOrders(ctx context.Context, farmerID string, pager Pagination) (domain.CursorPage[Order], error) {
	farmerID = strings.TrimSpace(farmerID)
	if farmerID == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: farmer id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{FarmerID: farmerID, Pagination: pager})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// normalizeLines validates the requested lines and merges repeated products, keeping the
// position of the first occurrence.
func (s *orderService) normalizeLines(items []OrderLineInput) ([]OrderLineInput, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	lines := make([]OrderLineInput, 0, len(items))
	index := make(map[string]int, len(items))
	for i, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: item %d: product id is required", ErrOrderInvalidInput, i)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item %d: quantity must be at least 1", ErrOrderInvalidInput, i)
		}
		if pos, ok := index[productID]; ok {
			lines[pos].Quantity += item.Quantity
			continue
		}
		index[productID] = len(lines)
		lines = append(lines, OrderLineInput{ProductID: productID, Quantity: item.Quantity})
	}
	if len(lines) > s.maxLines {
		return nil, fmt.Errorf("%w: order exceeds %d lines", ErrOrderInvalidInput, s.maxLines)
	}
	return lines, nil
}

// restoreStock returns the quantities of the selected lines to their products. Every product is
// read before the first write. Products deleted since the order was placed are skipped.
func (s *orderService) restoreStock(ctx context.Context, items []OrderItem, selected []int, now time.Time) error {
	quantities := make(map[string]int64, len(selected))
	var productIDs []string
	for _, i := range selected {
		id := items[i].ProductID
		if _, seen := quantities[id]; !seen {
			productIDs = append(productIDs, id)
		}
		quantities[id] += items[i].Quantity
	}

	products := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		product, err := s.products.FindByID(ctx, id)
		if err != nil {
			if isRepoNotFound(err) {
				continue
			}
			return s.mapRepositoryError(err)
		}
		products = append(products, product)
	}
	for _, product := range products {
		product.AdjustStock(quantities[product.ID])
		product.UpdatedAt = now
		if err := s.products.Update(ctx, product); err != nil {
			return s.mapRepositoryError(err)
		}
	}
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	return slices.Contains(orderItemTransitions[current], target)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func trimAddress(addr DeliveryAddress) DeliveryAddress {
	return DeliveryAddress{
		Street:  strings.TrimSpace(addr.Street),
		City:    strings.TrimSpace(addr.City),
		State:   strings.TrimSpace(addr.State),
		Pincode: strings.TrimSpace(addr.Pincode),
		Phone:   strings.TrimSpace(addr.Phone),
	}
}
