package firestore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	pfirestore "github.com/Hero-Alpha/KrishiSetu/internal/platform/firestore"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/pagination"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const ordersCollection = "orders"

type orderDocument struct {
	OrderNumber       string              `firestore:"orderNumber"`
	ConsumerID        string              `firestore:"consumerId"`
	FarmerIDs         []string            `firestore:"farmerIds"`
	ProductIDs        []string            `firestore:"productIds"`
	Items             []orderItemDocument `firestore:"items"`
	TotalAmount       int64               `firestore:"totalAmount"`
	DeliveryFee       int64               `firestore:"deliveryFee"`
	FinalAmount       int64               `firestore:"finalAmount"`
	Status            string              `firestore:"status"`
	DeliveryAddress   addressDocument     `firestore:"deliveryAddress"`
	Payment           paymentDocument     `firestore:"payment"`
	EstimatedDelivery time.Time           `firestore:"estimatedDelivery"`
	DeliveredAt       *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt       *time.Time          `firestore:"cancelledAt,omitempty"`
	CreatedAt         time.Time           `firestore:"createdAt"`
	UpdatedAt         time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	Unit        string `firestore:"unit"`
	Quantity    int64  `firestore:"quantity"`
	Price       int64  `firestore:"price"`
	FarmerID    string `firestore:"farmerId"`
	Status      string `firestore:"status"`
}

type addressDocument struct {
	Street  string `firestore:"street"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	Pincode string `firestore:"pincode"`
	Phone   string `firestore:"phone"`
}

type paymentDocument struct {
	Method           string `firestore:"method"`
	Status           string `firestore:"status"`
	TransactionID    string `firestore:"transactionId,omitempty"`
	GatewayOrderID   string `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID string `firestore:"gatewayPaymentId,omitempty"`
	Amount           int64  `firestore:"amount"`
	Currency         string `firestore:"currency"`
}

// OrderRepository stores orders with denormalised farmer and product id arrays so farmer and
// analytics queries can use array-contains filters.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil),
	}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// Insert creates the order document.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, encodeOrder(order))
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.base.Set(ctx, order.ID, encodeOrder(order))
}

// FindByID loads an order by id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc), nil
}

// List returns matching orders newest first. Product filters fan out in groups of thirty ids
// and are merged and paged in memory.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if filter.ProductIDs != nil {
		return r.listByProducts(ctx, filter)
	}

	var queryErr error
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = applyOrderFilter(q, filter)
		q, queryErr = newestFirst(q, filter.Pagination)
		return q
	})
	if queryErr != nil {
		return domain.CursorPage[domain.Order]{}, queryErr
	}
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc))
	}
	return trimPage(orders, filter.Pagination.PageSize, orderKey)
}

func (r *OrderRepository) listByProducts(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	seen := make(map[string]struct{})
	var orders []domain.Order
	for _, ids := range chunk(filter.ProductIDs, maxDisjunction) {
		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			q = q.Where("productIds", "array-contains-any", ids)
			withoutFarmer := filter
			withoutFarmer.FarmerID = ""
			return applyOrderFilter(q, withoutFarmer)
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		for _, doc := range docs {
			if _, dup := seen[doc.ID]; dup {
				continue
			}
			seen[doc.ID] = struct{}{}
			order := decodeOrder(doc)
			if filter.FarmerID != "" && !order.HasFarmer(filter.FarmerID) {
				continue
			}
			if !cursor.Follows(order.CreatedAt, order.ID) {
				continue
			}
			orders = append(orders, order)
		}
	}

	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	pageSize := filter.Pagination.PageSize
	if pageSize > 0 && len(orders) > pageSize+1 {
		orders = orders[:pageSize+1]
	}
	return trimPage(orders, pageSize, orderKey)
}

func applyOrderFilter(q firestore.Query, filter repositories.OrderListFilter) firestore.Query {
	if id := strings.TrimSpace(filter.ConsumerID); id != "" {
		q = q.Where("consumerId", "==", id)
	}
	if id := strings.TrimSpace(filter.FarmerID); id != "" {
		q = q.Where("farmerIds", "array-contains", id)
	}
	if filter.Created.From != nil {
		q = q.Where(fieldCreatedAt, ">=", filter.Created.From.UTC())
	}
	if filter.Created.To != nil {
		q = q.Where(fieldCreatedAt, "<=", filter.Created.To.UTC())
	}
	return q
}

func orderKey(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID }

func encodeOrder(o domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: o.OrderNumber,
		ConsumerID:  o.ConsumerID,
		FarmerIDs:   o.FarmerIDs(),
		ProductIDs:  o.ProductIDs(),
		Items:       make([]orderItemDocument, 0, len(o.Items)),
		TotalAmount: o.TotalAmount,
		DeliveryFee: o.DeliveryFee,
		FinalAmount: o.FinalAmount,
		Status:      string(o.Status),
		DeliveryAddress: addressDocument{
			Street:  o.DeliveryAddress.Street,
			City:    o.DeliveryAddress.City,
			State:   o.DeliveryAddress.State,
			Pincode: o.DeliveryAddress.Pincode,
			Phone:   o.DeliveryAddress.Phone,
		},
		Payment: paymentDocument{
			Method:           string(o.Payment.Method),
			Status:           string(o.Payment.Status),
			TransactionID:    o.Payment.TransactionID,
			GatewayOrderID:   o.Payment.GatewayOrderID,
			GatewayPaymentID: o.Payment.GatewayPaymentID,
			Amount:           o.Payment.Amount,
			Currency:         o.Payment.Currency,
		},
		EstimatedDelivery: o.EstimatedDelivery.UTC(),
		DeliveredAt:       utcPtr(o.DeliveredAt),
		CancelledAt:       utcPtr(o.CancelledAt),
		CreatedAt:         o.CreatedAt.UTC(),
		UpdatedAt:         o.UpdatedAt.UTC(),
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Unit:        string(item.Unit),
			Quantity:    item.Quantity,
			Price:       item.Price,
			FarmerID:    item.FarmerID,
			Status:      string(item.Status),
		})
	}
	return doc
}

func decodeOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	d := doc.Data
	order := domain.Order{
		ID:          doc.ID,
		OrderNumber: d.OrderNumber,
		ConsumerID:  d.ConsumerID,
		Items:       make([]domain.OrderItem, 0, len(d.Items)),
		TotalAmount: d.TotalAmount,
		DeliveryFee: d.DeliveryFee,
		FinalAmount: d.FinalAmount,
		Status:      domain.OrderStatus(d.Status),
		DeliveryAddress: domain.DeliveryAddress{
			Street:  d.DeliveryAddress.Street,
			City:    d.DeliveryAddress.City,
			State:   d.DeliveryAddress.State,
			Pincode: d.DeliveryAddress.Pincode,
			Phone:   d.DeliveryAddress.Phone,
		},
		Payment: domain.OrderPayment{
			Method:           domain.PaymentMethod(d.Payment.Method),
			Status:           domain.PaymentStatus(d.Payment.Status),
			TransactionID:    d.Payment.TransactionID,
			GatewayOrderID:   d.Payment.GatewayOrderID,
			GatewayPaymentID: d.Payment.GatewayPaymentID,
			Amount:           d.Payment.Amount,
			Currency:         d.Payment.Currency,
		},
		EstimatedDelivery: d.EstimatedDelivery.UTC(),
		DeliveredAt:       utcPtr(d.DeliveredAt),
		CancelledAt:       utcPtr(d.CancelledAt),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Unit:        domain.ProductUnit(item.Unit),
			Quantity:    item.Quantity,
			Price:       item.Price,
			FarmerID:    item.FarmerID,
			Status:      domain.OrderStatus(item.Status),
		})
	}
	return order
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
