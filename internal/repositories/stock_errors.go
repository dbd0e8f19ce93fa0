package repositories

import "fmt"

// StockErrorCode enumerates failure reasons for stock reservation.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates the product cannot cover the requested quantity.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorProductMissing indicates the product vanished before the reservation.
	StockErrorProductMissing StockErrorCode = "stock_product_missing"
)

// StockError reports a failed stock reservation for one product.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Name      string
	Available int64
	Requested int64
}

func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case StockErrorInsufficient:
		label := e.Name
		if label == "" {
			label = e.ProductID
		}
		return fmt.Sprintf("insufficient stock for %s. Available: %d", label, e.Available)
	case StockErrorProductMissing:
		return fmt.Sprintf("product %s not found", e.ProductID)
	}
	return string(e.Code)
}
