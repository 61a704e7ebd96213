package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusFailed   Status = "FAILED"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// RetryLimit is the number of recorded retries after which an unresolved
// payment is rejected without contacting the gateway.
const RetryLimit = 3

func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

func (s Status) Valid() bool {
	switch s {
	case StatusFailed, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Order carries the facts of the order being paid for.
type Order struct {
	OrderID string          `json:"orderId"`
	SKU     string          `json:"sku"`
	Units   int             `json:"units"`
	Price   decimal.Decimal `json:"price"`
	UserID  string          `json:"userId"`
}

// Record is the single payment record kept per order. Order facts are fixed by
// the first write.
type Record struct {
	Order
	PaymentID string    `json:"paymentId"`
	Status    Status    `json:"paymentStatus"`
	Retries   int       `json:"paymentRetries"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ErrorPaymentID is stored when neither the gateway nor a previous attempt
// produced a payment id.
func ErrorPaymentID(orderID string) string {
	return "ERROR:ORDER_ID:" + orderID
}
