package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID                int64
	Number            string // "Ord-" + 6 uppercase alphanumerics, unique
	Status            Status
	Subtotal          decimal.Decimal
	Shipping          decimal.Decimal
	Discount          decimal.Decimal
	Total             decimal.Decimal
	Currency          string
	IsPaid            bool
	UserID            string
	ShippingAddressID int64
	ShippingMethodID  int64
	CouponID          *int64
	PaymentID         string // attached after checkout commits
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string          // snapshot at purchase time
	UnitPrice   decimal.Decimal // snapshot, discount already applied
	Quantity    int
}

type ShippingMethod struct {
	ID    int64
	Name  string
	Price decimal.Decimal
}

type Coupon struct {
	ID                 int64
	Code               string
	DiscountPercentage decimal.Decimal
	EndAt              time.Time
}

func (c Coupon) Active(now time.Time) bool { return !now.After(c.EndAt) }

type AddressDetails struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	City       string `json:"city"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
}
