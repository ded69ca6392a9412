package payments

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderCashOnDelivery Provider = "CashOnDelivery"
	ProviderCardGateway    Provider = "CardGateway"
)

var ErrUnknownProvider = errors.New("invalid payment type")

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderCashOnDelivery, ProviderCardGateway:
		return Provider(s), nil
	}
	return "", ErrUnknownProvider
}

type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusFailed     Status = "FAILED"
	StatusCanceled   Status = "CANCELED"
	StatusSuccessful Status = "SUCCESSFUL"
)

func knownStatus(s Status) bool {
	switch s {
	case StatusProcessing, StatusFailed, StatusCanceled, StatusSuccessful:
		return true
	}
	return false
}

type Payment struct {
	ID            uuid.UUID
	Provider      Provider
	ProviderTxnID *string // set when the gateway confirms
	Amount        decimal.Decimal
	Currency      string
	Status        Status
	Fulfilled     bool
	UserID        string
	OrderID       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
