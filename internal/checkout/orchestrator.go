package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ecombase/checkout/internal/catalog"
	"github.com/ecombase/checkout/internal/inventory"
	kafkax "github.com/ecombase/checkout/internal/kafka"
	"github.com/ecombase/checkout/internal/orders"
	"github.com/ecombase/checkout/internal/payments"
	"github.com/ecombase/checkout/internal/postgres"
)

var (
	ErrEmptyCart  = errors.New("order must contain at least one product")
	ErrUnexpected = errors.New("unexpected error")
)

// CartSubmission is the checkout input.
type CartSubmission struct {
	UserID         string
	PaymentMethod  string
	ShippingMethod string
	CouponCode     string
	Address        orders.AddressDetails
	Items          []orders.ItemQty
}

// Result is what the caller gets on success: the committed order with its
// payment attached, plus a hosted-session URL for card payments.
type Result struct {
	Order      *orders.Order
	PaymentID  string
	SessionURL string
}

type orderCreator interface {
	CreateOrder(ctx context.Context, db postgres.DBTX, req orders.CreateOrderRequest) (*orders.Order, error)
}

type reservationCreator interface {
	Create(ctx context.Context, db postgres.DBTX, orderID int64, provider payments.Provider) (*inventory.Reservation, error)
	ScheduleExpiry(ctx context.Context, res *inventory.Reservation) error
}

type paymentCreator interface {
	Create(ctx context.Context, db postgres.DBTX, req payments.CreatePaymentRequest) (*payments.Payment, error)
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(db postgres.DBTX) error) error
}

type eventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Orchestrator runs the checkout saga: validate, create order, reserve stock,
// create payment — all inside one transaction, all-or-nothing.
type Orchestrator struct {
	tx           txRunner
	orders       orderCreator
	reservations reservationCreator
	payments     paymentCreator
	gateway      payments.Gateway
	producer     eventPublisher
	service      string
	successURL   string
	cancelURL    string
	now          func() time.Time
	log          zerolog.Logger
}

func NewOrchestrator(
	tx txRunner,
	orderSvc orderCreator,
	reservations reservationCreator,
	paymentSvc paymentCreator,
	gateway payments.Gateway,
	producer eventPublisher,
	service, successURL, cancelURL string,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		tx:           tx,
		orders:       orderSvc,
		reservations: reservations,
		payments:     paymentSvc,
		gateway:      gateway,
		producer:     producer,
		service:      service,
		successURL:   successURL,
		cancelURL:    cancelURL,
		now:          time.Now,
		log:          log.With().Str("component", "checkout").Logger(),
	}
}

// SubmitOrder executes the saga. Empty carts and unknown payment types fail
// before any transaction opens. Any failure inside the transaction rolls back
// order, reservation, stock decrement and payment together; the caller never
// sees a half-created order.
func (o *Orchestrator) SubmitOrder(ctx context.Context, sub CartSubmission) (res *Result, err error) {
	if len(sub.Items) == 0 {
		return nil, ErrEmptyCart
	}
	provider, err := payments.ParseProvider(sub.PaymentMethod)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Any("panic", r).Msg("checkout panicked, transaction rolled back")
			res, err = nil, ErrUnexpected
		}
	}()

	var (
		order *orders.Order
		resv  *inventory.Reservation
		pay   *payments.Payment
	)
	err = o.tx.WithinTx(ctx, func(db postgres.DBTX) error {
		var err error
		order, err = o.orders.CreateOrder(ctx, db, orders.CreateOrderRequest{
			UserID:         sub.UserID,
			ShippingMethod: sub.ShippingMethod,
			CouponCode:     sub.CouponCode,
			Address:        sub.Address,
			Items:          sub.Items,
		})
		if err != nil {
			return err
		}

		resv, err = o.reservations.Create(ctx, db, order.ID, provider)
		if err != nil {
			return err
		}

		pay, err = o.payments.Create(ctx, db, payments.CreatePaymentRequest{
			OrderID:  order.ID,
			Amount:   order.Total,
			Currency: order.Currency,
			Provider: provider,
			Status:   payments.StatusProcessing,
			UserID:   sub.UserID,
		})
		return err
	})
	if err != nil {
		return nil, o.mapError(err)
	}

	order.PaymentID = pay.ID.String()

	// Post-commit side effects. The expiry timer must not start before the
	// reservation row is durable.
	if err := o.reservations.ScheduleExpiry(ctx, resv); err != nil {
		o.log.Error().Err(err).Int64("order_id", order.ID).Msg("schedule reservation expiry")
	}
	o.publishCreated(order, sub.Items)

	result := &Result{Order: order, PaymentID: order.PaymentID}
	if provider == payments.ProviderCardGateway && o.gateway != nil {
		session, err := o.gateway.CreateSession(ctx, order.Total, o.successURL, o.cancelURL)
		if err != nil {
			// order and payment are committed; the caller can retry the session
			o.log.Error().Err(err).Int64("order_id", order.ID).Msg("create gateway session")
		} else {
			result.SessionURL = session.URL
		}
	}
	return result, nil
}

// mapError keeps business failures intact and hides everything else behind a
// generic message.
func (o *Orchestrator) mapError(err error) error {
	var verr *orders.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	for _, known := range []error{
		orders.ErrSignInFirst,
		orders.ErrInvalidCoupon,
		orders.ErrInvalidShippingMethod,
		orders.ErrProductsNotFound,
		orders.ErrInvalidAddress,
		orders.ErrNotFound,
		catalog.ErrInsufficientStock,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	o.log.Error().Err(err).Msg("checkout failed unexpectedly")
	return ErrUnexpected
}

func (o *Orchestrator) publishCreated(order *orders.Order, items []orders.ItemQty) {
	if o.producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    o.now().UTC(),
		Producer:      o.service,
		CorrelationID: order.Number,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:   order.ID,
			Number:    order.Number,
			UserID:    order.UserID,
			Items:     items,
			Total:     order.Total.StringFixed(2),
			Currency:  order.Currency,
			PaymentID: order.PaymentID,
		}),
	}
	o.producer.Publish(orders.PartitionKey(order.Number), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
