package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	kafkax "github.com/ecombase/checkout/internal/kafka"
	"github.com/ecombase/checkout/internal/orders"
	"github.com/ecombase/checkout/internal/postgres"
)

var ErrPaymentNotFound = errors.New("payment does not exist")

type CreatePaymentRequest struct {
	OrderID  int64
	Amount   decimal.Decimal
	Currency string
	Provider Provider
	Status   Status
	UserID   string
}

type paymentStore interface {
	Create(ctx context.Context, db postgres.DBTX, p *Payment) error
	GetByID(ctx context.Context, db postgres.DBTX, id uuid.UUID) (*Payment, error)
	UpdateStatus(ctx context.Context, db postgres.DBTX, id uuid.UUID, status Status, fulfilled bool, providerTxnID *string) (bool, error)
}

type orderManager interface {
	MarkPaid(ctx context.Context, db postgres.DBTX, orderID int64) error
	MarkFailed(ctx context.Context, db postgres.DBTX, orderID int64) error
	MarkCancelled(ctx context.Context, db postgres.DBTX, orderID int64) error
	Get(ctx context.Context, db postgres.DBTX, orderID int64) (*orders.Order, error)
}

type reservationManager interface {
	Consume(ctx context.Context, db postgres.DBTX, orderID int64) error
	Release(ctx context.Context, db postgres.DBTX, orderID int64) ([]orders.ItemQty, error)
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(db postgres.DBTX) error) error
}

type eventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service owns payment records and reacts to gateway callbacks. Confirmation,
// failure and cancellation touch order and reservation state too, so each runs
// inside one transaction.
type Service struct {
	repo         paymentStore
	orders       orderManager
	reservations reservationManager
	tx           txRunner
	producer     eventPublisher
	service      string
	now          func() time.Time
	log          zerolog.Logger
}

func NewService(
	repo paymentStore,
	orderMgr orderManager,
	reservations reservationManager,
	tx txRunner,
	producer eventPublisher,
	service string,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		orders:       orderMgr,
		reservations: reservations,
		tx:           tx,
		producer:     producer,
		service:      service,
		now:          time.Now,
		log:          log.With().Str("component", "payments").Logger(),
	}
}

// Create validates and persists a payment row inside the caller's transaction.
func (s *Service) Create(ctx context.Context, db postgres.DBTX, req CreatePaymentRequest) (*Payment, error) {
	if verr := validateCreate(req); verr != nil {
		return nil, verr
	}
	p := &Payment{
		ID:       uuid.New(),
		Provider: req.Provider,
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   req.Status,
		UserID:   req.UserID,
		OrderID:  req.OrderID,
	}
	if err := s.repo.Create(ctx, db, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Confirm moves Processing -> Successful, marks the order paid and the
// reservation consumed. A redelivered confirmation is a logged no-op.
func (s *Service) Confirm(ctx context.Context, paymentID uuid.UUID, providerTxnID string) error {
	return s.callback(ctx, paymentID, StatusSuccessful, &providerTxnID)
}

// Fail moves Processing -> Failed, fails the order and releases held stock.
func (s *Service) Fail(ctx context.Context, paymentID uuid.UUID, providerTxnID string) error {
	return s.callback(ctx, paymentID, StatusFailed, &providerTxnID)
}

// Cancel moves Processing -> Canceled, cancels the order and releases held
// stock.
func (s *Service) Cancel(ctx context.Context, paymentID uuid.UUID) error {
	return s.callback(ctx, paymentID, StatusCanceled, nil)
}

func (s *Service) callback(ctx context.Context, paymentID uuid.UUID, target Status, providerTxnID *string) error {
	var order *orders.Order
	err := s.tx.WithinTx(ctx, func(db postgres.DBTX) error {
		p, err := s.repo.GetByID(ctx, db, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPaymentNotFound
		}

		applied, err := s.repo.UpdateStatus(ctx, db, paymentID, target, target == StatusSuccessful, providerTxnID)
		if err != nil {
			return err
		}
		if !applied {
			s.log.Info().Str("payment_id", paymentID.String()).Str("status", string(p.Status)).
				Msg("gateway callback on settled payment is a no-op")
			return nil
		}

		switch target {
		case StatusSuccessful:
			if err := s.orders.MarkPaid(ctx, db, p.OrderID); err != nil {
				return err
			}
			if err := s.reservations.Consume(ctx, db, p.OrderID); err != nil {
				return err
			}
		case StatusFailed:
			if err := s.orders.MarkFailed(ctx, db, p.OrderID); err != nil {
				return err
			}
			if _, err := s.reservations.Release(ctx, db, p.OrderID); err != nil {
				return err
			}
		case StatusCanceled:
			if err := s.orders.MarkCancelled(ctx, db, p.OrderID); err != nil {
				return err
			}
			if _, err := s.reservations.Release(ctx, db, p.OrderID); err != nil {
				return err
			}
		}

		order, err = s.orders.Get(ctx, db, p.OrderID)
		return err
	})
	if err != nil {
		return err
	}
	if order != nil {
		s.publishOutcome(order, paymentID, target)
	}
	return nil
}

func (s *Service) publishOutcome(o *orders.Order, paymentID uuid.UUID, target Status) {
	if s.producer == nil {
		return
	}
	var eventType string
	var payload any
	switch target {
	case StatusSuccessful:
		eventType = orders.EventOrderPaid
		payload = orders.OrderPaidPayload{OrderID: o.ID, Number: o.Number, PaymentID: paymentID.String()}
	case StatusFailed:
		eventType = orders.EventOrderFailed
		payload = orders.OrderFailedPayload{OrderID: o.ID, Number: o.Number, Reason: "payment failed"}
	case StatusCanceled:
		eventType = orders.EventOrderCancelled
		payload = orders.OrderCancelledPayload{OrderID: o.ID, Number: o.Number}
	default:
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.service,
		CorrelationID: o.Number,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.producer.Publish(orders.PartitionKey(o.Number), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func validateCreate(req CreatePaymentRequest) *orders.ValidationError {
	var msgs []string
	if _, err := ParseProvider(string(req.Provider)); err != nil {
		msgs = append(msgs, "invalid payment type")
	}
	if !req.Amount.IsPositive() {
		msgs = append(msgs, "amount must be greater than zero")
	}
	if req.Currency == "" {
		msgs = append(msgs, "currency is required")
	}
	if !knownStatus(req.Status) {
		msgs = append(msgs, fmt.Sprintf("unknown payment status %q", req.Status))
	}
	if req.UserID == "" {
		msgs = append(msgs, "user id is required")
	}
	if req.OrderID <= 0 {
		msgs = append(msgs, "invalid order id")
	}
	if len(msgs) > 0 {
		return &orders.ValidationError{Messages: msgs}
	}
	return nil
}
