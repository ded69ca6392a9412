package inventory

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ecombase/checkout/internal/kafka"
	"github.com/ecombase/checkout/internal/orders"
	"github.com/ecombase/checkout/internal/payments"
	"github.com/ecombase/checkout/internal/postgres"
)

type reservationStore interface {
	Create(ctx context.Context, db postgres.DBTX, res *Reservation) error
	GetByOrder(ctx context.Context, db postgres.DBTX, orderID int64) (*Reservation, error)
	TransitionFromActive(ctx context.Context, db postgres.DBTX, orderID int64, to Status) (bool, error)
}

type orderStore interface {
	GetByID(ctx context.Context, db postgres.DBTX, id int64) (*orders.Order, error)
}

type stockReleaser interface {
	ReleaseStock(ctx context.Context, db postgres.DBTX, orderID int64) ([]orders.ItemQty, error)
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(db postgres.DBTX) error) error
}

type expiryScheduler interface {
	Schedule(ctx context.Context, orderID int64, delay time.Duration) error
}

type eventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Manager owns reservation lifecycle: Active -> Released | Consumed, both
// terminal.
type Manager struct {
	repo      reservationStore
	orders    orderStore
	releaser  stockReleaser
	tx        txRunner
	db        postgres.DBTX
	scheduler expiryScheduler
	producer  eventPublisher
	service   string
	expiry    time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewManager(
	repo reservationStore,
	orderStore orderStore,
	releaser stockReleaser,
	tx txRunner,
	db postgres.DBTX,
	scheduler expiryScheduler,
	producer eventPublisher,
	service string,
	expiry time.Duration,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		repo:      repo,
		orders:    orderStore,
		releaser:  releaser,
		tx:        tx,
		db:        db,
		scheduler: scheduler,
		producer:  producer,
		service:   service,
		expiry:    expiry,
		now:       time.Now,
		log:       log.With().Str("component", "inventory").Logger(),
	}
}

// Create persists an Active reservation for the order inside the caller's
// transaction. Cash-on-delivery reservations never expire. Scheduling the
// expiry job is a separate step (ScheduleExpiry) so the timer only starts
// after the transaction commits.
func (m *Manager) Create(ctx context.Context, db postgres.DBTX, orderID int64, provider payments.Provider) (*Reservation, error) {
	o, err := m.orders.GetByID(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, orders.ErrNotFound
	}

	res := &Reservation{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  StatusActive,
	}
	if provider != payments.ProviderCashOnDelivery {
		at := m.now().Add(m.expiry)
		res.ExpiresAt = &at
	}
	if err := m.repo.Create(ctx, db, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ScheduleExpiry enqueues the expiry check for reservations that carry one.
func (m *Manager) ScheduleExpiry(ctx context.Context, res *Reservation) error {
	if res.ExpiresAt == nil {
		return nil
	}
	return m.scheduler.Schedule(ctx, res.OrderID, res.ExpiresAt.Sub(m.now()))
}

// CheckExpired is the expiry-job handler. It runs arbitrarily later than
// reservation creation and may race a payment callback, so a missing or
// terminal reservation is a logged no-op, and the terminal transition itself
// is a conditional update.
func (m *Manager) CheckExpired(ctx context.Context, orderID int64) error {
	res, err := m.repo.GetByOrder(ctx, m.db, orderID)
	if err != nil {
		return err
	}
	if res == nil {
		m.log.Info().Int64("order_id", orderID).Msg("expiry check: no reservation")
		return nil
	}
	if res.Status != StatusActive {
		m.log.Info().Int64("order_id", orderID).Str("status", string(res.Status)).
			Msg("expiry check: reservation already terminal")
		return nil
	}

	var released []orders.ItemQty
	err = m.tx.WithinTx(ctx, func(db postgres.DBTX) error {
		var err error
		released, err = m.Release(ctx, db, orderID)
		return err
	})
	if err != nil {
		return err
	}

	if len(released) > 0 {
		m.log.Info().Int64("order_id", orderID).Int("items", len(released)).Msg("reservation released")
		m.publishReleased(orderID, released)
	}
	return nil
}

// Release transitions Active -> Released and restores stock for the order's
// line items, inside the caller's transaction. Returns nil items when the
// reservation was missing or already terminal (lost the race to a payment
// callback, or a redelivered job).
func (m *Manager) Release(ctx context.Context, db postgres.DBTX, orderID int64) ([]orders.ItemQty, error) {
	ok, err := m.repo.TransitionFromActive(ctx, db, orderID, StatusReleased)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return m.releaser.ReleaseStock(ctx, db, orderID)
}

// Consume transitions Active -> Consumed when payment is confirmed. Runs in
// the caller's transaction; terminal reservations are a no-op.
func (m *Manager) Consume(ctx context.Context, db postgres.DBTX, orderID int64) error {
	ok, err := m.repo.TransitionFromActive(ctx, db, orderID, StatusConsumed)
	if err != nil {
		return err
	}
	if !ok {
		m.log.Info().Int64("order_id", orderID).Msg("consume: reservation missing or already terminal")
	}
	return nil
}

func (m *Manager) publishReleased(orderID int64, items []orders.ItemQty) {
	if m.producer == nil {
		return
	}
	key := strconv.FormatInt(orderID, 10)
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventReservationReleased,
		EventVersion:  1,
		OccurredAt:    m.now().UTC(),
		Producer:      m.service,
		CorrelationID: key,
		Payload:       kafkax.MustMarshal(orders.ReservationReleasedPayload{OrderID: orderID, Items: items}),
	}
	m.producer.Publish([]byte(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventReservationReleased)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
