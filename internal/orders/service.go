package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ecombase/checkout/internal/cache"
	"github.com/ecombase/checkout/internal/catalog"
	"github.com/ecombase/checkout/internal/postgres"
	"github.com/ecombase/checkout/internal/redisx"
)

var (
	ErrSignInFirst           = errors.New("please sign in first")
	ErrInvalidCoupon         = errors.New("invalid coupon code")
	ErrInvalidShippingMethod = errors.New("invalid shipping method")
	ErrProductsNotFound      = errors.New("one or more products not found")
	ErrInvalidAddress        = errors.New("invalid shipping address details")
	ErrNotFound              = errors.New("order does not exist")
	ErrAlreadyPaid           = errors.New("order has already been paid")
	ErrInvalidTransition     = errors.New("invalid order status transition")
)

// ValidationError carries the full batch of structural problems with a request.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string { return strings.Join(e.Messages, "; ") }

type CreateOrderRequest struct {
	UserID         string
	ShippingMethod string
	CouponCode     string
	Address        AddressDetails
	Items          []ItemQty
}

type orderStore interface {
	Create(ctx context.Context, db postgres.DBTX, o *Order) error
	NumberExists(ctx context.Context, db postgres.DBTX, number string) (bool, error)
	GetByID(ctx context.Context, db postgres.DBTX, id int64) (*Order, error)
	Items(ctx context.Context, db postgres.DBTX, orderID int64) ([]OrderItem, error)
	UpdateStatus(ctx context.Context, db postgres.DBTX, id int64, status Status, isPaid bool) error
}

type userStore interface {
	Exists(ctx context.Context, db postgres.DBTX, userID string) (bool, error)
}

type addressStore interface {
	Create(ctx context.Context, db postgres.DBTX, d AddressDetails) (int64, error)
}

type methodStore interface {
	FindByName(ctx context.Context, db postgres.DBTX, name string) (*ShippingMethod, error)
}

type couponStore interface {
	FindByCode(ctx context.Context, db postgres.DBTX, code string) (*Coupon, error)
}

type stockLedger interface {
	ExistAll(ctx context.Context, db postgres.DBTX, ids []int64) (bool, error)
	PricingSnapshot(ctx context.Context, db postgres.DBTX, ids []int64) (map[int64]catalog.ProductPricing, error)
	DecreaseStock(ctx context.Context, db postgres.DBTX, productID int64, qty int) error
	IncreaseStock(ctx context.Context, db postgres.DBTX, productID int64, qty int) error
}

// Service is the order aggregate manager: it validates and creates orders,
// computes totals, and owns status transitions.
type Service struct {
	orders   orderStore
	users    userStore
	address  addressStore
	methods  methodStore
	coupons  couponStore
	ledger   stockLedger
	cache    cache.Cache
	currency string
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(
	ordersRepo orderStore,
	users userStore,
	address addressStore,
	methods methodStore,
	coupons couponStore,
	ledger stockLedger,
	c cache.Cache,
	currency string,
	log zerolog.Logger,
) *Service {
	return &Service{
		orders:   ordersRepo,
		users:    users,
		address:  address,
		methods:  methods,
		coupons:  coupons,
		ledger:   ledger,
		cache:    c,
		currency: currency,
		now:      time.Now,
		log:      log.With().Str("component", "orders").Logger(),
	}
}

// CreateOrder runs the validation pipeline and persists the order. Stock is
// decremented here, before the order row, so a decrement failure never leaves
// an orphaned order; both live in the caller's transaction either way.
func (s *Service) CreateOrder(ctx context.Context, db postgres.DBTX, req CreateOrderRequest) (*Order, error) {
	if verr := validateCreate(req); verr != nil {
		return nil, verr
	}

	ok, err := s.users.Exists(ctx, db, req.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSignInFirst
	}

	var coupon *Coupon
	if req.CouponCode != "" {
		coupon, err = s.coupons.FindByCode(ctx, db, req.CouponCode)
		if err != nil {
			return nil, err
		}
		if coupon == nil || !coupon.Active(s.now()) {
			return nil, ErrInvalidCoupon
		}
	}

	method, err := s.methods.FindByName(ctx, db, req.ShippingMethod)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return nil, ErrInvalidShippingMethod
	}

	ids := make([]int64, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	allExist, err := s.ledger.ExistAll(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	if !allExist {
		return nil, ErrProductsNotFound
	}

	addressID, err := s.address.Create(ctx, db, req.Address)
	if err != nil {
		return nil, err
	}

	pricing, err := s.ledger.PricingSnapshot(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	items := make([]OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if err := s.ledger.DecreaseStock(ctx, db, it.ProductID, it.Qty); err != nil {
			return nil, err
		}
		p := pricing[it.ProductID]
		unit := p.EffectivePrice()
		subtotal = subtotal.Add(unit.Mul(decimal.NewFromInt(int64(it.Qty))))
		items = append(items, OrderItem{
			ProductID:   it.ProductID,
			ProductName: p.Title,
			UnitPrice:   unit,
			Quantity:    it.Qty,
		})
	}
	subtotal = subtotal.Round(2)

	discount := decimal.Zero
	var couponID *int64
	if coupon != nil {
		discount = subtotal.Mul(coupon.DiscountPercentage).Div(decimal.NewFromInt(100)).Round(2)
		couponID = &coupon.ID
	}
	total := subtotal.Add(method.Price).Sub(discount).Round(2)

	number, err := s.uniqueNumber(ctx, db)
	if err != nil {
		return nil, err
	}

	order := &Order{
		Number:            number,
		Status:            StatusProcessing,
		Subtotal:          subtotal,
		Shipping:          method.Price,
		Discount:          discount,
		Total:             total,
		Currency:          s.currency,
		IsPaid:            false,
		UserID:            req.UserID,
		ShippingAddressID: addressID,
		ShippingMethodID:  method.ID,
		CouponID:          couponID,
		Items:             items,
	}
	if err := s.orders.Create(ctx, db, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) uniqueNumber(ctx context.Context, db postgres.DBTX) (string, error) {
	for {
		n := NewOrderNumber()
		exists, err := s.orders.NumberExists(ctx, db, n)
		if err != nil {
			return "", err
		}
		if !exists {
			return n, nil
		}
	}
}

// MarkPaid transitions Processing -> Paid. Paying an already-paid order is a
// failure, not a no-op.
func (s *Service) MarkPaid(ctx context.Context, db postgres.DBTX, orderID int64) error {
	o, err := s.orders.GetByID(ctx, db, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return ErrNotFound
	}
	if o.IsPaid {
		return ErrAlreadyPaid
	}
	if !CanTransition(o.Status, StatusPaid) {
		return ErrInvalidTransition
	}
	if err := s.orders.UpdateStatus(ctx, db, orderID, StatusPaid, true); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) MarkFailed(ctx context.Context, db postgres.DBTX, orderID int64) error {
	return s.markTerminal(ctx, db, orderID, StatusFailed)
}

func (s *Service) MarkCancelled(ctx context.Context, db postgres.DBTX, orderID int64) error {
	return s.markTerminal(ctx, db, orderID, StatusCancelled)
}

func (s *Service) markTerminal(ctx context.Context, db postgres.DBTX, orderID int64, target Status) error {
	o, err := s.orders.GetByID(ctx, db, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return ErrNotFound
	}
	if o.Status == target {
		// already there; double-delivered callback
		s.log.Info().Int64("order_id", orderID).Str("status", string(target)).Msg("status transition is a no-op")
		return nil
	}
	if o.IsPaid {
		return ErrAlreadyPaid
	}
	if !CanTransition(o.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, target)
	}
	if err := s.orders.UpdateStatus(ctx, db, orderID, target, false); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ReleaseStock restores quantity for every line item on the order. Used by the
// reservation expiry path; returns the released quantities for event payloads.
func (s *Service) ReleaseStock(ctx context.Context, db postgres.DBTX, orderID int64) ([]ItemQty, error) {
	items, err := s.orders.Items(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	released := make([]ItemQty, 0, len(items))
	for _, it := range items {
		if err := s.ledger.IncreaseStock(ctx, db, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
		released = append(released, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return released, nil
}

func (s *Service) Get(ctx context.Context, db postgres.DBTX, orderID int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

func (s *Service) invalidate(ctx context.Context) {
	err := s.cache.InvalidatePrefix(ctx,
		redisx.PrefixOrderDetail, redisx.PrefixOrderPage, redisx.PrefixOrderByPayment)
	if err != nil {
		s.log.Warn().Err(err).Msg("cache invalidation failed")
	}
}

func validateCreate(req CreateOrderRequest) *ValidationError {
	var msgs []string
	if req.UserID == "" {
		msgs = append(msgs, "user id is required")
	}
	if req.ShippingMethod == "" {
		msgs = append(msgs, "shipping method is required")
	}
	if len(req.Items) == 0 {
		msgs = append(msgs, "order must contain at least one product")
	}
	for _, it := range req.Items {
		if it.ProductID <= 0 {
			msgs = append(msgs, fmt.Sprintf("invalid product id %d", it.ProductID))
		}
		if it.Qty <= 0 {
			msgs = append(msgs, fmt.Sprintf("invalid quantity for product %d", it.ProductID))
		}
	}
	if len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}
