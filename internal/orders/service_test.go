package orders

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ecombase/checkout/internal/catalog"
	"github.com/ecombase/checkout/internal/postgres"
)

type fakeOrderStore struct {
	nextID     int64
	created    []*Order
	byID       map[int64]*Order
	items      map[int64][]OrderItem
	collisions int // how many generated numbers should "already exist"
	statuses   map[int64]Status
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		byID:     map[int64]*Order{},
		items:    map[int64][]OrderItem{},
		statuses: map[int64]Status{},
	}
}

func (f *fakeOrderStore) Create(ctx context.Context, db postgres.DBTX, o *Order) error {
	f.nextID++
	o.ID = f.nextID
	cp := *o
	f.created = append(f.created, o)
	f.byID[o.ID] = &cp
	f.items[o.ID] = o.Items
	return nil
}

func (f *fakeOrderStore) NumberExists(ctx context.Context, db postgres.DBTX, number string) (bool, error) {
	if f.collisions > 0 {
		f.collisions--
		return true, nil
	}
	return false, nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, db postgres.DBTX, id int64) (*Order, error) {
	return f.byID[id], nil
}

func (f *fakeOrderStore) Items(ctx context.Context, db postgres.DBTX, orderID int64) ([]OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeOrderStore) UpdateStatus(ctx context.Context, db postgres.DBTX, id int64, status Status, isPaid bool) error {
	f.statuses[id] = status
	if o, ok := f.byID[id]; ok {
		o.Status = status
		o.IsPaid = isPaid
	}
	return nil
}

type fakeUsers struct{ known map[string]bool }

func (f *fakeUsers) Exists(ctx context.Context, db postgres.DBTX, userID string) (bool, error) {
	return f.known[userID], nil
}

type fakeAddresses struct{}

func (f *fakeAddresses) Create(ctx context.Context, db postgres.DBTX, d AddressDetails) (int64, error) {
	if d.FullName == "" || d.City == "" {
		return 0, ErrInvalidAddress
	}
	return 11, nil
}

type fakeMethods struct{ byName map[string]*ShippingMethod }

func (f *fakeMethods) FindByName(ctx context.Context, db postgres.DBTX, name string) (*ShippingMethod, error) {
	return f.byName[name], nil
}

type fakeCoupons struct{ byCode map[string]*Coupon }

func (f *fakeCoupons) FindByCode(ctx context.Context, db postgres.DBTX, code string) (*Coupon, error) {
	return f.byCode[code], nil
}

type fakeLedger struct {
	stock   map[int64]int
	pricing map[int64]catalog.ProductPricing
}

func (f *fakeLedger) ExistAll(ctx context.Context, db postgres.DBTX, ids []int64) (bool, error) {
	for _, id := range ids {
		if _, ok := f.pricing[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeLedger) PricingSnapshot(ctx context.Context, db postgres.DBTX, ids []int64) (map[int64]catalog.ProductPricing, error) {
	return f.pricing, nil
}

func (f *fakeLedger) DecreaseStock(ctx context.Context, db postgres.DBTX, productID int64, qty int) error {
	if f.stock[productID] < qty {
		return catalog.ErrInsufficientStock
	}
	f.stock[productID] -= qty
	return nil
}

func (f *fakeLedger) IncreaseStock(ctx context.Context, db postgres.DBTX, productID int64, qty int) error {
	f.stock[productID] += qty
	return nil
}

type noopCache struct{}

func (noopCache) Set(ctx context.Context, prefix, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (noopCache) Get(ctx context.Context, prefix, key string) ([]byte, error) { return nil, nil }
func (noopCache) InvalidatePrefix(ctx context.Context, prefixes ...string) error {
	return nil
}

type fixture struct {
	svc     *Service
	store   *fakeOrderStore
	ledger  *fakeLedger
	coupons *fakeCoupons
}

func newFixture() *fixture {
	store := newFakeOrderStore()
	ledger := &fakeLedger{
		stock: map[int64]int{5: 10},
		pricing: map[int64]catalog.ProductPricing{
			5: {ID: 5, Title: "Mechanical Keyboard", Price: decimal.NewFromFloat(20.00)},
		},
	}
	coupons := &fakeCoupons{byCode: map[string]*Coupon{}}
	svc := NewService(
		store,
		&fakeUsers{known: map[string]bool{"u1": true}},
		&fakeAddresses{},
		&fakeMethods{byName: map[string]*ShippingMethod{
			"Standard": {ID: 1, Name: "Standard", Price: decimal.NewFromFloat(5.00)},
		}},
		coupons,
		ledger,
		noopCache{},
		"USD",
		zerolog.Nop(),
	)
	return &fixture{svc: svc, store: store, ledger: ledger, coupons: coupons}
}

func validRequest() CreateOrderRequest {
	return CreateOrderRequest{
		UserID:         "u1",
		ShippingMethod: "Standard",
		Address:        AddressDetails{FullName: "Ada L", Phone: "555", City: "Berlin", Street: "Main 1", PostalCode: "10115"},
		Items:          []ItemQty{{ProductID: 5, Qty: 2}},
	}
}

func TestCreateOrderStructuralValidation(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateOrder(context.Background(), nil, CreateOrderRequest{
		Items: []ItemQty{{ProductID: 0, Qty: 0}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Messages, 4) // user, shipping method, product id, quantity
}

func TestCreateOrderUnknownUser(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.UserID = "ghost"
	_, err := f.svc.CreateOrder(context.Background(), nil, req)
	require.ErrorIs(t, err, ErrSignInFirst)
}

func TestCreateOrderInvalidCoupon(t *testing.T) {
	f := newFixture()
	f.coupons.byCode["OLD10"] = &Coupon{
		ID: 7, Code: "OLD10",
		DiscountPercentage: decimal.NewFromInt(10),
		EndAt:              time.Now().Add(-time.Hour),
	}

	req := validRequest()
	req.CouponCode = "NOPE"
	_, err := f.svc.CreateOrder(context.Background(), nil, req)
	require.ErrorIs(t, err, ErrInvalidCoupon)

	req.CouponCode = "OLD10"
	_, err = f.svc.CreateOrder(context.Background(), nil, req)
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestCreateOrderInvalidShippingMethod(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.ShippingMethod = "Teleport"
	_, err := f.svc.CreateOrder(context.Background(), nil, req)
	require.ErrorIs(t, err, ErrInvalidShippingMethod)
}

func TestCreateOrderMissingProduct(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.Items = append(req.Items, ItemQty{ProductID: 99, Qty: 1})
	_, err := f.svc.CreateOrder(context.Background(), nil, req)
	require.ErrorIs(t, err, ErrProductsNotFound)
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	f := newFixture()
	f.ledger.stock[5] = 1
	req := validRequest() // wants qty 2
	_, err := f.svc.CreateOrder(context.Background(), nil, req)
	require.ErrorIs(t, err, catalog.ErrInsufficientStock)
}

func TestCreateOrderHappyPath(t *testing.T) {
	f := newFixture()
	o, err := f.svc.CreateOrder(context.Background(), nil, validRequest())
	require.NoError(t, err)

	require.Equal(t, StatusProcessing, o.Status)
	require.False(t, o.IsPaid)
	require.Equal(t, "40.00", o.Subtotal.StringFixed(2))
	require.Equal(t, "5.00", o.Shipping.StringFixed(2))
	require.Equal(t, "0.00", o.Discount.StringFixed(2))
	require.Equal(t, "45.00", o.Total.StringFixed(2))
	require.Equal(t, "USD", o.Currency)
	require.Regexp(t, `^Ord-[A-Z0-9]{6}$`, o.Number)
	require.Len(t, o.Items, 1)
	require.Equal(t, "Mechanical Keyboard", o.Items[0].ProductName)
	require.Equal(t, "20.00", o.Items[0].UnitPrice.StringFixed(2))
	require.Equal(t, 8, f.ledger.stock[5]) // 10 - 2
}

func TestCreateOrderCouponMath(t *testing.T) {
	f := newFixture()
	// subtotal 100.00, shipping 10.00, 10% coupon -> total 100.00
	f.ledger.pricing[5] = catalog.ProductPricing{ID: 5, Title: "Keyboard", Price: decimal.NewFromFloat(50.00)}
	f.coupons.byCode["SAVE10"] = &Coupon{
		ID: 3, Code: "SAVE10",
		DiscountPercentage: decimal.NewFromInt(10),
		EndAt:              time.Now().Add(time.Hour),
	}
	f.svc.methods = &fakeMethods{byName: map[string]*ShippingMethod{
		"Standard": {ID: 1, Name: "Standard", Price: decimal.NewFromFloat(10.00)},
	}}

	req := validRequest()
	req.CouponCode = "SAVE10"
	o, err := f.svc.CreateOrder(context.Background(), nil, req)
	require.NoError(t, err)
	require.Equal(t, "100.00", o.Subtotal.StringFixed(2))
	require.Equal(t, "10.00", o.Discount.StringFixed(2))
	require.Equal(t, "100.00", o.Total.StringFixed(2))
	require.NotNil(t, o.CouponID)
}

func TestCreateOrderDiscountedUnitPrice(t *testing.T) {
	f := newFixture()
	f.ledger.pricing[5] = catalog.ProductPricing{
		ID: 5, Title: "Keyboard",
		Price:    decimal.NewFromFloat(20.00),
		Discount: decimal.NewFromFloat(2.50),
	}
	o, err := f.svc.CreateOrder(context.Background(), nil, validRequest())
	require.NoError(t, err)
	require.Equal(t, "17.50", o.Items[0].UnitPrice.StringFixed(2))
	require.Equal(t, "35.00", o.Subtotal.StringFixed(2))
}

func TestCreateOrderNumberCollisionRetries(t *testing.T) {
	f := newFixture()
	f.store.collisions = 3
	o, err := f.svc.CreateOrder(context.Background(), nil, validRequest())
	require.NoError(t, err)
	require.Regexp(t, `^Ord-[A-Z0-9]{6}$`, o.Number)
}

func TestMarkPaid(t *testing.T) {
	f := newFixture()
	o, err := f.svc.CreateOrder(context.Background(), nil, validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkPaid(context.Background(), nil, o.ID))
	require.Equal(t, StatusPaid, f.store.statuses[o.ID])

	// paying again is a failure, not a silent overwrite
	require.ErrorIs(t, f.svc.MarkPaid(context.Background(), nil, o.ID), ErrAlreadyPaid)
}

func TestMarkPaidUnknownOrder(t *testing.T) {
	f := newFixture()
	require.ErrorIs(t, f.svc.MarkPaid(context.Background(), nil, 404), ErrNotFound)
}

func TestMarkFailedIsIdempotent(t *testing.T) {
	f := newFixture()
	o, err := f.svc.CreateOrder(context.Background(), nil, validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkFailed(context.Background(), nil, o.ID))
	require.Equal(t, StatusFailed, f.store.statuses[o.ID])
	require.NoError(t, f.svc.MarkFailed(context.Background(), nil, o.ID))
}

func TestMarkCancelledRejectsPaidOrder(t *testing.T) {
	f := newFixture()
	o, err := f.svc.CreateOrder(context.Background(), nil, validRequest())
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkPaid(context.Background(), nil, o.ID))

	require.ErrorIs(t, f.svc.MarkCancelled(context.Background(), nil, o.ID), ErrAlreadyPaid)
}

func TestMarkFailedRejectsCancelledOrder(t *testing.T) {
	f := newFixture()
	o, err := f.svc.CreateOrder(context.Background(), nil, validRequest())
	require.NoError(t, err)
	require.NoError(t, f.svc.MarkCancelled(context.Background(), nil, o.ID))

	require.ErrorIs(t, f.svc.MarkFailed(context.Background(), nil, o.ID), ErrInvalidTransition)
}

func TestReleaseStock(t *testing.T) {
	f := newFixture()
	o, err := f.svc.CreateOrder(context.Background(), nil, validRequest())
	require.NoError(t, err)
	require.Equal(t, 8, f.ledger.stock[5])

	released, err := f.svc.ReleaseStock(context.Background(), nil, o.ID)
	require.NoError(t, err)
	require.Equal(t, []ItemQty{{ProductID: 5, Qty: 2}}, released)
	require.Equal(t, 10, f.ledger.stock[5])
}
