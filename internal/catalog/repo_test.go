package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// stockDB emulates the database side of the conditional update: the check and
// the decrement happen under one lock, which is exactly the guarantee a real
// row-level UPDATE provides.
type stockDB struct {
	mu  sync.Mutex
	qty map[int64]int
}

func (d *stockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := args[0].(int64)
	n := args[1].(int)
	if strings.Contains(sql, "quantity - ") {
		if d.qty[id] >= n {
			d.qty[id] -= n
			return pgconn.NewCommandTag("UPDATE 1"), nil
		}
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	d.qty[id] += n
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (d *stockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *stockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}

func TestDecreaseStockInsufficient(t *testing.T) {
	db := &stockDB{qty: map[int64]int{1: 1}}
	repo := &Repo{}

	err := repo.DecreaseStock(context.Background(), db, 1, 2)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 1, db.qty[1])
}

func TestDecreaseStockUnknownProduct(t *testing.T) {
	db := &stockDB{qty: map[int64]int{}}
	repo := &Repo{}
	require.ErrorIs(t, repo.DecreaseStock(context.Background(), db, 42, 1), ErrInsufficientStock)
}

func TestDecreaseThenIncreaseRoundTrip(t *testing.T) {
	db := &stockDB{qty: map[int64]int{1: 10}}
	repo := &Repo{}

	require.NoError(t, repo.DecreaseStock(context.Background(), db, 1, 2))
	require.Equal(t, 8, db.qty[1])
	require.NoError(t, repo.IncreaseStock(context.Background(), db, 1, 2))
	require.Equal(t, 10, db.qty[1])
}

// Concurrent decrements against quantity Q: exactly Q singles succeed and the
// quantity never goes negative.
func TestDecreaseStockConcurrent(t *testing.T) {
	const initial = 10
	const attempts = 50

	db := &stockDB{qty: map[int64]int{1: initial}}
	repo := &Repo{}

	var wg sync.WaitGroup
	successes := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.DecreaseStock(context.Background(), db, 1, 1); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	require.Len(t, successes, initial)
	require.Equal(t, 0, db.qty[1])
	require.GreaterOrEqual(t, db.qty[1], 0)
}

func TestEffectivePrice(t *testing.T) {
	p := ProductPricing{Price: decimal.NewFromFloat(20.00)}
	require.Equal(t, "20.00", p.EffectivePrice().StringFixed(2))

	p.Discount = decimal.NewFromFloat(2.50)
	require.Equal(t, "17.50", p.EffectivePrice().StringFixed(2))
}
