package orders

import "math/rand/v2"

const (
	numberPrefix  = "Ord-"
	numberCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	numberLength  = 6
)

// NewOrderNumber returns a candidate order number. Uniqueness is enforced by
// the caller retrying against the orders table.
func NewOrderNumber() string {
	b := make([]byte, numberLength)
	for i := range b {
		b[i] = numberCharset[rand.IntN(len(numberCharset))]
	}
	return numberPrefix + string(b)
}
