package redisx

import "time"

const (
	// Delay queue for reservation expiry checks (sorted set, score = fire-at ms).
	KeyExpiryQueue = "jobs:reservation-expiry"

	// Cache prefixes, invalidated together on any order state change. Full keys
	// are prefix:key, e.g. orders:detail:{number}.
	PrefixOrderDetail    = "orders:detail"
	PrefixOrderPage      = "orders:page"
	PrefixOrderByPayment = "orders:bypayment"
)

var TTLOrderDetail = 5 * time.Minute
