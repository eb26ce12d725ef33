package redisx

import "time"

const (
	// Cached order status: order_status:{order_id} -> {"status":"...","buyer":"...","seller":"..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup: dedup:{scope}:{id}, scope is "callback" (transaction uuid) or "notifier" (event id)
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
