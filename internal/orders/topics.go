package orders

const (
	TopicOrderCreated       = "order.created"
	TopicPaymentReconciled  = "order.payment.reconciled"
	TopicOrderStatusChanged = "order.status.changed"
)

// Topics lists every topic the API publishes to.
var Topics = []string{TopicOrderCreated, TopicPaymentReconciled, TopicOrderStatusChanged}

// PartitionKey keeps all events of one order on one partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
