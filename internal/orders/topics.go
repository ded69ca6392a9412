package orders

const (
	TopicOrderEvents = "checkout.order.events"
)

// Partition key = order number, so all events for one order keep their order.
func PartitionKey(number string) []byte { return []byte(number) }
