package events

// Topics emitted by the checkout and settlement flows.
const (
	TopicOrderPaid      = "order.paid"
	TopicPaymentFailed  = "payment.failed"
	TopicPaymentExpired = "payment.expired"
)
