package domain

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusOrdered        OrderStatus = "ordered"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var orderStatusRank = map[OrderStatus]int{
	OrderStatusOrdered:        0,
	OrderStatusProcessing:     1,
	OrderStatusShipped:        2,
	OrderStatusOutForDelivery: 3,
	OrderStatusDelivered:      4,
}

// ParseOrderStatus validates a raw status string.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	switch OrderStatus(raw) {
	case OrderStatusOrdered, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(raw), true
	}
	return "", false
}

// Rank returns the position of a status on the forward fulfilment path.
// Cancelled is off the path and reports ok=false.
func (s OrderStatus) Rank() (int, bool) {
	rank, ok := orderStatusRank[s]
	return rank, ok
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether the order may move from s to target.
// Forward moves may skip intermediate statuses; moving backwards is not
// allowed. Cancellation is allowed from every non-terminal status.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s == target {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	if target == OrderStatusCancelled {
		return true
	}
	from, ok := s.Rank()
	if !ok {
		return false
	}
	to, ok := target.Rank()
	if !ok {
		return false
	}
	return to > from
}

// StatusesThrough lists every forward-path status with rank at most the
// target's, in order. Used to backfill tracking steps when a transition
// skips intermediate statuses.
func StatusesThrough(target OrderStatus) []OrderStatus {
	to, ok := target.Rank()
	if !ok {
		return nil
	}
	path := []OrderStatus{
		OrderStatusOrdered,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusOutForDelivery,
		OrderStatusDelivered,
	}
	return path[:to+1]
}

// PaymentMethod is how the buyer pays for an order.
type PaymentMethod string

const (
	PaymentMethodOnline         PaymentMethod = "online"
	PaymentMethodCashOnDelivery PaymentMethod = "cod"
)

// ParsePaymentMethod validates a raw payment method string.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(raw) {
	case PaymentMethodOnline, PaymentMethodCashOnDelivery:
		return PaymentMethod(raw), true
	}
	return "", false
}

// PaymentStatus is the settlement state of an order's payment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusFailed   PaymentStatus = "failed"
)
