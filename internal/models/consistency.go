package models

// CheckDelivery enforces that an order is only delivered once paid.
func CheckDelivery(order *Order, payment *Payment) error {
	if payment == nil {
		return order.invalid("deliver", "order has no payment")
	}
	if payment.Status != PaymentStatusCompleted {
		return order.invalid("deliver", "payment "+payment.ID+" is "+string(payment.Status))
	}
	return nil
}

// CheckRefund enforces that money only goes back for delivered or cancelled
// orders. A payment whose order no longer exists has nothing left to protect.
func CheckRefund(payment *Payment, order *Order) error {
	if order == nil {
		return nil
	}
	if order.Status != OrderStatusDelivered && order.Status != OrderStatusCancelled {
		return payment.invalid("refund", "order "+order.ID+" is "+string(order.Status))
	}
	return nil
}
