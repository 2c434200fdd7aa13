package demo

import "fmt"

// OutOfStockError is returned when an order asks for more than is in stock.
type OutOfStockError struct {
	SKU  string
	Want int
	Have int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: %s (want %d, have %d)", e.SKU, e.Want, e.Have)
}

// PaymentError is returned when a charge is declined.
type PaymentError struct {
	Amount int
	Reason string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment of %d declined: %s", e.Amount, e.Reason)
}
