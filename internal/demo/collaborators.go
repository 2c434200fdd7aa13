package demo

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultStock is the inventory the CLI starts with.
var DefaultStock = map[string]int{
	"widget": 10,
	"gadget": 2,
}

// Inventory tracks stock levels per SKU.
//
// Thread-safety: safe for concurrent use.
type Inventory struct {
	mu    sync.Mutex
	stock map[string]int
}

// NewInventory creates an inventory holding a copy of stock.
func NewInventory(stock map[string]int) *Inventory {
	inv := &Inventory{stock: make(map[string]int, len(stock))}
	for sku, n := range stock {
		inv.stock[sku] = n
	}
	return inv
}

// Take removes qty units of sku or fails with *OutOfStockError.
func (i *Inventory) Take(sku string, qty int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	have := i.stock[sku]
	if qty > have {
		return &OutOfStockError{SKU: sku, Want: qty, Have: have}
	}
	i.stock[sku] = have - qty
	return nil
}

// Level returns the units of sku in stock.
func (i *Inventory) Level(sku string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stock[sku]
}

// Mailer records the messages it was asked to send.
//
// Thread-safety: safe for concurrent use.
type Mailer struct {
	mu   sync.Mutex
	sent []string
}

// NewMailer creates an empty mailer.
func NewMailer() *Mailer {
	return &Mailer{}
}

// Send records a message to recipient.
func (m *Mailer) Send(to, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, fmt.Sprintf("%s: %s", to, body))
}

// Sent returns the recorded messages in sorted order.
func (m *Mailer) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.sent...)
	sort.Strings(out)
	return out
}

// Collaborators returns fresh shared collaborators in the order the
// compiler and engine must both be given: a stocked *Inventory, then a
// *Mailer.
func Collaborators() []any {
	return []any{NewInventory(DefaultStock), NewMailer()}
}
