package demo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flyxxxxx/prototype-sub001/internal/ir"
)

// ChargeLimit is the largest amount Charge accepts.
const ChargeLimit = 1000

// Order is the unit of work of the shop.
type Order struct {
	ID     string `json:"id" yaml:"id"`
	SKU    string `json:"sku" yaml:"sku"`
	Qty    int    `json:"qty" yaml:"qty"`
	Amount int    `json:"amount" yaml:"amount"`
	Rush   bool   `json:"rush" yaml:"rush"`
}

// Tier is the customer tier an order is served in.
type Tier string

const (
	TierGold   Tier = "gold"
	TierSilver Tier = "silver"
)

// EnumValues lists every tier.
func (Tier) EnumValues() []string {
	return []string{string(TierGold), string(TierSilver)}
}

// Shop is the checkout pipeline.
type Shop struct {
	mu    sync.Mutex
	steps []string
}

// Directives declares the shop's pipeline.
func (s *Shop) Directives() []ir.Directive {
	return []ir.Directive{
		ir.Chain{Owner: "Checkout", Targets: []string{"Reserve", "Charge"}},
		ir.Async{Owner: "Checkout", Target: "Confirm", After: true},
		ir.Catch{Owner: "Checkout", Handler: "Recover"},
		ir.Decision{Owner: "Route", Targets: []string{"Express", "Standard"}},
		ir.Decision{Owner: "Classify", Targets: []string{"Gold", "Silver"}},
		ir.Chain{Owner: "Review", Targets: []string{"Audit", "Flag"}, After: true, Dynamic: true},
		ir.Fork{Owner: "Ship", Targets: []string{"Pack", "Label"}},
	}
}

func (s *Shop) record(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

// Steps returns the recorded pipeline steps in sorted order.
func (s *Shop) Steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.steps...)
	sort.Strings(out)
	return out
}

// Checkout places o once its stock is reserved and its payment charged.
func (s *Shop) Checkout(o Order) (string, error) {
	s.record("checkout")
	return "placed " + o.ID, nil
}

func (s *Shop) Reserve(inv *Inventory, o Order) error {
	s.record("reserve")
	return inv.Take(o.SKU, o.Qty)
}

func (s *Shop) Charge(o Order) error {
	s.record("charge")
	if o.Amount > ChargeLimit {
		return &PaymentError{Amount: o.Amount, Reason: "over limit"}
	}
	return nil
}

// Confirm mails the confirmation after a successful checkout.
func (s *Shop) Confirm(m *Mailer, o Order) {
	m.Send(o.ID, "order placed")
}

// Recover_Stock backorders an order that could not be reserved.
func (s *Shop) Recover_Stock(err *OutOfStockError) (string, error) {
	s.record("backorder")
	return "backordered " + err.SKU, nil
}

// Recover_Any reports every other checkout failure.
func (s *Shop) Recover_Any(err error) (string, error) {
	return "", fmt.Errorf("checkout: %w", err)
}

// Route sends rush orders to Express.
func (s *Shop) Route(o Order) bool {
	return o.Rush
}

func (s *Shop) Express(o Order) string  { return "express " + o.ID }
func (s *Shop) Standard(o Order) string { return "standard " + o.ID }

// Classify serves large orders in the gold tier.
func (s *Shop) Classify(o Order) Tier {
	if o.Amount >= 500 {
		return TierGold
	}
	return TierSilver
}

func (s *Shop) Gold(o Order) string   { return "gold lane " + o.ID }
func (s *Shop) Silver(o Order) string { return "silver lane " + o.ID }

// Review audits orders close to the charge limit and flags the ones over it.
func (s *Shop) Review(o Order) ir.Branch {
	switch {
	case o.Amount > ChargeLimit:
		return ir.Take("flag")
	case o.Amount >= ChargeLimit/2:
		return ir.Take("audit")
	}
	return ir.Skip()
}

func (s *Shop) Audit(o Order) { s.record("audit") }
func (s *Shop) Flag(o Order)  { s.record("flag") }

// Ship packs and labels o concurrently.
func (s *Shop) Ship(ctx context.Context, o Order) (string, error) {
	return "shipped " + o.ID, nil
}

func (s *Shop) Pack(ctx context.Context, o Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.record("pack")
	return nil
}

func (s *Shop) Label(o Order) error {
	if o.SKU == "" {
		return fmt.Errorf("label %s: missing sku", o.ID)
	}
	s.record("label")
	return nil
}
