package demo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxxxxx/prototype-sub001/internal/catalog"
	"github.com/flyxxxxx/prototype-sub001/internal/compiler"
	"github.com/flyxxxxx/prototype-sub001/internal/engine"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

type env struct {
	engine    *engine.Engine
	inventory *Inventory
	mailer    *Mailer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, Register(cat))
	assert.Equal(t, Classes, cat.Names())

	collabs := Collaborators()
	ix := index.New()
	plans, err := compiler.New(ix, cat, compiler.WithCollaborators(collabs...)).Scan(cat.Names())
	require.NoError(t, err)

	e := engine.New(ix, plans,
		engine.WithCollaborators(collabs...),
		engine.WithIDGenerator(engine.NewSequenceGenerator("inv")),
	)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return &env{engine: e, inventory: collabs[0].(*Inventory), mailer: collabs[1].(*Mailer)}
}

func (v *env) invoke(t *testing.T, instance any, op string, args ...any) (*engine.Outcome, error) {
	t.Helper()
	return v.engine.Invoke(context.Background(), instance, op, args...)
}

// =============================================================================
// Shop
// =============================================================================

func TestShop_Checkout(t *testing.T) {
	v := newEnv(t)
	shop := &Shop{}

	out, err := v.invoke(t, shop, "Checkout", Order{ID: "o1", SKU: "widget", Qty: 3, Amount: 30})
	require.NoError(t, err)
	assert.Equal(t, "placed o1", out.Value)
	assert.Equal(t, engine.StateCompleted, out.State)
	assert.Equal(t, 7, v.inventory.Level("widget"))

	v.engine.Wait()
	assert.Equal(t, []string{"o1: order placed"}, v.mailer.Sent())
	assert.Equal(t, []string{"charge", "checkout", "reserve"}, shop.Steps())
}

func TestShop_CheckoutOutOfStockIsBackordered(t *testing.T) {
	v := newEnv(t)
	shop := &Shop{}

	out, err := v.invoke(t, shop, "Checkout", Order{ID: "o2", SKU: "gadget", Qty: 5, Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, "backordered gadget", out.Value)
	assert.Equal(t, engine.StateCompleted, out.State)
	assert.Equal(t, 2, v.inventory.Level("gadget"))

	v.engine.Wait()
	assert.Empty(t, v.mailer.Sent(), "a failed checkout sends no confirmation")
	assert.Equal(t, []string{"backorder", "reserve"}, shop.Steps())
}

func TestShop_CheckoutDeclined(t *testing.T) {
	v := newEnv(t)

	out, err := v.invoke(t, &Shop{}, "Checkout", Order{ID: "o3", SKU: "widget", Qty: 1, Amount: 5000})
	require.Error(t, err)
	assert.Equal(t, engine.StateFailed, out.State)
	assert.ErrorContains(t, err, "checkout: payment of 5000 declined")

	var pe *PaymentError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 5000, pe.Amount)
}

func TestShop_Route(t *testing.T) {
	v := newEnv(t)

	out, err := v.invoke(t, &Shop{}, "Route", Order{ID: "o1", Rush: true})
	require.NoError(t, err)
	assert.Equal(t, "express o1", out.Value)

	out, err = v.invoke(t, &Shop{}, "Route", Order{ID: "o2"})
	require.NoError(t, err)
	assert.Equal(t, "standard o2", out.Value)
}

func TestShop_Classify(t *testing.T) {
	v := newEnv(t)

	out, err := v.invoke(t, &Shop{}, "Classify", Order{ID: "o1", Amount: 600})
	require.NoError(t, err)
	assert.Equal(t, "gold lane o1", out.Value)

	out, err = v.invoke(t, &Shop{}, "Classify", Order{ID: "o2", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, "silver lane o2", out.Value)
}

func TestShop_Review(t *testing.T) {
	tests := []struct {
		amount int
		want   []string
	}{
		{10, nil},
		{600, []string{"audit"}},
		{2000, []string{"flag"}},
	}
	v := newEnv(t)
	for _, tt := range tests {
		shop := &Shop{}
		_, err := v.invoke(t, shop, "Review", Order{ID: "o1", Amount: tt.amount})
		require.NoError(t, err)
		assert.Equal(t, tt.want, shop.Steps(), "amount %d", tt.amount)
	}
}

func TestShop_Ship(t *testing.T) {
	v := newEnv(t)
	shop := &Shop{}

	out, err := v.invoke(t, shop, "Ship", Order{ID: "o1", SKU: "widget"})
	require.NoError(t, err)
	assert.Equal(t, "shipped o1", out.Value)
	assert.Equal(t, []string{"label", "pack"}, shop.Steps())

	_, err = v.invoke(t, &Shop{}, "Ship", Order{ID: "o2"})
	assert.ErrorContains(t, err, "label o2: missing sku")
}

func TestShop_Plan(t *testing.T) {
	v := newEnv(t)
	p, ok := v.engine.PlanOf(&Shop{})
	require.True(t, ok)

	desc := plan.Describe(p)
	assert.Contains(t, desc, "catch on *demo.OutOfStockError=Recover_Stock")
	assert.Contains(t, desc, "decision mode=enum")
	assert.Contains(t, desc, "chain after dynamic mode=branch")
}

// =============================================================================
// Newsletter
// =============================================================================

func TestNewsletter_Subscribe(t *testing.T) {
	v := newEnv(t)

	out, err := v.invoke(t, &Newsletter{}, "Subscribe", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "subscribed ada@example.com", out.Value)

	_, err = v.invoke(t, &Newsletter{}, "Subscribe", "nobody")
	assert.ErrorContains(t, err, "invalid email nobody")

	v.engine.Wait()
	assert.Equal(t, []string{"ada@example.com: welcome"}, v.mailer.Sent())
}

func TestNewsletter_Broadcast(t *testing.T) {
	v := newEnv(t)

	out, err := v.invoke(t, &Newsletter{}, "Broadcast", "issue 1")
	require.NoError(t, err)
	assert.Equal(t, "broadcast issue 1", out.Value)
	assert.Equal(t, []string{"subscribers: issue 1"}, v.mailer.Sent())

	_, err = v.invoke(t, &Newsletter{}, "Broadcast", "")
	assert.ErrorContains(t, err, "empty issue")
}

// =============================================================================
// Collaborators
// =============================================================================

func TestInventory_Take(t *testing.T) {
	inv := NewInventory(map[string]int{"widget": 2})
	require.NoError(t, inv.Take("widget", 2))
	assert.Equal(t, 0, inv.Level("widget"))

	err := inv.Take("widget", 1)
	var oos *OutOfStockError
	require.True(t, errors.As(err, &oos))
	assert.Equal(t, "out of stock: widget (want 1, have 0)", err.Error())
}

func TestTier_EnumValues(t *testing.T) {
	assert.Equal(t, []string{"gold", "silver"}, TierGold.EnumValues())
}
