package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Invoice struct{ Total int }

type Receipt struct{}

func TestCatalog_Register(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(&Invoice{}, &Receipt{}))
	require.NoError(t, c.Register(&Invoice{}), "re-registering is a no-op")

	const pkg = "github.com/flyxxxxx/prototype-sub001/internal/catalog"
	assert.Equal(t, []string{pkg + ".Invoice", pkg + ".Receipt"}, c.Names())

	typ, ok := c.Lookup(pkg + ".Invoice")
	require.True(t, ok)
	assert.Equal(t, "*catalog.Invoice", typ.String())

	_, ok = c.Lookup("Invoice")
	assert.False(t, ok, "lookups use the fully-qualified name")
}

func TestCatalog_RegisterRejectsNonStructPointers(t *testing.T) {
	c := New()
	for _, p := range []any{Invoice{}, nil, new(int), "Invoice"} {
		assert.Error(t, c.Register(p), "%T", p)
	}
	assert.Empty(t, c.Names())
}

func TestCatalog_New(t *testing.T) {
	c := New()
	c.MustRegister(&Invoice{})

	v, err := c.New(c.Names()[0])
	require.NoError(t, err)
	assert.IsType(t, &Invoice{}, v)

	_, err = c.New("missing")
	assert.Error(t, err)
}

func TestCatalog_MustRegisterPanics(t *testing.T) {
	assert.Panics(t, func() { New().MustRegister(Invoice{}) })
}

func TestCatalog_Resolve(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(&Invoice{}))

	const full = "github.com/flyxxxxx/prototype-sub001/internal/catalog.Invoice"
	name, err := c.Resolve("Invoice")
	require.NoError(t, err)
	assert.Equal(t, full, name)

	name, err = c.Resolve(full)
	require.NoError(t, err)
	assert.Equal(t, full, name)

	_, err = c.Resolve("Receipt")
	assert.ErrorContains(t, err, "unknown class Receipt")
}
