package filters

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxxxxx/prototype-sub001/internal/compiler"
)

func templateSpec(text string) compiler.AdvisorSpec {
	return compiler.AdvisorSpec{Kind: KindTemplate, Options: map[string]any{"text": text}}
}

func TestTemplate_RendersResult(t *testing.T) {
	f, ok := filterFor(t, templateSpec("{{.Operation}} [{{.ID}}]: {{upper .Result}} ({{index .Args 0}})"), Deps{}, "Greet")
	require.True(t, ok)

	v, err := f.Invoke(context.Background(), invocation(t, "Greet", "ada"), returning("hello ada", nil).next)
	require.NoError(t, err)
	assert.Equal(t, "Greet [inv-1]: HELLO ADA (ada)", v)
}

func TestTemplate_OnlyStringResults(t *testing.T) {
	_, ok := filterFor(t, templateSpec("{{.Result}}"), Deps{}, "Price")
	assert.False(t, ok)
	_, ok = filterFor(t, templateSpec("{{.Result}}"), Deps{}, "Void")
	assert.False(t, ok)
}

func TestTemplate_FailurePassesThrough(t *testing.T) {
	f, ok := filterFor(t, templateSpec("{{.Result}}"), Deps{}, "Greet")
	require.True(t, ok)

	boom := errors.New("boom")
	_, err := f.Invoke(context.Background(), invocation(t, "Greet"), returning(nil, boom).next)
	assert.ErrorIs(t, err, boom)
}

func TestTemplate_RenderError(t *testing.T) {
	f, ok := filterFor(t, templateSpec("{{.Missing}}"), Deps{}, "Greet")
	require.True(t, ok)

	_, err := f.Invoke(context.Background(), invocation(t, "Greet"), returning("x", nil).next)
	assert.ErrorContains(t, err, "render template")
}

func TestTemplate_InvalidOptions(t *testing.T) {
	_, err := New(templateSpec(""), Deps{})
	assert.ErrorContains(t, err, "text is required")

	_, err = New(templateSpec("{{.Result"), Deps{})
	assert.ErrorContains(t, err, "parse text")
}
