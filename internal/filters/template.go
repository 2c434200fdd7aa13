package filters

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"text/template"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

type templateOptions struct {
	// Text is a text/template rendered after the inner layers succeed.
	Text string `mapstructure:"text"`
}

// templateData is the value templates are executed against.
type templateData struct {
	Class     string
	Operation string
	ID        string
	Args      []any
	Result    any
}

var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// buildTemplate replaces the result of matched string operations with a
// rendering of it.
func buildTemplate(name string, options map[string]any, _ Deps) (matcher, error) {
	var opts templateOptions
	if err := decode(options, &opts); err != nil {
		return nil, err
	}
	if opts.Text == "" {
		return nil, errors.New("text is required")
	}
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(opts.Text)
	if err != nil {
		return nil, fmt.Errorf("parse text: %w", err)
	}

	filter := advisor.FilterFunc(func(ctx context.Context, inv *advisor.Invocation, next advisor.Next) (any, error) {
		v, err := next(ctx)
		if err != nil {
			return v, err
		}
		var b strings.Builder
		err = tmpl.Execute(&b, templateData{
			Class:     inv.Class.Name,
			Operation: inv.Operation.Method,
			ID:        inv.ID,
			Args:      inv.Args,
			Result:    v,
		})
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		return b.String(), nil
	})

	return func(op *index.OperationDescriptor) (advisor.Filter, bool) {
		if op.Result == nil || op.Result.Kind() != reflect.String {
			return nil, false
		}
		return filter, true
	}, nil
}
