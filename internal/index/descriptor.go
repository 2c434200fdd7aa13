package index

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ContextType is the reflect.Type of context.Context.
func ContextType() reflect.Type { return contextType }

// ErrorType is the reflect.Type of the error interface.
func ErrorType() reflect.Type { return errorType }

// ClassDescriptor is the resolved operation surface of one managed class.
// Immutable once returned by Index.Class.
type ClassDescriptor struct {
	// Name is the fully-qualified class name.
	Name string

	// Type is the struct type (never a pointer).
	Type reflect.Type

	// Operations lists every visible operation, shallowest first. Within a
	// depth, operations follow the depth-first field walk and then method name.
	Operations []*OperationDescriptor

	byLogical map[string][]*OperationDescriptor
	byMethod  map[string][]*OperationDescriptor
}

// New allocates a fresh zero instance of the class and returns the pointer.
func (c *ClassDescriptor) New() reflect.Value {
	return reflect.New(c.Type)
}

// Named returns the operations name refers to, shallowest first. Names are
// normalized the way Index.Resolve normalizes them.
func (c *ClassDescriptor) Named(name string) []*OperationDescriptor {
	if exact, ok := exactName(name); ok {
		return c.byMethod[exact]
	}
	return c.byLogical[LogicalName(name)]
}

// OperationDescriptor is one callable operation of a class.
// Shared read-only between every plan that references it.
type OperationDescriptor struct {
	// Name is the logical (overload group) name.
	Name string

	// Method is the Go method name.
	Method string

	// Class is the managed class the descriptor was resolved for.
	Class *ClassDescriptor

	// Declaring is the struct type whose own method this is. An override
	// declared by the class itself has Depth 0.
	Declaring reflect.Type

	// Depth is the embedding depth of Declaring (0 = the class itself).
	Depth int

	// Path is the field index path from the class to the receiver used for
	// dispatch. Empty when the class's own method set is used.
	Path []int

	// Params are the parameter types, excluding a leading context.Context.
	Params []reflect.Type

	// Context is true when the first parameter is a context.Context.
	Context bool

	// Result is the non-error result type, or nil for void operations.
	Result reflect.Type

	// Errors is true when the last result is an error.
	Errors bool

	// methodIndex is the method's index in the receiver's method set.
	methodIndex int
}

// QualifiedName renders "Class.Method".
func (op *OperationDescriptor) QualifiedName() string {
	return op.Class.Name + "." + op.Method
}

// Signature renders the Go signature without receiver, used for shadowing
// and stable plan descriptions.
func (op *OperationDescriptor) Signature() string {
	var b strings.Builder
	b.WriteString(op.Method)
	b.WriteByte('(')
	first := true
	if op.Context {
		b.WriteString("context.Context")
		first = false
	}
	for _, p := range op.Params {
		if !first {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
		first = false
	}
	b.WriteByte(')')
	switch {
	case op.Result != nil && op.Errors:
		fmt.Fprintf(&b, " (%s, error)", op.Result)
	case op.Result != nil:
		fmt.Fprintf(&b, " %s", op.Result)
	case op.Errors:
		b.WriteString(" error")
	}
	return b.String()
}

// String implements fmt.Stringer.
func (op *OperationDescriptor) String() string {
	return op.Class.Name + "." + op.Signature()
}

// Receiver returns the value whose method set dispatches this operation.
// recv must be a non-nil pointer to an instance of the class.
func (op *OperationDescriptor) Receiver(recv reflect.Value) (reflect.Value, error) {
	if recv.Kind() != reflect.Pointer || recv.IsNil() {
		return reflect.Value{}, fmt.Errorf("%s: receiver must be a non-nil pointer", op.QualifiedName())
	}
	if recv.Elem().Type() != op.Class.Type {
		return reflect.Value{}, fmt.Errorf("%s: receiver type %s does not match class", op.QualifiedName(), recv.Type())
	}
	if len(op.Path) == 0 {
		return recv, nil
	}
	field, err := recv.Elem().FieldByIndexErr(op.Path)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%s: %w", op.QualifiedName(), err)
	}
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return reflect.Value{}, fmt.Errorf("%s: embedded %s is nil", op.QualifiedName(), field.Type())
		}
		return field, nil
	}
	return field.Addr(), nil
}

// Call invokes the operation on recv with already-bound args.
//
// The returned error is exactly the error returned by the method, so callers
// observe the original failure type. Panics are not recovered here.
func (op *OperationDescriptor) Call(ctx context.Context, recv reflect.Value, args []reflect.Value) (any, error) {
	if len(args) != len(op.Params) {
		return nil, fmt.Errorf("%s: want %d args, got %d", op.QualifiedName(), len(op.Params), len(args))
	}
	target, err := op.Receiver(recv)
	if err != nil {
		return nil, err
	}
	if op.methodIndex >= target.NumMethod() {
		return nil, fmt.Errorf("%s: method not found on %s", op.QualifiedName(), target.Type())
	}
	fn := target.Method(op.methodIndex)

	in := make([]reflect.Value, 0, len(args)+1)
	if op.Context {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, a := range args {
		if !a.IsValid() {
			a = reflect.Zero(op.Params[i])
		}
		in = append(in, a)
	}

	out := fn.Call(in)

	var result any
	if op.Result != nil {
		result = out[0].Interface()
	}
	if op.Errors {
		if e := out[len(out)-1]; !e.IsNil() {
			return result, e.Interface().(error)
		}
	}
	return result, nil
}

// ValuesOf converts plain arguments to reflect values, keeping nils invalid.
func ValuesOf(args []any) []reflect.Value {
	vals := make([]reflect.Value, len(args))
	for i, a := range args {
		if a != nil {
			vals[i] = reflect.ValueOf(a)
		}
	}
	return vals
}

// operationShape inspects a method type (receiver excluded) and reports
// whether it is an operation.
func operationShape(ft reflect.Type) (params []reflect.Type, hasCtx bool, result reflect.Type, errs bool, ok bool) {
	if ft.IsVariadic() {
		return nil, false, nil, false, false
	}
	start := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		hasCtx = true
		start = 1
	}
	for i := start; i < ft.NumIn(); i++ {
		params = append(params, ft.In(i))
	}
	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			errs = true
		} else {
			result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, false, nil, false, false
		}
		result, errs = ft.Out(0), true
	default:
		return nil, false, nil, false, false
	}
	return params, hasCtx, result, errs, true
}

// methodType strips the receiver from a reflect.Method's func type.
func methodType(m reflect.Method) reflect.Type {
	ft := m.Type
	in := make([]reflect.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	out := make([]reflect.Type, 0, ft.NumOut())
	for i := 0; i < ft.NumOut(); i++ {
		out = append(out, ft.Out(i))
	}
	return reflect.FuncOf(in, out, ft.IsVariadic())
}
