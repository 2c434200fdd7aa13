package index

import (
	"reflect"
)

// Binding maps each parameter of an operation to a collaborator slot.
// Slot i refers to the i-th entry of the collaborator list the binding was
// computed against.
type Binding []int

// Bind matches the parameters of op against the available collaborator types.
//
// Each parameter takes the first unused collaborator of identical type, so
// two parameters of one type take two distinct collaborators in order.
// Failing that it takes the single unused collaborator assignable to it;
// several assignable collaborators of different types is an *AmbiguousError,
// none is an *UnsatisfiedError.
func Bind(op *OperationDescriptor, available []reflect.Type) (Binding, error) {
	b := make(Binding, len(op.Params))
	used := make([]bool, len(available))
	for i, p := range op.Params {
		slot := -1
		for j, a := range available {
			if a == p && !used[j] {
				slot = j
				break
			}
		}
		if slot < 0 {
			var assignable []int
			for j, a := range available {
				if used[j] {
					continue
				}
				if a != nil && a.AssignableTo(p) && !containsType(available, assignable, a) {
					assignable = append(assignable, j)
				}
			}
			switch len(assignable) {
			case 0:
				return nil, &UnsatisfiedError{Operation: op.QualifiedName(), Param: TypeName(p)}
			case 1:
				slot = assignable[0]
			default:
				names := make([]string, len(assignable))
				for k, j := range assignable {
					names[k] = TypeName(available[j])
				}
				return nil, &AmbiguousError{Class: op.Class.Name, Name: op.Method + " parameter " + TypeName(p), Candidates: names}
			}
		}
		b[i] = slot
		used[slot] = true
	}
	return b, nil
}

// BindPositional binds argument i to parameter i. It reports false when the
// argument count differs from the parameter count or some argument cannot be
// assigned to its parameter. A nil argument type fits any nilable parameter.
func BindPositional(op *OperationDescriptor, argTypes []reflect.Type) (Binding, bool) {
	if len(argTypes) != len(op.Params) {
		return nil, false
	}
	b := make(Binding, len(op.Params))
	for i, p := range op.Params {
		a := argTypes[i]
		switch {
		case a == nil && !nilable(p):
			return nil, false
		case a != nil && !a.AssignableTo(p):
			return nil, false
		}
		b[i] = i
	}
	return b, true
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// Args selects the bound values from the collaborator values.
func (b Binding) Args(collaborators []reflect.Value) []reflect.Value {
	args := make([]reflect.Value, len(b))
	for i, slot := range b {
		if slot < len(collaborators) {
			args[i] = collaborators[slot]
		}
	}
	return args
}

func containsType(available []reflect.Type, slots []int, t reflect.Type) bool {
	for _, j := range slots {
		if available[j] == t {
			return true
		}
	}
	return false
}
