package compiler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/flyxxxxx/prototype-sub001/internal/index"
	"github.com/flyxxxxx/prototype-sub001/internal/ir"
	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

var (
	boolType   = reflect.TypeOf(false)
	branchType = reflect.TypeOf(ir.Branch{})
	enumType   = reflect.TypeOf((*ir.Enum)(nil)).Elem()
)

// compileStep validates d against its resolved owner and converts it to a
// step. Every problem is recorded; nil is returned when any was found.
func (c *Compiler) compileStep(cd *index.ClassDescriptor, owner *index.OperationDescriptor, d ir.Directive, errs *Errors) *plan.Step {
	before := errs.Len()
	step := &plan.Step{
		Kind:      d.Kind(),
		Priority:  c.priorities[d.Kind()],
		Directive: d,
		Owner:     owner,
	}

	switch v := d.(type) {
	case ir.Chain:
		c.validateChain(cd, owner, v, step, errs)
	case ir.Decision:
		c.validateDecision(cd, owner, v, step, errs)
	case ir.Fork:
		c.validateFork(cd, owner, v, step, errs)
	case ir.Async:
		c.validateAsync(cd, owner, v, step, errs)
	case ir.Catch:
		c.validateCatch(cd, owner, v, step, errs)
	default:
		errs.Add(ErrUnsupportedDirective, owner.QualifiedName(), fmt.Sprintf("%T", d))
	}

	if errs.Len() > before {
		return nil
	}
	return step
}

func (c *Compiler) resolveTargets(cd *index.ClassDescriptor, owner *index.OperationDescriptor, kind ir.Kind, names []string, step *plan.Step, errs *Errors) {
	for _, name := range names {
		if t, ok := c.resolveTarget(cd, owner, kind, name, errs); ok {
			step.Targets = append(step.Targets, t)
		}
	}
}

// validateChain checks a sequential chain.
//
// A dynamic chain runs after its owner and interprets the owner's result:
// bool (all or nothing), string or enum (the named target), ir.Branch, or
// void (all targets in order).
func (c *Compiler) validateChain(cd *index.ClassDescriptor, owner *index.OperationDescriptor, d ir.Chain, step *plan.Step, errs *Errors) {
	subject := owner.QualifiedName()
	step.After = d.After
	step.Dynamic = d.Dynamic

	if len(d.Targets) == 0 {
		errs.Add(ErrChainNoTargets, subject, subject)
	}
	if d.Dynamic {
		if !d.After {
			errs.Add(ErrDynamicBefore, subject, subject)
		}
		mode := resultMode(owner.Result)
		if mode == plan.ModeNone {
			errs.Add(ErrDynamicReturn, subject, subject, index.TypeName(owner.Result))
		}
		step.Mode = mode
	}
	c.resolveTargets(cd, owner, ir.KindChain, d.Targets, step, errs)
}

// validateDecision checks a decision: the owner's result type fixes the
// branch-key space and the targets are its pre-declared keys.
func (c *Compiler) validateDecision(cd *index.ClassDescriptor, owner *index.OperationDescriptor, d ir.Decision, step *plan.Step, errs *Errors) {
	subject := owner.QualifiedName()
	step.Negate = d.Negate

	if len(d.Targets) == 0 {
		errs.Add(ErrDecisionNoTargets, subject, subject)
		return
	}

	mode := resultMode(owner.Result)
	switch mode {
	case plan.ModeNone, plan.ModeVoid:
		errs.Add(ErrDecisionReturn, subject, subject, index.TypeName(owner.Result))
		return
	case plan.ModeBool:
		if len(d.Targets) > 2 {
			errs.Add(ErrBoolDecisionTargets, subject, subject, len(d.Targets))
		}
	}
	step.Mode = mode

	seen := make(map[string]bool, len(d.Targets))
	for _, name := range d.Targets {
		key := strings.ToLower(index.Key(name))
		if seen[key] {
			errs.Add(ErrDuplicateBranch, subject, subject, name)
			continue
		}
		seen[key] = true
	}

	if mode == plan.ModeEnum {
		values := reflect.Zero(owner.Result).Interface().(ir.Enum).EnumValues()
		for _, v := range values {
			if !seen[strings.ToLower(index.Key(v))] {
				errs.Add(ErrUnmatchedEnum, subject, subject, v)
			}
		}
	}

	c.resolveTargets(cd, owner, ir.KindDecision, d.Targets, step, errs)
}

// validateFork checks a concurrent fan-out of at least two targets.
func (c *Compiler) validateFork(cd *index.ClassDescriptor, owner *index.OperationDescriptor, d ir.Fork, step *plan.Step, errs *Errors) {
	subject := owner.QualifiedName()
	step.After = d.After
	step.FailFast = d.FailFast
	step.Pool = c.checkPool(owner, ir.KindFork, d.Pool, errs)

	if len(d.Targets) < 2 {
		errs.Add(ErrForkTargets, subject, subject, len(d.Targets))
	}
	c.resolveTargets(cd, owner, ir.KindFork, d.Targets, step, errs)
}

// validateAsync selects the single overload of the target that the owner's
// collaborators satisfy.
func (c *Compiler) validateAsync(cd *index.ClassDescriptor, owner *index.OperationDescriptor, d ir.Async, step *plan.Step, errs *Errors) {
	subject := owner.QualifiedName()
	step.After = d.After
	step.Pool = c.checkPool(owner, ir.KindAsync, d.Pool, errs)

	candidates := c.index.Resolve(cd, d.Target)
	if len(candidates) == 0 {
		errs.Add(ErrUnresolvedTarget, subject, string(ir.KindAsync), d.Target)
		return
	}

	available := c.collaborators(owner)
	var matched []plan.Target
	for _, op := range candidates {
		binding, err := index.Bind(op, available)
		if err != nil {
			continue
		}
		matched = append(matched, plan.Target{Key: index.Key(d.Target), Op: op, Binding: binding})
	}

	switch len(matched) {
	case 0:
		errs.Add(ErrAsyncNoOverload, subject, subject, d.Target, typeNames(available))
	case 1:
		step.Targets = matched
	default:
		sigs := make([]string, len(matched))
		for i, m := range matched {
			sigs[i] = m.Op.Signature()
		}
		errs.Add(ErrAsyncManyOverloads, subject, subject, d.Target, strings.Join(sigs, ", "))
	}
}

// validateCatch checks that every handler overload takes exactly one error
// parameter and that no two accept the same type.
func (c *Compiler) validateCatch(cd *index.ClassDescriptor, owner *index.OperationDescriptor, d ir.Catch, step *plan.Step, errs *Errors) {
	subject := owner.QualifiedName()

	handlers := c.index.Resolve(cd, d.Handler)
	if len(handlers) == 0 {
		errs.Add(ErrUnresolvedTarget, subject, string(ir.KindCatch), d.Handler)
		return
	}

	seen := make(map[reflect.Type]bool, len(handlers))
	for _, h := range handlers {
		if len(h.Params) != 1 || !h.Params[0].Implements(index.ErrorType()) {
			errs.Add(ErrCatchSignature, subject, h.QualifiedName())
			continue
		}
		et := h.Params[0]
		if seen[et] {
			errs.Add(ErrCatchDuplicate, subject, subject, index.TypeName(et))
			continue
		}
		seen[et] = true
		step.Handlers = append(step.Handlers, plan.Handler{Op: h, ErrType: et})
	}
	sortHandlers(step.Handlers)
}

// resultMode classifies an owner result type.
func resultMode(t reflect.Type) plan.DecisionMode {
	switch {
	case t == nil:
		return plan.ModeVoid
	case t == boolType:
		return plan.ModeBool
	case t == branchType:
		return plan.ModeBranch
	case t.Kind() == reflect.String && t.Implements(enumType):
		return plan.ModeEnum
	case t.Kind() == reflect.String:
		return plan.ModeString
	case t.Kind() == reflect.Bool:
		return plan.ModeBool
	default:
		return plan.ModeNone
	}
}
