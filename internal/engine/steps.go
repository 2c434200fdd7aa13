package engine

import (
	"context"
	"reflect"

	"golang.org/x/sync/errgroup"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/ir"
	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

// step runs one directive layer around next.
func (e *Engine) step(ctx context.Context, c *call, s *plan.Step, next advisor.Next) (any, error) {
	switch s.Kind {
	case ir.KindChain:
		return e.chain(ctx, c, s, next)
	case ir.KindDecision:
		return e.decision(ctx, c, s, next)
	case ir.KindFork:
		return e.forkStep(ctx, c, s, next)
	case ir.KindAsync:
		return e.async(ctx, c, s, next)
	case ir.KindCatch:
		return e.catch(ctx, c, s, next)
	}
	return next(ctx)
}

// chain runs the targets in declared order. The owner's result is kept; a
// target failure stops the chain.
func (e *Engine) chain(ctx context.Context, c *call, s *plan.Step, next advisor.Next) (any, error) {
	if !s.After {
		if err := e.runAll(ctx, c, s.Targets); err != nil {
			return nil, err
		}
		return next(ctx)
	}

	v, err := next(ctx)
	if err != nil {
		return v, err
	}
	targets := s.Targets
	if s.Dynamic {
		targets = e.selectDynamic(c, s, v)
	}
	if err := e.runAll(ctx, c, targets); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) runAll(ctx context.Context, c *call, targets []plan.Target) error {
	for _, t := range targets {
		if _, err := e.runTarget(ctx, c, t); err != nil {
			return err
		}
	}
	return nil
}

// selectDynamic interprets the owner's result: true or void runs every
// target, false none, a name the matching target.
func (e *Engine) selectDynamic(c *call, s *plan.Step, v any) []plan.Target {
	switch s.Mode {
	case plan.ModeVoid:
		return s.Targets
	case plan.ModeBool:
		if truth(v) {
			return s.Targets
		}
		return nil
	}
	name, ok := branchKey(s.Mode, v)
	if !ok {
		return nil
	}
	t, ok := s.Target(name)
	if !ok {
		e.logger.Debug("no chain target for result",
			"invocation_id", c.id,
			"operation", s.Owner.QualifiedName(),
			"result", name,
		)
		return nil
	}
	return []plan.Target{t}
}

// decision runs the owner, then the target its result selects. The selected
// target's result becomes the invocation's result; when nothing is selected
// the owner's result is kept.
func (e *Engine) decision(ctx context.Context, c *call, s *plan.Step, next advisor.Next) (any, error) {
	v, err := next(ctx)
	if err != nil {
		return v, err
	}

	var t plan.Target
	var ok bool
	if s.Mode == plan.ModeBool {
		b := truth(v)
		if s.Negate {
			b = !b
		}
		switch {
		case b:
			t, ok = s.Targets[0], true
		case len(s.Targets) > 1:
			t, ok = s.Targets[1], true
		}
	} else if name, named := branchKey(s.Mode, v); named {
		t, ok = s.Target(name)
		if !ok {
			e.logger.Debug("no decision branch for result",
				"invocation_id", c.id,
				"operation", s.Owner.QualifiedName(),
				"result", name,
			)
		}
	}
	if !ok {
		return v, nil
	}
	return e.runTarget(ctx, c, t)
}

func truth(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.IsValid() && rv.Kind() == reflect.Bool && rv.Bool()
}

// branchKey extracts the target name from a string, enum or ir.Branch result.
func branchKey(mode plan.DecisionMode, v any) (string, bool) {
	switch mode {
	case plan.ModeBranch:
		if b, ok := v.(ir.Branch); ok {
			return b.Target()
		}
	case plan.ModeString, plan.ModeEnum:
		rv := reflect.ValueOf(v)
		if rv.IsValid() && rv.Kind() == reflect.String && rv.String() != "" {
			return rv.String(), true
		}
	}
	return "", false
}

// forkStep runs the fork before or after the owner. The owner's result is
// kept.
func (e *Engine) forkStep(ctx context.Context, c *call, s *plan.Step, next advisor.Next) (any, error) {
	if !s.After {
		if err := e.fork(ctx, c, s); err != nil {
			return nil, err
		}
		return next(ctx)
	}
	v, err := next(ctx)
	if err != nil {
		return v, err
	}
	if err := e.fork(ctx, c, s); err != nil {
		return nil, err
	}
	return v, nil
}

// fork runs every target concurrently and joins them.
//
// By default it waits for all branches and returns the first recorded
// failure. With FailFast the first failure cancels the siblings' context and
// is returned without waiting for them; their later failures still reach the
// bus.
func (e *Engine) fork(ctx context.Context, c *call, s *plan.Step) error {
	if !s.FailFast {
		var g errgroup.Group
		for _, t := range s.Targets {
			t := t // per-iteration copy (go1.21 loop semantics)
			g.Go(func() error {
				return e.branch(ctx, c, s, t)
			})
		}
		return g.Wait()
	}

	g, gctx := errgroup.WithContext(ctx)
	first := make(chan error, 1)
	for _, t := range s.Targets {
		t := t // per-iteration copy (go1.21 loop semantics)
		g.Go(func() error {
			err := e.branch(gctx, c, s, t)
			if err != nil {
				select {
				case first <- err:
				default:
				}
			}
			return err
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case err := <-first:
		return err
	}
}

func (e *Engine) branch(ctx context.Context, c *call, s *plan.Step, t plan.Target) error {
	wctx := ctx
	err := e.pools.Run(ctx, s.Pool, func(ctx context.Context) error {
		wctx = ctx
		_, err := e.runTarget(ctx, c, t)
		return err
	})
	if err != nil {
		e.emit(wctx, c, Event{Type: EventForkBranchFailed, State: StateStepExecuting, Target: t.Op.Method, Err: err})
	}
	return err
}

// async submits the target before or after the owner and never waits for it.
// A failed owner submits nothing.
func (e *Engine) async(ctx context.Context, c *call, s *plan.Step, next advisor.Next) (any, error) {
	if !s.After {
		if err := e.submit(ctx, c, s); err != nil {
			return nil, err
		}
		return next(ctx)
	}
	v, err := next(ctx)
	if err != nil {
		return v, err
	}
	if err := e.submit(ctx, c, s); err != nil {
		return nil, err
	}
	return v, nil
}

// submit hands the async target to its pool. On the worker, a failure goes to
// the owner's catch handlers; unhandled failures are published on the bus.
func (e *Engine) submit(ctx context.Context, c *call, s *plan.Step) error {
	t := s.Targets[0]
	e.emit(ctx, c, Event{Type: EventAsyncSubmitted, State: StateStepExecuting, Target: t.Op.Method})

	return e.pools.Submit(ctx, s.Pool, func(wctx context.Context) {
		_, err := e.runTarget(wctx, c, t)
		if err == nil {
			e.emit(wctx, c, Event{Type: EventAsyncCompleted, Target: t.Op.Method})
			return
		}
		if cs := catchStep(c.entry); cs != nil {
			if _, herr, ok := e.handle(wctx, c, cs, err); ok {
				if herr == nil {
					return
				}
				err = herr
			}
		}
		e.logger.Warn("async target failed",
			"invocation_id", c.id,
			"operation", t.Op.QualifiedName(),
			"worker", WorkerFromContext(wctx),
			"error", err,
		)
		e.emit(wctx, c, Event{Type: EventAsyncFailed, Target: t.Op.Method, Err: err})
	})
}

func catchStep(entry *plan.Entry) *plan.Step {
	for _, s := range entry.Steps {
		if s.Kind == ir.KindCatch {
			return s
		}
	}
	return nil
}

// catch hands a failure of the inner layers to the most specific handler.
// Rejections are not failures and pass through.
func (e *Engine) catch(ctx context.Context, c *call, s *plan.Step, next advisor.Next) (any, error) {
	v, err := next(ctx)
	if err == nil || advisor.IsRejected(err) {
		return v, err
	}
	if hv, herr, ok := e.handle(ctx, c, s, err); ok {
		return hv, herr
	}
	return v, err
}

// handle finds the handler for err. Handlers are tried most specific first;
// each takes the outermost error in the wrap chain it accepts, the way
// errors.As would.
func (e *Engine) handle(ctx context.Context, c *call, s *plan.Step, err error) (any, error, bool) {
	chain := unwrapChain(err)
	for _, h := range s.Handlers {
		for _, cur := range chain {
			if !h.Matches(cur) {
				continue
			}
			arg := reflect.ValueOf(cur)
			v, herr := e.safely(h.Op.QualifiedName(), func() (any, error) {
				return h.Op.Call(ctx, c.recv, []reflect.Value{arg})
			})
			e.emit(ctx, c, Event{Type: EventCatchHandled, State: StateStepExecuting, Target: h.Op.Method, Err: err})
			return v, herr, true
		}
	}
	return nil, nil, false
}
