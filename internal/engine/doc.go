// Package engine dispatches invocations through compiled plans.
//
// An Engine holds the plans of every managed class and, per call, walks the
// entry of the invoked operation: advisor filters first, then directive steps,
// then the operation body. Plans are immutable, so any number of invocations
// may run concurrently without locking on the hot path.
//
// STATE MACHINE:
//
// Every invocation moves through
//
//	Created → AdvisorWrapping → StepExecuting → {Completed | Failed | Rejected}
//
// AdvisorWrapping is skipped when no advisor selected the operation. A filter
// returning a rejection ends in Rejected; any other error ends in Failed.
//
// STEPS:
//
//   - chain runs its targets in declared order before or after the owner;
//     a dynamic chain lets the owner's result pick the targets.
//   - decision runs the owner and then the target its result selects.
//   - fork runs its targets concurrently on a worker pool and joins them.
//   - async submits its target to a worker pool and does not wait.
//   - catch hands a failure to the most specific handler.
//
// Targets run through their own entries, so their own directives and advisors
// apply. Unrecovered failures reach the caller as the original error value.
//
// OBSERVABILITY:
//
// Lifecycle, fork branch failures, async outcomes and handled failures are
// published on the Bus. Publishing never blocks on subscribers.
package engine
