package hooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplj/dochooks/internal/log"
)

// Invoker runs callback lists under a before-hook error policy.
type Invoker struct {
	Collection string
	Policy     ErrorPolicy
}

// Before runs every hook in order and reports whether any vetoed. All hooks run even
// after a veto. A hook failure is handled per the policy; with PolicyPropagate the
// remaining hooks are skipped and a *HookError is returned.
func Before[E any](ctx context.Context, inv Invoker, op string, funcs []BeforeFunc[E], event *E) (vetoed bool, err error) {
	for i, fn := range funcs {
		action, err := callBefore(ctx, fn, event)
		if err != nil {
			hookErr := &HookError{Collection: inv.Collection, Operation: op, Index: i, Err: err}

			switch inv.Policy {
			case PolicyVeto:
				log.Debug(ctx, "before hook failed, vetoing", log.String("operation", op), log.Cause(err))

				vetoed = true

				continue
			case PolicyIgnore:
				log.Warn(ctx, "before hook failed, ignoring", log.String("operation", op), log.Cause(err))

				continue
			default:
				return false, hookErr
			}
		}

		if action == ActionVeto {
			vetoed = true
		}
	}

	return vetoed, nil
}

// BeforeRead runs read hooks. Reads cannot be vetoed, so failures under PolicyVeto
// are logged like PolicyIgnore.
func BeforeRead(ctx context.Context, inv Invoker, op string, funcs []ReadBeforeFunc, event *FindEvent) error {
	for i, fn := range funcs {
		err := callRead(ctx, fn, event)
		if err == nil {
			continue
		}

		if inv.Policy == PolicyPropagate || inv.Policy == "" {
			return &HookError{Collection: inv.Collection, Operation: op, Index: i, Err: err}
		}

		log.Warn(ctx, "read hook failed", log.String("operation", op), log.Cause(err))
	}

	return nil
}

// After runs every hook in order. Failures and panics are logged and never stop
// sibling hooks. It returns how many hooks failed.
func After[E any](ctx context.Context, collection, op string, funcs []AfterFunc[E], event E) int {
	failed := 0

	for i, fn := range funcs {
		if err := callAfter(ctx, fn, event); err != nil {
			failed++

			log.Error(ctx, "after hook failed",
				log.String("collection", collection),
				log.String("operation", op),
				log.Int("index", i),
				log.Cause(err),
			)
		}
	}

	return failed
}

func callBefore[E any](ctx context.Context, fn BeforeFunc[E], event *E) (action Action, err error) {
	defer recoverInto(&err)

	return fn(ctx, event)
}

func callRead(ctx context.Context, fn ReadBeforeFunc, event *FindEvent) (err error) {
	defer recoverInto(&err)

	return fn(ctx, event)
}

func callAfter[E any](ctx context.Context, fn AfterFunc[E], event E) (err error) {
	defer recoverInto(&err)

	return fn(ctx, event)
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = fmt.Errorf("%w: %w", &PanicError{Value: r}, e)
			return
		}

		*err = &PanicError{Value: r}
	}
}

// IsHookError reports whether err came from a before-hook.
func IsHookError(err error) bool {
	var hookErr *HookError
	return errors.As(err, &hookErr)
}
