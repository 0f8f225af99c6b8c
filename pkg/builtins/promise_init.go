package builtins

import (
	"escargot/pkg/vm"
)

type promiseState uint8

const (
	promisePending promiseState = iota
	promiseFulfilled
	promiseRejected
)

// PromiseData is the internal slot record of a promise.
type PromiseData struct {
	State  promiseState
	Result vm.Value
	// Reactions settled later run as jobs in FIFO order.
	fulfillReactions []*promiseReaction
	rejectReactions  []*promiseReaction
}

type promiseReaction struct {
	handler vm.Value // callable or Undefined (pass-through)
	derived *vm.Object
}

type PromiseInitializer struct{}

func (p *PromiseInitializer) Name() string  { return "Promise" }
func (p *PromiseInitializer) Priority() int { return PriorityPromise }

func newPromise(ctx *vm.Context) *vm.Object {
	obj := vm.NewObjectWithShape(ctx.Instance().RootShape(), vm.ObjectValue(ctx.Intrinsics().PromiseProto))
	obj.SetKind(vm.KindPromise)
	obj.SetInternal(&PromiseData{Result: vm.Undefined})
	return obj
}

func promiseDataOf(ctx *vm.Context, v vm.Value) (*PromiseData, *vm.Object, error) {
	if !v.IsObject() || v.AsObject().Kind() != vm.KindPromise {
		return nil, nil, ctx.NewTypeError("Receiver is not a Promise")
	}
	return v.AsObject().Internal().(*PromiseData), v.AsObject(), nil
}

// enqueueReactionJob schedules one reaction against a settled result.
func enqueueReactionJob(ctx *vm.Context, r *promiseReaction, state promiseState, result vm.Value) {
	job := ctx.NewNativeFunction("PromiseReactionJob", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !r.handler.IsCallable() {
			// Pass-through: propagate the settled state to the derived
			// promise unchanged.
			if state == promiseFulfilled {
				resolvePromise(ctx, r.derived, result)
			} else {
				rejectPromise(ctx, r.derived, result)
			}
			return vm.Undefined, nil
		}
		res, err := ctx.Call(r.handler, vm.Undefined, []vm.Value{result})
		if err != nil {
			if thrown, ok := err.(*vm.Thrown); ok {
				rejectPromise(ctx, r.derived, thrown.Value)
				return vm.Undefined, nil
			}
			return vm.Undefined, err
		}
		resolvePromise(ctx, r.derived, res)
		return vm.Undefined, nil
	})
	ctx.Instance().EnqueueJob(vm.Job{Ctx: ctx, Fn: vm.ObjectValue(job)})
}

// resolvePromise fulfills p with value, unwrapping thenables through a job.
func resolvePromise(ctx *vm.Context, p *vm.Object, value vm.Value) {
	data := p.Internal().(*PromiseData)
	if data.State != promisePending {
		return
	}
	if value.IsObject() {
		if value.AsObject() == p {
			rejectPromise(ctx, p, vm.ObjectValue(ctx.NewErrorObject(vm.ErrorKindTypeError, "Chaining cycle detected for promise")))
			return
		}
		then, err := ctx.GetProperty(value, key(ctx, "then"))
		if err != nil {
			if thrown, ok := err.(*vm.Thrown); ok {
				rejectPromise(ctx, p, thrown.Value)
			}
			return
		}
		if then.IsCallable() {
			job := ctx.NewNativeFunction("PromiseResolveThenableJob", 0, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
				resolveFn, rejectFn := promiseSettleFunctions(ctx, p)
				if _, err := ctx.Call(then, value, []vm.Value{resolveFn, rejectFn}); err != nil {
					if thrown, ok := err.(*vm.Thrown); ok {
						rejectPromise(ctx, p, thrown.Value)
						return vm.Undefined, nil
					}
					return vm.Undefined, err
				}
				return vm.Undefined, nil
			})
			ctx.Instance().EnqueueJob(vm.Job{Ctx: ctx, Fn: vm.ObjectValue(job)})
			return
		}
	}
	data.State = promiseFulfilled
	data.Result = value
	for _, r := range data.fulfillReactions {
		enqueueReactionJob(ctx, r, promiseFulfilled, value)
	}
	data.fulfillReactions = nil
	data.rejectReactions = nil
}

func rejectPromise(ctx *vm.Context, p *vm.Object, reason vm.Value) {
	data := p.Internal().(*PromiseData)
	if data.State != promisePending {
		return
	}
	data.State = promiseRejected
	data.Result = reason
	for _, r := range data.rejectReactions {
		enqueueReactionJob(ctx, r, promiseRejected, reason)
	}
	data.fulfillReactions = nil
	data.rejectReactions = nil
}

// promiseSettleFunctions builds the resolve/reject pair handed to executors
// and thenables. A shared flag makes the pair single-shot.
func promiseSettleFunctions(ctx *vm.Context, p *vm.Object) (vm.Value, vm.Value) {
	settled := false
	resolveFn := ctx.NewNativeFunction("resolve", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if settled {
			return vm.Undefined, nil
		}
		settled = true
		resolvePromise(ctx, p, arg(args, 0))
		return vm.Undefined, nil
	})
	rejectFn := ctx.NewNativeFunction("reject", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		if settled {
			return vm.Undefined, nil
		}
		settled = true
		rejectPromise(ctx, p, arg(args, 0))
		return vm.Undefined, nil
	})
	return vm.ObjectValue(resolveFn), vm.ObjectValue(rejectFn)
}

// promiseThen registers the reaction pair and returns the derived promise.
func promiseThen(ctx *vm.Context, p *vm.Object, onFulfilled, onRejected vm.Value) *vm.Object {
	data := p.Internal().(*PromiseData)
	derived := newPromise(ctx)
	fulfill := &promiseReaction{handler: onFulfilled, derived: derived}
	reject := &promiseReaction{handler: onRejected, derived: derived}
	switch data.State {
	case promisePending:
		data.fulfillReactions = append(data.fulfillReactions, fulfill)
		data.rejectReactions = append(data.rejectReactions, reject)
	case promiseFulfilled:
		enqueueReactionJob(ctx, fulfill, promiseFulfilled, data.Result)
	case promiseRejected:
		enqueueReactionJob(ctx, reject, promiseRejected, data.Result)
	}
	return derived
}

func (p *PromiseInitializer) InitRuntime(rc *RuntimeContext) error {
	ctx := rc.Ctx
	proto := ctx.Intrinsics().PromiseProto

	ctor := ctx.NewNativeConstructor("Promise", 1,
		func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
			return vm.Undefined, ctx.NewTypeError("Promise constructor cannot be invoked without 'new'")
		},
		func(ctx *vm.Context, newTarget vm.Value, args []vm.Value) (vm.Value, error) {
			executor := arg(args, 0)
			if !executor.IsCallable() {
				return vm.Undefined, ctx.NewTypeError("Promise resolver %s is not a function", executor.TypeOf())
			}
			promise := newPromise(ctx)
			resolveFn, rejectFn := promiseSettleFunctions(ctx, promise)
			if _, err := ctx.Call(executor, vm.Undefined, []vm.Value{resolveFn, rejectFn}); err != nil {
				if thrown, ok := err.(*vm.Thrown); ok {
					rejectPromise(ctx, promise, thrown.Value)
				} else {
					return vm.Undefined, err
				}
			}
			return vm.ObjectValue(promise), nil
		})
	ctx.Intrinsics().PromiseCtor = vm.ObjectValue(ctor)
	ctor.DefineOwn(ctx, key(ctx, "prototype"), vm.ObjectValue(proto), 0)
	defineValue(ctx, proto, "constructor", vm.ObjectValue(ctor))
	rc.DefineGlobal("Promise", vm.ObjectValue(ctor))

	defineMethod(ctx, ctor, "resolve", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := arg(args, 0)
		if v.IsObject() && v.AsObject().Kind() == vm.KindPromise {
			return v, nil
		}
		promise := newPromise(ctx)
		resolvePromise(ctx, promise, v)
		return vm.ObjectValue(promise), nil
	})

	defineMethod(ctx, ctor, "reject", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		promise := newPromise(ctx)
		rejectPromise(ctx, promise, arg(args, 0))
		return vm.ObjectValue(promise), nil
	})

	defineMethod(ctx, ctor, "all", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		iter, err := ctx.GetIterator(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		result := newPromise(ctx)
		var values []vm.Value
		pending := 0
		done := false
		for i := 0; ; i++ {
			v, iterDone, err := ctx.IteratorStep(iter)
			if err != nil {
				return vm.Undefined, err
			}
			if iterDone {
				break
			}
			idx := i
			values = append(values, vm.Undefined)
			pending++
			wrapped, err := promiseResolveValue(ctx, v)
			if err != nil {
				return vm.Undefined, err
			}
			onFul := ctx.NewNativeFunction("", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
				values[idx] = arg(args, 0)
				pending--
				if pending == 0 && done {
					resolvePromise(ctx, result, vm.ObjectValue(ctx.NewArrayFromValues(values)))
				}
				return vm.Undefined, nil
			})
			onRej := ctx.NewNativeFunction("", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
				rejectPromise(ctx, result, arg(args, 0))
				return vm.Undefined, nil
			})
			promiseThen(ctx, wrapped, vm.ObjectValue(onFul), vm.ObjectValue(onRej))
		}
		done = true
		if pending == 0 {
			resolvePromise(ctx, result, vm.ObjectValue(ctx.NewArrayFromValues(values)))
		}
		return vm.ObjectValue(result), nil
	})

	defineMethod(ctx, ctor, "race", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		iter, err := ctx.GetIterator(arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		result := newPromise(ctx)
		for {
			v, iterDone, err := ctx.IteratorStep(iter)
			if err != nil {
				return vm.Undefined, err
			}
			if iterDone {
				break
			}
			wrapped, err := promiseResolveValue(ctx, v)
			if err != nil {
				return vm.Undefined, err
			}
			onFul := ctx.NewNativeFunction("", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
				resolvePromise(ctx, result, arg(args, 0))
				return vm.Undefined, nil
			})
			onRej := ctx.NewNativeFunction("", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
				rejectPromise(ctx, result, arg(args, 0))
				return vm.Undefined, nil
			})
			promiseThen(ctx, wrapped, vm.ObjectValue(onFul), vm.ObjectValue(onRej))
		}
		return vm.ObjectValue(result), nil
	})

	defineMethod(ctx, proto, "then", 2, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		_, promise, err := promiseDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		derived := promiseThen(ctx, promise, arg(args, 0), arg(args, 1))
		return vm.ObjectValue(derived), nil
	})

	defineMethod(ctx, proto, "catch", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		thenFn, err := ctx.GetProperty(this, key(ctx, "then"))
		if err != nil {
			return vm.Undefined, err
		}
		return ctx.Call(thenFn, this, []vm.Value{vm.Undefined, arg(args, 0)})
	})

	defineMethod(ctx, proto, "finally", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
		_, promise, err := promiseDataOf(ctx, this)
		if err != nil {
			return vm.Undefined, err
		}
		onFinally := arg(args, 0)
		wrap := func(passRejection bool) vm.Value {
			fn := ctx.NewNativeFunction("", 1, func(ctx *vm.Context, this vm.Value, args []vm.Value) (vm.Value, error) {
				if onFinally.IsCallable() {
					if _, err := ctx.Call(onFinally, vm.Undefined, nil); err != nil {
						return vm.Undefined, err
					}
				}
				if passRejection {
					return vm.Undefined, vm.Throw(arg(args, 0))
				}
				return arg(args, 0), nil
			})
			return vm.ObjectValue(fn)
		}
		derived := promiseThen(ctx, promise, wrap(false), wrap(true))
		return vm.ObjectValue(derived), nil
	})

	return nil
}

func promiseResolveValue(ctx *vm.Context, v vm.Value) (*vm.Object, error) {
	if v.IsObject() && v.AsObject().Kind() == vm.KindPromise {
		return v.AsObject(), nil
	}
	p := newPromise(ctx)
	resolvePromise(ctx, p, v)
	return p, nil
}
