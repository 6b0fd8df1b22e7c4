package runtime

import "errors"

type (
	// HookEvent identifies why a hook fired, mirroring the event field
	// passed to a Lua debug hook.
	HookEvent int
	// HookFunc is a user-registered hook, invoked with the event that fired
	// it and the line that triggered a LINE event (-1 otherwise). A non-nil
	// error unwinds the interpreter; a yield Interrupt from a line or count
	// hook suspends the running coroutine at the instruction boundary.
	HookFunc func(vm *VM, event HookEvent, line int64) error
)

const (
	// HookCall fires when a script frame is entered.
	HookCall HookEvent = iota
	// HookReturn fires when a frame (script or native) returns.
	HookReturn
	// HookLine fires when execution moves to a new source line.
	HookLine
	// HookCount fires every basehookcount instructions.
	HookCount
	// HookTailCall fires instead of HookCall when a frame is entered via TAILCALL.
	HookTailCall
)

const (
	// MaskCall enables HookCall/HookTailCall events.
	MaskCall uint8 = 1 << iota
	// MaskReturn enables HookReturn events.
	MaskReturn
	// MaskLine enables HookLine events.
	MaskLine
	// MaskCount enables HookCount events.
	MaskCount
)

// settraps recomputes whether the trace engine needs to examine every
// instruction of f. Only LINE/COUNT hooks do; CALL/RETURN hooks fire from
// the frame push/pop sites and never need the per-instruction check.
func (vm *VM) settraps(f *frame) {
	vm.hookLock.Lock()
	trap := vm.hook != nil && vm.hookmask&(MaskLine|MaskCount) != 0
	vm.hookLock.Unlock()
	f.trap = trap
}

// callhook dispatches one hook invocation, transiently marking the current
// activation record as hook-owned so that funcnamefromcall can report
// ("hook", "?") for any error raised while the hook runs.
func (vm *VM) callhook(hook HookFunc, event HookEvent, line int64) error {
	vm.inhook = true
	defer func() { vm.inhook = false }()
	if vm.callDepth > 0 {
		ci := &vm.callStack[vm.callDepth-1]
		ci.hooked = true
		defer func() { ci.hooked = false }()
	}
	return hook(vm, event, line)
}

// tracecall fires the CALL/TAILCALL hook for a newly pushed activation
// record and arms line/count tracing on it if a hook is installed. fr is
// nil for a call into a native Go function, which still fires CALL but
// has no per-instruction trap to arm.
func (vm *VM) tracecall(fr *frame, tailcall bool) error {
	vm.hookLock.Lock()
	hook, mask := vm.hook, vm.hookmask
	vm.hookLock.Unlock()
	if fr != nil {
		vm.settraps(fr)
	}
	if hook == nil || mask&MaskCall == 0 || vm.inhook {
		return nil
	}
	event := HookCall
	if tailcall {
		event = HookTailCall
	}
	err := vm.callhook(hook, event, -1)
	var inrp *Interrupt
	if errors.As(err, &inrp) && inrp.kind == InterruptYield {
		// only line and count hooks run at an instruction boundary the
		// interpreter can suspend on; a call hook sits mid-frame-push.
		return errors.New("attempt to yield from a call hook")
	}
	return err
}

// traceret fires the RETURN hook for the activation record being popped.
// Errors here cannot unwind cleanly (the frame is already half torn down),
// so they are surfaced through the warning system instead.
func (vm *VM) traceret() {
	vm.hookLock.Lock()
	hook, mask := vm.hook, vm.hookmask
	vm.hookLock.Unlock()
	if hook == nil || mask&MaskReturn == 0 || vm.inhook {
		return
	}
	if err := vm.callhook(hook, HookReturn, -1); err != nil {
		_, _ = warn(vm, err)
	}
}

// traceexec is called once per bytecode instruction when f.trap is set,
// with f.pc at the instruction about to execute. COUNT fires before LINE
// within one boundary. A yield from either hook is latched on the frame so
// that the resume lands back on the same instruction without firing its
// hooks a second time.
func (vm *VM) traceexec(f *frame) error {
	vm.hookLock.Lock()
	hook, mask := vm.hook, vm.hookmask
	vm.hookLock.Unlock()
	if hook == nil || mask&(MaskLine|MaskCount) == 0 {
		f.trap = false
		return nil
	}
	if vm.inhook {
		return nil
	}
	counthook := false
	if mask&MaskCount != 0 {
		vm.hookcount--
		if vm.hookcount == 0 {
			vm.hookcount = vm.basehookcount
			counthook = true
		}
	}
	// a latched yield still consumes the count decrement above, so the
	// counting cadence survives the suspend/resume cycle; it only
	// suppresses re-firing the hooks for this instruction.
	if f.hookyield {
		f.hookyield = false
		return nil
	}
	if counthook {
		if err := vm.callhook(hook, HookCount, -1); err != nil {
			return vm.latchHookYield(f, err, true)
		}
	}
	if mask&MaskLine != 0 {
		npci := f.pc
		oldpc := vm.oldpc
		if oldpc < 0 || oldpc >= int64(len(f.fn.ByteCodes)) {
			// stale after a resume or an error unwind landed us in a
			// different function; at worst one spurious line hook results.
			oldpc = 0
		}
		// npci <= oldpc is a loop back-edge (or function entry), which
		// re-reports the line even when it did not change.
		if npci <= oldpc || changedline(f.fn, oldpc, npci) {
			if err := vm.callhook(hook, HookLine, getfuncline(f.fn, npci)); err != nil {
				return vm.latchHookYield(f, err, false)
			}
		}
		vm.oldpc = npci
	}
	return nil
}

// latchHookYield records that a line/count hook yielded mid-instruction so
// traceexec can consume the latch exactly once on resume. A count-hook
// yield re-arms the counter at 1 so counting picks up where it stopped.
// Non-yield errors pass through untouched and unwind normally.
func (vm *VM) latchHookYield(f *frame, err error, counthook bool) error {
	var inrp *Interrupt
	if errors.As(err, &inrp) && inrp.kind == InterruptYield {
		if counthook {
			vm.hookcount = 1
		}
		f.hookyield = true
	}
	return err
}

// sethook installs hook as the active debug hook and re-arms the trap flag
// on every live script frame. Safe to call from a goroutine other than the
// one running eval: hook state is re-read under hookLock at each dispatch
// site, and a torn trap write at most costs one spurious or missed hook.
func (vm *VM) sethook(hook HookFunc, mask uint8, count int64) {
	if hook == nil {
		mask, count = 0, 0
	}
	if count <= 0 {
		mask &^= MaskCount
	}
	if mask == 0 {
		// hookmask == 0 iff hook == nil
		hook, count = nil, 0
	}
	vm.hookLock.Lock()
	vm.hook = hook
	vm.hookmask = mask
	vm.basehookcount = count
	vm.hookcount = count
	vm.hookLock.Unlock()
	// arming walks the whole chain; disarming is left to traceexec, which
	// clears a stale trap lazily the next time the frame runs.
	if mask&(MaskLine|MaskCount) != 0 {
		for i := int64(0); i < vm.callDepth; i++ {
			if fr := vm.callStack[i].fr; fr != nil {
				vm.settraps(fr)
			}
		}
	}
}

// gethook returns the installed hook with its mask and base count.
func (vm *VM) gethook() (HookFunc, uint8, int64) {
	vm.hookLock.Lock()
	defer vm.hookLock.Unlock()
	return vm.hook, vm.hookmask, vm.basehookcount
}
