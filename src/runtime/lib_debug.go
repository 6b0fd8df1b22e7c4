package runtime

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

func createDebugLib() *Table {
	return &Table{
		hashtable: map[any]any{
			"sethook":      Fn("debug.sethook", stdDebugSethook),
			"gethook":      Fn("debug.gethook", stdDebugGethook),
			"gethookmask":  Fn("debug.gethookmask", stdDebugGethookmask),
			"gethookcount": Fn("debug.gethookcount", stdDebugGethookcount),
			"getinfo":      Fn("debug.getinfo", stdDebugGetinfo),
			"getlocal":     Fn("debug.getlocal", stdDebugGetlocal),
			"setlocal":     Fn("debug.setlocal", stdDebugSetlocal),
			"getupvalue":   Fn("debug.getupvalue", stdDebugGetupvalue),
			"setupvalue":   Fn("debug.setupvalue", stdDebugSetupvalue),
			"traceback":    Fn("debug.traceback", stdDebugTraceback),
			"getmetatable": Fn("debug.getmetatable", stdDebugGetmetatable),
			"setmetatable": Fn("debug.setmetatable", stdDebugSetmetatable),
			"debug":        Fn("debug.debug", stdDebugDebug),
		},
	}
}

func maskFromString(s string) uint8 {
	var mask uint8
	for _, c := range s {
		switch c {
		case 'c':
			mask |= MaskCall
		case 'r':
			mask |= MaskReturn
		case 'l':
			mask |= MaskLine
		}
	}
	return mask
}

func maskToString(mask uint8) string {
	var sb strings.Builder
	if mask&MaskCall != 0 {
		sb.WriteByte('c')
	}
	if mask&MaskReturn != 0 {
		sb.WriteByte('r')
	}
	if mask&MaskLine != 0 {
		sb.WriteByte('l')
	}
	return sb.String()
}

// stdDebugSethook wires debug.sethook(hook, mask, count) to the VM's hook
// engine. The hook is a plain sol closure/GoFunc, called with "call",
// "return", "line", or "count" and the line number for a line event
// (matching real Lua's debug hook calling convention, event first). An
// error raised inside the hook unwinds the interpreter; a yield from a
// line/count hook suspends the running coroutine.
func stdDebugSethook(vm *VM, args []any) ([]any, error) {
	if len(args) == 0 {
		vm.sethook(nil, 0, 0)
		return nil, nil
	}
	if err := assertArguments(args, "debug.sethook", "function", "string", "~number"); err != nil {
		return nil, errors.Wrapf(err, "debug.sethook")
	}
	luaHook := args[0]
	mask := maskFromString(args[1].(string))
	count := int64(0)
	if len(args) > 2 {
		count = toInt(args[2])
		if count > 0 {
			mask |= MaskCount
		}
	}
	vm.sethook(func(callVM *VM, event HookEvent, line int64) error {
		var eventName string
		switch event {
		case HookCall:
			eventName = "call"
		case HookTailCall:
			eventName = "tail call"
		case HookReturn:
			eventName = "return"
		case HookLine:
			eventName = "line"
		case HookCount:
			eventName = "count"
		}
		params := []any{eventName}
		if event == HookLine {
			params = append(params, line)
		}
		_, err := callVM.call(luaHook, params)
		return err
	}, mask, count)
	return nil, nil
}

func stdDebugGethook(vm *VM, _ []any) ([]any, error) {
	hook, mask, count := vm.gethook()
	if hook == nil {
		return []any{nil}, nil
	}
	return []any{maskToString(mask), count}, nil
}

func stdDebugGethookmask(vm *VM, _ []any) ([]any, error) {
	_, mask, _ := vm.gethook()
	return []any{maskToString(mask)}, nil
}

func stdDebugGethookcount(vm *VM, _ []any) ([]any, error) {
	_, _, count := vm.gethook()
	return []any{count}, nil
}

// resolveLevel maps a user-supplied stack level straight onto the call
// chain: the native debug.* frame is already pushed by the time it runs,
// so level 0 names that frame and level 1 names its caller.
func (vm *VM) resolveLevel(level int64) (*callInfo, bool) {
	return vm.getstack(level)
}

func stdDebugGetinfo(vm *VM, args []any) ([]any, error) {
	if err := assertArguments(args, "debug.getinfo", "value", "~string"); err != nil {
		return nil, errors.Wrapf(err, "debug.getinfo")
	}
	what := "nSlutrf"
	if len(args) > 1 {
		what = args[1].(string)
	}

	var ci *callInfo
	switch fval := args[0].(type) {
	case int64:
		found, ok := vm.resolveLevel(fval)
		if !ok {
			return []any{nil}, nil
		}
		ci = found
	case *Closure:
		ci = &callInfo{
			LineInfo: fval.val.LineInfo,
			filename: fval.val.Filename,
			name:     fval.val.Name,
			kind:     ScriptFrame,
			fr:       &frame{fn: fval.val, upvals: fval.upvalues, pc: -1},
		}
	case *GoFunc:
		ci = &callInfo{name: fval.name, filename: "<core>", kind: NativeFrame}
	default:
		return nil, argumentErr(1, "debug.getinfo", fmt.Errorf("function or level expected"))
	}

	info, err := vm.getinfo(ci, what)
	if err != nil {
		return nil, argumentErr(2, "debug.getinfo", err)
	}
	return []any{infoToTable(info)}, nil
}

func infoToTable(info *DebugInfo) *Table {
	tbl := NewTable(nil, map[any]any{
		"source":          info.Source,
		"short_src":       info.ShortSrc,
		"linedefined":     info.LineDefined,
		"lastlinedefined": info.LastLineDefined,
		"what":            info.What,
		"currentline":     info.CurrentLine,
		"name":            info.Name,
		"namewhat":        info.NameWhat,
		"nups":            info.NUps,
		"nparams":         info.NParams,
		"isvararg":        info.IsVararg,
		"istailcall":      info.IsTailCall,
		"ftransfer":       info.FTransfer,
		"ntransfer":       info.NTransfer,
	})
	if info.Func != nil {
		tbl.hashtable["func"] = info.Func
		tbl.keyCache = append(tbl.keyCache, "func")
	}
	if info.ActiveLines != nil {
		lines := NewTable(nil, nil)
		for _, line := range info.ActiveLines {
			lines.hashtable[line] = true
			lines.keyCache = append(lines.keyCache, line)
		}
		tbl.hashtable["activelines"] = lines
		tbl.keyCache = append(tbl.keyCache, "activelines")
	}
	return tbl
}

// stdDebugGetlocal reads local n at a stack level, or, when handed a
// function instead of a level, reports the name of parameter n with no
// value since no activation record exists to read one from.
func stdDebugGetlocal(vm *VM, args []any) ([]any, error) {
	if err := assertArguments(args, "debug.getlocal", "value", "number"); err != nil {
		return nil, errors.Wrapf(err, "debug.getlocal")
	}
	if cls, isFn := args[0].(*Closure); isFn {
		name, ok := paramName(cls, toInt(args[1]))
		if !ok {
			return []any{nil}, nil
		}
		return []any{name}, nil
	}
	if !isNumber(args[0]) {
		return nil, argumentErr(1, "debug.getlocal", fmt.Errorf("function or level expected"))
	}
	ci, ok := vm.resolveLevel(toInt(args[0]))
	if !ok {
		return []any{nil}, nil
	}
	name, val, ok := vm.getlocal(ci, toInt(args[1]))
	if !ok {
		return []any{nil}, nil
	}
	return []any{name, val}, nil
}

func stdDebugSetlocal(vm *VM, args []any) ([]any, error) {
	if err := assertArguments(args, "debug.setlocal", "number", "number", "value"); err != nil {
		return nil, errors.Wrapf(err, "debug.setlocal")
	}
	ci, ok := vm.resolveLevel(toInt(args[0]))
	if !ok {
		return []any{nil}, nil
	}
	name, err := vm.setlocal(ci, toInt(args[1]), args[2])
	if err != nil {
		return []any{nil}, nil
	}
	return []any{name}, nil
}

func stdDebugGetupvalue(vm *VM, args []any) ([]any, error) {
	if err := assertArguments(args, "debug.getupvalue", "value", "number"); err != nil {
		return nil, errors.Wrapf(err, "debug.getupvalue")
	}
	cls, ok := args[0].(*Closure)
	if !ok {
		return []any{nil}, nil
	}
	n := toInt(args[1])
	if n < 1 || int(n-1) >= len(cls.upvalues) {
		return []any{nil}, nil
	}
	broker := cls.upvalues[n-1]
	return []any{broker.name, broker.Get()}, nil
}

func stdDebugSetupvalue(vm *VM, args []any) ([]any, error) {
	if err := assertArguments(args, "debug.setupvalue", "value", "number", "value"); err != nil {
		return nil, errors.Wrapf(err, "debug.setupvalue")
	}
	cls, ok := args[0].(*Closure)
	if !ok {
		return []any{nil}, nil
	}
	n := toInt(args[1])
	if n < 1 || int(n-1) >= len(cls.upvalues) {
		return []any{nil}, nil
	}
	broker := cls.upvalues[n-1]
	broker.Set(args[2])
	return []any{broker.name}, nil
}

func stdDebugTraceback(vm *VM, args []any) ([]any, error) {
	msg := ""
	if len(args) > 0 {
		if s, isStr := args[0].(string); isStr {
			msg = s
		} else if args[0] != nil {
			return []any{args[0]}, nil
		}
	}
	parts := vm.formatCallstack()
	var sb strings.Builder
	if msg != "" {
		sb.WriteString(msg)
		sb.WriteByte('\n')
	}
	sb.WriteString("stack traceback:")
	for i := len(parts) - 1; i >= 0; i-- {
		sb.WriteByte('\n')
		sb.WriteString(parts[i])
	}
	return []any{sb.String()}, nil
}

func stdDebugGetmetatable(_ *VM, args []any) ([]any, error) {
	if err := assertArguments(args, "debug.getmetatable", "value"); err != nil {
		return nil, errors.Wrapf(err, "debug.getmetatable")
	}
	mt := getMetatable(args[0])
	if mt == nil {
		return []any{nil}, nil
	}
	return []any{mt}, nil
}

func stdDebugSetmetatable(_ *VM, args []any) ([]any, error) {
	if err := assertArguments(args, "debug.setmetatable", "table", "~table"); err != nil {
		return nil, errors.Wrapf(err, "debug.setmetatable")
	}
	tbl := args[0].(*Table)
	if len(args) > 1 && args[1] != nil {
		tbl.metatable = args[1].(*Table)
	} else {
		tbl.metatable = nil
	}
	return []any{tbl}, nil
}

// stdDebugDebug raises InterruptDebug, which the CALL/TAILCALL opcode
// handler in vm.go catches to drop into an interactive repl scoped to the
// calling frame's locals and upvalues, exactly like real Lua's debug.debug().
func stdDebugDebug(_ *VM, _ []any) ([]any, error) {
	return nil, &Interrupt{kind: InterruptDebug}
}
