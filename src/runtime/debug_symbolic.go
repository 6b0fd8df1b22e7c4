package runtime

import (
	"strings"

	"github.com/tanema/sol/src/bytecode"
	"github.com/tanema/sol/src/parse"
)

// isSetreg reports whether op writes its A register, the test findsetreg
// uses to skip over instructions that can't be the one that produced reg's
// current value.
func isSetreg(op bytecode.Op) bool {
	switch op {
	case bytecode.MOVE, bytecode.LOADK, bytecode.LOADBOOL, bytecode.LOADNIL,
		bytecode.LOADI, bytecode.LOADF, bytecode.GETUPVAL, bytecode.GETTABUP,
		bytecode.GETTABLE, bytecode.NEWTABLE, bytecode.SELF,
		bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.MOD, bytecode.POW,
		bytecode.DIV, bytecode.IDIV, bytecode.BAND, bytecode.BOR, bytecode.BXOR,
		bytecode.SHL, bytecode.SHR, bytecode.UNM, bytecode.BNOT, bytecode.NOT,
		bytecode.LEN, bytecode.CONCAT, bytecode.CLOSURE, bytecode.VARARG,
		bytecode.CALL, bytecode.TAILCALL:
		return true
	default:
		return false
	}
}

// opMetamethod maps the instruction that failed to the metamethod the
// interpreter would have dispatched for it. The zero value means the opcode
// has no metamethod of its own.
func opMetamethod(op bytecode.Op) parse.MetaMethod {
	switch op {
	case bytecode.GETTABUP, bytecode.GETTABLE, bytecode.SELF:
		return parse.MetaIndex
	case bytecode.SETTABUP, bytecode.SETTABLE:
		return parse.MetaNewIndex
	case bytecode.ADD:
		return parse.MetaAdd
	case bytecode.SUB:
		return parse.MetaSub
	case bytecode.MUL:
		return parse.MetaMul
	case bytecode.MOD:
		return parse.MetaMod
	case bytecode.POW:
		return parse.MetaPow
	case bytecode.DIV:
		return parse.MetaDiv
	case bytecode.IDIV:
		return parse.MetaIDiv
	case bytecode.BAND:
		return parse.MetaBAnd
	case bytecode.BOR:
		return parse.MetaBOr
	case bytecode.BXOR:
		return parse.MetaBXOr
	case bytecode.SHL:
		return parse.MetaShl
	case bytecode.SHR:
		return parse.MetaShr
	case bytecode.UNM:
		return parse.MetaUNM
	case bytecode.BNOT:
		return parse.MetaBNot
	case bytecode.LEN:
		return parse.MetaLen
	case bytecode.CONCAT:
		return parse.MetaConcat
	case bytecode.EQ:
		return parse.MetaEq
	case bytecode.LT:
		return parse.MetaLt
	case bytecode.LE:
		return parse.MetaLe
	case bytecode.CLOSE, bytecode.RETURN:
		return parse.MetaClose
	default:
		return ""
	}
}

// findsetreg scans forward over code[0, lastpc) and keeps the last
// instruction that assigned reg. A write that lies before the target of a
// forward jump inside the window may have been skipped, so it yields -1
// instead of a pc.
func findsetreg(fn *parse.FnProto, lastpc int64, reg int64) int64 {
	setpc := int64(-1)
	jmptarget := int64(0)
	for pc := int64(0); pc < lastpc; pc++ {
		instruction := fn.ByteCodes[pc]
		op := bytecode.GetOp(instruction)
		a := bytecode.GetA(instruction)
		change := false
		switch op {
		case bytecode.LOADNIL:
			b := bytecode.GetBx(instruction)
			change = a <= reg && reg <= a+b
		case bytecode.JMP:
			dest := pc + 1 + bytecode.GetsBx(instruction)
			// the jump may skip the instructions between here and dest, so
			// any write in that range only counts once the scan passes dest.
			if pc < dest && dest <= lastpc && dest > jmptarget {
				jmptarget = dest
			}
		case bytecode.TFORCALL:
			change = reg >= a+2
		case bytecode.CALL, bytecode.TAILCALL:
			change = reg >= a
		default:
			change = isSetreg(op) && a == reg
		}
		if change {
			if pc < jmptarget {
				setpc = -1
			} else {
				setpc = pc
			}
		}
	}
	return setpc
}

// basicgetobjname names a register from a declared local or from the MOVE,
// GETUPVAL or LOADK that produced it; producers that index a table are left
// to getobjname.
func basicgetobjname(fn *parse.FnProto, pc int64, reg int64) (name, what string) {
	if lcl := localAt(fn, reg); lcl != nil {
		return lcl.Name(), "local"
	}
	setpc := findsetreg(fn, pc, reg)
	if setpc < 0 {
		return "", ""
	}
	instruction := fn.ByteCodes[setpc]
	switch bytecode.GetOp(instruction) {
	case bytecode.MOVE:
		b := bytecode.GetB(instruction)
		// only chase strictly smaller registers; this both terminates and
		// avoids claiming a name for a slot the move may have clobbered.
		if b < reg {
			return basicgetobjname(fn, setpc, b)
		}
	case bytecode.GETUPVAL:
		return upvalname(fn, bytecode.GetB(instruction)), "upvalue"
	case bytecode.LOADK:
		if k, ok := fn.GetConst(bytecode.GetBx(instruction)).(string); ok {
			return k, "constant"
		}
	}
	return "", ""
}

// getobjname extends basicgetobjname with the table-access instructions,
// following a register back to the global/field/upvalue/method access that
// produced it, for use in error messages ("attempt to call a nil value
// (global 'foo')").
func getobjname(fn *parse.FnProto, pc int64, reg int64) (name, what string) {
	if name, what := basicgetobjname(fn, pc, reg); name != "" {
		return name, what
	}
	setpc := findsetreg(fn, pc, reg)
	if setpc < 0 {
		return "", ""
	}
	instruction := fn.ByteCodes[setpc]
	switch bytecode.GetOp(instruction) {
	case bytecode.GETTABUP:
		key := constKey(fn, instruction)
		if isEnvUpval(fn, bytecode.GetB(instruction)) {
			return key, "global"
		}
		return key, "field"
	case bytecode.GETTABLE:
		key := constKey(fn, instruction)
		tblReg := bytecode.GetB(instruction)
		if tname, twhat := basicgetobjname(fn, setpc, tblReg); twhat == "local" && tname == "_ENV" {
			return key, "global"
		}
		return key, "field"
	case bytecode.SELF:
		return constKey(fn, instruction), "method"
	}
	return "", ""
}

// constKey pulls the string constant used as the key operand of a table
// access, or "?" when the key is held in a register the scan can't resolve.
func constKey(fn *parse.FnProto, instruction uint32) string {
	keyIdx, keyK := bytecode.GetCK(instruction)
	if keyK {
		if k, ok := fn.GetConst(keyIdx).(string); ok {
			return k
		}
	}
	return "?"
}

func upvalname(fn *parse.FnProto, upidx int64) string {
	if upidx < 0 || int(upidx) >= len(fn.UpIndexes) {
		return "?"
	}
	if name := fn.UpIndexes[upidx].Name; name != "" {
		return name
	}
	return "?"
}

func isEnvUpval(fn *parse.FnProto, upidx int64) bool {
	return int(upidx) < len(fn.UpIndexes) && fn.UpIndexes[upidx].Name == "_ENV"
}

// localAt returns the Local declared for a given register slot, under the
// simplification that fn.Locals[reg] reflects whichever local most recently
// owned that stack slot (sol's parser does not retain per-local live
// ranges once a block scope exits).
func localAt(fn *parse.FnProto, reg int64) *parse.Local {
	if reg < 0 || int(reg) >= len(fn.Locals) {
		return nil
	}
	return fn.Locals[reg]
}

// funcnamefromcode names the function being invoked by the CALL/TAILCALL
// instruction at pc, or the metamethod the instruction at pc would have
// dispatched. Error-message enrichment works from the failing instruction
// itself rather than the callee's own (possibly anonymous) identity.
// Metamethod names are reported without their "__" prefix.
func funcnamefromcode(fn *parse.FnProto, pc int64) (name, what string) {
	if pc < 0 || pc >= int64(len(fn.ByteCodes)) {
		return "", ""
	}
	instruction := fn.ByteCodes[pc]
	op := bytecode.GetOp(instruction)
	switch op {
	case bytecode.CALL, bytecode.TAILCALL:
		return getobjname(fn, pc, bytecode.GetA(instruction))
	case bytecode.TFORCALL:
		return "for iterator", "for iterator"
	}
	if mm := opMetamethod(op); mm != "" {
		return strings.TrimPrefix(string(mm), "__"), "metamethod"
	}
	return "", ""
}

// funcnamefromcall names the function running in ci from its caller's point
// of view: a hook-dispatched frame is just "hook", a tail call has no
// caller context left to consult, and everything else delegates to the
// instruction the caller was executing when it made the call.
func funcnamefromcall(ci *callInfo) (name, what string) {
	if ci == nil {
		return "", ""
	}
	if ci.hooked {
		return "?", "hook"
	}
	if ci.tailcall || ci.caller == nil {
		return "", ""
	}
	return funcnamefromcode(ci.caller.fn, ci.caller.pc)
}
