package runtime

import (
	"errors"
	"fmt"
)

// errNoIntegerRepr marks a float operand rejected by integer coercion in a
// bitwise op; enrichArithErr rewrites it into the operand-specific message.
var errNoIntegerRepr = errors.New("number has no integer representation")

// varinfo names the value in reg, producing the parenthesized suffix Lua
// runtime errors append to type errors ("attempt to call a nil value
// (global 'foo')"), or "" when the value's origin can't be traced (a
// temporary with no named source). Upvalues are matched by identity against
// the current closure's brokers first, since the blamed value may not live
// in any register at all.
func varinfo(f *frame, reg int64, val any) string {
	if f == nil {
		return ""
	}
	switch val.(type) {
	case *Table, *Closure, *GoFunc:
		for _, broker := range f.upvals {
			if broker != nil && broker.Get() == val {
				return fmt.Sprintf(" (upvalue '%s')", broker.name)
			}
		}
	}
	if reg >= 0 {
		if name, what := getobjname(f.fn, f.pc, reg); name != "" {
			return fmt.Sprintf(" (%s '%s')", what, name)
		}
	}
	return ""
}

// typeErrorReg builds the "attempt to <op> a <type> value (<varinfo>)"
// family of messages, naming the register that held the offending value so
// the message can point at it.
func typeErrorReg(f *frame, reg int64, val any, op string) error {
	return fmt.Errorf("attempt to %s a %v value%s", op, typeName(val), varinfo(f, reg, val))
}

// callError reports a call to a non-callable value, preferring the name of
// the access that produced the callee (the CALL instruction itself names
// it) over a plain register trace.
func callError(f *frame, reg int64, val any) error {
	if f != nil {
		if name, what := funcnamefromcode(f.fn, f.pc); name != "" {
			return fmt.Errorf("attempt to call a %v value (%s '%s')", typeName(val), what, name)
		}
	}
	return typeErrorReg(f, reg, val, "call")
}

// concatError reports a CONCAT operand that can't be coerced to a string.
func concatError(f *frame, reg int64, val any) error {
	return typeErrorReg(f, reg, val, "concatenate")
}

// arithError reports an arithmetic/bitwise operand that has no numeric
// coercion and no applicable metamethod.
func arithError(f *frame, reg int64, val any) error {
	return typeErrorReg(f, reg, val, "perform arithmetic on")
}

// toIntegerError reports a bitwise operand that is a float with no exact
// integer representation, which is a coercion failure rather than a type
// error and keeps Lua's distinct wording for it.
func toIntegerError(f *frame, reg int64, val any) error {
	return fmt.Errorf("number%s has no integer representation", varinfo(f, reg, val))
}

// orderError reports an LT/LE comparison between incompatible types.
func orderError(lval, rval any) error {
	lt, rt := typeName(lval), typeName(rval)
	if lt == rt {
		return fmt.Errorf("attempt to compare two %v values", lt)
	}
	return fmt.Errorf("attempt to compare %v with %v", lt, rt)
}

// enrichArithErr turns arith's generic "cannot <op> a and b" error into the
// operand-specific message, blaming whichever side of the binary op can't
// serve as a number. For unary ops c is whatever the unused C operand names;
// b is checked first and is the failing operand, so c is not blamed.
func enrichArithErr(f *frame, err error, bReg int64, bVal any, cReg int64, cVal any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errNoIntegerRepr) {
		if _, ok := exactInt(bVal); !ok && isNumber(bVal) {
			return toIntegerError(f, bReg, bVal)
		}
		if _, ok := exactInt(cVal); !ok && isNumber(cVal) {
			return toIntegerError(f, cReg, cVal)
		}
		return err
	}
	if !isNumber(bVal) {
		return arithError(f, bReg, bVal)
	}
	if !isNumber(cVal) {
		return arithError(f, cReg, cVal)
	}
	return err
}

// forError reports a non-numeric value in one of the three FORPREP slots
// (initial, limit, step), matching forNumNames' ordering in vm.go.
func forError(which string, val any) error {
	return fmt.Errorf("bad 'for' %s value (number expected, got %v)", which, typeName(val))
}
