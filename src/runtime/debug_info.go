package runtime

import (
	"fmt"
	"strings"
)

// DebugInfo is the assembled, read-only snapshot returned by debug.getinfo,
// filled in based on the requested "what" tags (S source, l current line,
// u upvalue/param counts, n name, t tailcall, r transfer window, L active
// lines, f function value).
type DebugInfo struct {
	Source          string // "@file.sol", "=[C]" for native frames, or "=<chunk>"
	ShortSrc        string // a truncated, display-friendly form of Source
	LineDefined     int64
	LastLineDefined int64
	What            string // "Sol", "C", "main"
	CurrentLine     int64
	Name            string
	NameWhat        string // "global", "local", "method", "field", "upvalue", "hook", "metamethod", "for iterator", ""
	NUps            int64
	NParams         int64
	IsVararg        bool
	IsTailCall      bool
	FTransfer       int64
	NTransfer       int64
	ActiveLines     []int64
	Func            any
}

// chunkID formats a frame's source the way Lua error messages and
// debug.getinfo's Source field do, following sol's existing bracketed
// pseudo-filename convention for non-file chunks ("<stdin>", "<string>").
func chunkID(filename string) string {
	if filename == "" || filename == "<core>" {
		return "=[C]"
	}
	if strings.HasPrefix(filename, "<") && strings.HasSuffix(filename, ">") {
		return "=" + filename
	}
	return "@" + filename
}

func shortSrc(source string) string {
	switch {
	case strings.HasPrefix(source, "@"), strings.HasPrefix(source, "="):
		return source[1:]
	default:
		return source
	}
}

// getinfo assembles a DebugInfo for the activation record at ci, filling in
// only the fields named by what's tag characters ("Sl" asks for
// source+line, "u" asks for upvalue counts, and so on). An unrecognized
// tag is reported as an error after every recognized tag has still been
// processed.
func (vm *VM) getinfo(ci *callInfo, what string) (*DebugInfo, error) {
	if ci == nil {
		return nil, fmt.Errorf("no activation record")
	}
	info := &DebugInfo{CurrentLine: -1}
	var badTag error
	for _, tag := range what {
		switch tag {
		case 'S':
			if ci.kind == NativeFrame {
				info.Source = "=[C]"
				info.What = "C"
				info.LineDefined = -1
				info.LastLineDefined = -1
			} else {
				if ci.filename == "" {
					info.Source = "=?"
				} else {
					info.Source = chunkID(ci.filename)
				}
				info.LineDefined = ci.Line
				info.LastLineDefined = lastLineDefined(ci)
				// only the main chunk is defined at line 0
				if ci.Line == 0 {
					info.What = "main"
				} else {
					info.What = "Sol"
				}
			}
			info.ShortSrc = shortSrc(info.Source)
		case 'l':
			if ci.fr != nil && ci.fr.pc >= 0 {
				info.CurrentLine = getfuncline(ci.fr.fn, ci.fr.pc)
			} else {
				info.CurrentLine = -1
			}
		case 'u':
			if ci.fr != nil {
				info.NUps = int64(len(ci.fr.upvals))
				info.NParams = ci.fr.fn.Arity
				info.IsVararg = ci.fr.fn.Varargs
			} else {
				// native functions take whatever they are given
				info.IsVararg = true
			}
		case 't':
			info.IsTailCall = ci.tailcall
		case 'n':
			info.Name, info.NameWhat = funcnamefromcall(ci)
			if info.Name == "" && ci.name != "" {
				info.Name = ci.name
			}
		case 'r':
			info.FTransfer = ci.ftransfer
			info.NTransfer = ci.ntransfer
		case 'L':
			if ci.fr != nil {
				info.ActiveLines = activelines(ci.fr.fn)
			}
		case 'f':
			if ci.fr != nil {
				info.Func = &Closure{val: ci.fr.fn, upvalues: ci.fr.upvals}
			}
		default:
			badTag = fmt.Errorf("invalid option '%c'", tag)
		}
	}
	return info, badTag
}

func lastLineDefined(ci *callInfo) int64 {
	if ci.fr == nil {
		return ci.Line
	}
	fn := ci.fr.fn
	last := fn.Line
	for _, li := range fn.LineTrace {
		if li.Line > last {
			last = li.Line
		}
	}
	return last
}
