package runtime

import (
	"sync"

	"github.com/tanema/sol/src/conf"
	"github.com/tanema/sol/src/parse"
)

// absLine anchors an instruction offset to a known source line, the way a
// compressed line table periodically pins down an absolute position instead
// of forcing every lookup to replay the whole delta stream from the start
// of the function.
type absLine struct {
	pc   int64
	line int64
}

// lineTable is the compressed form of a FnProto's line information: a
// stream of signed single-instruction deltas from the previous line, with
// a sentinel value marking positions that must instead be resolved from
// abs. sol's parser already records a fully resolved line per instruction
// in FnProto.LineTrace; lineTable is derived from that once, the way a
// compiler that emits the compressed form directly would have produced it,
// so lookups exercise the real algorithm instead of a trivial slice index.
type lineTable struct {
	linedefined int64
	deltas      []int8
	abs         []absLine
}

// absLineInfoSentinel marks a delta slot whose line can only be recovered
// from the abs table, never by summing.
const absLineInfoSentinel = int8(-128)

var lineTableCache sync.Map // *parse.FnProto -> *lineTable

func getLineTable(fn *parse.FnProto) *lineTable {
	if fn == nil || len(fn.LineTrace) == 0 {
		return nil
	}
	if cached, ok := lineTableCache.Load(fn); ok {
		return cached.(*lineTable)
	}
	built := buildLineTable(fn)
	actual, _ := lineTableCache.LoadOrStore(fn, built)
	return actual.(*lineTable)
}

func buildLineTable(fn *parse.FnProto) *lineTable {
	tbl := &lineTable{linedefined: fn.Line}
	prevLine := fn.Line
	for pc, li := range fn.LineTrace {
		delta := li.Line - prevLine
		if delta > 127 || delta < -127 {
			tbl.deltas = append(tbl.deltas, absLineInfoSentinel)
			tbl.abs = append(tbl.abs, absLine{pc: int64(pc), line: li.Line})
		} else {
			tbl.deltas = append(tbl.deltas, int8(delta))
			if pc > 0 && pc%conf.MAXIWTHABS == 0 {
				tbl.abs = append(tbl.abs, absLine{pc: int64(pc), line: li.Line})
			}
		}
		prevLine = li.Line
	}
	return tbl
}

// lineAt maps a program-counter offset to a source line: pick the nearest
// absolute anchor at or before pc, then sum deltas the rest of the way.
func (tbl *lineTable) lineAt(pc int64) int64 {
	if pc < 0 || pc >= int64(len(tbl.deltas)) {
		return -1
	}
	basepc, baseline := int64(-1), tbl.linedefined
	if len(tbl.abs) > 0 {
		// pc/MAXIWTHABS - 1 is a lower-bound estimate for the anchor index;
		// advance linearly from there since anchors are spaced at most
		// MAXIWTHABS instructions apart.
		i := pc/conf.MAXIWTHABS - 1
		if i < 0 {
			i = 0
		}
		if i >= int64(len(tbl.abs)) {
			i = int64(len(tbl.abs)) - 1
		}
		for i >= 0 && tbl.abs[i].pc > pc {
			i--
		}
		for i+1 < int64(len(tbl.abs)) && tbl.abs[i+1].pc <= pc {
			i++
		}
		if i >= 0 {
			basepc = tbl.abs[i].pc
			baseline = tbl.abs[i].line
		}
	}
	line := baseline
	for i := basepc + 1; i <= pc; i++ {
		if tbl.deltas[i] == absLineInfoSentinel {
			// A correctly chosen base never walks across a sentinel; this
			// only triggers if basepc was computed incorrectly above.
			panic("lineAt: walked across an unresolved line anchor")
		}
		line += int64(tbl.deltas[i])
	}
	return line
}

// changed is the fast path used by the trace engine to decide whether a
// LINE hook should fire between two nearby instructions, without
// recomputing the full line from scratch every time. On a sentinel or a
// large gap it falls back to two full lookups.
func (tbl *lineTable) changed(oldpc, newpc int64) bool {
	if newpc-oldpc < conf.MAXIWTHABS/2 {
		delta := int64(0)
		hasSentinel := false
		lo, hi := oldpc+1, newpc
		if newpc < oldpc {
			lo, hi = newpc+1, oldpc
		}
		for i := lo; i <= hi; i++ {
			if i < 0 || i >= int64(len(tbl.deltas)) || tbl.deltas[i] == absLineInfoSentinel {
				hasSentinel = true
				break
			}
			delta += int64(tbl.deltas[i])
		}
		if !hasSentinel {
			return delta != 0
		}
	}
	return tbl.lineAt(oldpc) != tbl.lineAt(newpc)
}

// getfuncline maps a program-counter offset to a source line using the
// compressed per-function line table, or -1 when fn carries no line info.
func getfuncline(fn *parse.FnProto, pc int64) int64 {
	tbl := getLineTable(fn)
	if tbl == nil {
		return -1
	}
	return tbl.lineAt(pc)
}

// changedline reports whether a LINE hook should fire moving from oldpc to
// newpc.
func changedline(fn *parse.FnProto, oldpc, newpc int64) bool {
	tbl := getLineTable(fn)
	if tbl == nil {
		return false
	}
	return tbl.changed(oldpc, newpc)
}

// activelines enumerates the distinct source lines that carry at least one
// instruction, in first-appearance order, by replaying the compressed delta
// stream the same way lineAt does. Used by debug.getinfo's "L" request.
func activelines(fn *parse.FnProto) []int64 {
	tbl := getLineTable(fn)
	if tbl == nil {
		return nil
	}
	var lines []int64
	seen := map[int64]bool{}
	line := tbl.linedefined
	nextAbs := 0
	for pc, delta := range tbl.deltas {
		if delta == absLineInfoSentinel {
			for nextAbs < len(tbl.abs) && tbl.abs[nextAbs].pc < int64(pc) {
				nextAbs++
			}
			line = tbl.abs[nextAbs].line
		} else {
			line += int64(delta)
		}
		if !seen[line] {
			seen[line] = true
			lines = append(lines, line)
		}
	}
	return lines
}
