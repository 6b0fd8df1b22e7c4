package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanema/sol/src/bytecode"
	"github.com/tanema/sol/src/parse"
)

func TestChunkID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "=[C]", chunkID(""))
	assert.Equal(t, "=[C]", chunkID("<core>"))
	assert.Equal(t, "=<stdin>", chunkID("<stdin>"))
	assert.Equal(t, "@main.sol", chunkID("main.sol"))
	assert.Equal(t, "main.sol", shortSrc("@main.sol"))
	assert.Equal(t, "<stdin>", shortSrc("=<stdin>"))
}

func TestGetinfoScriptFrame(t *testing.T) {
	t.Parallel()

	vm := New(context.Background(), nil)
	fn := &parse.FnProto{
		Name:     "main",
		Filename: "test.sol",
		LineInfo: parse.LineInfo{Line: 1},
		Locals:   []*parse.Local{parse.NewLocal("x")},
		Arity:    1,
		Varargs:  true,
		LineTrace: []parse.LineInfo{
			{Line: 1}, {Line: 2}, {Line: 2},
		},
		ByteCodes: []uint32{
			bytecode.IABx(bytecode.LOADI, 0, 1),
			bytecode.IABx(bytecode.LOADI, 1, 2),
			bytecode.IAB(bytecode.RETURN, 0, 1),
		},
	}
	fr := vm.newEnvFrame(fn, 1, nil)
	fr.pc = 1
	require.NoError(t, vm.pushCallstack(fn, fr, nil, false, 2))
	ci, ok := vm.getstack(0)
	require.True(t, ok)

	info, err := vm.getinfo(ci, "Slutr")
	require.NoError(t, err)
	assert.Equal(t, "@test.sol", info.Source)
	assert.Equal(t, "test.sol", info.ShortSrc)
	assert.Equal(t, "Sol", info.What)
	assert.Equal(t, int64(1), info.LineDefined)
	assert.Equal(t, int64(2), info.LastLineDefined)
	assert.Equal(t, int64(2), info.CurrentLine)
	assert.Equal(t, int64(1), info.NUps)
	assert.Equal(t, int64(1), info.NParams)
	assert.True(t, info.IsVararg)
	assert.False(t, info.IsTailCall)
	assert.Equal(t, int64(1), info.FTransfer)
	assert.Equal(t, int64(2), info.NTransfer)
}

func TestGetinfoMainChunk(t *testing.T) {
	t.Parallel()

	vm := New(context.Background(), nil)
	fn := &parse.FnProto{Name: "main", Filename: "test.sol"}
	fr := vm.newEnvFrame(fn, 1, nil)
	require.NoError(t, vm.pushCallstack(fn, fr, nil, false, 0))
	ci, ok := vm.getstack(0)
	require.True(t, ok)

	info, err := vm.getinfo(ci, "S")
	require.NoError(t, err)
	assert.Equal(t, "main", info.What, "only the chunk defined at line 0 is main")
}

func TestGetinfoNativeFrame(t *testing.T) {
	t.Parallel()

	vm := New(context.Background(), nil)
	require.NoError(t, vm.pushCoreCall("print", nil, 0))
	ci, ok := vm.getstack(0)
	require.True(t, ok)

	info, err := vm.getinfo(ci, "Slu")
	require.NoError(t, err)
	assert.Equal(t, "=[C]", info.Source)
	assert.Equal(t, "C", info.What)
	assert.Equal(t, int64(-1), info.LineDefined)
	assert.Equal(t, int64(-1), info.LastLineDefined)
	assert.Equal(t, int64(-1), info.CurrentLine)
	assert.Equal(t, int64(0), info.NUps)
	assert.True(t, info.IsVararg, "native functions take whatever they are given")
}

func TestGetinfoActiveLines(t *testing.T) {
	t.Parallel()

	vm := New(context.Background(), nil)
	fn := &parse.FnProto{
		Name:      "f",
		Filename:  "test.sol",
		LineTrace: []parse.LineInfo{{Line: 3}, {Line: 3}, {Line: 5}},
		ByteCodes: []uint32{
			bytecode.IABx(bytecode.LOADI, 0, 1),
			bytecode.IABx(bytecode.LOADI, 1, 2),
			bytecode.IAB(bytecode.RETURN, 0, 1),
		},
	}
	fr := vm.newEnvFrame(fn, 1, nil)
	require.NoError(t, vm.pushCallstack(fn, fr, nil, false, 0))
	ci, ok := vm.getstack(0)
	require.True(t, ok)

	info, err := vm.getinfo(ci, "L")
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5}, info.ActiveLines)
}

func TestGetinfoUnknownTag(t *testing.T) {
	t.Parallel()

	vm := New(context.Background(), nil)
	fn := &parse.FnProto{Name: "f", Filename: "test.sol"}
	fr := vm.newEnvFrame(fn, 1, nil)
	require.NoError(t, vm.pushCallstack(fn, fr, nil, false, 0))
	ci, ok := vm.getstack(0)
	require.True(t, ok)

	// recognized tags are still processed before the failure is reported
	info, err := vm.getinfo(ci, "Sz")
	assert.Error(t, err)
	assert.Equal(t, "@test.sol", info.Source)
}

func TestGetinfoName(t *testing.T) {
	t.Parallel()

	vm := New(context.Background(), nil)
	caller := &frame{
		fn: &parse.FnProto{
			Constants: []any{"g"},
			UpIndexes: []parse.Upindex{{Name: "_ENV"}},
			ByteCodes: []uint32{
				bytecode.IABCK(bytecode.GETTABUP, 0, 0, false, 0, true),
				bytecode.IABC(bytecode.CALL, 0, 1, 1),
			},
		},
		pc: 1,
	}
	callee := &parse.FnProto{Name: "anonymous", Filename: "test.sol"}
	fr := vm.newEnvFrame(callee, 3, nil)
	require.NoError(t, vm.pushCallstack(callee, fr, caller, false, 0))
	ci, ok := vm.getstack(0)
	require.True(t, ok)

	info, err := vm.getinfo(ci, "n")
	require.NoError(t, err)
	assert.Equal(t, "g", info.Name)
	assert.Equal(t, "global", info.NameWhat)
}
