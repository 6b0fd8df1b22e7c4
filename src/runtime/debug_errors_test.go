package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanema/sol/src/bytecode"
	"github.com/tanema/sol/src/parse"
)

func evalExpectingError(t *testing.T, fn *parse.FnProto) error {
	t.Helper()
	vm := New(context.Background(), nil)
	_, err := vm.Eval(fn)
	require.Error(t, err)
	return err
}

func TestArithErrorNamesLocal(t *testing.T) {
	t.Parallel()

	// local y = nil; return y + 1
	err := evalExpectingError(t, &parse.FnProto{
		Name:     "main",
		Filename: "test.sol",
		Locals:   []*parse.Local{parse.NewLocal("y")},
		ByteCodes: []uint32{
			bytecode.IABx(bytecode.LOADNIL, 0, 0),
			bytecode.IABx(bytecode.LOADI, 1, 1),
			bytecode.IABC(bytecode.ADD, 2, 0, 1),
		},
	})
	assert.ErrorContains(t, err, "attempt to perform arithmetic on a nil value (local 'y')")
}

func TestArithErrorNamesGlobal(t *testing.T) {
	t.Parallel()

	// return missing + 1
	err := evalExpectingError(t, &parse.FnProto{
		Name:      "main",
		Filename:  "test.sol",
		Constants: []any{"missing"},
		UpIndexes: []parse.Upindex{{Name: "_ENV"}},
		ByteCodes: []uint32{
			bytecode.IABCK(bytecode.GETTABUP, 0, 0, false, 0, true),
			bytecode.IABx(bytecode.LOADI, 1, 1),
			bytecode.IABC(bytecode.ADD, 2, 0, 1),
		},
	})
	assert.ErrorContains(t, err, "attempt to perform arithmetic on a nil value (global 'missing')")
}

func TestCallErrorNamesGlobal(t *testing.T) {
	t.Parallel()

	// return g() where g is undefined
	err := evalExpectingError(t, &parse.FnProto{
		Name:      "main",
		Filename:  "test.sol",
		Constants: []any{"g"},
		UpIndexes: []parse.Upindex{{Name: "_ENV"}},
		ByteCodes: []uint32{
			bytecode.IABCK(bytecode.GETTABUP, 0, 0, false, 0, true),
			bytecode.IABC(bytecode.CALL, 0, 1, 1),
		},
	})
	assert.ErrorContains(t, err, "attempt to call a nil value (global 'g')")
}

func TestCallErrorNamesMethod(t *testing.T) {
	t.Parallel()

	// local t = {}; t:m()
	err := evalExpectingError(t, &parse.FnProto{
		Name:      "main",
		Filename:  "test.sol",
		Constants: []any{"m"},
		Locals:    []*parse.Local{parse.NewLocal("t")},
		ByteCodes: []uint32{
			bytecode.IABC(bytecode.NEWTABLE, 0, 0, 0),
			bytecode.IABCK(bytecode.SELF, 1, 0, false, 0, true),
			bytecode.IABC(bytecode.CALL, 1, 2, 1),
		},
	})
	assert.ErrorContains(t, err, "attempt to call a nil value (method 'm')")
}

func TestConcatError(t *testing.T) {
	t.Parallel()

	err := evalExpectingError(t, &parse.FnProto{
		Name:      "main",
		Filename:  "test.sol",
		Constants: []any{"prefix: "},
		ByteCodes: []uint32{
			bytecode.IABx(bytecode.LOADK, 0, 0),
			bytecode.IABC(bytecode.NEWTABLE, 1, 0, 0),
			bytecode.IABC(bytecode.CONCAT, 0, 0, 1),
		},
	})
	assert.ErrorContains(t, err, "attempt to concatenate a table value")
}

func TestLengthError(t *testing.T) {
	t.Parallel()

	err := evalExpectingError(t, &parse.FnProto{
		Name:     "main",
		Filename: "test.sol",
		Locals:   []*parse.Local{parse.NewLocal("n")},
		ByteCodes: []uint32{
			bytecode.IABx(bytecode.LOADI, 0, 42),
			bytecode.IABC(bytecode.LEN, 1, 0, 0),
		},
	})
	assert.ErrorContains(t, err, "attempt to get length of a number value (local 'n')")
}

func TestOrderError(t *testing.T) {
	t.Parallel()

	err := evalExpectingError(t, &parse.FnProto{
		Name:      "main",
		Filename:  "test.sol",
		Constants: []any{"a"},
		ByteCodes: []uint32{
			bytecode.IABx(bytecode.LOADK, 0, 0),
			bytecode.IABx(bytecode.LOADI, 1, 1),
			bytecode.IABC(bytecode.LT, 0, 0, 1),
		},
	})
	assert.ErrorContains(t, err, "attempt to compare string with number")

	err = evalExpectingError(t, &parse.FnProto{
		Name:     "main",
		Filename: "test.sol",
		ByteCodes: []uint32{
			bytecode.IABC(bytecode.NEWTABLE, 0, 0, 0),
			bytecode.IABC(bytecode.NEWTABLE, 1, 0, 0),
			bytecode.IABC(bytecode.LT, 0, 0, 1),
		},
	})
	assert.ErrorContains(t, err, "attempt to compare two table values")
}

func TestIntegerRepresentationError(t *testing.T) {
	t.Parallel()

	err := evalExpectingError(t, &parse.FnProto{
		Name:      "main",
		Filename:  "test.sol",
		Constants: []any{float64(1.5)},
		ByteCodes: []uint32{
			bytecode.IABx(bytecode.LOADK, 0, 0),
			bytecode.IABx(bytecode.LOADI, 1, 1),
			bytecode.IABC(bytecode.SHL, 2, 0, 1),
		},
	})
	assert.ErrorContains(t, err, "number has no integer representation")
}

func TestForLoopError(t *testing.T) {
	t.Parallel()

	err := evalExpectingError(t, &parse.FnProto{
		Name:      "main",
		Filename:  "test.sol",
		Constants: []any{"not a number"},
		ByteCodes: []uint32{
			bytecode.IABx(bytecode.LOADK, 0, 0),
			bytecode.IABx(bytecode.LOADI, 1, 3),
			bytecode.IABx(bytecode.LOADI, 2, 1),
			bytecode.IAsBx(bytecode.FORPREP, 0, 1),
		},
	})
	assert.ErrorContains(t, err, "bad 'for' initial value (number expected, got string)")
}

func TestVarinfoUpvalue(t *testing.T) {
	t.Parallel()

	held := &Table{hashtable: map[any]any{}}
	f := &frame{
		fn:     &parse.FnProto{},
		upvals: []*upvalueBroker{{name: "shared", val: held}},
	}
	assert.Equal(t, " (upvalue 'shared')", varinfo(f, -1, held))
	assert.Empty(t, varinfo(f, -1, &Table{}))
	assert.Empty(t, varinfo(nil, 0, held))
}

func TestExactInt(t *testing.T) {
	t.Parallel()

	v, ok := exactInt(int64(7))
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)

	v, ok = exactInt(float64(8))
	assert.True(t, ok)
	assert.Equal(t, int64(8), v)

	_, ok = exactInt(float64(1.5))
	assert.False(t, ok)
	_, ok = exactInt("10")
	assert.False(t, ok)
}
