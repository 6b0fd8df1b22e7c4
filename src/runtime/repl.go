package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/tanema/sol/src/parse"
)

// REPL will start an interactive repl parsing and running lua code.
func (vm *VM) REPL() error {
	envFn := parse.NewEmptyFnProto("<repl>", nil)
	ifn, err := vm.push(&Closure{val: envFn})
	if err != nil {
		return err
	}
	f := vm.newEnvFrame(envFn, ifn+1, nil)
	return vm.repl(envFn, f)
}

// repl reads statements from stdin one at a time, parsing each as a child
// scope of envFn so that globals resolve through the same _ENV upvalue that
// f was seeded with. Locals declared on one line do not carry over to the
// next; only the shared _ENV table persists between statements.
func (vm *VM) repl(envFn *parse.FnProto, f *frame) error {
	rl, err := readline.New("> ")
	if err != nil {
		return err
	}
	buf := bytes.NewBuffer(nil)
	for {
		src, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if buf.Len() > 0 {
					rl.SetPrompt("> ")
					buf.Reset()
					fmt.Fprint(os.Stderr, "Press ctrl-c again to quit.\n")
					continue
				}
				break
			}
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		if _, err := buf.WriteString(src + " "); err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		stmtFn, err := parse.TryStat(buf.String(), envFn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				rl.SetPrompt("...> ")
				continue
			}
			rl.SetPrompt("> ")
			buf.Reset()
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		rl.SetPrompt("> ")
		buf.Reset()
		if res, err := vm.runReplStat(f, stmtFn); err != nil {
			fmt.Fprintln(os.Stderr, err)
		} else if res != nil {
			strParts := []string{}
			for _, arg := range res {
				if arg != nil {
					strParts = append(strParts, ToString(arg))
				}
			}
			if len(strParts) > 0 && len(strings.Join(strParts, "\t")) > 0 {
				fmt.Fprintln(os.Stderr, strings.Join(strParts, "\t"))
			}
		}
	}
	return nil
}

// runReplStat closes a single repl statement over f's upvalues exactly as the
// CLOSURE opcode would and runs it as its own call, so a statement that
// errors does not leave f's stack or open brokers corrupted.
func (vm *VM) runReplStat(f *frame, stmtFn *parse.FnProto) ([]any, error) {
	upvals := make([]*upvalueBroker, len(stmtFn.UpIndexes))
	for i, idx := range stmtFn.UpIndexes {
		if idx.FromStack {
			if j, ok := search(f.openBrokers, uint64(f.framePointer)+uint64(idx.Index), findBroker); ok {
				upvals[i] = f.openBrokers[j]
			} else {
				newBroker := vm.newUpValueBroker(idx.Name, vm.get(f, int64(idx.Index), false), uint64(f.framePointer)+uint64(idx.Index))
				f.openBrokers = append(f.openBrokers, newBroker)
				upvals[i] = newBroker
			}
		} else {
			upvals[i] = f.upvals[idx.Index]
		}
	}
	return vm.call(&Closure{val: stmtFn, upvalues: upvals}, nil)
}
