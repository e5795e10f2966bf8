package vm

import (
	"github.com/birdlang/bird/pkg/bytecode"
	"github.com/birdlang/bird/pkg/value"
)

// disassemble renders fn's instructions via bytecode.Disassemble, then
// recurses into any function constant (a closure compiled inside fn) so
// should_print_bytecode dumps the whole call tree in one pass rather than
// just the top-level script.
func (v *VM) disassemble(fn *Object, name string) string {
	consts := make([]bytecode.Constant, len(fn.Constants))
	for i, c := range fn.Constants {
		consts[i] = c
	}
	out := bytecode.Disassemble(name, fn.Code, fn.Lines, consts)

	for _, c := range fn.Constants {
		if c.Kind() != value.KindObject {
			continue
		}
		sub := c.AsObject()
		if sub == nil || sub.Kind != value.ObjFunction {
			continue
		}
		subName := "<function>"
		if sub.Name != nil {
			subName = sub.Name.Chars
		}
		out += v.disassemble(sub, subName)
	}
	return out
}
