package compiler

import "github.com/birdlang/bird/pkg/bytecode"

func (p *parser) beginScope() {
	p.compiler.scopeDepth++
}

// endScope pops every local declared in the scope just exited. A captured
// local must be closed over (its value copied off the stack into its
// upvalue) rather than simply dropped, per spec.md §4.5 "Scope exit".
func (p *parser) endScope() {
	c := p.compiler
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].isCaptured {
			p.emitOp(bytecode.OpCloseUpvalue)
		} else {
			p.emitOp(bytecode.OpPop)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (p *parser) declareLocal(name string) {
	c := p.compiler
	if c.scopeDepth == 0 {
		return // globals aren't tracked as locals
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			p.error("a variable with this name already exists in this scope")
		}
	}
	p.addLocal(name)
}

func (p *parser) addLocal(name string) {
	c := p.compiler
	if len(c.locals) >= maxLocals {
		p.error("too many local variables in one function")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

// markInitialized promotes the most recently declared local from the
// uninitialized sentinel depth (-1) to the current scope depth, once its
// initializer expression has finished compiling — this is what makes
// `var x = x` a compile error (the right-hand `x` resolves to the new
// local while it is still at depth -1, and namedVariable rejects that).
func (p *parser) markInitialized() {
	c := p.compiler
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

// resolveLocal looks up name in c's own locals, innermost scope first.
func resolveLocal(c *Compiler, name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				return -2 // sentinel: "read before its own initializer finished"
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue recursively resolves name in an enclosing function,
// capturing it through every intermediate function's upvalue list so each
// frame only ever reaches one level outward (spec.md §4.5 "Closure
// construction"). Returns -1 if name isn't found in any enclosing scope
// (so the caller falls back to treating it as a global), or the
// upvalueOverflow sentinel if it was found but this closure has already
// captured maxUpvalues upvalues (spec.md §8 "capturing more than 255
// upvalues in one closure is rejected at compile time") — the caller must
// check for that sentinel and raise a compile error rather than silently
// falling back to a global, since the name truly does resolve to a
// captured variable, just one that no longer fits.
func resolveUpvalue(c *Compiler, name string) int {
	if c.enclosing == nil {
		return -1
	}
	if local := resolveLocal(c.enclosing, name); local >= 0 {
		c.enclosing.locals[local].isCaptured = true
		return addUpvalue(c, uint8(local), true)
	}
	if up := resolveUpvalue(c.enclosing, name); up != -1 {
		if up == upvalueOverflow {
			return upvalueOverflow
		}
		return addUpvalue(c, uint8(up), false)
	}
	return -1
}

// upvalueOverflow is returned by addUpvalue/resolveUpvalue when a name
// resolves to a capturable variable but this closure has already hit
// maxUpvalues — distinct from -1 ("not found at all, try a global") so
// namedVariable can tell the two cases apart.
const upvalueOverflow = -2

func addUpvalue(c *Compiler, index uint8, isLocal bool) int {
	for i, u := range c.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(c.upvalues) >= maxUpvalues {
		return upvalueOverflow
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	c.function.UpvalueCount = len(c.upvalues)
	return len(c.upvalues) - 1
}
