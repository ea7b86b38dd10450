package tokentest

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"
)

// program is a tiny assembler with forward label references. Label pushes are
// always two bytes wide so the code size never depends on label positions.
type program struct {
	code   []byte
	labels map[string]int
	fixups map[int]string
}

func newProgram() *program {
	return &program{
		labels: make(map[string]int),
		fixups: make(map[int]string),
	}
}

func (p *program) op(ops ...vm.OpCode) *program {
	for _, op := range ops {
		p.code = append(p.code, byte(op))
	}
	return p
}

// push emits the smallest PUSHn that holds v.
func (p *program) push(v []byte) *program {
	for len(v) > 1 && v[0] == 0 {
		v = v[1:]
	}
	if len(v) == 0 {
		v = []byte{0}
	}
	p.code = append(p.code, byte(vm.PUSH1)+byte(len(v)-1))
	p.code = append(p.code, v...)
	return p
}

func (p *program) pushN(n uint64) *program {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[7-i] = byte(n >> (8 * i))
	}
	return p.push(buf[:])
}

// push32 emits a full-width PUSH32.
func (p *program) push32(v [32]byte) *program {
	p.code = append(p.code, byte(vm.PUSH32))
	p.code = append(p.code, v[:]...)
	return p
}

func (p *program) pushLabel(name string) *program {
	p.code = append(p.code, byte(vm.PUSH2))
	p.fixups[len(p.code)] = name
	p.code = append(p.code, 0, 0)
	return p
}

// label marks a jump destination.
func (p *program) label(name string) *program {
	p.mark(name)
	return p.op(vm.JUMPDEST)
}

// mark names the current offset without emitting anything.
func (p *program) mark(name string) *program {
	p.labels[name] = len(p.code)
	return p
}

func (p *program) raw(b []byte) *program {
	p.code = append(p.code, b...)
	return p
}

func (p *program) assemble() []byte {
	out := make([]byte, len(p.code))
	copy(out, p.code)
	for pos, name := range p.fixups {
		at, ok := p.labels[name]
		if !ok {
			panic(fmt.Sprintf("undefined label %q", name))
		}
		out[pos] = byte(at >> 8)
		out[pos+1] = byte(at)
	}
	return out
}
