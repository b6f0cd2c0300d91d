package arm

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/uvm-emu/uvm/cpu"
)

// OS handles software interrupts on behalf of the guest. comment is the
// 24-bit immediate field of the SWI instruction.
type OS interface {
	Syscall(c *Cpu, m *cpu.Mem, comment uint32) error
}

// Cpu models the ARM user-visible state: 16 registers (r13=sp, r14=lr,
// r15=pc) and the four condition flags.
type Cpu struct {
	Regs       [16]uint32
	Z, C, N, V bool

	OS OS
}

func New(os OS) *Cpu {
	return &Cpu{OS: os}
}

// SetPC arranges for addr to be the next instruction fetched. r15 holds the
// fetch address plus the pipeline offset at all times.
func (c *Cpu) SetPC(addr uint32) {
	c.Regs[PC] = addr + pipelineOffset
}

// FetchAddr is the address Step will fetch from next.
func (c *Cpu) FetchAddr() uint32 {
	return c.Regs[PC] - pipelineOffset
}

type opFunc func(c *Cpu, m *cpu.Mem, op uint32) error

// dispatch maps bits 27:20 of the instruction word to a handler. An unmapped
// class is a fatal unimplemented-instruction error; extending instruction
// coverage means adding entries here.
var dispatch [256]opFunc

func init() {
	dispatch[0x28] = (*Cpu).dataProcessing // ADD immediate
	dispatch[0x3a] = (*Cpu).dataProcessing // MOV immediate
	for class := 0xf0; class <= 0xff; class++ {
		dispatch[class] = (*Cpu).swi
	}
}

// Step runs one fetch-decode-execute cycle against m. The fetch pointer
// advances exactly once per step, whether or not the condition passed.
func (c *Cpu) Step(m *cpu.Mem) error {
	word, err := m.ReadUintAligned(c.Regs[PC]-pipelineOffset, 4, cpu.PROT_READ|cpu.PROT_EXEC)
	if err != nil {
		return err
	}
	op := uint32(word)
	if c.condPassed(cond(op)) {
		err = c.exec(m, op)
	}
	c.Regs[PC] += 4
	return err
}

func (c *Cpu) exec(m *cpu.Mem, op uint32) error {
	if (op>>4)&0xffffff == 0x12fff1 {
		return errors.Errorf("BX not implemented: %#010x", op)
	}
	if fn := dispatch[opClass(op)]; fn != nil {
		return fn(c, m, op)
	}
	return errors.Errorf("unimplemented instruction: %#010x", op)
}

// condPassed evaluates a 4-bit condition code against the current flags.
// The reserved 0b1111 encoding never executes here; later architecture
// revisions repurpose it for an unconditional instruction space.
func (c *Cpu) condPassed(cc uint32) bool {
	switch cc {
	case 0x0: // EQ
		return c.Z
	case 0x1: // NE
		return !c.Z
	case 0x2: // CS
		return c.C
	case 0x3: // CC
		return !c.C
	case 0x4: // MI
		return c.N
	case 0x5: // PL
		return !c.N
	case 0x6: // VS
		return c.V
	case 0x7: // VC
		return !c.V
	case 0x8: // HI
		return c.C && !c.Z
	case 0x9: // LS
		return !c.C || c.Z
	case 0xa: // GE
		return c.N == c.V
	case 0xb: // LT
		return c.N != c.V
	case 0xc: // GT
		return !c.Z && c.N == c.V
	case 0xd: // LE
		return c.Z || c.N != c.V
	case 0xe: // AL
		return true
	default:
		return false
	}
}

// dataProcessing executes the ALU instruction family. Rn is read even for
// MOV/MVN, which ignore it. All arithmetic wraps at 32 bits.
func (c *Cpu) dataProcessing(_ *cpu.Mem, op uint32) error {
	opcode := field(op, 24, 21)
	rn := field(op, 19, 16)
	rd := field(op, 15, 12)
	op1 := c.Regs[rn]
	op2 := c.operand2(op)

	if bit(op, 20) {
		return errors.Errorf("flag-setting ALU ops (S bit) not implemented: %#010x", op)
	}

	var carry uint32
	if c.C {
		carry = 1
	}
	switch opcode {
	case 0x0: // AND
		c.Regs[rd] = op1 & op2
	case 0x1: // EOR
		c.Regs[rd] = op1 ^ op2
	case 0x2: // SUB
		c.Regs[rd] = op1 - op2
	case 0x3: // RSB
		c.Regs[rd] = op2 - op1
	case 0x4: // ADD
		c.Regs[rd] = op1 + op2
	case 0x5: // ADC
		c.Regs[rd] = op1 + op2 + carry
	case 0x6: // SBC
		c.Regs[rd] = op1 - op2 + carry - 1
	case 0x7: // RSC
		c.Regs[rd] = op2 - op1 + carry - 1
	case 0x8:
		return errors.Errorf("tst not implemented: %#010x", op)
	case 0x9:
		return errors.Errorf("teq not implemented: %#010x", op)
	case 0xa:
		return errors.Errorf("cmp not implemented: %#010x", op)
	case 0xb:
		return errors.Errorf("cmn not implemented: %#010x", op)
	case 0xc: // ORR
		c.Regs[rd] = op1 | op2
	case 0xd: // MOV
		c.Regs[rd] = op2
	case 0xe: // BIC
		c.Regs[rd] = op1 &^ op2
	default: // MVN
		c.Regs[rd] = ^op2
	}
	return nil
}

// operand2 derives the ALU's right-hand operand: an 8-bit immediate rotated
// right by twice the rotate field, or a register value passed through the
// barrel shifter.
func (c *Cpu) operand2(op uint32) uint32 {
	if bit(op, 25) {
		rot := field(op, 11, 8)
		return bits.RotateLeft32(field(op, 7, 0), -int(2*rot))
	}
	rm := c.Regs[field(op, 3, 0)]
	var amount uint32
	if bit(op, 4) {
		// amount in the bottom byte of rs; only the low five bits matter
		amount = c.Regs[field(op, 11, 8)] & 0x1f
	} else {
		amount = field(op, 11, 7)
	}
	switch field(op, 6, 5) {
	case 0x0: // LSL
		return rm << amount
	case 0x1: // LSR
		return rm >> amount
	case 0x2: // ASR
		return uint32(int32(rm) >> amount)
	default: // ROR
		return bits.RotateLeft32(rm, -int(amount))
	}
}

// swi hands a software interrupt to the OS. r7 selects the call.
func (c *Cpu) swi(m *cpu.Mem, op uint32) error {
	if cond(op) == 0xf {
		return errors.Errorf("swi with reserved condition field: %#010x", op)
	}
	if field(op, 27, 24) != 0xf {
		return errors.Errorf("bad swi selector: %#010x", op)
	}
	if c.OS == nil {
		return errors.Errorf("swi with no OS attached: %#010x", op)
	}
	return c.OS.Syscall(c, m, field(op, 23, 0))
}
