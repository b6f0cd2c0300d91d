package arm

// register indices into Cpu.Regs
const (
	R0 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP // r13
	LR // r14
	PC // r15
)

// RegNames is indexed by register number, for tracing.
var RegNames = []string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"r8", "r9", "r10", "r11", "r12", "sp", "lr", "pc",
}

// pipelineOffset is the fetch lookahead visible through r15 in ARM mode.
const pipelineOffset = 8

// instruction word field helpers, named so the decode logic can be audited
// against the ARM encoding tables

func cond(op uint32) uint32 {
	return op >> 28
}

func opClass(op uint32) uint32 {
	return (op >> 20) & 0xff
}

func bit(op uint32, n uint) bool {
	return op>>n&1 == 1
}

// field extracts bits hi:lo inclusive.
func field(op uint32, hi, lo uint) uint32 {
	return (op >> lo) & (1<<(hi-lo+1) - 1)
}
