package arm

import (
	"github.com/pkg/errors"

	"github.com/uvm-emu/uvm/cpu"
	"github.com/uvm-emu/uvm/kernel/linux"
)

// linuxSyscalls maps r7 values onto kernel calls for the implemented subset.
var linuxSyscalls = map[uint32]string{
	1: "exit",
	4: "write",
}

// LinuxOS adapts the kernel to the SWI register convention: r7 selects the
// call, r0-r2 carry arguments, r0 carries error returns.
type LinuxOS struct {
	Kernel *linux.LinuxKernel
}

func (os *LinuxOS) Syscall(c *Cpu, m *cpu.Mem, comment uint32) error {
	num := c.Regs[R7]
	switch linuxSyscalls[num] {
	case "exit":
		return os.Kernel.Exit(c.Regs[R0])
	case "write":
		ret, err := os.Kernel.Write(m, c.Regs[R0], c.Regs[R1], c.Regs[R2])
		if err != nil {
			return err
		}
		if ret != 0 {
			c.Regs[R0] = ret
		}
		return nil
	default:
		return errors.Errorf("swi #%d: unimplemented syscall %d", comment, num)
	}
}
