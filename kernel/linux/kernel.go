package linux

import (
	"io"

	"github.com/pkg/errors"

	"github.com/uvm-emu/uvm/cpu"
	"github.com/uvm-emu/uvm/models"
)

// writeChunk bounds how much guest memory is staged per host write.
const writeChunk = 512

// LinuxKernel implements the syscall ABI the emulator exposes to the guest:
// process exit and byte-stream writes to file descriptors 1 and 2.
type LinuxKernel struct {
	Stdout io.Writer
	Stderr io.Writer
}

func NewKernel(config *models.Config) *LinuxKernel {
	config = config.Init()
	return &LinuxKernel{Stdout: config.Stdout, Stderr: config.Stderr}
}

// Exit terminates the guest. The run loop unwinds on the returned
// ExitStatus; nothing executes afterwards.
func (k *LinuxKernel) Exit(code uint32) error {
	return models.ExitStatus(code)
}

// Write streams size bytes of guest memory at addr to fd 1 or 2. A bad fd is
// reported to the guest as EBADF and execution continues; memory faults and
// host write failures are fatal.
func (k *LinuxKernel) Write(m *cpu.Mem, fd, addr, size uint32) (uint32, error) {
	var out io.Writer
	switch fd {
	case 1:
		out = k.Stdout
	case 2:
		out = k.Stderr
	default:
		return EBADF, nil
	}
	var buf [writeChunk]byte
	for size > 0 {
		n := uint32(len(buf))
		if n > size {
			n = size
		}
		if err := m.ReadBytes(addr, buf[:n], cpu.PROT_READ); err != nil {
			return 0, err
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return 0, errors.Wrap(err, "guest write failed")
		}
		addr += n
		size -= n
	}
	return 0, nil
}
