// Package uvm loads a statically linked ELF32/ARM executable into a
// simulated address space and interprets it until the guest exits.
package uvm

import (
	"fmt"
	"io"
	"os"

	"github.com/uvm-emu/uvm/cpu"
	"github.com/uvm-emu/uvm/cpu/arm"
	"github.com/uvm-emu/uvm/kernel/linux"
	"github.com/uvm-emu/uvm/loader"
	"github.com/uvm-emu/uvm/models"
)

// Machine ties a populated address space to a CPU and its kernel.
type Machine struct {
	Mem   *cpu.Mem
	Cpu   *arm.Cpu
	Entry uint32

	config *models.Config
	status *models.StatusDiff
}

// NewMachine loads the executable from r and builds a machine ready to run
// from its entry point. Memory is fully populated here; r is not used again
// afterwards.
func NewMachine(r io.ReaderAt, config *models.Config) (*Machine, error) {
	config = config.Init()
	mem, entry, err := loader.LoadELF(r)
	if err != nil {
		return nil, err
	}
	c := arm.New(&arm.LinuxOS{Kernel: linux.NewKernel(config)})
	c.SetPC(entry)
	if config.Verbose {
		fmt.Fprintf(config.Output, "entry: 0x%08x\n", entry)
	}
	m := &Machine{Mem: mem, Cpu: c, Entry: entry, config: config}
	if config.TraceReg {
		m.status = models.NewStatusDiff(arm.RegNames)
		m.status.Color = config.Color
	}
	return m, nil
}

func NewMachineFromFile(path string, config *models.Config) (*Machine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewMachine(f, config)
}

// Run steps the CPU until the guest exits or a fatal error surfaces. A
// normal guest exit is returned as models.ExitStatus; any other error is a
// fatal fault. A guest that never exits runs forever.
func (m *Machine) Run() error {
	for {
		m.traceExec()
		err := m.Cpu.Step(m.Mem)
		m.traceRegs()
		if err != nil {
			return err
		}
	}
}

func (m *Machine) traceExec() {
	if !m.config.TraceExec {
		return
	}
	pc := m.Cpu.FetchAddr()
	if word, err := m.Mem.ReadUintAligned(pc, 4, cpu.PROT_READ|cpu.PROT_EXEC); err == nil {
		fmt.Fprintf(m.config.Output, "0x%08x: %08x\n", pc, uint32(word))
	}
}

func (m *Machine) traceRegs() {
	if m.status == nil {
		return
	}
	if diff := m.status.Diff(m.Cpu.Regs[:]); diff != "" {
		fmt.Fprintln(m.config.Output, diff)
	}
}
