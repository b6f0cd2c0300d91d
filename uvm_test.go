package uvm

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/uvm-emu/uvm/loader"
	"github.com/uvm-emu/uvm/models"
)

type segment struct {
	vaddr uint32
	flags uint32
	data  []byte
}

// buildImage assembles a minimal static ELF32/ARM executable whose entry
// point is the first segment's base address.
func buildImage(t *testing.T, segs ...segment) *bytes.Reader {
	t.Helper()
	var ehdr loader.Ehdr
	copy(ehdr.Ident[:], []byte{0x7f, 'E', 'L', 'F', 1, 1, 1})
	ehdr.Type = loader.ET_EXEC
	ehdr.Machine = loader.EM_ARM
	ehdr.Version = 1
	ehdr.Entry = segs[0].vaddr
	ehdr.Phoff = 52
	ehdr.Ehsize = 52
	ehdr.Phentsize = 32
	ehdr.Phnum = uint16(len(segs))

	off := uint32(52 + 32*len(segs))
	var hdrs bytes.Buffer
	var body bytes.Buffer
	if err := struc.PackWithOrder(&hdrs, &ehdr, binary.LittleEndian); err != nil {
		t.Fatal(err)
	}
	for _, s := range segs {
		phdr := loader.Phdr{
			Type:   loader.PT_LOAD,
			Off:    off,
			Vaddr:  s.vaddr,
			Filesz: uint32(len(s.data)),
			Memsz:  uint32(len(s.data)),
			Flags:  s.flags,
		}
		if err := struc.PackWithOrder(&hdrs, &phdr, binary.LittleEndian); err != nil {
			t.Fatal(err)
		}
		body.Write(s.data)
		off += uint32(len(s.data))
	}
	hdrs.Write(body.Bytes())
	return bytes.NewReader(hdrs.Bytes())
}

func code(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

// mov r7, #1; mov r0, #42; swi
func exitImage(t *testing.T) *bytes.Reader {
	return buildImage(t, segment{
		vaddr: 0x8000,
		flags: loader.PF_R | loader.PF_X,
		data:  code(0xe3a07001, 0xe3a0002a, 0xef000000),
	})
}

// write(1, "hi", 2) followed by exit(0)
func helloImage(t *testing.T) *bytes.Reader {
	return buildImage(t,
		segment{
			vaddr: 0x8000,
			flags: loader.PF_R | loader.PF_X,
			data: code(
				0xe3a07004, // mov r7, #4
				0xe3a00001, // mov r0, #1
				0xe3a01c90, // mov r1, #0x9000
				0xe3a02002, // mov r2, #2
				0xef000000, // swi #0
				0xe3a07001, // mov r7, #1
				0xe3a00000, // mov r0, #0
				0xef000000, // swi #0
			),
		},
		segment{vaddr: 0x9000, flags: loader.PF_R, data: []byte("hi")},
	)
}

func runStatus(t *testing.T, err error) models.ExitStatus {
	t.Helper()
	status, ok := errors.Cause(err).(models.ExitStatus)
	if !ok {
		t.Fatalf("run did not end in a guest exit: %v", err)
	}
	return status
}

func TestRunExit(t *testing.T) {
	m, err := NewMachine(exitImage(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	if m.Entry != 0x8000 {
		t.Errorf("entry: got %#x, want 0x8000", m.Entry)
	}
	if status := runStatus(t, m.Run()); int(status) != 42 {
		t.Errorf("exit code: got %d, want 42", status)
	}
}

func TestRunWrite(t *testing.T) {
	var stdout bytes.Buffer
	config := &models.Config{Stdout: &stdout, Stderr: io.Discard, Output: io.Discard}
	m, err := NewMachine(helloImage(t), config)
	if err != nil {
		t.Fatal(err)
	}
	if status := runStatus(t, m.Run()); int(status) != 0 {
		t.Errorf("exit code: got %d, want 0", status)
	}
	if stdout.String() != "hi" {
		t.Errorf("stdout: got %q, want %q", stdout.String(), "hi")
	}
}

func TestRunTrace(t *testing.T) {
	var trace bytes.Buffer
	config := &models.Config{
		TraceExec: true,
		TraceReg:  true,
		Verbose:   true,
		Output:    &trace,
		Stdout:    io.Discard,
		Stderr:    io.Discard,
	}
	m, err := NewMachine(exitImage(t), config)
	if err != nil {
		t.Fatal(err)
	}
	runStatus(t, m.Run())
	out := trace.String()
	for _, want := range []string{
		"entry: 0x00008000",
		"0x00008000: e3a07001", // first fetch
		"r0",
		"0x0000002a", // r0 after the second mov
	} {
		if !strings.Contains(out, want) {
			t.Errorf("trace output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("trace output contains color escapes with color disabled")
	}
}

func TestNewMachineBadImage(t *testing.T) {
	if _, err := NewMachine(strings.NewReader("not an executable"), nil); err == nil {
		t.Error("junk input produced a machine")
	}
}

func TestRunFatalFault(t *testing.T) {
	// a single mov then a fall-through fetch past the mapped segment
	img := buildImage(t, segment{
		vaddr: 0x8000,
		flags: loader.PF_R | loader.PF_X,
		data:  code(0xe3a00001),
	})
	config := &models.Config{Stdout: io.Discard, Stderr: io.Discard, Output: io.Discard}
	m, err := NewMachine(img, config)
	if err != nil {
		t.Fatal(err)
	}
	err = m.Run()
	if err == nil {
		t.Fatal("run off the end of the image succeeded")
	}
	if _, ok := errors.Cause(err).(models.ExitStatus); ok {
		t.Error("fetch fault reported as a guest exit")
	}
}

func TestNewMachineFromFile(t *testing.T) {
	img := exitImage(t)
	raw, err := io.ReadAll(io.NewSectionReader(img, 0, int64(img.Len())))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "guest.elf")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	config := &models.Config{Stdout: io.Discard, Stderr: io.Discard, Output: io.Discard}
	m, err := NewMachineFromFile(path, config)
	if err != nil {
		t.Fatal(err)
	}
	if status := runStatus(t, m.Run()); int(status) != 42 {
		t.Errorf("exit code: got %d, want 42", status)
	}

	if _, err := NewMachineFromFile(filepath.Join(t.TempDir(), "missing"), config); err == nil {
		t.Error("missing file produced a machine")
	}
}
