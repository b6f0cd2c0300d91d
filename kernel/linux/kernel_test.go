package linux

import (
	"bytes"
	"io"
	"testing"

	"github.com/uvm-emu/uvm/cpu"
	"github.com/uvm-emu/uvm/models"
)

func mapBytes(t *testing.T, m *cpu.Mem, addr uint32, data []byte) {
	t.Helper()
	if err := m.InitCopy(addr, cpu.PROT_READ, bytes.NewReader(data), 0, uint32(len(data))); err != nil {
		t.Fatal(err)
	}
}

func TestExit(t *testing.T) {
	k := NewKernel(nil)
	err := k.Exit(3)
	status, ok := err.(models.ExitStatus)
	if !ok {
		t.Fatalf("want ExitStatus, got %T", err)
	}
	if int(status) != 3 {
		t.Errorf("exit code: got %d, want 3", status)
	}
}

func TestWriteFds(t *testing.T) {
	var stdout, stderr bytes.Buffer
	k := &LinuxKernel{Stdout: &stdout, Stderr: &stderr}
	m := cpu.NewMem()
	mapBytes(t, m, 0x9000, []byte("out"))
	mapBytes(t, m, 0xa000, []byte("err"))

	if ret, err := k.Write(m, 1, 0x9000, 3); err != nil || ret != 0 {
		t.Fatalf("fd 1: ret=%d err=%v", ret, err)
	}
	if ret, err := k.Write(m, 2, 0xa000, 3); err != nil || ret != 0 {
		t.Fatalf("fd 2: ret=%d err=%v", ret, err)
	}
	if stdout.String() != "out" || stderr.String() != "err" {
		t.Errorf("streams crossed: stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}

func TestWriteBadFd(t *testing.T) {
	k := &LinuxKernel{Stdout: io.Discard, Stderr: io.Discard}
	ret, err := k.Write(cpu.NewMem(), 3, 0x9000, 4)
	if err != nil {
		t.Fatal("bad fd must not be fatal:", err)
	}
	if ret != EBADF {
		t.Errorf("ret: got %d, want EBADF (%d)", ret, EBADF)
	}
}

func TestWriteChunked(t *testing.T) {
	// spans several staging chunks and a page boundary
	data := make([]byte, 3*writeChunk+17)
	for i := range data {
		data[i] = byte(i)
	}
	var stdout bytes.Buffer
	k := &LinuxKernel{Stdout: &stdout, Stderr: io.Discard}
	m := cpu.NewMem()
	mapBytes(t, m, 0x9230, data)

	if _, err := k.Write(m, 1, 0x9230, uint32(len(data))); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stdout.Bytes(), data) {
		t.Errorf("chunked write corrupted data: got %d bytes", stdout.Len())
	}
}

func TestWriteZeroLength(t *testing.T) {
	var stdout bytes.Buffer
	k := &LinuxKernel{Stdout: &stdout, Stderr: io.Discard}
	if ret, err := k.Write(cpu.NewMem(), 1, 0x9000, 0); err != nil || ret != 0 {
		t.Fatalf("zero-length write: ret=%d err=%v", ret, err)
	}
	if stdout.Len() != 0 {
		t.Error("zero-length write produced output")
	}
}

func TestWriteUnmapped(t *testing.T) {
	k := &LinuxKernel{Stdout: io.Discard, Stderr: io.Discard}
	if _, err := k.Write(cpu.NewMem(), 1, 0x9000, 4); err == nil {
		t.Error("write from unmapped memory succeeded")
	}
}
