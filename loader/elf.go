package loader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/uvm-emu/uvm/cpu"
)

// header constants for the subset of ELF32 we accept
const (
	ET_EXEC = 2
	EM_ARM  = 40

	PT_NULL    = 0
	PT_LOAD    = 1
	PT_DYNAMIC = 2

	PF_X = 0x1
	PF_W = 0x2
	PF_R = 0x4
)

// Ehdr is the ELF32 file header: a fixed-layout little-endian record. It is
// decoded, validated and discarded during loading.
type Ehdr struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// Phdr is one ELF32 program header table entry.
type Phdr struct {
	Type   uint32
	Off    uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

func segmentProt(flags uint32) int {
	prot := cpu.PROT_NONE
	if flags&PF_X != 0 {
		prot |= cpu.PROT_EXEC
	}
	if flags&PF_W != 0 {
		prot |= cpu.PROT_WRITE
	}
	if flags&PF_R != 0 {
		prot |= cpu.PROT_READ
	}
	return prot
}

func validateEhdr(e *Ehdr, read int) error {
	switch {
	case e.Ident[4] != 1:
		return errors.New("only 32-bit ELFs are supported")
	case e.Ident[5] != 1:
		return errors.New("only little-endian ELFs are supported")
	case e.Ident[6] != 1:
		return errors.New("only ELF identification version 1 is supported")
	case e.Type != ET_EXEC:
		return errors.New("only ELF executables are supported (e_type != ET_EXEC)")
	case e.Machine != EM_ARM:
		return errors.New("only ARM ELFs are supported (e_machine != EM_ARM)")
	case e.Version != 1:
		return errors.New("only e_version == 1 ELFs are supported")
	case e.Phoff == 0:
		return errors.New("executables must have a program header table (e_phoff == 0)")
	case int(e.Ehsize) < read:
		return errors.Errorf("declared header size %d smaller than the header (%d)", e.Ehsize, read)
	case e.Phentsize == 0:
		return errors.New("program header entries must have nonzero size (e_phentsize == 0)")
	case e.Phnum == 0:
		return errors.New("executables need at least one program header entry (e_phnum == 0)")
	}
	return nil
}

// LoadELF validates r as a static ELF32/ARM executable, maps its PT_LOAD
// segments into a fresh address space and returns it with the entry point.
// Any validation or I/O failure aborts the whole load.
func LoadELF(r io.ReaderAt) (*cpu.Mem, uint32, error) {
	if !MatchElf(r) {
		return nil, 0, errors.New("not an ELF file (bad magic)")
	}

	ehdrSize, _ := struc.Sizeof(&Ehdr{})
	buf := make([]byte, ehdrSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, 0, errors.Wrap(err, "reading ELF header")
	}
	var ehdr Ehdr
	if err := struc.UnpackWithOrder(bytes.NewReader(buf), &ehdr, binary.LittleEndian); err != nil {
		return nil, 0, errors.Wrap(err, "decoding ELF header")
	}
	if err := validateEhdr(&ehdr, ehdrSize); err != nil {
		return nil, 0, err
	}

	phdrSize, _ := struc.Sizeof(&Phdr{})
	mem := cpu.NewMem()
	for i := 0; i < int(ehdr.Phnum); i++ {
		// read up to the declared entry size; larger future entries are
		// tolerated, shorter ones decode against zero padding
		pbuf := make([]byte, phdrSize)
		n := phdrSize
		if int(ehdr.Phentsize) < n {
			n = int(ehdr.Phentsize)
		}
		off := int64(ehdr.Phoff) + int64(i)*int64(ehdr.Phentsize)
		if _, err := r.ReadAt(pbuf[:n], off); err != nil {
			return nil, 0, errors.Wrapf(err, "reading program header %d", i)
		}
		var phdr Phdr
		if err := struc.UnpackWithOrder(bytes.NewReader(pbuf), &phdr, binary.LittleEndian); err != nil {
			return nil, 0, errors.Wrapf(err, "decoding program header %d", i)
		}

		switch phdr.Type {
		case PT_NULL:
		case PT_LOAD:
			if phdr.Filesz > phdr.Memsz {
				return nil, 0, errors.Errorf("segment %d: file size %#x exceeds memory size %#x",
					i, phdr.Filesz, phdr.Memsz)
			}
			prot := segmentProt(phdr.Flags)
			if err := mem.InitZero(phdr.Vaddr+phdr.Filesz, prot, phdr.Memsz-phdr.Filesz); err != nil {
				return nil, 0, errors.Wrapf(err, "zero-filling segment %d", i)
			}
			if err := mem.InitCopy(phdr.Vaddr, prot, r, int64(phdr.Off), phdr.Filesz); err != nil {
				return nil, 0, errors.Wrapf(err, "mapping segment %d", i)
			}
		case PT_DYNAMIC:
			return nil, 0, errors.New("PT_DYNAMIC segments are not supported")
		default:
			// other segment types carry no load semantics here
		}
	}
	return mem, ehdr.Entry, nil
}
