package cpu

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

const (
	pageShift = 10
	// PageSize is the granularity of protection and backing allocation.
	PageSize = 1 << pageShift
	pageMask = PageSize - 1
	// NumPages covers the full 32-bit address space at PageSize bytes/page.
	NumPages = 1 << (32 - pageShift)
)

var zeroPage [PageSize]byte

// page is one lock-guarded unit of the simulated address space. data stays
// nil until a copy-in touches the page; a nil page reads as zero.
type page struct {
	sync.Mutex
	prot int
	data []byte
}

func (p *page) bytes() []byte {
	if p.data == nil {
		return zeroPage[:]
	}
	return p.data
}

func (p *page) alloc() []byte {
	if p.data == nil {
		p.data = make([]byte, PageSize)
	}
	return p.data
}

type MemError struct {
	Addr uint32
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected fetch"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// Mem simulates the flat 4 GiB address space of a 32-bit guest. The page
// table is one contiguous allocation; backing storage is sparse and appears
// only when InitCopy touches a page. Each page carries its own lock so
// disjoint pages can be accessed without contention.
type Mem struct {
	pages []page
	order binary.ByteOrder
}

func NewMem() *Mem {
	return &Mem{
		pages: make([]page, NumPages),
		order: binary.LittleEndian,
	}
}

// initPages walks the pages touched by [base, base+size), ORs prot onto each
// and hands the in-page range to fn under the page lock. The first page may
// be partial; the rest start at offset zero.
func (m *Mem) initPages(base uint32, prot int, size uint32, fn func(p *page, off, n uint32) error) error {
	idx := uint64(base >> pageShift)
	off := base & pageMask
	for size > 0 {
		if idx >= NumPages {
			return errors.Errorf("initialization at %#x runs beyond the address space", base)
		}
		n := uint32(PageSize) - off
		if n > size {
			n = size
		}
		p := &m.pages[idx]
		p.Lock()
		p.prot |= prot
		err := fn(p, off, n)
		p.Unlock()
		if err != nil {
			return err
		}
		idx++
		off = 0
		size -= n
	}
	return nil
}

// InitZero grants prot over [base, base+size) without allocating backing
// storage. Untouched pages keep reading as zero.
func (m *Mem) InitZero(base uint32, prot int, size uint32) error {
	return m.initPages(base, prot, size, func(p *page, off, n uint32) error {
		return nil
	})
}

// InitCopy grants prot over [base, base+size), allocating every touched page
// and filling the range from r starting at fileOff. A failed source read
// aborts the copy; pages already processed keep what was written.
func (m *Mem) InitCopy(base uint32, prot int, r io.ReaderAt, fileOff int64, size uint32) error {
	return m.initPages(base, prot, size, func(p *page, off, n uint32) error {
		data := p.alloc()
		read, err := r.ReadAt(data[off:off+n], fileOff)
		if err != nil && !(err == io.EOF && read == int(n)) {
			return errors.Wrapf(err, "reading %d bytes at file offset %#x", n, fileOff)
		}
		fileOff += int64(n)
		return nil
	})
}

func protErr(pageProt int, addr uint32, size, prot int) *MemError {
	enum := MEM_READ_PROT
	if pageProt == PROT_NONE {
		enum = MEM_READ_UNMAPPED
	}
	if prot&PROT_EXEC == PROT_EXEC {
		if enum == MEM_READ_PROT {
			enum = MEM_FETCH_PROT
		} else {
			enum = MEM_FETCH_UNMAPPED
		}
	}
	return &MemError{Addr: addr, Size: size, Enum: enum}
}

// readPages copies guest memory into buf, splitting across as many pages as
// the range touches. Every touched page must carry all of the requested prot
// flags.
func (m *Mem) readPages(addr uint32, buf []byte, prot int) error {
	reqAddr, reqSize := addr, len(buf)
	idx := uint64(addr >> pageShift)
	off := int(addr & pageMask)
	for len(buf) > 0 {
		if idx >= NumPages {
			return &MemError{Addr: reqAddr, Size: reqSize, Enum: MEM_READ_UNMAPPED}
		}
		n := PageSize - off
		if n > len(buf) {
			n = len(buf)
		}
		p := &m.pages[idx]
		p.Lock()
		if p.prot&prot != prot {
			pp := p.prot
			p.Unlock()
			return protErr(pp, reqAddr, reqSize, prot)
		}
		copy(buf[:n], p.bytes()[off:off+n])
		p.Unlock()
		buf = buf[n:]
		idx++
		off = 0
	}
	return nil
}

// readAligned is the single-page fast path. The access must not cross a page
// boundary.
func (m *Mem) readAligned(addr uint32, buf []byte, prot int) error {
	off := int(addr & pageMask)
	if off+len(buf) > PageSize {
		return errors.Errorf("aligned %d-byte read at %#x crosses a page boundary", len(buf), addr)
	}
	p := &m.pages[addr>>pageShift]
	p.Lock()
	if p.prot&prot != prot {
		pp := p.prot
		p.Unlock()
		return protErr(pp, addr, len(buf), prot)
	}
	copy(buf, p.bytes()[off:off+len(buf)])
	p.Unlock()
	return nil
}

// ReadUintAligned reads a little-endian unsigned integer of 1, 2, 4 or 8
// bytes that resides within a single page.
func (m *Mem) ReadUintAligned(addr uint32, size, prot int) (uint64, error) {
	var buf [8]byte
	if size > 8 {
		return 0, errors.Errorf("ReadUintAligned size too large: %d > 8", size)
	}
	if err := m.readAligned(addr, buf[:size], prot); err != nil {
		return 0, err
	}
	return UnpackUint(m.order, size, buf[:size])
}

// ReadUint is the unaligned form of ReadUintAligned: the access may span any
// number of pages.
func (m *Mem) ReadUint(addr uint32, size, prot int) (uint64, error) {
	var buf [8]byte
	if size > 8 {
		return 0, errors.Errorf("ReadUint size too large: %d > 8", size)
	}
	if err := m.readPages(addr, buf[:size], prot); err != nil {
		return 0, err
	}
	return UnpackUint(m.order, size, buf[:size])
}

// ReadBytes fills p from guest memory at addr, checking prot on every page
// touched.
func (m *Mem) ReadBytes(addr uint32, p []byte, prot int) error {
	return m.readPages(addr, p, prot)
}
