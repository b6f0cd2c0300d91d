package cpu

// page protection flags; the loader maps ELF PF_* bits onto these
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// MemError reasons
const (
	MEM_READ_UNMAPPED = iota
	MEM_FETCH_UNMAPPED
	MEM_READ_PROT
	MEM_FETCH_PROT
)
