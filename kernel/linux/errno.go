package linux

// errno values returned to the guest in r0
const (
	EBADF = 9
)
