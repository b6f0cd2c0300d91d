package models

import "fmt"

// ExitStatus is returned as an error by the run loop when the guest invokes
// the exit syscall. It carries the guest's exit code.
type ExitStatus int

func (e ExitStatus) Error() string {
	return fmt.Sprintf("exit %d", e)
}
