package loader

import (
	"bytes"
	"io"
)

var elfMagic = []byte{0x7f, 0x45, 0x4c, 0x46}

func getMagic(r io.ReaderAt) []byte {
	ret := make([]byte, 4)
	r.ReadAt(ret, 0)
	return ret
}

// MatchElf reports whether r starts with the ELF magic bytes.
func MatchElf(r io.ReaderAt) bool {
	return bytes.Equal(getMagic(r), elfMagic)
}
