package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

func UnpackUint(order binary.ByteOrder, size int, buf []byte) (uint64, error) {
	switch size {
	case 8:
		return order.Uint64(buf), nil
	case 4:
		return uint64(order.Uint32(buf)), nil
	case 2:
		return uint64(order.Uint16(buf)), nil
	case 1:
		return uint64(buf[0]), nil
	default:
		return 0, errors.Errorf("unsupported uint size: %d", size)
	}
}
