package kv

import (
	"encoding/binary"
	"errors"
)

var errMalformedSlots = errors.New("kv: malformed vector slot sequence")

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errMalformedSlots
	}
	return binary.BigEndian.Uint64(b), nil
}
