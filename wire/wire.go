// Package wire provides the big-endian byte-packing helpers blockfs's
// on-disk structures are built from: every integer that touches disk goes
// through these functions so on-disk layout stays bit-exact regardless of
// host byte order.
package wire

import "encoding/binary"

// PutInt32 writes v as 4 big-endian bytes into buf starting at off.
func PutInt32(v int32, buf []byte, off int) {
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(v))
}

// Int32 reads 4 big-endian bytes from buf starting at off.
func Int32(buf []byte, off int) int32 {
	return int32(binary.BigEndian.Uint32(buf[off : off+4]))
}

// PutInt16 writes v as 2 big-endian bytes into buf starting at off.
func PutInt16(v int16, buf []byte, off int) {
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(v))
}

// Int16 reads 2 big-endian bytes from buf starting at off.
func Int16(buf []byte, off int) int16 {
	return int16(binary.BigEndian.Uint16(buf[off : off+2]))
}
