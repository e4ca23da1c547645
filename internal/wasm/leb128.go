package wasm

import "bytes"

// writeUleb encodes an unsigned integer as LEB128.
func writeUleb(buf *bytes.Buffer, v uint32) {
	for v >= 0x80 {
		buf.WriteByte(byte(v&0x7F) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v & 0x7F))
}

// writeSleb encodes a signed integer as LEB128.
func writeSleb(buf *bytes.Buffer, v int64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}
