// Package codec holds the small byte-level helpers shared by the
// transport and packet layers: hex/ASCII conversion and the RTTTL
// ringtone encoder.
package codec

import "fmt"

// ToHex renders each byte as two lowercase hex digits, concatenated.
func ToHex(data []byte) string {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		out = append(out, []byte(fmt.Sprintf("%02x", b))...)
	}
	return string(out)
}

// FilterPrintableASCII keeps only bytes in [0x20, 0x7F], the printable
// ASCII range a handheld's username/password/buddy-name fields are
// restricted to.
func FilterPrintableASCII(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b >= 0x20 && b <= 0x7F {
			out = append(out, b)
		}
	}
	return out
}

// HexDump renders bytes as "(xx xx ..) (ascii)" for trace logging.
func HexDump(data []byte) string {
	ascii := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 127 {
			ascii[i] = b
		} else {
			ascii[i] = '.'
		}
	}
	return fmt.Sprintf("(%s) (%s)", hexWithSpaces(data), ascii)
}

func hexWithSpaces(data []byte) string {
	out := make([]byte, 0, len(data)*3)
	for i, b := range data {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, []byte(fmt.Sprintf("%02x", b))...)
	}
	return string(out)
}
